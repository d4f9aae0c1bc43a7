// Command button-sensor classifies GPIO key presses and publishes them to MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sweeney/button-sensor/internal/config"
	"github.com/sweeney/button-sensor/internal/gpio"
	"github.com/sweeney/button-sensor/internal/history"
	"github.com/sweeney/button-sensor/internal/mqtt"
	"github.com/sweeney/button-sensor/internal/status"
	"github.com/sweeney/button-sensor/internal/web"
)

const defaultConfigPath = "/etc/button-sensor/config.yaml"

// flags holds command-line overrides. Empty values keep the file's setting.
type flags struct {
	configPath string
	broker     string
	httpAddr   string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags

	root := &cobra.Command{
		Use:           "button-sensor",
		Short:         "Classify GPIO key presses and publish them to MQTT",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), f)
		},
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", defaultConfigPath, "Path to the YAML config file")
	root.PersistentFlags().StringVar(&f.broker, "broker", "", "MQTT broker address (overrides mqtt.broker)")
	root.PersistentFlags().StringVar(&f.httpAddr, "http", "", `HTTP status address (overrides http.addr, "off" disables)`)
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "Log level (overrides log_level)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), f)
		},
	}
	printCmd := &cobra.Command{
		Use:   "print-state",
		Short: "Print every button's current level and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printState(cmd.OutOrStdout(), f)
		},
	}
	root.AddCommand(runCmd, printCmd)
	root.CompletionOptions.DisableDefaultCmd = true
	return root
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(f flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyFlags(cfg, f)
	return cfg, nil
}

func applyFlags(cfg *config.Config, f flags) {
	if f.broker != "" {
		cfg.MQTT.Broker = f.broker
	}
	switch f.httpAddr {
	case "":
	case "off":
		cfg.HTTPAddr = ""
	default:
		cfg.HTTPAddr = f.httpAddr
	}
	if f.logLevel != "" {
		cfg.LogLevel = strings.ToLower(f.logLevel)
	}
}

func printState(w io.Writer, f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	reader, err := gpio.NewRealReader(cfg.Chip, cfg.LineConfigs())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer reader.Close()

	return writeState(w, reader, cfg.ButtonNames())
}

func writeState(w io.Writer, r gpio.Reader, names []string) error {
	parts := make([]string, len(names))
	for i, name := range names {
		on, err := r.Asserted(i)
		if err != nil {
			return fmt.Errorf("read gpio %s: %w", name, err)
		}
		parts[i] = fmt.Sprintf("%s: %s", name, levelString(on))
	}
	_, err := fmt.Fprintln(w, strings.Join(parts, ", "))
	return err
}

func levelString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func runDaemon(ctx context.Context, f flags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	if err := setupLogging(os.Stderr, cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}

	reader, err := gpio.NewRealReader(cfg.Chip, cfg.LineConfigs())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer reader.Close()

	bootID := xid.New().String()

	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:     cfg.MQTT.Broker,
		ClientID:   cfg.MQTT.ClientID,
		Topic:      cfg.MQTT.Topic,
		BufferSize: cfg.MQTT.Buffer,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	var store *history.Store
	if cfg.History.Path != "" {
		store, err = history.Open(cfg.History.Path, cfg.History.Keep, bootID)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	tracker := status.NewTracker(time.Now(), bootID, statusConfig(cfg))
	netInfo := func() *status.NetworkInfo { return readNetworkInfo(cfg.EnvFile) }
	if net := netInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	d := deps{
		Reader:     reader,
		Publisher:  publisher,
		MQTTStatus: publisher,
		Tracker:    tracker,
		Notify:     sdNotify,
		Network:    netInfo,
	}
	if store != nil {
		d.Recorder = store
	}
	dm, err := newDaemon(cfg, d)
	if err != nil {
		return err
	}

	if cfg.HTTPAddr != "" {
		var events web.EventSource
		if store != nil {
			events = store
		}
		srv := web.New(cfg.HTTPAddr, tracker, events)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(sctx)
		}()
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http status server listening")
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go func() {
		if err := config.Watch(watchCtx, f.configPath, func(c *config.Config) {
			applyFlags(c, f)
			dm.reload(c)
		}); err != nil {
			log.Warn().Err(err).Msg("config: hot reload disabled")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return dm.run(ctx, sigCh)
}
