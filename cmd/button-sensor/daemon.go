package main

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/sweeney/button-sensor/internal/clock"
	"github.com/sweeney/button-sensor/internal/config"
	"github.com/sweeney/button-sensor/internal/gpio"
	"github.com/sweeney/button-sensor/internal/logic"
	"github.com/sweeney/button-sensor/internal/mqtt"
	"github.com/sweeney/button-sensor/internal/sched"
	"github.com/sweeney/button-sensor/internal/status"
)

// Task table order is priority among tasks that become ready together.
const (
	taskScan = iota
	taskStatus
	taskHeartbeat
	taskWatchdog
)

var taskNames = [...]string{
	taskScan:      "scan",
	taskStatus:    "status",
	taskHeartbeat: "heartbeat",
	taskWatchdog:  "watchdog",
}

const (
	eventQueueSize = 64
	recordTimeout  = 2 * time.Second
)

// recorder persists classified events. *history.Store satisfies it.
type recorder interface {
	Append(ctx context.Context, ts time.Time, ev logic.Event, name string) error
}

// notifier sends a service manager notification; sd.SdNotify without the
// unsetEnvironment flag.
type notifier func(state string) (bool, error)

func sdNotify(state string) (bool, error) {
	return sd.SdNotify(false, state)
}

// deps are the platform pieces a daemon is built from.
type deps struct {
	Reader     gpio.Reader
	Publisher  mqtt.Publisher
	MQTTStatus mqtt.ConnectionStatus // optional
	Recorder   recorder              // optional
	Tracker    *status.Tracker
	Notify     notifier                   // optional
	Network    func() *status.NetworkInfo // optional
	Now        func() time.Time           // optional
}

// daemon wires GPIO sampling, classification and publishing onto the tick
// scheduler. Task callbacks run on the idle loop and never block: events
// leave through a bounded queue drained by the dispatcher goroutine.
type daemon struct {
	cfg        *config.Config
	names      []string
	lines      []int
	levels     *gpio.Levels
	tick       *clock.SysTick
	classifier *logic.Classifier
	sched      *sched.Scheduler

	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	recorder   recorder
	tracker    *status.Tracker
	notify     notifier
	network    func() *status.NetworkInfo
	now        func() time.Time

	events  chan mqtt.ButtonEvent
	system  chan mqtt.SystemEvent
	reloads chan *config.Config
	dropped atomic.Uint64

	gpioLog *rate.Limiter
	dropLog *rate.Limiter
}

func newDaemon(cfg *config.Config, d deps) (*daemon, error) {
	if d.Reader == nil || d.Publisher == nil || d.Tracker == nil {
		return nil, errors.New("daemon: reader, publisher and tracker are required")
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Notify == nil {
		d.Notify = func(string) (bool, error) { return false, nil }
	}
	if d.Network == nil {
		d.Network = func() *status.NetworkInfo { return nil }
	}

	dm := &daemon{
		cfg:        cfg,
		names:      cfg.ButtonNames(),
		tick:       clock.NewSysTick(cfg.Tick),
		publisher:  d.Publisher,
		mqttStatus: d.MQTTStatus,
		recorder:   d.Recorder,
		tracker:    d.Tracker,
		notify:     d.Notify,
		network:    d.Network,
		now:        d.Now,
		events:     make(chan mqtt.ButtonEvent, eventQueueSize),
		system:     make(chan mqtt.SystemEvent, 4),
		reloads:    make(chan *config.Config, 1),
		gpioLog:    rate.NewLimiter(rate.Every(10*time.Second), 1),
		dropLog:    rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
	for _, b := range cfg.Buttons {
		dm.lines = append(dm.lines, b.Line)
	}
	dm.levels = gpio.NewLevels(d.Reader, dm.onReadError)

	c, err := logic.NewClassifier(len(cfg.Buttons), dm.levels, dm.tick, cfg.Timing)
	if err != nil {
		return nil, err
	}
	dm.classifier = c

	s, err := sched.New(
		sched.Spec{Name: taskNames[taskScan], Initial: cfg.Ticks(cfg.Tasks.Scan), Period: cfg.Ticks(cfg.Tasks.Scan), Fn: dm.scanTask},
		sched.Spec{Name: taskNames[taskStatus], Initial: cfg.Ticks(cfg.Tasks.Status), Period: cfg.Ticks(cfg.Tasks.Status), Fn: dm.statusTask},
		sched.Spec{Name: taskNames[taskHeartbeat], Initial: cfg.Ticks(cfg.Tasks.Heartbeat), Period: cfg.Ticks(cfg.Tasks.Heartbeat), Fn: dm.heartbeatTask},
		sched.Spec{Name: taskNames[taskWatchdog], Initial: cfg.Ticks(cfg.Tasks.Watchdog), Period: cfg.Ticks(cfg.Tasks.Watchdog), Fn: dm.watchdogTask},
	)
	if err != nil {
		return nil, err
	}
	dm.sched = s
	dm.tick.SetHook(s.Tick)
	return dm, nil
}

func (d *daemon) onReadError(line int, err error) {
	if d.gpioLog.Allow() {
		log.Error().Err(err).Int("line", line).Uint64("errors", d.levels.Errors()).Msg("gpio: read failed")
	}
}

// scanTask reports at most one event per run.
func (d *daemon) scanTask() {
	ev := d.classifier.Scan()
	switch ev.Kind {
	case logic.KindNone:
		return
	case logic.KindError:
		log.Error().Msg("scan: classifier reported an error")
		return
	}

	name := d.names[ev.Button]
	log.Info().Str("button", name).Int("index", ev.Button).Stringer("event", ev.Kind).Msg("key event")

	select {
	case d.events <- mqtt.ButtonEvent{Timestamp: d.now(), Event: ev, Name: name}:
	default:
		n := d.dropped.Add(1)
		if d.dropLog.Allow() {
			log.Warn().Uint64("dropped", n).Msg("scan: event queue full, dropping")
		}
	}
}

func (d *daemon) statusTask() {
	select {
	case cfg := <-d.reloads:
		d.applyConfig(cfg)
	default:
	}
	d.refreshStatus()
}

// heartbeatTask logs counters and queues a HEARTBEAT without a payload; the
// dispatcher rereads network info and fills in the snapshot.
func (d *daemon) heartbeatTask() {
	d.refreshStatus()
	snap := d.tracker.Snapshot()
	c := snap.Counts()
	log.Info().
		Dur("uptime", snap.Uptime().Truncate(time.Second)).
		Int("short", c.Short).Int("double", c.Double).Int("long", c.Long).
		Msg("heartbeat")

	d.sendSystem(mqtt.SystemEvent{
		Timestamp: snap.Now,
		Event:     "HEARTBEAT",
	})
}

func (d *daemon) watchdogTask() {
	if _, err := d.notify(sd.SdNotifyWatchdog); err != nil {
		log.Warn().Err(err).Msg("watchdog: notify failed")
	}
}

func (d *daemon) sendSystem(ev mqtt.SystemEvent) {
	select {
	case d.system <- ev:
	default:
		log.Warn().Str("event", ev.Event).Msg("dispatch: system queue full, dropping")
	}
}

// refreshStatus copies classifier and scheduler state into the tracker.
func (d *daemon) refreshStatus() {
	buttons := make([]status.Button, d.classifier.Len())
	for i := range buttons {
		st, _ := d.classifier.State(i)
		buttons[i] = status.Button{
			Name:   d.names[i],
			Line:   d.lines[i],
			State:  st,
			Counts: d.classifier.Counts(i),
		}
	}
	d.tracker.Update(buttons, d.sched.Stats(), d.sched.Ticks())
	d.tracker.SetErrors(d.levels.Errors(), d.dropped.Load())
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

// reload queues cfg for the status task, replacing any config not yet applied.
// Safe to call from any goroutine.
func (d *daemon) reload(cfg *config.Config) {
	for {
		select {
		case d.reloads <- cfg:
			return
		default:
		}
		select {
		case <-d.reloads:
		default:
		}
	}
}

// applyConfig takes the thresholds and task periods from cfg. Tick, GPIO and
// transport settings need a restart.
func (d *daemon) applyConfig(cfg *config.Config) {
	if cfg.Tick != d.cfg.Tick || !sameButtons(cfg.Buttons, d.cfg.Buttons) {
		log.Warn().Msg("config: tick and button changes need a restart, ignoring them")
	}

	next := *d.cfg
	if err := d.classifier.SetTiming(cfg.Timing); err != nil {
		log.Error().Err(err).Msg("config: timing rejected")
	} else {
		next.Timing = cfg.Timing
	}

	next.Tasks = cfg.Tasks
	periods := [...]time.Duration{
		taskScan:      cfg.Tasks.Scan,
		taskStatus:    cfg.Tasks.Status,
		taskHeartbeat: cfg.Tasks.Heartbeat,
		taskWatchdog:  cfg.Tasks.Watchdog,
	}
	for i, p := range periods {
		if err := d.sched.SetPeriod(i, next.Ticks(p)); err != nil {
			log.Error().Err(err).Str("task", taskNames[i]).Msg("config: set period")
		}
	}

	d.cfg = &next
	d.tracker.SetConfig(statusConfig(d.cfg))
	log.Info().
		Dur("debounce", next.Timing.Debounce).
		Dur("long", next.Timing.Long).
		Dur("double_gap", next.Timing.DoubleGap).
		Msg("config: applied")
}

func sameButtons(a, b []config.Button) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// dispatch publishes and records queued events until both queues are closed.
func (d *daemon) dispatch() {
	events, system := d.events, d.system
	for events != nil || system != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := d.publisher.Publish(ev); err != nil {
				log.Error().Err(err).Str("button", ev.Name).Msg("publish error")
			}
			if d.recorder != nil {
				ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
				if err := d.recorder.Append(ctx, ev.Timestamp, ev.Event, ev.Name); err != nil {
					log.Error().Err(err).Msg("history: append failed")
				}
				cancel()
			}

		case ev, ok := <-system:
			if !ok {
				system = nil
				continue
			}
			if ev.RawPayload == nil {
				ev.RawPayload = d.statusPayload(ev)
			}
			if err := d.publisher.PublishSystem(ev); err != nil {
				log.Error().Err(err).Str("event", ev.Event).Msg("system publish error")
			}
		}
	}
}

// statusPayload refreshes network info and formats a status snapshot for ev.
// It reads from disk, so only the dispatcher calls it.
func (d *daemon) statusPayload(ev mqtt.SystemEvent) []byte {
	if net := d.network(); net != nil {
		d.tracker.SetNetwork(net)
	}
	return status.FormatStatusEvent(d.tracker.Snapshot(), ev.Event, ev.Reason)
}

// publishLifecycle publishes a retained STARTUP or SHUTDOWN event carrying a
// full status snapshot.
func (d *daemon) publishLifecycle(event, reason string) {
	d.refreshStatus()
	snap := d.tracker.Snapshot()
	err := d.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to publish lifecycle event")
		return
	}
	log.Info().Str("event", event).Msg("published lifecycle event")
}

// step advances the tick source n times, draining after each tick.
func (d *daemon) step(n int) {
	for i := 0; i < n; i++ {
		d.tick.Tick()
		d.sched.Drain()
	}
}

// run publishes STARTUP, starts the tick source and the dispatcher, and runs
// the idle loop until ctx is cancelled or a signal arrives. Queued events are
// flushed before SHUTDOWN is published.
func (d *daemon) run(ctx context.Context, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reason := make(chan string, 1)
	go func() {
		select {
		case s := <-sig:
			log.Info().Stringer("signal", s).Msg("shutting down")
			reason <- signalName(s)
			cancel()
		case <-ctx.Done():
		}
	}()

	d.publishLifecycle("STARTUP", "")
	if _, err := d.notify(sd.SdNotifyReady); err != nil {
		log.Warn().Err(err).Msg("systemd: ready notify failed")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.dispatch()
	}()

	tickCtx, stopTick := context.WithCancel(ctx)
	var tickWG sync.WaitGroup
	tickWG.Add(1)
	go func() {
		defer tickWG.Done()
		d.tick.Run(tickCtx)
	}()

	log.Info().
		Dur("tick", d.tick.Interval()).
		Int("buttons", d.classifier.Len()).
		Int("tasks", d.sched.Len()).
		Msg("started")

	err := d.sched.Run(ctx)
	stopTick()
	tickWG.Wait()

	// Only tasks send on these, and the idle loop has stopped.
	close(d.events)
	close(d.system)
	wg.Wait()

	if _, nerr := d.notify(sd.SdNotifyStopping); nerr != nil {
		log.Warn().Err(nerr).Msg("systemd: stopping notify failed")
	}

	r := "CONTEXT"
	select {
	case r = <-reason:
	default:
	}
	d.publishLifecycle("SHUTDOWN", r)

	// Cancellation, deadline and signals all end the loop through ctx.
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		TickMs:      cfg.Tick.Milliseconds(),
		DebounceMs:  cfg.Timing.Debounce.Milliseconds(),
		LongMs:      cfg.Timing.Long.Milliseconds(),
		DoubleGapMs: cfg.Timing.DoubleGap.Milliseconds(),
		HeartbeatMs: cfg.Tasks.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTPAddr,
	}
}
