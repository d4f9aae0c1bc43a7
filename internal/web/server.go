// Package web provides an HTTP status server for the button-sensor daemon.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/button-sensor/internal/history"
	"github.com/sweeney/button-sensor/internal/status"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

// EventSource lists recently classified events, newest first.
type EventSource interface {
	Recent(ctx context.Context, limit int) ([]history.Record, error)
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	events     EventSource
}

// New creates a Server that reads state from the given tracker.
// events may be nil, in which case /events.json returns an empty list.
func New(addr string, tracker *status.Tracker, events EventSource) *Server {
	s := &Server{tracker: tracker, events: events}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)
	r.HandleFunc("/events.json", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/buttons/{name}.json", s.handleButton).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		log.Error().Err(err).Msg("web: render index")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// EventJSON is one history entry in /events.json.
type EventJSON struct {
	Timestamp string `json:"timestamp"`
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Event     string `json:"event"`
	BootID    string `json:"boot_id"`
}

// EventsJSON is the /events.json envelope.
type EventsJSON struct {
	Events []EventJSON `json:"events"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxEventLimit)
	}

	out := EventsJSON{Events: []EventJSON{}}
	if s.events != nil {
		recs, err := s.events.Recent(r.Context(), limit)
		if err != nil {
			log.Error().Err(err).Msg("web: query events")
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
		for _, rec := range recs {
			out.Events = append(out.Events, EventJSON{
				Timestamp: rec.Timestamp.UTC().Format(time.RFC3339),
				Index:     rec.Button,
				Name:      rec.Name,
				Event:     rec.Kind,
				BootID:    rec.BootID,
			})
		}
	}
	writeJSON(w, out)
}

func (s *Server) handleButton(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	snap := s.tracker.Snapshot()
	for i, b := range snap.Buttons {
		if b.Name != name {
			continue
		}
		writeJSON(w, status.ButtonJSON{
			Index: i,
			Name:  b.Name,
			Line:  b.Line,
			State: b.State.String(),
			Counts: status.CountsJSON{
				Short:  b.Counts.Short,
				Double: b.Counts.Double,
				Long:   b.Counts.Long,
			},
		})
		return
	}
	http.NotFound(w, r)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
