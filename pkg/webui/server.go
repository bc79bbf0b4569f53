// Package webui exposes the coordinator and its history over HTTP and
// websockets for a browser front end.
package webui

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/rephrase/pkg/coordinator"
	"github.com/go-go-golems/rephrase/pkg/events"
	"github.com/go-go-golems/rephrase/pkg/journal"
)

// Frame is what websocket clients receive. Clients drop change envelopes whose
// version is not newer than the last snapshot they applied.
type Frame struct {
	Seq      uint64          `json:"seq"`
	StreamID string          `json:"stream_id,omitempty"`
	Envelope events.Envelope `json:"envelope"`
}

const (
	defaultCyclesLimit = 50
	maxCyclesLimit     = 1000
)

type Server struct {
	coord    *coordinator.Coordinator
	journal  journal.Journal
	pool     *ConnectionPool
	upgrader websocket.Upgrader
	baseCtx  context.Context
	logger   zerolog.Logger
}

type Option func(*Server)

func WithJournal(j journal.Journal) Option {
	return func(s *Server) {
		s.journal = j
	}
}

func WithUpgrader(u websocket.Upgrader) Option {
	return func(s *Server) {
		s.upgrader = u
	}
}

// NewServer builds the handlers. baseCtx bounds background cycles started by
// POST /api/submit; it must outlive individual requests.
func NewServer(baseCtx context.Context, coord *coordinator.Coordinator, opts ...Option) (*Server, error) {
	if baseCtx == nil {
		return nil, errors.New("base context is nil")
	}
	if coord == nil {
		return nil, errors.New("coordinator is nil")
	}
	s := &Server{
		coord:    coord,
		pool:     NewConnectionPool(),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		baseCtx:  baseCtx,
		logger:   log.With().Str("component", "webui").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Server) Pool() *ConnectionPool { return s.pool }

// OnEnvelope is the forwarder callback: it wraps env with its cursor and
// broadcasts it.
func (s *Server) OnEnvelope(env events.Envelope, cur events.Cursor) {
	b, err := json.Marshal(Frame{Seq: cur.Seq, StreamID: cur.StreamID, Envelope: env})
	if err != nil {
		s.logger.Warn().Err(err).Msg("encode ws frame")
		return
	}
	s.pool.Broadcast(b)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/submit", s.handleSubmit)
	mux.HandleFunc("POST /api/clear", s.handleClear)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/cycles", s.handleCycles)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleSubmit(w http.ResponseWriter, req *http.Request) {
	var sub coordinator.Submission
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 64<<10)).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	done, err := s.coord.Go(s.baseCtx, sub)
	switch {
	case errors.Is(err, coordinator.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
		return
	case coordinator.IsValidationError(err):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("submit failed")
		writeError(w, http.StatusInternalServerError, "submit failed")
		return
	}
	go func() {
		res := <-done
		s.logger.Debug().Str("cycle_id", res.CycleID).Str("outcome", res.Outcome).Msg("cycle finished")
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "state": s.coord.State()})
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	s.coord.Clear()
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, events.SnapshotEnvelope(s.coord.Store()))
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"state": s.coord.State()})
}

func (s *Server) handleCycles(w http.ResponseWriter, req *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotFound, "journal not enabled")
		return
	}
	limit := defaultCyclesLimit
	if v := strings.TrimSpace(req.URL.Query().Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, maxCyclesLimit)
		}
	}
	recs, err := s.journal.List(req.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list cycles")
		writeError(w, http.StatusInternalServerError, "list cycles failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cycles": recs})
}

func (s *Server) handleWS(w http.ResponseWriter, req *http.Request) {
	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	wsLog := s.logger.With().Str("remote", conn.RemoteAddr().String()).Logger()
	s.pool.Add(conn)

	snap := Frame{Seq: uint64(time.Now().UnixMilli()) * 1_000_000, Envelope: events.SnapshotEnvelope(s.coord.Store())}
	if b, err := json.Marshal(snap); err == nil {
		s.pool.SendToOne(conn, b)
	}
	wsLog.Info().Msg("ws connected")

	go func() {
		defer s.pool.Remove(conn)
		defer wsLog.Info().Msg("ws disconnected")
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wsLog.Debug().Err(err).Msg("ws read loop end")
				return
			}
		}
	}()
}
