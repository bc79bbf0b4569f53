package fixtures

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/rephrase/pkg/catalog"
	"github.com/go-go-golems/rephrase/pkg/coordinator"
	"github.com/go-go-golems/rephrase/pkg/frames"
)

type request struct {
	Text                   string                `json:"text"`
	Style                  string                `json:"style"`
	Styles                 coordinator.StyleList `json:"styles"`
	Model                  string                `json:"model"`
	AdditionalInstructions string                `json:"additional_instructions"`
}

func (r request) styles() []string {
	if len(r.Styles) > 0 {
		return r.Styles
	}
	if r.Style != "" {
		return []string{r.Style}
	}
	return []string{coordinator.DefaultStyle}
}

type Server struct {
	script *Script
	logger zerolog.Logger
}

func NewServer(script *Script) *Server {
	if script == nil {
		script = &Script{}
	}
	if script.Status == 0 {
		script.Status = http.StatusOK
	}
	return &Server{
		script: script,
		logger: log.With().Str("component", "fixtures").Logger(),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/rephrase", s.handleRephrase)
	mux.HandleFunc("GET /api/styles", s.handleStyles)
	mux.HandleFunc("GET /api/models", s.handleModels)
	return mux
}

func (s *Server) handleRephrase(w http.ResponseWriter, req *http.Request) {
	var in request
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if s.script.Status != http.StatusOK {
		http.Error(w, http.StatusText(s.script.Status), s.script.Status)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	enc := frames.NewEncoder(w)
	steps := s.script.Frames
	if len(steps) == 0 {
		steps = echoSteps(in)
	}
	s.logger.Debug().Int("frames", len(steps)).Strs("styles", in.styles()).Msg("replaying script")

	ctx := req.Context()
	for _, st := range steps {
		if !sleep(ctx, s.script.Delay+st.Sleep) {
			return
		}
		var err error
		if st.Raw != nil {
			err = enc.WriteRaw(*st.Raw + "\n")
		} else {
			err = enc.Encode(st.frame())
		}
		if err != nil {
			s.logger.Debug().Err(err).Msg("client went away")
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func echoSteps(in request) []Step {
	var steps []Step
	for i, style := range in.styles() {
		text := fmt.Sprintf("[%s] %s", style, in.Text)
		steps = append(steps, Step{StyleStart: &i}, Step{Content: &text}, Step{StyleEnd: &i})
	}
	return append(steps, Step{Done: true})
}

func (s *Server) handleStyles(w http.ResponseWriter, _ *http.Request) {
	styles := s.script.Styles
	if len(styles) == 0 {
		styles = catalog.FallbackStyles()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"styles": styles})
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	m := catalog.FallbackModels()
	if s.script.Models != nil {
		m = *s.script.Models
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m)
}
