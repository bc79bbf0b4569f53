// Package journal records the outcome and latency of every rewrite cycle.
//
// Only telemetry is stored: ids, model, styles, outcome, timings and token
// estimates. Turn text is not persisted.
package journal

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

const (
	OutcomeComplete = "complete"
	OutcomeError    = "error"
)

// CycleRecord is one finished cycle.
type CycleRecord struct {
	CycleID            string   `json:"cycle_id" yaml:"cycle_id"`
	StartedAtMs        int64    `json:"started_at_ms" yaml:"started_at_ms"`
	Model              string   `json:"model" yaml:"model"`
	Styles             []string `json:"styles" yaml:"styles"`
	Outcome            string   `json:"outcome" yaml:"outcome"`
	TimeToFirstTokenMs *int64   `json:"time_to_first_token_ms" yaml:"time_to_first_token_ms"`
	TotalTimeMs        *int64   `json:"total_time_ms" yaml:"total_time_ms"`
	HTTPStatus         int      `json:"http_status,omitempty" yaml:"http_status,omitempty"`
	ErrorMessage       string   `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	Deltas             int      `json:"deltas" yaml:"deltas"`
	SkippedFrames      int      `json:"skipped_frames" yaml:"skipped_frames"`
	InputTokens        int      `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens       int      `json:"output_tokens" yaml:"output_tokens"`
}

// Journal persists cycle records. List returns the most recent first.
type Journal interface {
	Record(ctx context.Context, rec CycleRecord) error
	List(ctx context.Context, limit int) ([]CycleRecord, error)
	Close() error
}

// Styles are stored as a JSON array so that any style id round-trips.
func encodeStyles(styles []string) (string, error) {
	if styles == nil {
		styles = []string{}
	}
	b, err := json.Marshal(styles)
	if err != nil {
		return "", errors.Wrap(err, "encode styles")
	}
	return string(b), nil
}

func decodeStyles(s string) ([]string, error) {
	if s == "" || s == "[]" {
		return nil, nil
	}
	var styles []string
	if err := json.Unmarshal([]byte(s), &styles); err != nil {
		return nil, errors.Wrap(err, "decode styles")
	}
	return styles, nil
}
