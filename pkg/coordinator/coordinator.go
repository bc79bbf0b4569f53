// Package coordinator drives one submit-to-completion rewrite cycle at a time:
// it issues the request, feeds the response stream through the frame decoder
// and router, stamps timing and closes the cycle out in the history store.
package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/rephrase/pkg/frames"
	"github.com/go-go-golems/rephrase/pkg/history"
	"github.com/go-go-golems/rephrase/pkg/journal"
	"github.com/go-go-golems/rephrase/pkg/router"
	"github.com/go-go-golems/rephrase/pkg/timing"
	"github.com/go-go-golems/rephrase/pkg/tokens"
)

const (
	DefaultBackendURL   = "http://localhost:5000"
	DefaultRephrasePath = "/api/rephrase"
	DefaultDialTimeout  = 10 * time.Second
)

const (
	OutcomeComplete = journal.OutcomeComplete
	OutcomeError    = journal.OutcomeError
)

// Result summarizes a finished cycle.
type Result struct {
	CycleID          string   `json:"cycle_id"`
	Outcome          string   `json:"outcome"`
	Message          string   `json:"message,omitempty"`
	UserTurnID       string   `json:"user_turn_id"`
	TurnIDs          []string `json:"turn_ids"`
	Contents         []string `json:"contents"`
	StatusCode       int      `json:"status_code,omitempty"`
	// SlotErrors is parallel to TurnIDs and set only when a backend error
	// frame failed some styles; an empty entry means the style completed.
	SlotErrors       []string `json:"slot_errors,omitempty"`
	TimeToFirstToken *int64   `json:"time_to_first_token"`
	TotalTime        *int64   `json:"total_time"`
	Err              error    `json:"-"`
}

type Coordinator struct {
	store         *history.Store
	backendURL    string
	endpoint      string
	client        *http.Client
	clock         timing.Clock
	journal       journal.Journal
	tokens        tokens.Counter
	defaultModel  string
	cancelOnClear bool
	newID         func() string
	logger        zerolog.Logger

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	observers []StateObserver
}

type Option func(*Coordinator)

func WithHTTPClient(c *http.Client) Option {
	return func(co *Coordinator) {
		if c != nil {
			co.client = c
		}
	}
}

// WithDialTimeout bounds connection setup. It replaces the HTTP client.
func WithDialTimeout(d time.Duration) Option {
	return func(co *Coordinator) {
		co.client = newHTTPClient(d)
	}
}

func WithRephrasePath(p string) Option {
	return func(co *Coordinator) {
		if p != "" {
			co.endpoint = p
		}
	}
}

func WithClock(c timing.Clock) Option {
	return func(co *Coordinator) {
		co.clock = c
	}
}

func WithJournal(j journal.Journal) Option {
	return func(co *Coordinator) {
		co.journal = j
	}
}

func WithTokenCounter(c tokens.Counter) Option {
	return func(co *Coordinator) {
		co.tokens = c
	}
}

func WithDefaultModel(m string) Option {
	return func(co *Coordinator) {
		co.defaultModel = m
	}
}

// WithCancelOnClear makes Clear also cancel the in-flight request.
func WithCancelOnClear(v bool) Option {
	return func(co *Coordinator) {
		co.cancelOnClear = v
	}
}

func WithIDGenerator(f func() string) Option {
	return func(co *Coordinator) {
		if f != nil {
			co.newID = f
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(co *Coordinator) {
		co.logger = l
	}
}

func newHTTPClient(dialTimeout time.Duration) *http.Client {
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext
	tr.TLSHandshakeTimeout = dialTimeout
	tr.ResponseHeaderTimeout = 0
	return &http.Client{Transport: tr}
}

// New returns an idle coordinator writing into store.
func New(store *history.Store, backendURL string, opts ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("history store is nil")
	}
	if backendURL == "" {
		backendURL = DefaultBackendURL
	}
	u, err := url.Parse(backendURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse backend url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("backend url %q: unsupported scheme", backendURL)
	}
	c := &Coordinator{
		store:        store,
		backendURL:   backendURL,
		endpoint:     DefaultRephrasePath,
		client:       newHTTPClient(DefaultDialTimeout),
		defaultModel: DefaultModel,
		newID:        uuid.NewString,
		logger:       log.With().Str("component", "coordinator").Logger(),
		state:        StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	endpoint, err := url.JoinPath(backendURL, c.endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "build rephrase endpoint")
	}
	c.endpoint = endpoint
	return c, nil
}

func (c *Coordinator) Store() *history.Store { return c.store }

func (c *Coordinator) BackendURL() string { return c.backendURL }

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers an observer for every transition.
func (c *Coordinator) OnStateChange(o StateObserver) {
	if o == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

func (c *Coordinator) transition(to State) {
	c.mu.Lock()
	from := c.state
	if !canTransition(from, to) {
		c.mu.Unlock()
		c.logger.Error().Str("from", from.String()).Str("to", to.String()).Msg("illegal state transition refused")
		return
	}
	c.state = to
	observers := append([]StateObserver(nil), c.observers...)
	c.mu.Unlock()

	c.notifyState(from, to, observers)
}

func (c *Coordinator) notifyState(from, to State, observers []StateObserver) {
	c.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("state")
	for _, o := range observers {
		o(from, to)
	}
}

// Clear empties the history. A running cycle keeps going against the empty
// store unless cancel-on-clear is enabled.
func (c *Coordinator) Clear() {
	c.store.Clear()
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if c.cancelOnClear && cancel != nil {
		cancel()
	}
}

func (c *Coordinator) admit(ctx context.Context, sub Submission) (Submission, context.Context, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sub, err := sub.Normalize(c.defaultModel)
	if err != nil {
		return Submission{}, nil, err
	}
	// the Idle check and the move to Sending share one critical section
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return Submission{}, nil, ErrBusy
	}
	cycleCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = StateSending
	observers := append([]StateObserver(nil), c.observers...)
	c.mu.Unlock()

	c.notifyState(StateIdle, StateSending, observers)
	return sub, cycleCtx, nil
}

// release drops the cycle context. It runs before the return to Idle so a
// new admission never sees the previous cancel func.
func (c *Coordinator) release() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Submit runs one cycle to completion. It returns ErrBusy while another cycle
// is in flight and a validation error for bad input. Transport and backend
// failures are not returned: they end up in the history as error turns and in
// Result.
func (c *Coordinator) Submit(ctx context.Context, sub Submission) (Result, error) {
	sub, cycleCtx, err := c.admit(ctx, sub)
	if err != nil {
		return Result{}, err
	}
	return c.run(cycleCtx, sub), nil
}

// Go admits sub synchronously and runs the cycle in the background. ctx bounds
// the cycle, so it must outlive the caller when that is an HTTP handler.
func (c *Coordinator) Go(ctx context.Context, sub Submission) (<-chan Result, error) {
	sub, cycleCtx, err := c.admit(ctx, sub)
	if err != nil {
		return nil, err
	}
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		out <- c.run(cycleCtx, sub)
	}()
	return out, nil
}

type cycle struct {
	id        string
	sub       Submission
	startedAt time.Time
	obs       *timing.Observer
	userID    string
	turnIDs   []string
	rt        *router.Router
	skipped   int
	// slotErrs holds the message of every slot failed by a backend error frame.
	slotErrs []string
}

func (c *Coordinator) run(ctx context.Context, sub Submission) Result {
	now := time.Now
	if c.clock != nil {
		now = c.clock
	}
	cy := &cycle{
		id:        c.newID(),
		sub:       sub,
		startedAt: now(),
		obs:       timing.NewObserver(c.clock),
	}
	logger := c.logger.With().Str("cycle_id", cy.id).Logger()

	cy.userID = c.store.Append(history.Turn{
		Role:    history.RoleUser,
		Content: sub.Text,
		CycleID: cy.id,
	})
	for _, style := range sub.Styles {
		cy.turnIDs = append(cy.turnIDs, c.store.Append(history.Turn{
			Role:    history.RoleAssistant,
			Style:   style,
			Model:   sub.Model,
			Status:  history.StatusStreaming,
			CycleID: cy.id,
		}))
	}
	cy.rt = router.New(cy.turnIDs, c.store, router.WithLogger(logger))
	cy.slotErrs = make([]string, len(cy.turnIDs))

	cy.obs.Start()
	logger.Info().Strs("styles", sub.Styles).Str("model", sub.Model).Msg("cycle started")

	resp, err := c.send(ctx, sub)
	if err != nil {
		return c.fail(ctx, cy, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.Warn().Int("status", resp.StatusCode).Bytes("body", bytes.TrimSpace(body)).Msg("backend rejected request")
		return c.fail(ctx, cy, &TransportError{StatusCode: resp.StatusCode})
	}
	c.transition(StateStreaming)

	dec := frames.NewDecoder(resp.Body, frames.WithLogger(logger))
	for f, err := range dec.All() {
		if err != nil {
			cy.skipped = dec.Skipped()
			return c.fail(ctx, cy, fromFrameError(err))
		}
		switch f := f.(type) {
		case frames.End:
			cy.skipped = dec.Skipped()
			return c.finish(ctx, cy)
		case frames.BackendError:
			c.failSlot(cy, cy.rt.Current(), &BackendError{Message: f.Message, Code: f.Code}, logger)
		case frames.TextDelta:
			if cy.obs.MarkFirstToken() {
				ttft := history.Patch{}.WithTiming(cy.obs.TimeToFirstToken(), nil)
				for _, id := range cy.turnIDs {
					c.store.Update(id, ttft)
				}
			}
			cy.rt.Route(f)
		default:
			cy.rt.Route(f)
		}
	}
	cy.skipped = dec.Skipped()
	return c.finish(ctx, cy)
}

func (c *Coordinator) send(ctx context.Context, sub Submission) (*http.Response, error) {
	body, err := json.Marshal(sub.wire())
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Connect: true, Err: err}
	}
	return resp, nil
}

// failSlot ends slot i with an error while the other slots keep streaming.
func (c *Coordinator) failSlot(cy *cycle, i int, err error, logger zerolog.Logger) {
	if cy.rt.Failed(i) {
		return
	}
	msg := UserMessage(err, c.backendURL)
	st := history.StatusError
	c.store.Update(cy.turnIDs[i], history.Patch{Content: &msg, Status: &st}.WithTiming(cy.obs.TimeToFirstToken(), nil))
	cy.rt.MarkFailed(i)
	cy.slotErrs[i] = msg
	logger.Warn().Err(err).Int("slot", i).Str("style", cy.sub.Styles[i]).Msg("backend reported an error for one style")
}

func (c *Coordinator) finish(ctx context.Context, cy *cycle) Result {
	c.transition(StateFinalizing)
	cy.obs.Finish()
	ttft, total := cy.obs.TimeToFirstToken(), cy.obs.TotalTime()
	cy.rt.Finalize(history.StatusPatch(history.StatusComplete).WithTiming(ttft, total))

	outcome, msg, failed := OutcomeComplete, "", 0
	var err error
	for i, m := range cy.slotErrs {
		if m == "" {
			continue
		}
		c.store.Update(cy.turnIDs[i], history.Patch{}.WithTiming(ttft, total))
		if failed == 0 {
			msg = m
		}
		failed++
	}
	if failed == len(cy.slotErrs) {
		outcome = OutcomeError
		err = &BackendError{Message: msg}
	}
	res := c.result(cy, outcome, msg, err)
	c.record(ctx, cy, res)
	c.logger.Info().
		Str("cycle_id", cy.id).
		Int("deltas", cy.rt.Deltas()).
		Int("skipped_frames", cy.skipped).
		Interface("ttft_ms", ttft).
		Interface("total_ms", total).
		Msg("cycle complete")
	c.release()
	c.transition(StateIdle)
	return res
}

func (c *Coordinator) fail(ctx context.Context, cy *cycle, err error) Result {
	c.transition(StateError)
	cy.obs.Finish()
	msg := UserMessage(err, c.backendURL)
	st := history.StatusError
	patch := history.Patch{Content: &msg, Status: &st}.WithTiming(cy.obs.TimeToFirstToken(), cy.obs.TotalTime())
	for i, id := range cy.turnIDs {
		if c.store.Update(id, patch) {
			cy.rt.MarkFailed(i)
		}
	}

	res := c.result(cy, OutcomeError, msg, err)
	c.record(ctx, cy, res)
	c.logger.Warn().Err(err).Str("cycle_id", cy.id).Int("status", res.StatusCode).Msg("cycle failed")
	c.release()
	c.transition(StateIdle)
	return res
}

func (c *Coordinator) result(cy *cycle, outcome, msg string, err error) Result {
	res := Result{
		CycleID:          cy.id,
		Outcome:          outcome,
		Message:          msg,
		UserTurnID:       cy.userID,
		TurnIDs:          append([]string(nil), cy.turnIDs...),
		Contents:         cy.rt.Contents(),
		SlotErrors:       slotErrors(cy.slotErrs),
		TimeToFirstToken: cy.obs.TimeToFirstToken(),
		TotalTime:        cy.obs.TotalTime(),
		Err:              err,
	}
	var te *TransportError
	if errors.As(err, &te) {
		res.StatusCode = te.StatusCode
	}
	return res
}

func (c *Coordinator) record(ctx context.Context, cy *cycle, res Result) {
	if c.journal == nil {
		return
	}
	rec := journal.CycleRecord{
		CycleID:            cy.id,
		StartedAtMs:        cy.startedAt.UnixMilli(),
		Model:              cy.sub.Model,
		Styles:             append([]string(nil), cy.sub.Styles...),
		Outcome:            res.Outcome,
		TimeToFirstTokenMs: res.TimeToFirstToken,
		TotalTimeMs:        res.TotalTime,
		HTTPStatus:         res.StatusCode,
		ErrorMessage:       res.Message,
		Deltas:             cy.rt.Deltas(),
		SkippedFrames:      cy.skipped,
	}
	if c.tokens != nil {
		rec.InputTokens = c.tokens.Count(cy.sub.Text)
		if res.Outcome == OutcomeComplete {
			for i, s := range res.Contents {
				if !cy.rt.Failed(i) {
					rec.OutputTokens += c.tokens.Count(s)
				}
			}
		}
	}
	if err := c.journal.Record(context.WithoutCancel(ctx), rec); err != nil {
		c.logger.Warn().Err(err).Str("cycle_id", cy.id).Msg("record cycle")
	}
}

func slotErrors(errs []string) []string {
	for _, m := range errs {
		if m != "" {
			return append([]string(nil), errs...)
		}
	}
	return nil
}
