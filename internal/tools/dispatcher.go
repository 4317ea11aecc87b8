// Package tools is the single entry point external callers use to read and
// mutate CV tailoring sessions. Every call is checked against its param
// contract, then against the stage machine, before the session store is
// touched.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonathan/cv-tailor/internal/contextpack"
	"github.com/jonathan/cv-tailor/internal/jobref"
	"github.com/jonathan/cv-tailor/internal/rendering"
	"github.com/jonathan/cv-tailor/internal/schemas"
	"github.com/jonathan/cv-tailor/internal/session"
	"github.com/jonathan/cv-tailor/internal/stage"
	"github.com/jonathan/cv-tailor/internal/types"
	"github.com/jonathan/cv-tailor/internal/validation"
)

// DefaultGenerateTimeout bounds a single render.
const DefaultGenerateTimeout = 90 * time.Second

// Request is one tool call.
type Request struct {
	ToolName  string          `json:"tool_name"`
	SessionID string          `json:"session_id"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// Response is the result of a tool call. Exactly one of Response and Error
// is set.
type Response struct {
	Success   bool        `json:"success"`
	SessionID string      `json:"session_id"`
	Stage     stage.Stage `json:"stage,omitempty"`
	Response  any         `json:"response,omitempty"`
	Error     *ErrorBody  `json:"error,omitempty"`
}

// JobResolver turns a posting into a job reference. It may perform network
// I/O and is never called under a session lock.
type JobResolver interface {
	Resolve(ctx context.Context, in jobref.Input) (*types.JobReference, error)
}

// Deps are the collaborators of a Dispatcher.
type Deps struct {
	Store    *session.Store
	Schemas  *schemas.Registry
	Renderer rendering.Renderer
	Jobs     JobResolver
	Logger   *slog.Logger
}

// Config tunes a Dispatcher.
type Config struct {
	MaxPackChars    int
	GenerateTimeout time.Duration
	Limits          validation.Limits
	Now             func() time.Time
}

// Dispatcher routes tool calls to their handlers.
type Dispatcher struct {
	store     *session.Store
	schemas   *schemas.Registry
	renderer  rendering.Renderer
	jobs      JobResolver
	validator *validation.Validator
	packs     *contextpack.Builder
	timeout   time.Duration
	now       func() time.Time
	log       *slog.Logger

	handlers map[stage.Action]handlerFunc

	mu       sync.Mutex
	inflight map[string]struct{}
}

// call is a request whose contract has been checked.
type call struct {
	tool      stage.Action
	sessionID string
	params    json.RawMessage
}

// outcome is what a handler returns on success.
type outcome struct {
	sessionID string
	stage     stage.Stage
	payload   any
}

type handlerFunc func(ctx context.Context, c call) (outcome, error)

// New creates a Dispatcher. Store and Schemas are required.
func New(deps Deps, cfg Config) (*Dispatcher, error) {
	if deps.Store == nil {
		return nil, errors.New("tools: store is required")
	}
	if deps.Schemas == nil {
		return nil, errors.New("tools: schema registry is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = DefaultGenerateTimeout
	}
	if cfg.Limits == (validation.Limits{}) {
		cfg.Limits = validation.DefaultLimits()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	d := &Dispatcher{
		store:     deps.Store,
		schemas:   deps.Schemas,
		renderer:  deps.Renderer,
		jobs:      deps.Jobs,
		validator: validation.New(cfg.Limits),
		packs:     contextpack.NewBuilder(cfg.MaxPackChars),
		timeout:   cfg.GenerateTimeout,
		now:       cfg.Now,
		log:       logger.With("component", "dispatcher"),
		inflight:  make(map[string]struct{}),
	}
	d.handlers = map[stage.Action]handlerFunc{
		stage.ActionIngestCV:        d.ingestCV,
		stage.ActionGetSession:      d.getSession,
		stage.ActionGetContextPack:  d.getContextPack,
		stage.ActionUpdateCV:        d.updateCV,
		stage.ActionConfirmSections: d.confirmSections,
		stage.ActionAdvanceStage:    d.advanceStage,
		stage.ActionProposeEdits:    d.proposeEdits,
		stage.ActionApplyProposal:   d.applyProposal,
		stage.ActionValidateCV:      d.validateCV,
		stage.ActionSetJobReference: d.setJobReference,
		stage.ActionGeneratePDF:     d.generatePDF,
		stage.ActionGetPDF:          d.getPDF,
	}
	for action := range d.handlers {
		if !d.schemas.Has(string(action)) {
			return nil, fmt.Errorf("tools: no param schema for %s", action)
		}
	}
	return d, nil
}

// Dispatch runs one tool call. It never returns nil; failures are reported in
// the response's error body.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) *Response {
	start := time.Now()
	out, err := d.dispatch(ctx, req)

	sessionID := req.SessionID
	if out.sessionID != "" {
		sessionID = out.sessionID
	}
	resp := &Response{SessionID: sessionID, Stage: out.stage}

	code := codeOK
	if err != nil {
		resp.Error = errorBody(err)
		code = string(resp.Error.Code)
		if resp.Stage == "" {
			resp.Stage = d.currentStage(ctx, sessionID)
		}
		d.logFailure(req.ToolName, sessionID, resp.Error.Code, err)
	} else {
		resp.Success = true
		resp.Response = out.payload
		d.log.Debug("tool call completed",
			"tool", req.ToolName,
			"session_id", sessionID,
			"stage", out.stage,
			"duration", time.Since(start),
		)
	}

	tool := req.ToolName
	if _, ok := d.handlers[stage.Action(tool)]; !ok {
		tool = "unknown"
	}
	toolCalls.WithLabelValues(tool, code).Inc()
	toolDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) (outcome, error) {
	action := stage.Action(req.ToolName)
	handler, ok := d.handlers[action]
	if !ok {
		return outcome{}, &ContractError{Tool: req.ToolName, Message: "unknown tool"}
	}
	if req.SessionID == "" && action != stage.ActionIngestCV {
		return outcome{}, &ContractError{
			Tool:    req.ToolName,
			Message: "session_id is required",
			Fields:  []schemas.FieldError{{Field: "session_id", Message: "session_id is required"}},
		}
	}
	if err := d.schemas.Validate(req.ToolName, req.Params); err != nil {
		ce := &ContractError{Tool: req.ToolName, Message: "params do not match the tool contract", Cause: err}
		var ve *schemas.ValidationError
		if errors.As(err, &ve) {
			ce.Fields = ve.Errors
		}
		return outcome{}, ce
	}
	return handler(ctx, call{tool: action, sessionID: req.SessionID, params: req.Params})
}

// currentStage reports the stored stage of a session for error responses.
func (d *Dispatcher) currentStage(ctx context.Context, id string) stage.Stage {
	if id == "" {
		return ""
	}
	sess, err := d.store.Get(ctx, id)
	if err != nil {
		return ""
	}
	return sess.Meta.Stage
}

func (d *Dispatcher) logFailure(tool, sessionID string, code ErrorCode, err error) {
	attrs := []any{"tool", tool, "session_id", sessionID, "code", code, "error", err}
	if Fatal(code) {
		d.log.Error("tool call failed", attrs...)
		return
	}
	d.log.Info("tool call rejected", attrs...)
}

// decodeParams decodes checked params into v.
func decodeParams(c call, v any) error {
	if len(c.params) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.params, v); err != nil {
		return &ContractError{Tool: string(c.tool), Message: "failed to decode params", Cause: err}
	}
	return nil
}

// mutate runs fn under the session's write lock after checking the action is
// legal in the current stage. fn adds to the batch; an event recording the
// call is appended to the same flush.
func (d *Dispatcher) mutate(ctx context.Context, c call, fn func(cur *session.Session, b *session.Batch) (string, error)) (*session.Session, error) {
	return d.store.Transact(ctx, c.sessionID, func(cur *session.Session) (*session.Batch, error) {
		if err := stage.CheckAction(c.tool, cur.Meta.Stage); err != nil {
			return nil, err
		}
		b := session.NewBatch()
		detail, err := fn(cur, b)
		if err != nil {
			return nil, err
		}
		return d.withEvent(b, c.tool, cur.Meta.Stage, detail), nil
	})
}

func (d *Dispatcher) withEvent(b *session.Batch, tool stage.Action, from stage.Stage, detail string) *session.Batch {
	ch, _ := b.Changes()
	to := from
	if ch.Meta.Stage != nil {
		to = *ch.Meta.Stage
	}
	return b.AppendEvent(d.event(tool, from, to, detail))
}

func (d *Dispatcher) event(tool stage.Action, from, to stage.Stage, detail string) session.Event {
	return session.Event{
		At:        d.now().UTC(),
		Tool:      string(tool),
		FromStage: from,
		ToStage:   to,
		Detail:    detail,
	}
}

// load reads a session and checks the action is legal in its stage.
func (d *Dispatcher) load(ctx context.Context, c call) (*session.Session, error) {
	sess, err := d.store.Get(ctx, c.sessionID)
	if err != nil {
		return nil, err
	}
	if err := stage.CheckAction(c.tool, sess.Meta.Stage); err != nil {
		return nil, err
	}
	return sess, nil
}

// tryAcquire marks a generation in flight. It never waits.
func (d *Dispatcher) tryAcquire(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[id]; busy {
		return false
	}
	d.inflight[id] = struct{}{}
	generationsInFlight.Inc()
	return true
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, id)
	generationsInFlight.Dec()
}
