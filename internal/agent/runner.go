package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	json "github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"

	"github.com/teemow/rejectfewer/internal/instrumentation"
	"github.com/teemow/rejectfewer/internal/logging"
)

// DefaultMaxIterations bounds model round trips per turn.
const DefaultMaxIterations = 4

var (
	ErrMaxIterations   = errors.New("agent exceeded maximum iterations without a final answer")
	ErrEmptyCompletion = errors.New("model returned no choices")
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Client      ChatCompleter
	Model       string
	Instruction string
	Registry    *Registry
	Sessions    SessionService

	MaxIterations int
	Temperature   float32

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// Runner drives one agent over the sessions of a SessionService.
type Runner struct {
	client        ChatCompleter
	model         string
	instruction   string
	registry      *Registry
	sessions      SessionService
	maxIterations int
	temperature   float32
	metrics       *instrumentation.Metrics
	logger        *slog.Logger
}

// NewRunner validates cfg and returns a Runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Client == nil {
		return nil, errors.New("agent: chat client is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("agent: session service is required")
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{
		client:        cfg.Client,
		model:         cfg.Model,
		instruction:   cfg.Instruction,
		registry:      cfg.Registry,
		sessions:      cfg.Sessions,
		maxIterations: cfg.MaxIterations,
		temperature:   cfg.Temperature,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
	}, nil
}

// Model returns the configured model name.
func (r *Runner) Model() string { return r.model }

// Run appends prompt to the session and starts a turn. The returned channel
// yields one EventToolCall per executed tool call, then one EventFinal or
// EventError, and is closed when the turn ends or ctx is cancelled.
func (r *Runner) Run(ctx context.Context, sessionID, prompt string) (<-chan Event, error) {
	sess, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.append(openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	events := make(chan Event)
	go func() {
		defer close(events)
		r.turn(ctx, sess, events)
	}()
	return events, nil
}

func (r *Runner) turn(ctx context.Context, sess *Session, events chan<- Event) {
	logger := r.logger.With(logging.KeySessionID, sess.ID)

	for i := 0; i < r.maxIterations; i++ {
		if ctx.Err() != nil {
			return
		}
		msg, err := r.complete(ctx, sess)
		if err != nil {
			r.emit(ctx, events, Event{Kind: EventError, SessionID: sess.ID, Err: err})
			return
		}
		sess.append(msg)

		if len(msg.ToolCalls) == 0 {
			r.emit(ctx, events, Event{Kind: EventFinal, SessionID: sess.ID, Text: msg.Content})
			return
		}

		for _, tc := range msg.ToolCalls {
			if ctx.Err() != nil {
				return
			}
			call := r.invoke(ctx, sess, tc)
			logger.Debug("tool call executed",
				logging.Tool(call.Name),
				logging.Status(statusOf(call.Succeeded())),
				logging.Err(call.Err))

			sess.append(openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    encodeResult(call),
				Name:       call.Name,
				ToolCallID: call.ID,
			})
			if !r.emit(ctx, events, Event{Kind: EventToolCall, SessionID: sess.ID, ToolCall: &call}) {
				return
			}
		}
	}

	r.emit(ctx, events, Event{Kind: EventError, SessionID: sess.ID, Err: ErrMaxIterations})
}

func (r *Runner) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Runner) complete(ctx context.Context, sess *Session) (openai.ChatCompletionMessage, error) {
	ctx, span := instrumentation.StartAgentSpan(ctx, r.model)
	defer span.End()

	req := openai.ChatCompletionRequest{
		Model:       r.model,
		Messages:    r.messages(sess),
		Temperature: r.temperature,
	}
	if tools := r.openAITools(); len(tools) > 0 {
		req.Tools = tools
	}

	start := time.Now()
	resp, err := r.client.CreateChatCompletion(ctx, req)
	if err == nil && len(resp.Choices) == 0 {
		err = ErrEmptyCompletion
	}
	if err != nil {
		instrumentation.SetSpanError(span, err)
		r.metrics.RecordAgentCompletion(ctx, r.model, instrumentation.StatusError, time.Since(start))
		return openai.ChatCompletionMessage{}, fmt.Errorf("chat completion: %w", err)
	}
	r.metrics.RecordAgentCompletion(ctx, r.model, instrumentation.StatusSuccess, time.Since(start))
	instrumentation.SetSpanSuccess(span)

	msg := resp.Choices[0].Message
	if msg.Role == "" {
		msg.Role = openai.ChatMessageRoleAssistant
	}
	return msg, nil
}

func (r *Runner) messages(sess *Session) []openai.ChatCompletionMessage {
	history := sess.messages()
	if r.instruction == "" {
		return history
	}
	out := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: r.instruction})
	return append(out, history...)
}

func (r *Runner) openAITools() []openai.Tool {
	descs := r.registry.Tools()
	out := make([]openai.Tool, len(descs))
	for i, t := range descs {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

// invoke never panics and never returns an error; failures are recorded on
// the returned ToolCall so they reach both the model and the consumer.
func (r *Runner) invoke(ctx context.Context, sess *Session, tc openai.ToolCall) (call ToolCall) {
	call = ToolCall{ID: tc.ID, Name: tc.Function.Name}

	ctx, span := instrumentation.StartToolSpan(ctx, call.Name)
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool handler panicked",
				logging.Tool(call.Name),
				"panic", rec,
				"stack", string(debug.Stack()))
			call.Err = fmt.Errorf("tool %s panicked: %v", call.Name, rec)
		}
		status := statusOf(call.Succeeded())
		if call.Err != nil {
			instrumentation.SetSpanError(span, call.Err)
		}
		r.metrics.RecordToolInvocation(ctx, call.Name, status)
		span.End()
	}()

	if tc.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &call.Args); err != nil {
			call.Err = fmt.Errorf("invalid arguments for %s: %w", call.Name, err)
			return call
		}
	}
	if call.Args == nil {
		call.Args = map[string]any{}
	}

	handler, err := r.registry.Lookup(call.Name)
	if err != nil {
		call.Err = err
		return call
	}

	call.Result, call.Err = handler(ContextWithSession(ctx, sess), call.Args)
	return call
}

func encodeResult(call ToolCall) string {
	var v any = call.Result
	if call.Err != nil {
		v = map[string]string{"status": "error", "message": call.Err.Error()}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"status":"error","message":%q}`, err.Error())
	}
	return string(b)
}

func statusOf(ok bool) string {
	if ok {
		return instrumentation.StatusSuccess
	}
	return instrumentation.StatusError
}
