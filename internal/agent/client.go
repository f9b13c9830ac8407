package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
)

// Defaults for the OpenAI-compatible Gemini endpoint.
const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultModel   = "gemini-2.0-flash"
)

// ChatCompleter is the subset of *openai.Client the runner needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ClientConfig configures an OpenAI-compatible client.
type ClientConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a go-openai client for cfg. The base URL defaults to the
// Gemini endpoint.
func NewClient(cfg ClientConfig) *openai.Client {
	conf := openai.DefaultConfig(cfg.APIKey)
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	// go-openai appends "/chat/completions" itself.
	conf.BaseURL = strings.TrimRight(base, "/")
	if cfg.HTTPClient != nil {
		conf.HTTPClient = cfg.HTTPClient
	}
	return openai.NewClientWithConfig(conf)
}

// BreakerCompleter trips after repeated server-side failures so a run does
// not spend a full timeout on every remaining message while the model
// endpoint is down.
type BreakerCompleter struct {
	next ChatCompleter
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerCompleter wraps next in a circuit breaker.
func NewBreakerCompleter(next ChatCompleter, logger *slog.Logger) *BreakerCompleter {
	if logger == nil {
		logger = slog.Default()
	}
	settings := gobreaker.Settings{
		Name:        "chat-completion",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	}
	return &BreakerCompleter{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// CreateChatCompletion forwards to the wrapped client unless the breaker is open.
func (b *BreakerCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.CreateChatCompletion(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return openai.ChatCompletionResponse{}, fmt.Errorf("language model unavailable: %w", err)
		}
		return openai.ChatCompletionResponse{}, err
	}
	return out.(openai.ChatCompletionResponse), nil
}

// State reports the breaker state.
func (b *BreakerCompleter) State() gobreaker.State {
	return b.cb.State()
}

// countsAsSuccess keeps caller-side failures from tripping the breaker:
// cancellations, and 4xx responses other than rate limiting.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.HTTPStatusCode
		return code >= 400 && code < 500 && code != http.StatusTooManyRequests
	}
	return false
}
