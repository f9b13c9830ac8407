package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
)

// Session is one isolated conversation.
type Session struct {
	ID string

	mu      sync.Mutex
	state   map[string]any
	history []openai.ChatCompletionMessage
}

// Value returns a state entry.
func (s *Session) Value(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state[key]
	return v, ok
}

// String returns a state entry as a string, or "" if absent or not a string.
func (s *Session) String(key string) string {
	v, _ := s.Value(key)
	str, _ := v.(string)
	return str
}

// Set stores a state entry.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = value
}

// SetIfAbsent stores value only if key is unset and reports whether it did.
func (s *Session) SetIfAbsent(key string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state[key]; ok {
		return false
	}
	s.state[key] = value
	return true
}

func (s *Session) append(msgs ...openai.ChatCompletionMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msgs...)
}

func (s *Session) messages() []openai.ChatCompletionMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]openai.ChatCompletionMessage, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of messages in the conversation.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// SessionService stores sessions by id.
type SessionService interface {
	Create(ctx context.Context, id string, state map[string]any) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// InMemorySessionService keeps sessions in a map for the life of the process.
type InMemorySessionService struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewInMemorySessionService returns an empty service.
func NewInMemorySessionService() *InMemorySessionService {
	return &InMemorySessionService{sessions: make(map[string]*Session)}
}

func (s *InMemorySessionService) Create(_ context.Context, id string, state map[string]any) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	st := make(map[string]any, len(state))
	for k, v := range state {
		st[k] = v
	}
	sess := &Session{ID: id, state: st}
	s.sessions[id] = sess
	return sess, nil
}

func (s *InMemorySessionService) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

func (s *InMemorySessionService) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(s.sessions, id)
	return nil
}

// Count returns the number of live sessions.
func (s *InMemorySessionService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

type sessionKey struct{}

// ContextWithSession attaches sess to ctx. Runner does this before calling
// tool handlers.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SessionFromContext returns the session a tool call belongs to.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(*Session)
	return sess, ok && sess != nil
}
