package agent

import "fmt"

// EventKind distinguishes runner events.
type EventKind int

const (
	EventFinal EventKind = iota + 1
	EventToolCall
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventFinal:
		return "final"
	case EventToolCall:
		return "tool_call"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// ToolCall is an executed tool invocation.
type ToolCall struct {
	ID     string
	Name   string
	Args   map[string]any
	Result any
	// Err is set when the handler failed or the call could not be dispatched.
	Err error
}

// Succeeded reports whether the tool completed without error. Results that
// implement Outcome decide for themselves.
func (c ToolCall) Succeeded() bool {
	if c.Err != nil {
		return false
	}
	if o, ok := c.Result.(Outcome); ok {
		return o.Succeeded()
	}
	return true
}

// Outcome is implemented by tool results that carry their own status.
type Outcome interface {
	Succeeded() bool
}

// Event is emitted by Runner.Run. Exactly one of Text, ToolCall or Err is
// meaningful, according to Kind.
type Event struct {
	Kind      EventKind
	SessionID string
	Text      string
	ToolCall  *ToolCall
	Err       error
}
