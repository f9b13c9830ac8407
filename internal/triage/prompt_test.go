package triage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teemow/rejectfewer/internal/mailbox"
)

func TestBuildPrompt(t *testing.T) {
	rec := mailbox.Record{ID: "18c1f", Subject: "Update", Body: "Unfortunately..."}

	got := BuildPrompt(rec, 0)
	want := "Analyze the following email content.\nMessage ID: 18c1f\nSubject: Update\n\nBody:\nUnfortunately...\n"
	assert.Equal(t, want, got)
}

func TestBuildPrompt_TruncatesBody(t *testing.T) {
	rec := mailbox.Record{ID: "1", Subject: "s", Body: strings.Repeat("a", 6000)}

	got := BuildPrompt(rec, 0)
	body := got[strings.Index(got, "Body:\n")+len("Body:\n"):]
	assert.Equal(t, DefaultMaxBodyChars, len(strings.TrimSuffix(body, "\n")))
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"hello", 0, ""},
		{"héllo wörld", 4, "héll"},
		{"日本語テキスト", 3, "日本語"},
		{"", 3, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncateRunes(tt.in, tt.n), "truncateRunes(%q, %d)", tt.in, tt.n)
	}
}

func TestSessionID(t *testing.T) {
	assert.Equal(t, "analyze_18c1f", SessionID("18c1f"))
}

func TestInstructionNamesTool(t *testing.T) {
	assert.Contains(t, Instruction, TrashToolName)
	assert.Contains(t, Instruction, "exactly once")
}
