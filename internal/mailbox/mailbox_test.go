package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeaderOrDefault(t *testing.T) {
	assert.Equal(t, "Hello", HeaderOrDefault("  Hello ", DefaultSubject))
	assert.Equal(t, DefaultSubject, HeaderOrDefault("", DefaultSubject))
	assert.Equal(t, DefaultSender, HeaderOrDefault("   ", DefaultSender))
}

func TestToValidUTF8(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"ascii", []byte("plain"), "plain"},
		{"multibyte", []byte("Grüße"), "Grüße"},
		{"invalid byte", []byte{'a', 0xff, 'b'}, "a�b"},
		{"truncated sequence", []byte{'x', 0xc3}, "x�"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToValidUTF8(tt.in))
		})
	}
}

func TestDefaultQuery(t *testing.T) {
	assert.Equal(t, "in:inbox is:unread category:primary", DefaultQuery)
}
