package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type sentMessage struct{ to, subject, body string }

type fakeComposer struct {
	sent   []sentMessage
	failOn int
	cancel context.CancelFunc
}

func (c *fakeComposer) Send(_ context.Context, to, subject, body string) (string, error) {
	n := len(c.sent) + 1
	c.sent = append(c.sent, sentMessage{to, subject, body})
	if c.cancel != nil {
		c.cancel()
	}
	if n == c.failOn {
		return "", errors.New("quota exceeded")
	}
	return fmt.Sprintf("id-%d", n), nil
}

func TestSeedMessages(t *testing.T) {
	c := &fakeComposer{failOn: 2}
	var out bytes.Buffer

	sent, failed := seedMessages(context.Background(), c, &out, "me@example.com", 3, 0)

	assert.Equal(t, 2, sent)
	assert.Equal(t, 1, failed)
	if assert.Len(t, c.sent, 3) {
		assert.Equal(t, "me@example.com", c.sent[0].to)
		assert.Equal(t, "Update on Your Recent Application (Mock #1)", c.sent[0].subject)
		assert.Contains(t, c.sent[2].body, "This is mock email #3.")
		assert.Contains(t, c.sent[2].body, "move forward with other candidates")
	}
	assert.Contains(t, out.String(), "Message sent successfully. ID: id-1")
	assert.Contains(t, out.String(), "quota exceeded")
	assert.Contains(t, out.String(), "Successfully sent: 2")
}

func TestSeedMessages_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &fakeComposer{cancel: cancel}

	sent, failed := seedMessages(ctx, c, &bytes.Buffer{}, "me@example.com", 5, time.Hour)

	assert.Equal(t, 1, sent)
	assert.Zero(t, failed)
	assert.Len(t, c.sent, 1)
}
