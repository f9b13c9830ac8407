package triage

import (
	"fmt"

	"github.com/teemow/rejectfewer/internal/mailbox"
)

// DefaultMaxBodyChars bounds the body passed to the model, in runes.
const DefaultMaxBodyChars = 5000

// Instruction is the system prompt of the classification agent.
const Instruction = `You decide whether a single email is a rejection of a job application that the recipient submitted.
Each request gives you the email's message_id, its subject and its body.

How to decide:
1. Read subject and body. Rejections usually contain phrasing such as "unfortunately", "regret to inform you", "decided to move forward with other candidates", "the position has been filled", "not selected", "not moving forward", or "thank you for your application, however".
2. The email must close out a specific application the recipient made. A general statement about hiring is not enough.
3. Newsletters, promotions, job alerts, generic HR or company announcements, interview invitations and scheduling, offers, and anything unrelated to an application outcome are NOT rejections.

What to do:
- Only if you are confident the email IS a rejection, call the trash_email tool exactly once with the exact message_id from the request.
- Otherwise do not call any tool.

Finish with one short paragraph: your reasoning, the decision (Rejection or Not Rejection), and whether you called the tool.`

// SessionID is the agent session key for a message.
func SessionID(messageID string) string {
	return "analyze_" + messageID
}

// BuildPrompt renders the per-message user prompt. The body is truncated to
// maxBodyChars runes; a non-positive value selects DefaultMaxBodyChars.
func BuildPrompt(rec mailbox.Record, maxBodyChars int) string {
	if maxBodyChars <= 0 {
		maxBodyChars = DefaultMaxBodyChars
	}
	return fmt.Sprintf("Analyze the following email content.\nMessage ID: %s\nSubject: %s\n\nBody:\n%s\n",
		rec.ID, rec.Subject, truncateRunes(rec.Body, maxBodyChars))
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
