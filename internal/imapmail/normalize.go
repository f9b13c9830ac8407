package imapmail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/net/html"

	"github.com/teemow/rejectfewer/internal/mailbox"
)

// snippetRunes matches the length of Gmail's message snippet.
const snippetRunes = 200

// Normalize parses a raw RFC 5322 message into a mailbox.Record. The body is
// the first non-empty text/plain inline part in depth-first order. Without
// one, a prefix of the visible text of the first HTML part stands in for the
// snippet and SnippetFallback is set.
func Normalize(id string, raw []byte) (mailbox.Record, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return mailbox.Record{}, fmt.Errorf("parsing message %s: %w", id, err)
	}
	defer mr.Close()

	subject, _ := mr.Header.Subject()
	from, _ := mr.Header.Text("From")
	date, _ := mr.Header.Text("Date")

	rec := mailbox.Record{
		ID:      id,
		Subject: mailbox.HeaderOrDefault(subject, mailbox.DefaultSubject),
		Sender:  mailbox.HeaderOrDefault(from, mailbox.DefaultSender),
		Date:    date,
	}

	var htmlBody string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			// A malformed later part does not invalidate what was read so far.
			break
		}
		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}
		switch {
		case ct == "text/plain" && len(bytes.TrimSpace(body)) > 0:
			rec.Body = mailbox.ToValidUTF8(body)
			return rec, nil
		case ct == "text/html" && htmlBody == "":
			htmlBody = mailbox.ToValidUTF8(body)
		}
	}

	rec.Body = snippet(htmlText(htmlBody))
	rec.SnippetFallback = true
	return rec, nil
}

// hiddenElements carry no readable text.
var hiddenElements = map[string]bool{
	"head": true, "title": true, "script": true, "style": true, "noscript": true, "template": true,
}

// htmlText returns the visible text of an HTML document with entities
// decoded and whitespace collapsed. It is only used to build a short
// preview, not to render HTML.
func htmlText(s string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	hidden := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			if hidden == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			switch tag := string(name); {
			case tag == "body":
				// An unterminated head ends where the body starts.
				hidden = 0
			case hiddenElements[tag]:
				hidden++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if hiddenElements[string(name)] && hidden > 0 {
				hidden--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		}
	}
}

func snippet(s string) string {
	r := []rune(s)
	if len(r) > snippetRunes {
		return string(r[:snippetRunes])
	}
	return s
}
