package imapmail

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/rejectfewer/internal/mailbox"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestNormalize_PlainText(t *testing.T) {
	raw := crlf(`From: Acme Careers <jobs@acme.example>
Subject: Your application
Date: Mon, 02 Jan 2006 15:04:05 +0000
Content-Type: text/plain; charset=utf-8

Thank you for applying. We have decided not to move forward.
`)

	rec, err := Normalize("42", raw)
	require.NoError(t, err)

	assert.Equal(t, "42", rec.ID)
	assert.Equal(t, "Your application", rec.Subject)
	assert.Equal(t, "Acme Careers <jobs@acme.example>", rec.Sender)
	assert.Equal(t, "Mon, 02 Jan 2006 15:04:05 +0000", rec.Date)
	assert.Contains(t, rec.Body, "not to move forward")
	assert.False(t, rec.SnippetFallback)
}

func TestNormalize_MissingHeaders(t *testing.T) {
	raw := crlf(`Content-Type: text/plain

body
`)

	rec, err := Normalize("1", raw)
	require.NoError(t, err)
	assert.Equal(t, mailbox.DefaultSubject, rec.Subject)
	assert.Equal(t, mailbox.DefaultSender, rec.Sender)
}

func TestNormalize_EncodedSubject(t *testing.T) {
	raw := crlf(`From: hr@example.com
Subject: =?UTF-8?B?QmV3ZXJidW5nIGFiZ2VsZWhudA==?=
Content-Type: text/plain

x
`)

	rec, err := Normalize("1", raw)
	require.NoError(t, err)
	assert.Equal(t, "Bewerbung abgelehnt", rec.Subject)
}

func TestNormalize_NestedMultipartPrefersFirstPlain(t *testing.T) {
	raw := crlf(`From: hr@example.com
Subject: Update
Content-Type: multipart/mixed; boundary=outer

--outer
Content-Type: multipart/alternative; boundary=inner

--inner
Content-Type: text/html

<p>html version</p>
--inner
Content-Type: text/plain

plain version
--inner--
--outer
Content-Type: text/plain

second plain
--outer--
`)

	rec, err := Normalize("7", raw)
	require.NoError(t, err)
	assert.Equal(t, "plain version", strings.TrimSpace(rec.Body))
	assert.False(t, rec.SnippetFallback)
}

func TestNormalize_SkipsAttachments(t *testing.T) {
	raw := crlf(`From: hr@example.com
Subject: Offer letter
Content-Type: multipart/mixed; boundary=b

--b
Content-Type: text/plain
Content-Disposition: attachment; filename="notes.txt"

attached text
--b
Content-Type: text/plain

inline text
--b--
`)

	rec, err := Normalize("9", raw)
	require.NoError(t, err)
	assert.Equal(t, "inline text", strings.TrimSpace(rec.Body))
}

func TestNormalize_HTMLOnlyFallsBackToSnippet(t *testing.T) {
	long := strings.Repeat("word ", 100)
	raw := crlf(`From: hr@example.com
Subject: Update
Content-Type: text/html

<html><body><p>Unfortunately</p><p>` + long + `</p></body></html>
`)

	rec, err := Normalize("3", raw)
	require.NoError(t, err)
	assert.True(t, rec.SnippetFallback)
	assert.True(t, strings.HasPrefix(rec.Body, "Unfortunately word"))
	assert.LessOrEqual(t, len([]rune(rec.Body)), snippetRunes)
}

func TestNormalize_EmptyPlainFallsThrough(t *testing.T) {
	raw := crlf(`From: hr@example.com
Subject: Update
Content-Type: multipart/alternative; boundary=b

--b
Content-Type: text/plain


--b
Content-Type: text/html

<b>only html</b>
--b--
`)

	rec, err := Normalize("5", raw)
	require.NoError(t, err)
	assert.True(t, rec.SnippetFallback)
	assert.Equal(t, "only html", rec.Body)
}

func TestNormalize_HTMLSnippetSkipsStyleAndDecodesEntities(t *testing.T) {
	raw := crlf(`From: hr@example.com
Subject: Your application
Content-Type: text/html

<html><head><title>Acme Careers</title><style>p { font-family: Arial; }</style></head>
<body><p>Unfortunately&nbsp;we have decided to move forward with other candidates.</p>
<script>track("open")</script></body></html>
`)

	rec, err := Normalize("7", raw)
	require.NoError(t, err)
	assert.True(t, rec.SnippetFallback)
	assert.Equal(t, "Unfortunately we have decided to move forward with other candidates.", rec.Body)
}

func TestHTMLText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"plain", "plain"},
		{"<p>a</p><p>b</p>", "a b"},
		{"<div>\n  spaced \t out </div>", "spaced out"},
		{"1 > 0", "1 > 0"},
		{"Tom &amp; Jerry &lt;3", "Tom & Jerry <3"},
		{"<style>.x{color:red}</style>visible", "visible"},
		{"<head><meta charset=utf-8><body>no closing head", "no closing head"},
		{"a<br/>b", "a b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, htmlText(tt.in), "htmlText(%q)", tt.in)
	}
}
