package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracyhatemice/inboxcord/internal/message"
)

func TestBuildHTML_EscapesHeaderFields(t *testing.T) {
	msg := &message.Message{
		Subject: `<script>alert("x")</script>`,
		From:    []string{`Evil <img src=x onerror=alert(1)> <evil@example.com>`},
		Text:    "plain",
	}

	page, err := BuildHTML(msg)
	require.NoError(t, err)

	assert.NotContains(t, page, "<script>alert")
	assert.Contains(t, page, "&lt;script&gt;")
	assert.NotContains(t, page, "<img src=x")
	assert.Contains(t, page, "<b>To:</b> Unknown")
}

func TestBuildHTML_PlainTextParagraphs(t *testing.T) {
	msg := &message.Message{
		Subject: "Trip",
		Text:    "Line one\nLine <two>\n\nSecond paragraph",
	}

	page, err := BuildHTML(msg)
	require.NoError(t, err)

	assert.Contains(t, page, "<p>Line one<br>Line &lt;two&gt;</p>")
	assert.Contains(t, page, "<p>Second paragraph</p>")
}

func TestBuildHTML_HTMLBodyVerbatim(t *testing.T) {
	msg := &message.Message{
		Subject: "Trip",
		Text:    "ignored",
		HTML:    `<table><tr><td class="x">Gate 7</td></tr></table>`,
		Date:    time.Date(2025, 4, 1, 10, 30, 0, 0, time.UTC),
	}

	page, err := BuildHTML(msg)
	require.NoError(t, err)

	assert.Contains(t, page, `<table><tr><td class="x">Gate 7</td></tr></table>`)
	assert.NotContains(t, page, "ignored")
	assert.Contains(t, page, "Tue, 01 Apr 2025 10:30:00 +0000")
}

func TestBuildHTML_NoDateLine(t *testing.T) {
	page, err := BuildHTML(&message.Message{Subject: "s", Text: "t"})
	require.NoError(t, err)
	assert.NotContains(t, page, "<b>Date:</b>")
}

func TestParagraphs(t *testing.T) {
	got := paragraphs("a\r\nb\r\n\r\n\r\n\r\nc\n")
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, got)
}
