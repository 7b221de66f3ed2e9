package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/tracyhatemice/inboxcord/internal/message"
)

// PageWidth is the CSS width of the rendered document in pixels.
const PageWidth = 800

var pageTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  body { margin: 0; width: {{.Width}}px; background: #ffffff; font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; color: #202124; }
  .header { padding: 20px 24px; background: #f1f3f4; border-bottom: 1px solid #dadce0; }
  .subject { font-size: 20px; font-weight: 600; margin: 0 0 12px 0; }
  .meta { font-size: 13px; line-height: 1.6; color: #5f6368; }
  .meta b { color: #202124; }
  .body { padding: 20px 24px; font-size: 14px; line-height: 1.5; word-wrap: break-word; }
  .body img { max-width: 100%; }
</style>
</head>
<body>
<div class="header">
  <div class="subject">{{.Subject}}</div>
  <div class="meta"><b>From:</b> {{.From}}</div>
  <div class="meta"><b>To:</b> {{.To}}</div>
  {{if .Date}}<div class="meta"><b>Date:</b> {{.Date}}</div>{{end}}
</div>
<div class="body">
{{if .HTML}}{{.HTML}}{{else}}{{range .Paragraphs}}<p>{{range $i, $line := .}}{{if $i}}<br>{{end}}{{$line}}{{end}}</p>
{{end}}{{end}}
</div>
</body>
</html>
`))

type pageData struct {
	Width      int
	Subject    string
	From       string
	To         string
	Date       string
	HTML       template.HTML
	Paragraphs [][]string
}

// BuildHTML lays out msg as a standalone page. Header fields and plain
// text are escaped; an HTML body is embedded as-is.
func BuildHTML(msg *message.Message) (string, error) {
	data := pageData{
		Width:   PageWidth,
		Subject: msg.Subject,
		From:    message.FormatAddresses(msg.From),
		To:      message.FormatAddresses(msg.To),
	}
	if !msg.Date.IsZero() {
		data.Date = msg.Date.Format(time.RFC1123Z)
	}
	if strings.TrimSpace(msg.HTML) != "" {
		data.HTML = template.HTML(msg.HTML)
	} else {
		data.Paragraphs = paragraphs(msg.Text)
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

// paragraphs splits text on blank lines, keeping single line breaks.
func paragraphs(text string) [][]string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out [][]string
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.Trim(block, "\n")
		if strings.TrimSpace(block) == "" {
			continue
		}
		out = append(out, strings.Split(block, "\n"))
	}
	return out
}
