package sender

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// nearbyWindow bounds how far after the phrase a bare URL may appear.
const nearbyWindow = 300

var (
	detailsPhrase = regexp.MustCompile(`(?i)\b(?:view|see)\s+(?:\w+\s+)?details\b`)
	bareURL       = regexp.MustCompile(`https?://[^\s<>"']+`)
)

// ExtractDetailsLink finds the "view details" link of a message. It first
// looks for an anchor whose text reads like "View flight details", then for
// the first URL shortly after that phrase in the plain text (or in the text
// of the HTML body). It returns "" when neither yields a link.
func ExtractDetailsLink(htmlBody, text string) string {
	if htmlBody != "" {
		if href := anchorLink(htmlBody); href != "" {
			return href
		}
	}
	if link := nearbyURL(text); link != "" {
		return link
	}
	if htmlBody != "" {
		return nearbyURL(visibleText(htmlBody))
	}
	return ""
}

func anchorLink(body string) string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return ""
	}

	var found string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			href := strings.TrimSpace(attr(n, "href"))
			if href != "" && detailsPhrase.MatchString(nodeText(n)) {
				found = href
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

func nearbyURL(text string) string {
	loc := detailsPhrase.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	window := text[loc[1]:]
	if len(window) > nearbyWindow {
		window = window[:nearbyWindow]
	}
	link := bareURL.FindString(window)
	return strings.TrimRight(link, ".,;:!?)]}>")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// visibleText flattens an HTML document, keeping link targets inline so
// the nearby-URL search can see them.
func visibleText(body string) string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return ""
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style"):
			return
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		case n.Type == html.ElementNode && n.Data == "a":
			if href := attr(n, "href"); strings.HasPrefix(href, "http") {
				defer func() {
					sb.WriteString(href)
					sb.WriteByte(' ')
				}()
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sb.String()
}
