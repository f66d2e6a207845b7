package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// PageText reduces an HTML document to readable text: the title, then one
// line per block of body text. Scripts, styles and embedded content are dropped.
func PageText(rawHTML string) (string, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var w textWriter
	if title := pageTitle(doc); title != "" {
		w.line(title)
		w.out.WriteString("\n")
	}
	if body := findElement(doc, "body"); body != nil {
		w.walk(body)
	} else {
		w.walk(doc)
	}
	w.flush()

	return strings.TrimSpace(w.out.String()), nil
}

type textWriter struct {
	out     strings.Builder
	pending []string
}

func (w *textWriter) walk(n *html.Node) {
	switch n.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		if words := strings.Fields(n.Data); len(words) > 0 {
			w.pending = append(w.pending, words...)
		}
		return
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if isSkippedElement(tag) || tag == "head" {
			return
		}
		if tag == "br" || isBlockElement(tag) {
			w.flush()
		}
		defer func() {
			if isBlockElement(tag) {
				w.flush()
			}
		}()
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func (w *textWriter) flush() {
	if len(w.pending) == 0 {
		return
	}
	w.line(strings.Join(w.pending, " "))
	w.pending = w.pending[:0]
}

func (w *textWriter) line(s string) {
	w.out.WriteString(s)
	w.out.WriteString("\n")
}

func isSkippedElement(tag string) bool {
	switch tag {
	case "script", "style", "noscript", "iframe", "embed", "object", "svg", "template":
		return true
	}
	return false
}

func isBlockElement(tag string) bool {
	switch tag {
	case "div", "p", "section", "article", "header", "footer", "nav", "main", "aside",
		"h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li", "table", "tr",
		"form", "fieldset", "blockquote", "pre", "hr", "dl", "dt", "dd":
		return true
	}
	return false
}

func pageTitle(doc *html.Node) string {
	title := findElement(doc, "title")
	if title == nil || title.FirstChild == nil || title.FirstChild.Type != html.TextNode {
		return ""
	}
	return strings.Join(strings.Fields(title.FirstChild.Data), " ")
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}
