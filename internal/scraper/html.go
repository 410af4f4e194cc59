// Package scraper reads configuration and live values out of the controller's
// HTML pages and turns a full scrape into a dump and a typed config.
package scraper

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/thatsimonsguy/megad-hub/internal/protocol"
)

func parse(page string) (*html.Node, error) {
	return html.Parse(strings.NewReader(page))
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func elements(root *html.Node, tag string) []*html.Node {
	var out []*html.Node
	walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
		}
		return true
	})
	return out
}

func findByName(root *html.Node, tag, name string) *html.Node {
	for _, n := range elements(root, tag) {
		if v, _ := attr(n, "name"); v == name {
			return n
		}
	}
	return nil
}

// textNodes returns every non-empty text node in document order.
func textNodes(root *html.Node) []string {
	var out []string
	walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return false
		}
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				out = append(out, s)
			}
		}
		return true
	})
	return out
}

func textOf(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

// FormRecord collects the settings a config page would submit: inputs of
// every visible form, then the selected option of every select on the page.
func FormRecord(page string) (protocol.Record, error) {
	doc, err := parse(page)
	if err != nil {
		return nil, err
	}

	var r protocol.Record
	for _, form := range elements(doc, "form") {
		if style, _ := attr(form, "style"); strings.ReplaceAll(style, " ", "") == "display:inline" {
			continue
		}
		for _, in := range elements(form, "input") {
			typ, _ := attr(in, "type")
			if typ == "submit" {
				continue
			}
			name, _ := attr(in, "name")
			value, _ := attr(in, "value")
			if typ == "checkbox" {
				value = ""
				if _, checked := attr(in, "checked"); checked {
					value = "on"
				}
			}
			r = append(r, protocol.Field{Key: name, Value: value})
		}
	}

	for _, sel := range elements(doc, "select") {
		name, _ := attr(sel, "name")
		for _, opt := range elements(sel, "option") {
			if _, selected := attr(opt, "selected"); selected {
				value, _ := attr(opt, "value")
				r = append(r, protocol.Field{Key: name, Value: value})
				break
			}
		}
	}
	return r, nil
}
