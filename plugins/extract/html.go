package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type document struct {
	title       string
	description string
	text        string
	links       []string
}

// skipped holds elements whose content is never visible text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Head:     true,
}

// blocks end a line of text.
var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Tr: true, atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Blockquote: true, atom.Pre: true, atom.Table: true, atom.Ul: true, atom.Ol: true,
}

// parseHTML extracts title, meta description, visible text and absolute
// links. base resolves relative links; nil keeps them as written.
func parseHTML(body []byte, base *url.URL) (*document, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	doc := &document{links: []string{}}
	seen := make(map[string]bool)
	var text strings.Builder

	var walk func(n *html.Node, hidden bool)
	walk = func(n *html.Node, hidden bool) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if doc.title == "" && n.FirstChild != nil {
					doc.title = collapse(n.FirstChild.Data)
				}
			case atom.Meta:
				if strings.EqualFold(attr(n, "name"), "description") {
					doc.description = collapse(attr(n, "content"))
				}
			case atom.A:
				if href := resolveLink(base, attr(n, "href")); href != "" && !seen[href] {
					seen[href] = true
					doc.links = append(doc.links, href)
				}
			}
			hidden = hidden || skipped[n.DataAtom]
		}

		if n.Type == html.TextNode && !hidden {
			if s := collapse(n.Data); s != "" {
				text.WriteString(s)
				text.WriteByte(' ')
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, hidden)
		}

		if n.Type == html.ElementNode && blocks[n.DataAtom] {
			text.WriteByte('\n')
		}
	}
	walk(root, false)

	doc.text = tidy(text.String())
	return doc, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	u.Fragment = ""
	return u.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// tidy trims every line and drops empty ones.
func tidy(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
