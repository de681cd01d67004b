package fetcher

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Elements that carry chrome rather than content.
var strippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"nav":      true,
	"header":   true,
	"footer":   true,
	"aside":    true,
	"iframe":   true,
	"noscript": true,
	"svg":      true,
}

// Class name fragments that usually mark the main content region.
var contentClassHints = []string{"content", "post", "entry", "article-body", "story"}

// ExtractReadable pulls readable text out of an HTML document. Boilerplate
// elements are pruned, then the first non-empty candidate region wins:
// <article>, <main>, a common content-class element, the whole <body>.
// The result is whitespace-collapsed and truncated to maxLen characters.
func ExtractReadable(raw string, maxLen int) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return ""
	}
	prune(doc)

	candidates := []func(*html.Node) *html.Node{
		findTag("article"),
		findTag("main"),
		findContentClass,
		findTag("body"),
	}
	for _, find := range candidates {
		if n := find(doc); n != nil {
			if text := collapse(textOf(n)); text != "" {
				return truncate(text, maxLen)
			}
		}
	}
	return ""
}

// prune removes stripped elements in place.
func prune(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode && strippedTags[c.Data] {
			n.RemoveChild(c)
			continue
		}
		prune(c)
	}
}

func findTag(tag string) func(*html.Node) *html.Node {
	var walk func(*html.Node) *html.Node
	walk = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode && n.Data == tag {
			return n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if m := walk(c); m != nil {
				return m
			}
		}
		return nil
	}
	return walk
}

func findContentClass(n *html.Node) *html.Node {
	if n.Type == html.ElementNode {
		for _, attr := range n.Attr {
			if attr.Key != "class" && attr.Key != "id" {
				continue
			}
			val := strings.ToLower(attr.Val)
			for _, hint := range contentClassHints {
				if strings.Contains(val, hint) {
					return n
				}
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if m := findContentClass(c); m != nil {
			return m
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most maxLen bytes, backing up so a multibyte
// rune is never split. The result is always valid UTF-8 when s is.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
