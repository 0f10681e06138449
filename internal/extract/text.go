package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// blockElements start and end on their own line when computing inner text.
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"dd": true, "details": true, "div": true, "dl": true, "dt": true,
	"fieldset": true, "figcaption": true, "figure": true, "footer": true,
	"form": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
	"h6": true, "header": true, "hr": true, "li": true, "main": true,
	"nav": true, "ol": true, "p": true, "pre": true, "section": true,
	"summary": true, "svg": true, "table": true, "tbody": true, "thead": true,
	"tfoot": true, "tr": true, "ul": true, "caption": true,
}

var flattenSpace = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ")

// innerText approximates what a browser renders for n: block elements and
// <br> break lines, table cells are tab separated, whitespace collapses
// within a line and blank lines are dropped.
func innerText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, &sb, 0)
	}
	return normalizeLines(sb.String())
}

func walkText(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 200 {
		return
	}

	switch n.Type {
	case html.TextNode:
		sb.WriteString(flattenSpace.Replace(n.Data))
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "template", "head":
			return
		case "br":
			sb.WriteString("\n")
			return
		}
		if hasAttr(n, "hidden") {
			return
		}
	case html.CommentNode, html.DoctypeNode:
		return
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		sb.WriteString("\n")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, sb, depth+1)
	}
	if block {
		sb.WriteString("\n")
	}
	if n.Type == html.ElementNode && (n.Data == "td" || n.Data == "th") {
		sb.WriteString("\t")
	}
}

// normalizeLines collapses runs of spaces inside each line, trims the
// lines and drops empty ones. Tabs survive as cell separators.
func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		cells := strings.Split(line, "\t")
		kept := cells[:0]
		for _, cell := range cells {
			if cell = strings.Join(strings.Fields(cell), " "); cell != "" {
				kept = append(kept, cell)
			}
		}
		if len(kept) > 0 {
			out = append(out, strings.Join(kept, "\t"))
		}
	}
	return strings.Join(out, "\n")
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
