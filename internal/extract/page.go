package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Page is a parsed snapshot of a rendered document. Strategies read from it
// and never modify it.
type Page struct {
	URL string
	Doc *goquery.Document

	text  string
	texts map[*html.Node]string
}

// NewPage parses an HTML snapshot taken from url.
func NewPage(url, htmlSrc string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlSrc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page snapshot: %w", err)
	}
	return &Page{URL: url, Doc: doc, texts: make(map[*html.Node]string)}, nil
}

// Text returns the visible text of the whole document.
func (p *Page) Text() string {
	if p.text == "" {
		body := p.Doc.Find("body")
		if body.Length() == 0 {
			body = p.Doc.Selection
		}
		p.text = p.nodeText(body.Get(0))
	}
	return p.text
}

// TextOf returns the visible text of the first node in sel.
func (p *Page) TextOf(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	return p.nodeText(sel.Get(0))
}

func (p *Page) nodeText(n *html.Node) string {
	if n == nil {
		return ""
	}
	if t, ok := p.texts[n]; ok {
		return t
	}
	t := innerText(n)
	p.texts[n] = t
	return t
}

// each visits the nodes matched by selector until fn returns false,
// skipping invalid selectors.
func (p *Page) each(selector string, fn func(*goquery.Selection) bool) {
	defer func() { _ = recover() }()
	p.Doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		return fn(s)
	})
}
