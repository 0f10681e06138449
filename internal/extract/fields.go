package extract

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"stockbrief/internal/logging"
	"stockbrief/internal/stock"
)

// Strategy is one heuristic attempt to resolve a field from a page. It
// returns the trimmed value or the sentinel.
type Strategy func(p *Page) string

// run calls s and turns a panic or an empty result into the sentinel.
func run(s Strategy, p *Page) (v string) {
	defer func() {
		if r := recover(); r != nil {
			logging.ExtractDebug("strategy panic recovered: %v", r)
			v = stock.NotAvailable
		}
	}()
	v = strings.TrimSpace(s(p))
	if v == "" {
		return stock.NotAvailable
	}
	return v
}

// firstOf tries each strategy in order and returns the first resolved value.
func firstOf(strategies ...Strategy) Strategy {
	return func(p *Page) string {
		for _, s := range strategies {
			if v := run(s, p); !stock.IsMissing(v) {
				return v
			}
		}
		return stock.NotAvailable
	}
}

// guarded calls fn and returns zero if it panics.
func guarded[T any](fn func() T, zero T) (v T) {
	defer func() {
		if r := recover(); r != nil {
			logging.ExtractDebug("collector panic recovered: %v", r)
			v = zero
		}
	}()
	return fn()
}

// Selector returns the text of the first element matching one of the
// selectors that has any visible text.
func Selector(selectors ...string) Strategy {
	return func(p *Page) string {
		for _, sel := range selectors {
			var found string
			p.each(sel, func(s *goquery.Selection) bool {
				found = p.TextOf(s)
				return found == ""
			})
			if found != "" {
				return found
			}
		}
		return stock.NotAvailable
	}
}

// Name resolves the stock's display name from the page heading.
func Name() Strategy {
	return Selector(`h1.usph14Head`, `h1[class*="stock"]`, `[class*="stock-name"]`, `[data-testid="stock-name"]`, `h1`)
}

// Symbol takes the last non-empty path segment of the page URL.
func Symbol() Strategy {
	return func(p *Page) string {
		u, err := url.Parse(p.URL)
		if err != nil {
			return stock.NotAvailable
		}
		parts := strings.Split(u.Path, "/")
		for i := len(parts) - 1; i >= 0; i-- {
			if parts[i] != "" {
				return parts[i]
			}
		}
		return stock.NotAvailable
	}
}

const (
	kvCandidates  = "td, th, div, span, p, li, dt, dd"
	maxValueChars = 60
)

// KeyValue resolves a labelled metric. Labels are synonyms tried in order.
func KeyValue(labels ...string) Strategy {
	return firstOf(
		func(p *Page) string { return labelMatch(p, labels, false) },
		func(p *Page) string { return labelMatch(p, labels, true) },
		func(p *Page) string { return labelRegex(p, labels) },
	)
}

func labelMatch(p *Page, labels []string, fold bool) string {
	for _, label := range labels {
		var value string
		p.each(kvCandidates, func(s *goquery.Selection) bool {
			text := p.TextOf(s)
			if text == "" {
				return true
			}
			if text == label || (fold && strings.EqualFold(text, label)) {
				value = valueNear(p, s, text)
			} else if rest, ok := colonRemainder(text, label, fold); ok {
				value = rest
			}
			return value == ""
		})
		if value != "" {
			return value
		}
	}
	return stock.NotAvailable
}

// valueNear looks for the value that belongs to a label element: its next
// sibling, its parent's next sibling, or the neighbouring table cell.
func valueNear(p *Page, label *goquery.Selection, labelText string) string {
	candidates := []*goquery.Selection{label.Next(), label.Parent().Next()}
	if cell := label.Closest("td, th"); cell.Length() > 0 {
		candidates = append(candidates, cell.Next(), cell.Closest("tr").Children().Last())
	}
	for _, c := range candidates {
		v := firstLine(p.TextOf(c))
		if v != "" && v != labelText {
			return v
		}
	}
	return ""
}

// colonRemainder handles "Label: value" inside a single element.
func colonRemainder(text, label string, fold bool) (string, bool) {
	if len(text) <= len(label) {
		return "", false
	}
	head := text[:len(label)]
	if head != label && !(fold && strings.EqualFold(head, label)) {
		return "", false
	}
	rest := strings.TrimSpace(text[len(label):])
	if !strings.HasPrefix(rest, ":") {
		return "", false
	}
	v := firstLine(strings.TrimSpace(rest[1:]))
	if v == "" || utf8.RuneCountInString(v) > maxValueChars {
		return "", false
	}
	return v, true
}

// labelValue captures a metric value following a label in running text.
// Values start with a digit, a currency sign or a sign character, so a
// label word inside a sentence ("Open Demat Account") is not a match.
const labelValue = `((?:[\d₹$+\-−]|Rs\.?)[^\n\t]*)`

func labelRegex(p *Page, labels []string) string {
	text := p.Text()
	for _, label := range labels {
		re, err := regexp.Compile(`(?i)(?:^|[^\pL\pN])` + regexp.QuoteMeta(label) + `(?:[^\pL\pN]|$)[ \t]*(?::|-\s)?\s*` + labelValue)
		if err != nil {
			continue
		}
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			v := strings.TrimSpace(m[1])
			if v != "" && utf8.RuneCountInString(v) <= maxValueChars {
				return v
			}
		}
	}
	return stock.NotAvailable
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\n\t"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

var (
	currencyToken    = regexp.MustCompile(`(?:₹|Rs\.?|\$)\s?\d[\d,]*(?:\.\d+)?`)
	isolatedCurrency = regexp.MustCompile(`^(?:₹|Rs\.?|\$)\s?\d[\d,]*(?:\.\d+)?$`)
)

// Price resolves the current traded price. window bounds how much of the
// leading page text is searched; limit bounds the element scan.
func Price(window, limit int) Strategy {
	return firstOf(
		priceBySelector,
		func(p *Page) string { return priceInText(p, window) },
		func(p *Page) string { return priceByScan(p, limit) },
		priceByAttribute,
	)
}

func priceBySelector(p *Page) string {
	for _, sel := range []string{`span.uht141Pri`, `[data-testid="price"]`, `[class*="current-price"]`} {
		var found string
		p.each(sel, func(s *goquery.Selection) bool {
			if m := currencyToken.FindString(p.TextOf(s)); m != "" {
				found = m
			}
			return found == ""
		})
		if found != "" {
			return found
		}
	}
	return stock.NotAvailable
}

func priceInText(p *Page, window int) string {
	text := p.Text()
	if window > 0 && utf8.RuneCountInString(text) > window {
		text = string([]rune(text)[:window])
	}
	if m := currencyToken.FindString(text); m != "" {
		return m
	}
	return stock.NotAvailable
}

func priceByScan(p *Page, limit int) string {
	var found string
	n := 0
	p.each("div, span, p, strong, b, h1, h2, h3, h4", func(s *goquery.Selection) bool {
		n++
		if text := p.TextOf(s); isolatedCurrency.MatchString(text) {
			found = text
		}
		return found == "" && (limit <= 0 || n < limit)
	})
	if found != "" {
		return found
	}
	return stock.NotAvailable
}

func priceByAttribute(p *Page) string {
	for _, attr := range []string{"data-price", "data-current-price"} {
		if v, ok := p.Doc.Find("[" + attr + "]").First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return stock.NotAvailable
}

var changePattern = regexp.MustCompile(`[+\-−]?\d[\d,]*\.?\d*\s*\([+\-−]?\d+\.?\d*%\)`)

// Change resolves the day's absolute and percentage move.
func Change(limit int) Strategy {
	return firstOf(
		Selector(`div.uht141Day`, `[class*="day-change"]`),
		func(p *Page) string {
			if m := changePattern.FindString(p.Text()); m != "" {
				return m
			}
			return stock.NotAvailable
		},
		func(p *Page) string { return changeByScan(p, limit) },
	)
}

func changeByScan(p *Page, limit int) string {
	var found string
	n := 0
	p.each("div, span, p", func(s *goquery.Selection) bool {
		n++
		text := p.TextOf(s)
		if strings.Contains(text, "%") && balancedParens(text) && utf8.RuneCountInString(text) < maxValueChars {
			found = text
		}
		return found == "" && (limit <= 0 || n < limit)
	})
	if found != "" {
		return found
	}
	return stock.NotAvailable
}

func balancedParens(s string) bool {
	depth, seen := 0, false
	for _, r := range s {
		switch r {
		case '(':
			depth++
			seen = true
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return seen && depth == 0
}

var readMore = regexp.MustCompile(`(?i)\s*(?:\.{3}|…)?\s*read more\.?$`)

// About resolves the company description.
func About() Strategy {
	return firstOf(
		aboutBySection,
		func(p *Page) string {
			for _, sel := range []string{`.gsd23CompProfile`, `[class*="about"]`, `[class*="description"]`, `[class*="company-profile"]`} {
				var found string
				p.each(sel, func(s *goquery.Selection) bool {
					if text := stripReadMore(p.TextOf(s)); utf8.RuneCountInString(text) > 50 {
						found = text
					}
					return found == ""
				})
				if found != "" {
					return found
				}
			}
			return stock.NotAvailable
		},
		func(p *Page) string { return longestText(p, p.Doc.Find("p"), 100) },
	)
}

func aboutBySection(p *Page) string {
	var found string
	p.each("h1, h2, h3, h4", func(h *goquery.Selection) bool {
		headText := p.TextOf(h)
		if !strings.Contains(strings.ToLower(headText), "about") {
			return true
		}
		section := enclosingSection(p, h, headText)
		if section == nil {
			return true
		}
		blocks := section.Find("p, div, span").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return s.HasNodes(h.Get(0)).Length() == 0 && s.Find("table, ul, ol").Length() == 0
		})
		found = longestText(p, blocks, 50)
		return stock.IsMissing(found)
	})
	if found == "" {
		return stock.NotAvailable
	}
	return found
}

// enclosingSection walks up from a heading to the nearest ancestor that
// holds more text than the heading itself.
func enclosingSection(p *Page, h *goquery.Selection, headText string) *goquery.Selection {
	cur := h.Parent()
	for i := 0; i < 6 && cur.Length() > 0; i++ {
		if len(p.TextOf(cur)) > len(headText) {
			return cur
		}
		cur = cur.Parent()
	}
	return nil
}

func longestText(p *Page, sel *goquery.Selection, minChars int) string {
	best := ""
	bestLen := minChars
	sel.Each(func(_ int, s *goquery.Selection) {
		text := stripReadMore(p.TextOf(s))
		if n := utf8.RuneCountInString(text); n > bestLen {
			best, bestLen = text, n
		}
	})
	if best == "" {
		return stock.NotAvailable
	}
	return best
}

func stripReadMore(s string) string {
	return strings.TrimSpace(readMore.ReplaceAllString(strings.TrimSpace(s), ""))
}

// List collects the entries of a keyword section such as "pros" or "cons".
func List(keyword string) func(p *Page) []string {
	word := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`)
	return func(p *Page) []string {
		if items := listByHeading(p, word); len(items) > 0 {
			return items
		}
		for _, sel := range []string{"." + keyword, `[class*="` + keyword + `"]`, `[data-testid="` + keyword + `"]`} {
			var items []string
			p.each(sel, func(s *goquery.Selection) bool {
				items = listEntries(p, s, "")
				return len(items) == 0
			})
			if len(items) > 0 {
				return items
			}
		}
		return []string{}
	}
}

func listByHeading(p *Page, word *regexp.Regexp) []string {
	var items []string
	p.each("h1, h2, h3, h4, h5, h6, div, span, p, strong, b", func(s *goquery.Selection) bool {
		text := p.TextOf(s)
		if text == "" || utf8.RuneCountInString(text) >= 40 || !word.MatchString(text) {
			return true
		}
		cur := s.Parent()
		for i := 0; i < 4 && cur.Length() > 0 && len(items) == 0; i++ {
			items = listEntries(p, cur, text)
			cur = cur.Parent()
		}
		return len(items) == 0
	})
	return items
}

// listEntries returns the de-duplicated list item or paragraph texts in
// container, skipping short entries and the section heading.
func listEntries(p *Page, container *goquery.Selection, heading string) []string {
	entries := container.Find("li")
	if entries.Length() == 0 {
		entries = container.Find("p")
	}
	seen := make(map[string]bool)
	out := []string{}
	entries.Each(func(_ int, s *goquery.Selection) {
		text := p.TextOf(s)
		if utf8.RuneCountInString(text) <= 5 || text == heading || seen[text] {
			return
		}
		seen[text] = true
		out = append(out, text)
	})
	return out
}
