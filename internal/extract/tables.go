package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"stockbrief/internal/stock"
)

// SeriesSeparator joins the per-period values of a financial row.
const SeriesSeparator = " | "

// TableSeries finds the first table row whose first cell contains one of
// the labels and joins the remaining cells.
func TableSeries(labels ...string) Strategy {
	return func(p *Page) string {
		rows := p.Doc.Find("table tr")
		for _, label := range labels {
			var found string
			rows.EachWithBreak(func(_ int, row *goquery.Selection) bool {
				cells := row.Find("td, th")
				if cells.Length() < 2 || !strings.Contains(p.TextOf(cells.First()), label) {
					return true
				}
				values := make([]string, 0, cells.Length()-1)
				cells.Slice(1, cells.Length()).Each(func(_ int, c *goquery.Selection) {
					values = append(values, p.TextOf(c))
				})
				found = strings.Join(values, SeriesSeparator)
				return false
			})
			if found != "" {
				return found
			}
		}
		return stock.NotAvailable
	}
}

// AllTables captures every table as rows of cell texts. Empty rows and
// tables are skipped. A trailing table whose first cell mentions a company
// is a peer comparison and is dropped.
func AllTables(p *Page) []stock.Table {
	tables := []stock.Table{}
	p.Doc.Find("table").Each(func(i int, t *goquery.Selection) {
		table := stock.Table{TableIndex: i, Rows: [][]string{}}
		t.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td, th")
			texts := make([]string, 0, cells.Length())
			nonEmpty := false
			cells.Each(func(_ int, c *goquery.Selection) {
				text := p.TextOf(c)
				nonEmpty = nonEmpty || text != ""
				texts = append(texts, text)
			})
			if nonEmpty {
				table.Rows = append(table.Rows, texts)
			}
		})
		if len(table.Rows) > 0 {
			tables = append(tables, table)
		}
	})

	if n := len(tables); n > 0 && isPeerTable(tables[n-1]) {
		tables = tables[:n-1]
	}
	return tables
}

func isPeerTable(t stock.Table) bool {
	if len(t.Rows) == 0 || len(t.Rows[0]) == 0 {
		return false
	}
	return strings.Contains(strings.ToLower(t.Rows[0][0]), "company")
}

var (
	percentLine = regexp.MustCompile(`^\d{1,3}(?:\.\d+)?\s?%$`)
	dateHeader  = regexp.MustCompile(`(?i)^(?:` +
		`(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s*'?\d{2,4}` +
		`|\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}` +
		`|(?:q[1-4]\s*)?fy\s*'?\d{2,4}` +
		`)$`)
)

// Shareholding maps holder categories to their percentage under a
// "Shareholding Pattern" heading. It returns nil when the section is
// missing or holds no entries.
func Shareholding(p *Page) map[string]string {
	var out map[string]string
	p.each("h1, h2, h3, h4, h5, h6, div, span, p", func(h *goquery.Selection) bool {
		if !strings.EqualFold(p.TextOf(h), "shareholding pattern") {
			return true
		}
		cur := h.Parent()
		for i := 0; i < 5 && cur.Length() > 0; i++ {
			if m := holdingBlocks(p, cur); len(m) > 0 {
				out = m
				return false
			}
			cur = cur.Parent()
		}
		return true
	})
	return out
}

func holdingBlocks(p *Page, container *goquery.Selection) map[string]string {
	out := make(map[string]string)
	container.Find("div, li, tr").Each(func(_ int, s *goquery.Selection) {
		lines := strings.FieldsFunc(p.TextOf(s), func(r rune) bool { return r == '\n' || r == '\t' })
		if len(lines) != 2 {
			return
		}
		category, pct := strings.TrimSpace(lines[0]), strings.TrimSpace(lines[1])
		if category == "" || dateHeader.MatchString(category) || !percentLine.MatchString(pct) {
			return
		}
		if _, ok := out[category]; !ok {
			out[category] = pct
		}
	})
	return out
}
