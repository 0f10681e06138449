package render

import (
	"sort"
	"strings"

	"stockbrief/internal/stock"
)

// seriesOrder fixes the position of the well-known chart series.
var seriesOrder = []string{"revenue", "profit", "netWorth"}

// Record converts a StockRecord into an ordered mapping following the
// record's field declaration order.
func Record(r *stock.StockRecord) Map {
	if r == nil {
		return nil
	}
	out := make(Map, 0, 40)
	for _, f := range r.Fields() {
		switch v := f.Value.(type) {
		case []stock.Table:
			out = append(out, KV{f.Key, tables(v)})
		case *stock.FinancialCharts:
			out = append(out, KV{f.Key, charts(v)})
		default:
			out = append(out, KV{f.Key, v})
		}
	}
	return out
}

func tables(ts []stock.Table) []any {
	out := make([]any, len(ts))
	for i, t := range ts {
		rows := make([]any, len(t.Rows))
		for j, row := range t.Rows {
			rows[j] = row
		}
		out[i] = Map{
			{"tableIndex", int64(t.TableIndex)},
			{"rows", rows},
		}
	}
	return out
}

func charts(c *stock.FinancialCharts) Map {
	keys := make([]string, 0, len(c.Series))
	for _, k := range seriesOrder {
		if _, ok := c.Series[k]; ok {
			keys = append(keys, k)
		}
	}
	var rest []string
	for k := range c.Series {
		if !containsKey(seriesOrder, k) {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	out := make(Map, 0, len(keys)+1)
	for _, k := range keys {
		s := c.Series[k]
		out = append(out, KV{k, Map{{"dates", s.Dates}, {"values", s.Values}}})
	}
	out = append(out, KV{"metadata", Map{
		{"unit", c.Metadata.Unit},
		{"periodMode", c.Metadata.PeriodMode},
		{"extractedAt", c.Metadata.ExtractedAt},
	}})
	return out
}

func containsKey(list []string, k string) bool {
	for _, s := range list {
		if s == k {
			return true
		}
	}
	return false
}

// DefaultPreprompt is the instruction placed ahead of the rendered record.
const DefaultPreprompt = `You are an AI equity analyst. Analyze the following stock data and give a clear, deep and structured breakdown:

- Overall summary
- Business model
- Strengths
- Red flags
- Financial health
- Valuation tone
- Long-term outlook

Here is the extracted data:`

// AnalysisPrompt builds the text injected into the chat assistant: the
// preprompt followed by the rendered record in a fenced yaml block.
func AnalysisPrompt(r *stock.StockRecord, preprompt string) string {
	if strings.TrimSpace(preprompt) == "" {
		preprompt = DefaultPreprompt
	}
	return preprompt + "\n\n```yaml\n" + Render(Record(r), 0) + "\n```"
}
