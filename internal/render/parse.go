package render

import (
	"fmt"
	"strings"
)

type line struct {
	indent int
	text   string
	num    int
}

// Parse reads text produced by Render back into values: mappings become
// Map, sequences []any, and every scalar a string, except null which
// becomes nil.
func Parse(text string) (any, error) {
	var lines []line
	for i, raw := range strings.Split(text, "\n") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		trimmed := strings.TrimLeft(raw, " ")
		spaces := len(raw) - len(trimmed)
		if spaces%len(indentUnit) != 0 {
			return nil, fmt.Errorf("line %d: uneven indentation", i+1)
		}
		lines = append(lines, line{indent: spaces / len(indentUnit), text: trimmed, num: i + 1})
	}
	if len(lines) == 0 {
		return nil, nil
	}

	p := &parser{lines: lines}
	if len(lines) == 1 && !isSeqItem(lines[0].text) && !looksLikeEntry(lines[0].text) {
		return parseToken(lines[0].text)
	}
	v, err := p.block(lines[0].indent)
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.lines) {
		return nil, fmt.Errorf("line %d: unexpected content", p.lines[p.pos].num)
	}
	return v, nil
}

type parser struct {
	lines []line
	pos   int
}

func isSeqItem(text string) bool {
	return text == "-" || strings.HasPrefix(text, "- ")
}

func (p *parser) block(indent int) (any, error) {
	if isSeqItem(p.lines[p.pos].text) {
		return p.seq(indent)
	}
	return p.mapping(indent)
}

func (p *parser) seq(indent int) ([]any, error) {
	out := []any{}
	for p.pos < len(p.lines) {
		ln := p.lines[p.pos]
		if ln.indent != indent || !isSeqItem(ln.text) {
			break
		}
		item := strings.TrimPrefix(strings.TrimPrefix(ln.text, "-"), " ")
		if isSeqItem(item) || looksLikeEntry(item) {
			p.lines[p.pos] = line{indent: indent + 1, text: item, num: ln.num}
			v, err := p.block(indent + 1)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
			continue
		}
		v, err := parseToken(item)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", ln.num, err)
		}
		out = append(out, v)
		p.pos++
	}
	return out, nil
}

func (p *parser) mapping(indent int) (Map, error) {
	out := Map{}
	for p.pos < len(p.lines) {
		ln := p.lines[p.pos]
		if ln.indent < indent {
			break
		}
		if ln.indent > indent || isSeqItem(ln.text) {
			return nil, fmt.Errorf("line %d: unexpected indentation", ln.num)
		}
		key, rest, err := splitEntry(ln.text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", ln.num, err)
		}
		p.pos++
		if rest == "" {
			if p.pos >= len(p.lines) || p.lines[p.pos].indent <= indent {
				return nil, fmt.Errorf("line %d: missing block for %q", ln.num, key)
			}
			v, err := p.block(indent + 1)
			if err != nil {
				return nil, err
			}
			out = append(out, KV{key, v})
			continue
		}
		v, err := parseToken(rest)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", ln.num, err)
		}
		out = append(out, KV{key, v})
	}
	return out, nil
}

// looksLikeEntry reports whether text is a "key: value" or "key:" line.
func looksLikeEntry(text string) bool {
	if strings.HasPrefix(text, "[") || strings.HasPrefix(text, "{") {
		return false
	}
	_, _, err := splitEntry(text)
	return err == nil
}

func splitEntry(text string) (string, string, error) {
	var key, rest string
	if strings.HasPrefix(text, `"`) {
		k, n, err := readQuoted(text)
		if err != nil {
			return "", "", err
		}
		key, rest = k, text[n:]
	} else {
		i := strings.IndexByte(text, ':')
		if i < 0 {
			return "", "", fmt.Errorf("expected key: value")
		}
		key, rest = text[:i], text[i:]
	}
	if !strings.HasPrefix(rest, ":") {
		return "", "", fmt.Errorf("expected ':' after key")
	}
	rest = rest[1:]
	if rest != "" && !strings.HasPrefix(rest, " ") {
		return "", "", fmt.Errorf("expected space after ':'")
	}
	return key, strings.TrimPrefix(rest, " "), nil
}

func parseToken(tok string) (any, error) {
	switch {
	case tok == "null":
		return nil, nil
	case tok == "[]":
		return []any{}, nil
	case tok == "{}":
		return Map{}, nil
	case strings.HasPrefix(tok, `"`):
		s, n, err := readQuoted(tok)
		if err != nil {
			return nil, err
		}
		if n != len(tok) {
			return nil, fmt.Errorf("trailing text after quoted string")
		}
		return s, nil
	case strings.HasPrefix(tok, "["):
		return parseInline(tok)
	}
	return tok, nil
}

func parseInline(tok string) ([]any, error) {
	if !strings.HasSuffix(tok, "]") {
		return nil, fmt.Errorf("unterminated inline sequence")
	}
	body := tok[1 : len(tok)-1]
	out := []any{}
	for len(body) > 0 {
		if strings.HasPrefix(body, `"`) {
			s, n, err := readQuoted(body)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
			body = body[n:]
		} else {
			end := strings.Index(body, ", ")
			if end < 0 {
				end = len(body)
			}
			out = append(out, body[:end])
			body = body[end:]
		}
		if body == "" {
			break
		}
		if !strings.HasPrefix(body, ", ") {
			return nil, fmt.Errorf("expected ', ' between inline items")
		}
		body = body[2:]
	}
	return out, nil
}

// readQuoted decodes a double-quoted string at the start of s and returns
// it with the number of bytes consumed.
func readQuoted(s string) (string, int, error) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			return b.String(), i + 1, nil
		case '\\':
			i++
			if i >= len(s) {
				return "", 0, fmt.Errorf("dangling escape")
			}
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated quoted string")
}

// Canonical returns v in the shape Parse produces for Render(v): scalars
// become their text, mappings Map, sequences []any.
func Canonical(v any) any {
	switch val := normalize(v).(type) {
	case nil:
		return nil
	case string:
		return val
	case Map:
		out := make(Map, len(val))
		for i, kv := range val {
			out[i] = KV{kv.Key, Canonical(kv.Value)}
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Canonical(item)
		}
		return out
	default:
		return scalar(val)
	}
}
