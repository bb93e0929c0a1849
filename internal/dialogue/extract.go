package dialogue

import (
	"encoding/json"
	"sort"
)

// ExtractJSONObject returns the earliest-starting balanced {...} span in text that
// is valid JSON. One pass keeps a stack of open brace offsets and records each span
// as it closes. Quotes are tracked only inside braces, honouring backslash escapes,
// so braces inside JSON strings are ignored. Spans that do not decode are skipped:
// prose such as "use {curly} style" ahead of the real object does not hide it.
func ExtractJSONObject(text string) (string, error) {
	type span struct{ start, end int }
	var (
		open     []int
		spans    []span
		inString bool
		escaped  bool
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if len(open) > 0 {
				inString = true
			}
		case '{':
			open = append(open, i)
		case '}':
			if len(open) == 0 {
				continue
			}
			start := open[len(open)-1]
			open = open[:len(open)-1]
			spans = append(spans, span{start, i})
		}
	}

	// Spans close inner-first; candidates are tried by start offset.
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for _, s := range spans {
		candidate := text[s.start : s.end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}
	return "", ErrNoJSON
}
