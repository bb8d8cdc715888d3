package xl

import "strings"

// SpanKind classifies a brace-delimited span found by ScanExpressions.
type SpanKind int

const (
	SpanExpr SpanKind = iota
	SpanComment
	SpanEscape
	SpanUnterminated
)

// Span is a single `{{…}}`-delimited region within a plain-text stream,
// expressed as byte offsets into that stream. Inner is the text strictly
// between the delimiters (for SpanExpr/SpanComment); for SpanEscape it is
// always empty and Triple is always false.
type Span struct {
	Kind   SpanKind
	Start  int
	End    int // exclusive, one past the closing delimiter
	Inner  string
	Triple bool // true for {{{ }}} unescaped triple-brace expressions
}

// ScanExpressions walks plain decoded text (no markup — this operates on
// the already-reassembled text of a single template unit) and returns the
// ordered, non-overlapping list of `{{…}}` spans: greedy, pair-balanced,
// triple-brace aware, with `{{!-- … --}}`/`{{! … }}` comments and `\{{`
// escapes recognized.
//
// The same brace-matching is reused both by the reassemble pass (to find
// expression boundaries across fragmented XML runs) and by the Handlebars
// lexer (to split a cell's already-reassembled text into literal and
// expression pieces) — one balanced-brace implementation serving both the
// structural and the semantic passes.
func ScanExpressions(s string) (spans []Span, warnings []string) {
	i := 0
	n := len(s)
	for i < n {
		if s[i] == '\\' && i+2 < n && s[i+1] == '{' && s[i+2] == '{' {
			spans = append(spans, Span{Kind: SpanEscape, Start: i, End: i + 3})
			i += 3
			continue
		}
		if s[i] == '{' && i+1 < n && s[i+1] == '{' {
			braces := 2
			if i+2 < n && s[i+2] == '{' {
				braces = 3
			}
			j := i + braces
			isComment := j < n && s[j] == '!'
			close := strings.Repeat("}", braces)
			k := strings.Index(s[j:], close)
			if k < 0 {
				warnings = append(warnings, "unterminated \"{{\" at end of scope")
				spans = append(spans, Span{Kind: SpanUnterminated, Start: i, End: n, Inner: s[j:]})
				i = n
				break
			}
			end := j + k + braces
			inner := s[j:(j + k)]
			kind := SpanExpr
			if isComment {
				kind = SpanComment
			}
			spans = append(spans, Span{Kind: kind, Start: i, End: end, Inner: inner, Triple: braces == 3})
			i = end
			continue
		}
		i++
	}
	return spans, warnings
}

// HasExpression reports whether s contains at least one (possibly
// unterminated) `{{` token, without the cost of building spans — used to
// decide whether a stretch of plain text needs any template handling at
// all.
func HasExpression(s string) bool {
	return strings.Contains(s, "{{")
}
