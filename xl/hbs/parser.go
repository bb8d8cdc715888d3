package hbs

import (
	"strconv"
	"strings"

	"github.com/adnsv/go-xltmpl/xl"
)

// flatItem is one piece produced by the brace scanner before block
// structure has been imposed: either literal text or a single mustache's
// trimmed, unwrapped inner text.
type flatItem struct {
	literal string
	isTag   bool
	inner   string // only set when isTag; braces already stripped
}

// Parse turns one cell's already-reassembled text into a Program — a flat
// list of Node with block helpers (`#each`/`#if`/`#unless`/`#with`/
// user-defined) properly nested against their matching `/name` closers.
// Partials (`{{> name}}`) are not supported and fail with a parse error.
func Parse(text string) ([]Node, []string, error) {
	spans, warnings := xl.ScanExpressions(text)
	flat := flatten(text, spans)
	nodes, err := buildTree(flat)
	if err != nil {
		return nil, warnings, err
	}
	return nodes, warnings, nil
}

func flatten(text string, spans []xl.Span) []flatItem {
	var items []flatItem
	cursor := 0
	for _, sp := range spans {
		if sp.Start > cursor {
			items = append(items, flatItem{literal: text[cursor:sp.Start]})
		}
		switch sp.Kind {
		case xl.SpanExpr:
			inner := sp.Inner
			trimLeft := strings.HasPrefix(inner, "~")
			trimRight := strings.HasSuffix(inner, "~")
			inner = strings.TrimPrefix(inner, "~")
			inner = strings.TrimSuffix(inner, "~")
			inner = strings.TrimSpace(inner)
			if trimLeft && len(items) > 0 && items[len(items)-1].literal != "" {
				items[len(items)-1].literal = strings.TrimRight(items[len(items)-1].literal, " \t\r\n")
			}
			items = append(items, flatItem{isTag: true, inner: inner})
			if trimRight {
				// Marked by leaving a sentinel the literal-consuming code
				// below strips on the next literal chunk.
				items[len(items)-1].literal = "\x00trimnext"
			}
		case xl.SpanComment:
			// Comments contribute nothing.
		case xl.SpanUnterminated:
			// A dangling "{{" renders verbatim; the scanner already put
			// the warning on the side channel.
			items = append(items, flatItem{literal: text[sp.Start:sp.End]})
		case xl.SpanEscape:
			items = append(items, flatItem{literal: "{{"})
		}
		cursor = sp.End
	}
	if cursor < len(text) {
		items = append(items, flatItem{literal: text[cursor:]})
	}
	// Apply pending right-trim sentinels.
	for i := 0; i < len(items); i++ {
		if items[i].literal == "\x00trimnext" {
			items[i].literal = ""
			if i+1 < len(items) && !items[i+1].isTag {
				items[i+1].literal = strings.TrimLeft(items[i+1].literal, " \t\r\n")
			}
		}
	}
	return items
}

// frame is one open block on the parser stack. `synthetic` marks a frame
// pushed to desugar `{{else if cond}}`: it has no closing tag of its own
// and is folded into its parent's Inverse as a single nested BlockNode as
// soon as it is popped.
type frame struct {
	call      Call
	program   []Node
	inverse   []Node
	inElse    bool
	synthetic bool
}

func buildTree(flat []flatItem) ([]Node, error) {
	var stack []frame
	var top []Node

	appendNode := func(n Node) {
		if len(stack) == 0 {
			top = append(top, n)
			return
		}
		f := &stack[len(stack)-1]
		if f.inElse {
			f.inverse = append(f.inverse, n)
		} else {
			f.program = append(f.program, n)
		}
	}

	// closeFrame pops exactly one frame (synthetic or real) and folds its
	// result into whatever is now on top (or into the root program).
	closeFrame := func() {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		appendNode(BlockNode{Call: f.call, Program: f.program, Inverse: f.inverse})
	}

	for _, it := range flat {
		if !it.isTag {
			if it.literal != "" {
				appendNode(LiteralNode{Text: it.literal})
			}
			continue
		}
		body := it.inner
		switch {
		case strings.HasPrefix(body, "!"):
			continue // comment that slipped through
		case strings.HasPrefix(body, ">"):
			return nil, xl.Errorf(xl.KindTemplateParse, "partials are not supported: %q", body)
		case strings.HasPrefix(body, "#"):
			call, err := parseCall(strings.TrimSpace(body[1:]))
			if err != nil {
				return nil, err
			}
			stack = append(stack, frame{call: call})
		case strings.HasPrefix(body, "/"):
			name := strings.TrimSpace(body[1:])
			if len(stack) == 0 {
				return nil, xl.Errorf(xl.KindTemplateParse, "unmatched closing block {{/%s}}", name)
			}
			// Fold any open synthetic "else if" frames first — they share
			// the closing tag of the block they were chained from.
			for len(stack) > 0 && stack[len(stack)-1].synthetic {
				closeFrame()
			}
			if len(stack) == 0 || stack[len(stack)-1].call.Name != name {
				got := ""
				if len(stack) > 0 {
					got = stack[len(stack)-1].call.Name
				}
				return nil, xl.Errorf(xl.KindTemplateParse, "mismatched block: opened %q, closed %q", got, name)
			}
			closeFrame()
		case body == "else" || strings.HasPrefix(body, "else "):
			if len(stack) == 0 {
				return nil, xl.Errorf(xl.KindTemplateParse, "{{else}} outside a block")
			}
			rest := strings.TrimSpace(strings.TrimPrefix(body, "else"))
			if strings.HasPrefix(rest, "if ") {
				innerCall, err := parseCall(rest)
				if err != nil {
					return nil, err
				}
				stack[len(stack)-1].inElse = true
				stack = append(stack, frame{
					call:      Call{Name: "if", Args: innerCall.Args, Hash: innerCall.Hash},
					synthetic: true,
				})
				continue
			}
			stack[len(stack)-1].inElse = true
		default:
			call, err := parseCall(body)
			if err != nil {
				return nil, err
			}
			appendNode(MustacheNode{Call: call})
		}
	}
	if len(stack) != 0 {
		return nil, xl.Errorf(xl.KindTemplateParse, "unterminated block helper %q", stack[len(stack)-1].call.Name)
	}
	return top, nil
}

// parseCall parses "name arg1 \"arg 2\" key=val (sub a b)" into a Call.
func parseCall(s string) (Call, error) {
	toks, err := tokenizeArgs(s)
	if err != nil {
		return Call{}, err
	}
	if len(toks) == 0 {
		return Call{}, xl.Errorf(xl.KindTemplateParse, "empty expression")
	}
	call := Call{Name: toks[0], Hash: map[string]Expression{}}
	for _, tok := range toks[1:] {
		if k, v, ok := splitHash(tok); ok {
			expr, err := parseExprToken(v)
			if err != nil {
				return Call{}, err
			}
			call.Hash[k] = expr
			continue
		}
		expr, err := parseExprToken(tok)
		if err != nil {
			return Call{}, err
		}
		call.Args = append(call.Args, expr)
	}
	return call, nil
}

// splitHash recognizes "key=value" tokens, ignoring "=" inside quotes.
func splitHash(tok string) (key, val string, ok bool) {
	if tok == "" || tok[0] == '"' || tok[0] == '(' {
		return "", "", false
	}
	i := strings.IndexByte(tok, '=')
	if i <= 0 {
		return "", "", false
	}
	return tok[:i], tok[i+1:], true
}

// tokenizeArgs splits on whitespace while keeping quoted strings and
// parenthesized subexpressions intact as single tokens.
func tokenizeArgs(s string) ([]string, error) {
	var toks []string
	i, n := 0, len(s)
	for i < n {
		for i < n && isSpace(s[i]) {
			i++
		}
		if i >= n {
			break
		}
		start := i
		switch s[i] {
		case '"':
			i++
			for i < n && s[i] != '"' {
				if s[i] == '\\' && i+1 < n {
					i++
				}
				i++
			}
			if i >= n {
				return nil, xl.Errorf(xl.KindTemplateParse, "unterminated string literal in %q", s)
			}
			i++ // closing quote
		case '(':
			depth := 1
			i++
			for i < n && depth > 0 {
				switch s[i] {
				case '(':
					depth++
				case ')':
					depth--
				case '"':
					i++
					for i < n && s[i] != '"' {
						if s[i] == '\\' && i+1 < n {
							i++
						}
						i++
					}
				}
				i++
			}
			if depth != 0 {
				return nil, xl.Errorf(xl.KindTemplateParse, "unbalanced parentheses in %q", s)
			}
		default:
			for i < n && !isSpace(s[i]) {
				i++
			}
		}
		toks = append(toks, s[start:i])
	}
	return toks, nil
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }

func parseNumberLiteral(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseExprToken(tok string) (Expression, error) {
	switch {
	case strings.HasPrefix(tok, "(") && strings.HasSuffix(tok, ")"):
		call, err := parseCall(strings.TrimSpace(tok[1 : len(tok)-1]))
		if err != nil {
			return nil, err
		}
		return SubExpr{Call: call}, nil
	case strings.HasPrefix(tok, `"`) && strings.HasSuffix(tok, `"`) && len(tok) >= 2:
		return LiteralExpr{Value: unquote(tok[1 : len(tok)-1])}, nil
	case tok == "true":
		return LiteralExpr{Value: true}, nil
	case tok == "false":
		return LiteralExpr{Value: false}, nil
	case tok == "null" || tok == "undefined":
		return LiteralExpr{Value: nil}, nil
	}
	if f, ok := parseNumberLiteral(tok); ok {
		return LiteralExpr{Value: f}, nil
	}
	return parsePath(tok), nil
}

// ParseArgExpr parses a single bare expression — the argument string of a
// row-span `#each`/`#if`/`#unless`/`#with`, evaluated outside
// the per-cell mustache grammar entirely. Only the first whitespace-split
// token is consumed.
func ParseArgExpr(s string) (Expression, error) {
	toks, err := tokenizeArgs(s)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return LiteralExpr{Value: nil}, nil
	}
	return parseExprToken(toks[0])
}

func unquote(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func parsePath(tok string) PathExpr {
	p := PathExpr{}
	for strings.HasPrefix(tok, "../") {
		p.Scopes++
		tok = tok[3:]
	}
	if tok == "this" || tok == "." {
		p.This = true
		return p
	}
	if strings.HasPrefix(tok, "@root") {
		p.Root = true
		tok = strings.TrimPrefix(tok, "@root")
		tok = strings.TrimPrefix(tok, ".")
		if tok == "" {
			return p
		}
		p.Segments = splitSegments(tok)
		return p
	}
	if strings.HasPrefix(tok, "@") {
		p.DataVar = tok
		return p
	}
	tok = strings.TrimPrefix(tok, "this.")
	if tok != "" {
		p.Segments = splitSegments(tok)
	}
	return p
}

// splitSegments splits a dotted path into segments, unpacking bracket
// segments ("items[0]") into their own numeric segment so index() resolves
// them against a []Value exactly like a dotted numeric segment would.
// "items[0].name" and "items.0.name" both yield ["items", "0", "name"].
func splitSegments(tok string) []string {
	tok = strings.ReplaceAll(tok, "]", "")
	tok = strings.ReplaceAll(tok, "[", ".")
	parts := strings.Split(tok, ".")
	segs := parts[:0]
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}
