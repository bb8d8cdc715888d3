// Package reassemble merges fragmented template tokens back together: it
// scans the XML of a shared-string table or an inline-string cell and
// merges `{{…}}` template expressions that Excel has fragmented across
// multiple `<t>` runs back into a single run, so the Handlebars engine
// downstream never has to reason about XML run boundaries.
//
// Runs that contain no template markup at all are re-emitted byte-for-byte,
// which is what lets an untouched sheet (or an untouched `<si>`/`<is>`
// scope inside an otherwise templated sheet) round-trip unchanged.
package reassemble

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/adnsv/go-xltmpl/xl"
)

var runRe = regexp.MustCompile(`(?s)<t\b[^>]*?(?:/>|>.*?</t>)`)
var openTagRe = regexp.MustCompile(`(?s)^<t\b[^>]*>`)

type run struct {
	full       []byte // original bytes, e.g. `<t xml:space="preserve">Hello</t>`
	text       string // decoded inner text ("" for self-closing <t/>)
	start, end int     // byte offsets of full within the owning scope
}

// Result is the outcome of reassembling one `<si>`/`<is>` scope.
type Result struct {
	Bytes    []byte
	Changed  bool
	Warnings []string
}

// Scope reassembles a single `<si>…</si>` or `<is>…</is>` element's raw
// bytes (including its own start/end tags). Everything outside those tags
// is the caller's concern.
func Scope(scopeBytes []byte) Result {
	matches := runRe.FindAllIndex(scopeBytes, -1)
	if len(matches) == 0 {
		return Result{Bytes: scopeBytes}
	}

	runs := make([]run, 0, len(matches))
	for _, m := range matches {
		full := scopeBytes[m[0]:m[1]]
		runs = append(runs, run{full: full, text: decodeRunText(full), start: m[0], end: m[1]})
	}

	var sb strings.Builder
	offsets := make([]int, len(runs)+1)
	for i, r := range runs {
		offsets[i] = sb.Len()
		sb.WriteString(r.text)
	}
	offsets[len(runs)] = sb.Len()
	s := sb.String()

	spans, warnings := xl.ScanExpressions(s)
	if len(spans) == 0 {
		return Result{Bytes: scopeBytes, Warnings: warnings}
	}

	var out bytes.Buffer
	cursor := 0 // byte offset into scopeBytes of the next unwritten original byte
	spanIdx := 0

	flushGlue := func(upto int) {
		if upto > cursor {
			out.Write(scopeBytes[cursor:upto])
			cursor = upto
		}
	}

	var pending strings.Builder
	pendingOpen := false
	flushPending := func() {
		if pending.Len() > 0 {
			writeFreshRun(&out, pending.String())
			pending.Reset()
		}
		pendingOpen = false
	}

	for i, r := range runs {
		rStart, rEnd := offsets[i], offsets[i+1]

		touched := false
		for _, sp := range spans {
			if sp.Start < rEnd && sp.End > rStart {
				touched = true
				break
			}
		}

		if !touched {
			flushPending()
			flushGlue(r.start)
			out.Write(r.full)
			cursor = r.end
			continue
		}

		// This run overlaps at least one span; decompose it into
		// plain/expression/comment/escape sub-ranges against s[rStart:rEnd].
		// If an expression/comment is still open from a previous run, the
		// glue between that run and this one sits "inside" the span and is
		// dropped rather than preserved.
		if pendingOpen {
			cursor = r.start
		} else {
			flushGlue(r.start)
		}
		pos := rStart
		for spanIdx < len(spans) && spans[spanIdx].End <= rStart {
			spanIdx++
		}
		for pos < rEnd {
			// advance to the span covering pos, if any
			for spanIdx < len(spans) && spans[spanIdx].End <= pos {
				spanIdx++
			}
			if spanIdx >= len(spans) || spans[spanIdx].Start >= rEnd {
				// no more spans touch this run; emit the rest as plain
				plain := s[pos:rEnd]
				if plain != "" {
					if pendingOpen {
						pending.WriteString(plain)
					} else {
						flushPending()
						writeFreshRun(&out, plain)
					}
				}
				pos = rEnd
				break
			}
			sp := spans[spanIdx]
			if sp.Start > pos {
				plain := s[pos:sp.Start]
				if pendingOpen {
					pending.WriteString(plain)
				} else {
					flushPending()
					writeFreshRun(&out, plain)
				}
				pos = sp.Start
			}
			segEnd := sp.End
			clippedEnd := segEnd
			if clippedEnd > rEnd {
				clippedEnd = rEnd
			}
			chunk := s[pos:clippedEnd]
			switch sp.Kind {
			case xl.SpanExpr, xl.SpanUnterminated:
				pendingOpen = true
				pending.WriteString(chunk)
			case xl.SpanComment:
				pendingOpen = true // swallow silently; flushed as nothing below
			case xl.SpanEscape:
				if pendingOpen {
					pending.WriteString("{{")
				} else {
					flushPending()
					writeFreshRun(&out, "{{")
				}
			}
			pos = clippedEnd
			if segEnd <= rEnd {
				// span closed within this run
				if sp.Kind == xl.SpanComment {
					pending.Reset()
				}
				if sp.Kind != xl.SpanEscape {
					flushPending()
				}
				spanIdx++
			}
		}
		cursor = r.end
	}
	flushPending()
	flushGlue(len(scopeBytes))

	return Result{Bytes: out.Bytes(), Changed: true, Warnings: warnings}
}

// writeFreshRun emits a brand-new, unformatted `<r><t xml:space="preserve">
// …</t></r>` run. Used both for reconstructed plain-text fragments of a
// split run and for collapsed expression text. Formatting for text that
// had to be split across runs is not preserved past the split point; that
// is the cost of the merge.
func writeFreshRun(out *bytes.Buffer, text string) {
	out.WriteString(`<r><t xml:space="preserve">`)
	out.WriteString(xl.EscapeXMLText(text))
	out.WriteString(`</t></r>`)
}

var scopeRe = regexp.MustCompile(`(?s)<si>.*?</si>|<is>.*?</is>`)

// Document runs Scope over every `<si>`/`<is>` element found in an XML
// part's bytes — a worksheet part (inline strings inside `<c t="inlineStr">`
// cells) or the shared-string table part — splicing each scope's result
// back in place. Bytes outside any scope (cell/row/sheet structure,
// `<v>` numeric values, everything else) pass through unchanged.
func Document(data []byte) Result {
	matches := scopeRe.FindAllIndex(data, -1)
	if len(matches) == 0 {
		return Result{Bytes: data}
	}
	var out bytes.Buffer
	var warnings []string
	changed := false
	cursor := 0
	for _, m := range matches {
		out.Write(data[cursor:m[0]])
		r := Scope(data[m[0]:m[1]])
		out.Write(r.Bytes)
		if r.Changed {
			changed = true
		}
		warnings = append(warnings, r.Warnings...)
		cursor = m[1]
	}
	out.Write(data[cursor:])
	return Result{Bytes: out.Bytes(), Changed: changed, Warnings: warnings}
}

func decodeRunText(full []byte) string {
	loc := openTagRe.FindIndex(full)
	if loc == nil {
		return "" // self-closing <t/>
	}
	inner := full[loc[1]:]
	inner = bytes.TrimSuffix(inner, []byte("</t>"))
	return xl.DecodeXMLText(string(inner))
}
