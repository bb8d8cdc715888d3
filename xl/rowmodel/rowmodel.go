// Package rowmodel parses a
// worksheet's `<sheetData>` into an ordered slice of *xl.Row/*xl.Cell, and
// identifies the multi-row block-helper spans (`#each`/`#if`/`#unless`/`#with`)
// the rewrite pass must expand or prune before per-cell rendering.
package rowmodel

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/adnsv/go-xltmpl/xl"
)

// SharedString is one pre-reassembled entry from xl/sharedStrings.xml,
// indexed the same way `<c t="s"><v>N</v></c>` references it.
type SharedString struct {
	Text        string
	HasTemplate bool
}

// Parsed is one worksheet part decomposed into a byte-splice-friendly
// shape: everything the rewrite pass needs to regenerate `<dimension>`,
// `<sheetData>`, `<mergeCells>`, and `<hyperlinks>` while leaving the rest
// of the part (sheetViews, cols, pageMargins, …) untouched.
type Parsed struct {
	Preamble             []byte // bytes up to (not including) "<sheetData"; <dimension> stripped out
	Postamble            []byte // bytes after "</sheetData>"; mergeCells/hyperlinks/drawing stripped out
	ExistingDrawingRelID string

	Rows []*xl.Row

	HasAnyTemplate bool // true if any cell in this sheet carries a "{{" (including via a templated shared string)
	Spans          []Span
}

// Span is a multi-row block helper range: rows [OpenRow, CloseRow]
// (0-based indices into Parsed.Rows) bracketed by `{{#name args}}` and the
// matching `{{/name}}`, found in different rows. Helpers whose open/close
// fall in the same row are left inline for the Handlebars engine instead.
type Span struct {
	Name              string
	Args              string
	OpenRow, CloseRow int
}

var (
	dimensionRe  = regexp.MustCompile(`<dimension\b[^>]*/>`)
	mergeCellsRe = regexp.MustCompile(`(?s)<mergeCells\b[^>]*>.*?</mergeCells>|<mergeCells\b[^>]*/>`)
	hyperlinksRe = regexp.MustCompile(`(?s)<hyperlinks\b[^>]*>.*?</hyperlinks>|<hyperlinks\b[^>]*/>`)
	drawingRe    = regexp.MustCompile(`<drawing\b[^>]*r:id="([^"]*)"[^>]*/>`)
	sheetDataRe  = regexp.MustCompile(`(?s)<sheetData\b[^>]*>(.*?)</sheetData>|<sheetData\b[^>]*/>`)
	rowRe        = regexp.MustCompile(`(?s)<row\b([^>]*)>(.*?)</row>|<row\b([^>]*)/>`)
	cellRe       = regexp.MustCompile(`(?s)<c\b([^>]*)>(.*?)</c>|<c\b([^>]*)/>`)
	isTextRe     = regexp.MustCompile(`(?s)<is>(.*?)</is>`)
	tRunRe       = regexp.MustCompile(`(?s)<t\b[^>]*>(.*?)</t>`)
	vValueRe     = regexp.MustCompile(`(?s)<v>(.*?)</v>`)
	fFormulaRe   = regexp.MustCompile(`(?s)<f\b[^>]*>(.*?)</f>`)
)

// Parse decomposes one (already token-reassembled) worksheet part.
// sharedStrings is indexed by the numeric shared-string id; pass nil if
// the package has no shared-strings part.
func Parse(sheetXML []byte, sharedStrings []SharedString) (*Parsed, error) {
	p := &Parsed{}

	stripped := dimensionRe.ReplaceAll(sheetXML, nil)

	loc := sheetDataRe.FindSubmatchIndex(stripped)
	if loc == nil {
		return nil, xl.Errorf(xl.KindInvalidXLSX, "worksheet part has no <sheetData>")
	}
	p.Preamble = stripped[:loc[0]]

	var inner []byte
	if loc[2] >= 0 {
		inner = stripped[loc[2]:loc[3]]
	}

	post := stripped[loc[1]:]
	if m := drawingRe.FindSubmatch(post); m != nil {
		p.ExistingDrawingRelID = string(m[1])
	}
	post = drawingRe.ReplaceAll(post, nil)
	post = mergeCellsRe.ReplaceAll(post, nil)
	post = hyperlinksRe.ReplaceAll(post, nil)
	p.Postamble = post

	rowMatches := rowRe.FindAllSubmatchIndex(inner, -1)
	for _, m := range rowMatches {
		row, err := parseRow(inner, m, sharedStrings)
		if err != nil {
			return nil, err
		}
		if row.HasTemplate {
			p.HasAnyTemplate = true
		}
		p.Rows = append(p.Rows, row)
	}

	spans, err := detectSpans(p.Rows)
	if err != nil {
		return nil, err
	}
	p.Spans = spans
	return p, nil
}

func parseRow(doc []byte, m []int, sharedStrings []SharedString) (*xl.Row, error) {
	var attrStr string
	var body []byte
	if m[2] >= 0 {
		attrStr = string(doc[m[2]:m[3]])
		body = doc[m[4]:m[5]]
	} else {
		attrStr = string(doc[m[6]:m[7]])
	}
	attrs := xl.ParseAttrs(attrStr)
	rNum := 0
	if v, ok := attrs.Get("r"); ok {
		rNum, _ = strconv.Atoi(v)
	}
	row := &xl.Row{OriginalR: rNum, Number: rNum, Extra: attrs.Without("r")}

	cellMatches := cellRe.FindAllSubmatchIndex(body, -1)
	for _, cm := range cellMatches {
		cell, err := parseCell(body, cm, sharedStrings)
		if err != nil {
			return nil, err
		}
		if cell.HasTemplate {
			row.HasTemplate = true
		}
		row.Cells = append(row.Cells, cell)
	}
	return row, nil
}

func parseCell(doc []byte, m []int, sharedStrings []SharedString) (*xl.Cell, error) {
	var attrStr string
	var body []byte
	selfClosing := m[2] < 0
	if !selfClosing {
		attrStr = string(doc[m[2]:m[3]])
		body = doc[m[4]:m[5]]
	} else {
		attrStr = string(doc[m[6]:m[7]])
	}
	attrs := xl.ParseAttrs(attrStr)
	ref, _ := attrs.Get("r")
	col := 0
	if ref != "" {
		if c, _, err := xl.ParseCellRef(ref); err == nil {
			col = c
		}
	}
	styleIdx, _ := attrs.Get("s")
	typeAttr, _ := attrs.Get("t")
	extra := attrs.Without("r", "s", "t")

	cell := &xl.Cell{Col: col, StyleIndex: styleIdx, Extra: extra}

	switch typeAttr {
	case "inlineStr":
		text := ""
		if m := isTextRe.FindSubmatch(body); m != nil {
			text = concatRuns(m[1])
		}
		cell.Type = xl.CellTypeInlineString
		cell.Text = text
		cell.HasTemplate = xl.HasExpression(text)
	case "s":
		idx := 0
		if m := vValueRe.FindSubmatch(body); m != nil {
			idx, _ = strconv.Atoi(strings.TrimSpace(string(m[1])))
		}
		if idx >= 0 && idx < len(sharedStrings) && sharedStrings[idx].HasTemplate {
			cell.Type = xl.CellTypeInlineString
			cell.Text = sharedStrings[idx].Text
			cell.HasTemplate = true
		} else {
			cell.Type = xl.CellTypeSharedString
			cell.Text = strconv.Itoa(idx)
		}
	case "b":
		cell.Type = xl.CellTypeBool
		if m := vValueRe.FindSubmatch(body); m != nil {
			cell.Text = strings.TrimSpace(string(m[1]))
		}
	case "str":
		cell.Type = xl.CellTypeFormula
		cell.TAttr = "str"
		if m := fFormulaRe.FindSubmatch(body); m != nil {
			cell.Text = xl.DecodeXMLText(string(m[1]))
		}
		if m := vValueRe.FindSubmatch(body); m != nil {
			cell.CachedV = xl.DecodeXMLText(string(m[1]))
		}
	case "e":
		cell.Type = xl.CellTypeError
		if m := vValueRe.FindSubmatch(body); m != nil {
			cell.Text = strings.TrimSpace(string(m[1]))
		}
	default:
		if m := fFormulaRe.FindSubmatch(body); m != nil {
			cell.Type = xl.CellTypeFormula
			cell.Text = xl.DecodeXMLText(string(m[1]))
			if vm := vValueRe.FindSubmatch(body); vm != nil {
				cell.CachedV = xl.DecodeXMLText(string(vm[1]))
			}
		} else if m := vValueRe.FindSubmatch(body); m != nil {
			cell.Type = xl.CellTypeNumber
			cell.Text = strings.TrimSpace(string(m[1]))
		} else {
			cell.Type = xl.CellTypeUnset
		}
	}
	return cell, nil
}

func concatRuns(isBody []byte) string {
	var sb strings.Builder
	for _, m := range tRunRe.FindAllSubmatch(isBody, -1) {
		sb.Write(m[1])
	}
	return xl.DecodeXMLText(sb.String())
}

// detectSpans walks every row's concatenated cell text in column order and
// matches `{{#name…}}`/`{{/name}}` markers on a single stack shared across
// the whole sheet. Opens and closes landing in the same row are left
// alone — the engine renders
// them as an ordinary nested block during per-cell evaluation; opens and
// closes in different rows become a Span the rewriter must expand/prune
// before per-cell rendering runs at all.
func detectSpans(rows []*xl.Row) ([]Span, error) {
	type open struct {
		name string
		args string
		row  int
	}
	var stack []open
	var spans []Span

	for ri, row := range rows {
		var text strings.Builder
		for _, c := range row.Cells {
			if c.Type == xl.CellTypeInlineString {
				text.WriteString(c.Text)
				text.WriteByte(' ')
			}
		}
		spanList, _ := xl.ScanExpressions(text.String())
		for _, sp := range spanList {
			if sp.Kind != xl.SpanExpr {
				continue
			}
			inner := strings.TrimSpace(sp.Inner)
			switch {
			case strings.HasPrefix(inner, "#each") || strings.HasPrefix(inner, "#if") || strings.HasPrefix(inner, "#unless") || strings.HasPrefix(inner, "#with"):
				hashIdx := strings.IndexByte(inner, '#')
				rest := inner[hashIdx+1:]
				name, args := splitFirstWord(rest)
				stack = append(stack, open{name: name, args: args, row: ri})
			case strings.HasPrefix(inner, "/"):
				name := strings.TrimSpace(inner[1:])
				if len(stack) == 0 {
					return nil, xl.Errorf(xl.KindTemplateParse, "unmatched {{/%s}} with no open block", name)
				}
				top := stack[len(stack)-1]
				if top.name != name {
					return nil, xl.Errorf(xl.KindTemplateParse, "mismatched row-span block: opened %q, closed %q", top.name, name)
				}
				stack = stack[:len(stack)-1]
				if top.row != ri {
					spans = append(spans, Span{Name: top.name, Args: top.args, OpenRow: top.row, CloseRow: ri})
				}
			}
		}
	}
	if len(stack) != 0 {
		return nil, xl.Errorf(xl.KindTemplateParse, "unterminated block helper %q: row span never closed", stack[len(stack)-1].name)
	}
	return spans, nil
}

func splitFirstWord(s string) (first, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}
