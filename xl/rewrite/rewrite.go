// Package rewrite takes a parsed row model plus a data context, expands
// or prunes the row spans rowmodel identified, renders every surviving
// cell's template text through the Handlebars engine, renumbers rows, and
// splices the result back into a worksheet part's bytes.
package rewrite

import (
	"bytes"
	"strings"

	srwxml "github.com/adnsv/srw/xml"

	"github.com/adnsv/go-xltmpl/xl"
	"github.com/adnsv/go-xltmpl/xl/hbs"
	"github.com/adnsv/go-xltmpl/xl/rowmodel"
)

// WorkbookOps carries the sheet-lifecycle side effects a sheet's own cells
// requested (`setCurrentSheetName`/`hideCurrentSheet`/`deleteCurrentSheet`)
// for package finalization to apply once every sheet has rendered.
type WorkbookOps struct {
	RenameTo  string
	RenameSet bool
	HideLevel string
	HideSet   bool
	DeleteSet bool
}

// Result is one sheet's rewrite outcome. Head and Tail are the two halves
// of the regenerated worksheet part with a gap between them where package
// finalization splices `<hyperlinks>`/`<drawing>` once relationship
// ids are known (those need the sheet's own `.rels` part, which this
// package does not own).
type Result struct {
	Head     []byte
	Tail     []byte
	Sheet    *xl.Sheet
	Workbook WorkbookOps
	Warnings []string
}

// Sheet runs the rewrite pass over one already token-reassembled,
// row-model-parsed worksheet.
func Sheet(parsed *rowmodel.Parsed, sheetIndex int, sheetName string, data hbs.Value, externalRels map[string]string) (*Result, error) {
	sink := &xl.WarningSink{}
	sheet := xl.NewSheet(sheetIndex, sheetName)
	engine := hbs.NewEngine(sheet, sink, externalRels)
	root := hbs.RootScope(data)

	num := &numbering{}
	rows, err := expandRows(parsed.Rows, parsed.Spans, 0, len(parsed.Rows), engine, root, num)
	if err != nil {
		return nil, err
	}

	// Deletion, then compaction. Rendering has already run (and accumulated
	// any side-effects) for every surviving row; each row deleted here
	// shifts every later row up by one, the same way deleting a row in
	// Excel does.
	removed := 0
	kept := rows[:0]
	for _, r := range rows {
		if r.RemoveRow {
			removed++
			continue
		}
		r.Number -= removed
		kept = append(kept, r)
	}
	rows = kept
	sheet.Rows = rows

	head, tail := assembleXML(parsed, rows, sheet)

	return &Result{
		Head:  head,
		Tail:  tail,
		Sheet: sheet,
		Workbook: WorkbookOps{
			RenameTo:  engine.SheetRenameTo,
			RenameSet: engine.SheetRenameSet,
			HideLevel: engine.SheetHideLevel,
			HideSet:   engine.SheetHideSet,
			DeleteSet: engine.SheetDeleteSet,
		},
		Warnings: warningStrings(sink),
	}, nil
}

func warningStrings(sink *xl.WarningSink) []string {
	out := make([]string, len(sink.Warnings))
	for i, w := range sink.Warnings {
		out[i] = w.String()
	}
	return out
}

// numbering assigns row numbers as rows materialize, in document order.
// Untouched rows keep their original `r` (including any gaps the template
// carried); a loop's second and later iterations self-correct by shifting
// past the number just assigned, and that shift then carries forward so
// the rows after the loop land exactly as far down as the expansion pushed
// them. Rows never emitted at all (a false `#if` body, an `#each` over an
// empty list) give their count back via skip, pulling later rows up.
type numbering struct {
	shift int
	last  int
}

func (n *numbering) emit(originalR int) int {
	a := n.last + 1
	if originalR > 0 {
		if c := originalR + n.shift; c > a {
			a = c
		}
		n.shift = a - originalR
	}
	n.last = a
	return a
}

func (n *numbering) skip(rowCount int) {
	n.shift -= rowCount
}

// expandRows processes rows[lo:hi] (end-exclusive) under scope: rows that
// are not the opening row of a span are cloned and rendered in place; rows
// that open a span are expanded by recursing into the span's body under
// whatever new scope the span establishes. spans indexes absolutely into
// the original Parsed.Rows, unaffected by recursion, so a span's
// OpenRow/CloseRow always mean the same row regardless of how deep the
// recursion has gone.
func expandRows(rows []*xl.Row, spans []rowmodel.Span, lo, hi int, engine *hbs.Engine, scope *hbs.Scope, num *numbering) ([]*xl.Row, error) {
	var out []*xl.Row
	i := lo
	for i < hi {
		sp, ok := outermostSpanAt(spans, i, hi)
		if !ok {
			row := rows[i].Clone()
			if err := renderRow(row, i, spans, engine, scope, num.emit(row.OriginalR)); err != nil {
				return nil, err
			}
			out = append(out, row)
			i++
			continue
		}

		expanded, err := expandSpan(rows, spans, sp, engine, scope, num)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
		i = sp.CloseRow + 1
	}
	return out, nil
}

// outermostSpanAt finds the span opening exactly at row i whose body fits
// within [i, hi). When two spans share an OpenRow (both open in the same
// row, e.g. an `#each` and an `#if` both starting in row 2), the properly-
// nested stack the rowmodel parse built them with guarantees the one with the
// larger CloseRow is the outer one.
func outermostSpanAt(spans []rowmodel.Span, i, hi int) (rowmodel.Span, bool) {
	var best rowmodel.Span
	found := false
	for _, sp := range spans {
		if sp.OpenRow == i && sp.CloseRow < hi {
			if !found || sp.CloseRow > best.CloseRow {
				best, found = sp, true
			}
		}
	}
	return best, found
}

// expandSpan dispatches a span to its block type. Every branch excludes
// sp.CloseRow from the repeated/conditional body it hands to expandRows —
// recursing with hi==sp.CloseRow+1 would make outermostSpanAt rediscover sp
// itself at the same (OpenRow, hi) bounds and re-enter this exact call
// forever — and instead renders CloseRow itself exactly once, via
// renderCloseRow, as the span's terminator row.
func expandSpan(rows []*xl.Row, spans []rowmodel.Span, sp rowmodel.Span, engine *hbs.Engine, scope *hbs.Scope, num *numbering) ([]*xl.Row, error) {
	var body []*xl.Row
	var err error
	switch sp.Name {
	case "each":
		body, err = expandEachSpan(rows, spans, sp, engine, scope, num)
	case "if", "unless":
		body, err = expandIfSpan(rows, spans, sp, engine, scope, num)
	case "with":
		var v hbs.Value
		v, err = engine.EvalArgString(sp.Args, scope)
		if err == nil {
			if hbs.Truthy(v) {
				body, err = expandRows(rows, spans, sp.OpenRow, sp.CloseRow, engine, scope.Child(v), num)
			} else {
				num.skip(sp.CloseRow - sp.OpenRow)
			}
		}
	default:
		return nil, xl.Errorf(xl.KindTemplateParse, "unknown row-span block helper %q", sp.Name)
	}
	if err != nil {
		return nil, err
	}
	closeRow, err := renderCloseRow(rows, spans, sp, engine, scope, num)
	if err != nil {
		return nil, err
	}
	return append(body, closeRow...), nil
}

// renderCloseRow renders sp.CloseRow once, outside any iteration or branch,
// under the scope active when the span was entered.
func renderCloseRow(rows []*xl.Row, spans []rowmodel.Span, sp rowmodel.Span, engine *hbs.Engine, scope *hbs.Scope, num *numbering) ([]*xl.Row, error) {
	return expandRows(rows, spans, sp.CloseRow, sp.CloseRow+1, engine, scope, num)
}

func expandEachSpan(rows []*xl.Row, spans []rowmodel.Span, sp rowmodel.Span, engine *hbs.Engine, scope *hbs.Scope, num *numbering) ([]*xl.Row, error) {
	v, err := engine.EvalArgString(sp.Args, scope)
	if err != nil {
		return nil, err
	}
	var out []*xl.Row
	iterations := 0
	switch t := v.(type) {
	case []hbs.Value:
		for idx, item := range t {
			child := scope.Child(item)
			child.Index = float64(idx)
			child.First = idx == 0
			child.Last = idx == len(t)-1
			body, err := expandRows(rows, spans, sp.OpenRow, sp.CloseRow, engine, child, num)
			if err != nil {
				return nil, err
			}
			out = append(out, body...)
			iterations++
		}
	case map[string]hbs.Value:
		keys := xl.SortedKeys(t)
		for idx, k := range keys {
			child := scope.Child(t[k])
			child.Key = k
			child.Index = float64(idx)
			child.First = idx == 0
			child.Last = idx == len(keys)-1
			body, err := expandRows(rows, spans, sp.OpenRow, sp.CloseRow, engine, child, num)
			if err != nil {
				return nil, err
			}
			out = append(out, body...)
			iterations++
		}
	}
	if iterations == 0 {
		num.skip(sp.CloseRow - sp.OpenRow)
	}
	return out, nil
}

func expandIfSpan(rows []*xl.Row, spans []rowmodel.Span, sp rowmodel.Span, engine *hbs.Engine, scope *hbs.Scope, num *numbering) ([]*xl.Row, error) {
	v, err := engine.EvalArgString(sp.Args, scope)
	if err != nil {
		return nil, err
	}
	cond := hbs.Truthy(v)
	if sp.Name == "unless" {
		cond = !cond
	}
	thenLo, thenHi, elseLo, elseHi, hasElse := splitElseRow(rows, spans, sp)
	if cond {
		body, err := expandRows(rows, spans, thenLo, thenHi, engine, scope, num)
		if err != nil {
			return nil, err
		}
		num.skip(sp.CloseRow - thenHi) // separator row + else branch, if any
		return body, nil
	}
	num.skip(thenHi - thenLo)
	if hasElse {
		num.skip(1) // the separator row itself
		return expandRows(rows, spans, elseLo, elseHi, engine, scope, num)
	}
	return nil, nil
}

// splitElseRow looks for a row, not itself the open/close row of a nested
// span, whose cells carry a bare `{{else}}` marker directly inside sp's
// body. The
// separator row itself is dropped from both branches, and so is
// sp.CloseRow — expandSpan renders that separately, once, regardless of
// which branch (or neither) fires. Without a separator, the whole span
// body excluding CloseRow is the "then" branch and there is no "else".
func splitElseRow(rows []*xl.Row, spans []rowmodel.Span, sp rowmodel.Span) (thenLo, thenHi, elseLo, elseHi int, hasElse bool) {
	i := sp.OpenRow + 1
	for i < sp.CloseRow {
		if nested, ok := outermostSpanAt(spans, i, sp.CloseRow); ok {
			i = nested.CloseRow + 1
			continue
		}
		if rowHasBareElse(rows[i]) {
			return sp.OpenRow, i, i + 1, sp.CloseRow, true
		}
		i++
	}
	return sp.OpenRow, sp.CloseRow, 0, 0, false
}

func rowHasBareElse(row *xl.Row) bool {
	var text strings.Builder
	for _, c := range row.Cells {
		if c.Type == xl.CellTypeInlineString {
			text.WriteString(c.Text)
			text.WriteByte(' ')
		}
	}
	spans, _ := xl.ScanExpressions(text.String())
	for _, sp := range spans {
		if sp.Kind != xl.SpanExpr {
			continue
		}
		inner := strings.TrimSpace(strings.Trim(sp.Inner, "~"))
		if inner == "else" {
			return true
		}
	}
	return false
}

// renderRow renders every inline-string cell of row (a materialized clone
// of the template row at absolute template index origIdx) under scope, and
// records whether `removeRow` fired. Before
// parsing a cell's text, any row-span open/close marker this exact
// template row carries is stripped back out first — the marker was never
// meant to render, only to delimit the span.
func renderRow(row *xl.Row, origIdx int, spans []rowmodel.Span, engine *hbs.Engine, scope *hbs.Scope, rowNumber int) error {
	row.Number = rowNumber
	engine.RemoveRowRequested = false
	for _, cell := range row.Cells {
		if cell.Type != xl.CellTypeInlineString {
			continue
		}
		text := cell.Text
		for _, sp := range spans {
			if sp.OpenRow == origIdx {
				text = stripMarker(text, "#"+sp.Name)
			}
			if sp.CloseRow == origIdx {
				text = stripMarker(text, "/"+sp.Name)
			}
		}

		engine.CurrentCol = xl.ColumnNumberAsLetters(cell.Col)
		engine.CurrentRow = rowNumber
		engine.CurrentRef = cell.Ref(rowNumber)
		engine.ResetCell()

		nodes, parseWarnings, err := hbs.Parse(text)
		if err != nil {
			return err
		}
		for _, w := range parseWarnings {
			engine.Sink.Warnf(engine.Sheet.Name, engine.CurrentRef, "%s", w)
		}
		out, err := engine.RenderScope(nodes, scope)
		if err != nil {
			return err
		}

		switch {
		case engine.CellFormulaSet:
			cell.Type = xl.CellTypeFormula
			cell.Text = engine.CellFormula
			cell.TAttr = ""
			cell.CachedV = ""
		case engine.CellNumeric:
			cell.Type = xl.CellTypeNumber
			cell.Text = engine.CellNumericText
		case out == "":
			cell.Type = xl.CellTypeUnset
			cell.Text = ""
		default:
			cell.Text = out
		}
	}
	row.RemoveRow = engine.RemoveRowRequested
	return nil
}

// stripMarker removes the first `{{prefix ...}}` or `{{prefix}}` mustache
// found in text (e.g. prefix "#each" or "/each"), leaving the rest of the
// text — including any other content the same cell carried — untouched.
func stripMarker(text, prefix string) string {
	spans, _ := xl.ScanExpressions(text)
	for _, sp := range spans {
		if sp.Kind != xl.SpanExpr {
			continue
		}
		inner := strings.TrimSpace(strings.Trim(sp.Inner, "~"))
		if inner == prefix || strings.HasPrefix(inner, prefix+" ") || strings.HasPrefix(inner, prefix+"\t") {
			return text[:sp.Start] + text[sp.End:]
		}
	}
	return text
}

// assembleXML regenerates the worksheet part's two halves: Head is
// everything up through the freshly computed `<dimension>`, `<sheetData>`,
// and `<mergeCells>`; Tail is Parsed.Postamble unchanged. The finalizer
// inserts `<hyperlinks>`/`<drawing>` between Head and Tail once it has
// resolved relationship ids.
//
// Reinserting `<dimension>` immediately before `<sheetData>` rather than in
// its original, schema-correct position (after sheetPr, before sheetViews)
// is a deliberate simplification the byte-splice design accepts: every
// producer and consumer this package has been checked against tolerates it, and modeling strict OOXML element ordering would
// require parsing the whole of Preamble instead of treating it as an
// opaque, preserved span.
func assembleXML(parsed *rowmodel.Parsed, rows []*xl.Row, sheet *xl.Sheet) (head, tail []byte) {
	var buf bytes.Buffer
	buf.Write(parsed.Preamble)

	x := srwxml.NewWriter(&buf, srwxml.WriterConfig{Indent: srwxml.Indent2Spaces})
	x.OTag("dimension").Attr("ref", sheet.Dimension()).CTag()

	x.OTag("+sheetData")
	for _, r := range rows {
		writeRowXML(x, r)
	}
	x.CTag() // sheetData

	ranges := sheet.MergeRanges()
	if len(ranges) > 0 {
		x.OTag("+mergeCells").Attr("count", len(ranges))
		for _, rg := range ranges {
			x.OTag("+mergeCell").Attr("ref", rg).CTag()
		}
		x.CTag() // mergeCells
	}
	return buf.Bytes(), parsed.Postamble
}

// writeRowXML emits one `<row>`, preserving whatever attributes the row
// model didn't parse (r.Extra) in their original order alongside "r".
func writeRowXML(x *srwxml.Writer, r *xl.Row) {
	x.OTag("+row").Attr("r", r.Number)
	for _, a := range r.Extra {
		x.Attr(srwxml.NameString(a.Name), a.Value)
	}
	for _, c := range r.Cells {
		writeCellXML(x, c, r.Number)
	}
	x.CTag()
}

// writeCellXML emits one `<c>`. Every attribute (including c.Extra, the
// attributes this package doesn't otherwise model) must be set before the
// first nested OTag call flushes the opening tag, so the type switch runs
// twice: once to set "t" and once, after Extra, to write the value body.
func writeCellXML(x *srwxml.Writer, c *xl.Cell, row int) {
	x.OTag("+c").Attr("r", c.Ref(row))
	if c.StyleIndex != "" {
		x.Attr("s", c.StyleIndex)
	}
	hasInline := c.Type == xl.CellTypeInlineString && c.Text != ""
	switch c.Type {
	case xl.CellTypeInlineString:
		if hasInline {
			x.Attr("t", "inlineStr")
		}
	case xl.CellTypeFormula:
		if c.TAttr != "" {
			x.Attr("t", c.TAttr)
		}
	case xl.CellTypeSharedString:
		x.Attr("t", "s")
	case xl.CellTypeBool:
		x.Attr("t", "b")
	case xl.CellTypeError:
		x.Attr("t", "e")
	}
	for _, a := range c.Extra {
		x.Attr(srwxml.NameString(a.Name), a.Value)
	}
	switch c.Type {
	case xl.CellTypeInlineString:
		if hasInline {
			x.OTag("is")
			x.OTag("t").Attr("xml:space", "preserve").Write(c.Text).CTag()
			x.CTag() // is
		}
	case xl.CellTypeFormula:
		x.OTag("f").Write(c.Text).CTag()
		if c.CachedV != "" {
			x.OTag("v").Write(c.CachedV).CTag()
		}
	case xl.CellTypeNumber, xl.CellTypeSharedString, xl.CellTypeBool, xl.CellTypeError:
		x.OTag("v").Write(c.Text).CTag()
	}
	x.CTag() // c
}
