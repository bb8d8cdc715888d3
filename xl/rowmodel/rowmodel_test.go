package rowmodel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adnsv/go-xltmpl/xl"
)

func sheetXML(inner string) []byte {
	return []byte(`<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">` +
		`<dimension ref="A1:B3"/><sheetData>` + inner + `</sheetData><pageMargins left="0.7"/></worksheet>`)
}

func TestParseRowsAndCells(t *testing.T) {
	p, err := Parse(sheetXML(
		`<row r="1" ht="15"><c r="A1" s="2" t="inlineStr"><is><t>Hello {{name}}</t></is></c>`+
			`<c r="B1"><v>42</v></c></row>`), nil)
	require.NoError(t, err)
	require.Len(t, p.Rows, 1)
	require.True(t, p.HasAnyTemplate)

	row := p.Rows[0]
	require.Equal(t, 1, row.OriginalR)
	ht, ok := row.Extra.Get("ht")
	require.True(t, ok)
	require.Equal(t, "15", ht)

	require.Len(t, row.Cells, 2)
	a := row.Cells[0]
	require.Equal(t, 1, a.Col)
	require.Equal(t, xl.CellTypeInlineString, a.Type)
	require.Equal(t, "Hello {{name}}", a.Text)
	require.Equal(t, "2", a.StyleIndex)
	require.True(t, a.HasTemplate)

	b := row.Cells[1]
	require.Equal(t, xl.CellTypeNumber, b.Type)
	require.Equal(t, "42", b.Text)
}

func TestParseStripsDimensionAndDrawing(t *testing.T) {
	data := []byte(`<worksheet><dimension ref="A1"/><sheetData/>` +
		`<mergeCells count="1"><mergeCell ref="A1:B1"/></mergeCells>` +
		`<drawing r:id="rId7"/></worksheet>`)
	p, err := Parse(data, nil)
	require.NoError(t, err)
	require.Equal(t, "rId7", p.ExistingDrawingRelID)
	require.NotContains(t, string(p.Preamble), "<dimension")
	require.NotContains(t, string(p.Postamble), "<mergeCells")
	require.NotContains(t, string(p.Postamble), "<drawing")
}

func TestParseSharedStringPromotion(t *testing.T) {
	ss := []SharedString{
		{Text: "plain"},
		{Text: "Hi {{who}}", HasTemplate: true},
	}
	p, err := Parse(sheetXML(
		`<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c></row>`), ss)
	require.NoError(t, err)
	a, b := p.Rows[0].Cells[0], p.Rows[0].Cells[1]
	require.Equal(t, xl.CellTypeSharedString, a.Type)
	require.Equal(t, "0", a.Text)
	require.Equal(t, xl.CellTypeInlineString, b.Type)
	require.Equal(t, "Hi {{who}}", b.Text)
	require.True(t, b.HasTemplate)
}

func TestParseFormulaCellKeepsCachedValue(t *testing.T) {
	p, err := Parse(sheetXML(
		`<row r="1"><c r="A1" t="str"><f>CONCATENATE(B1,"x")</f><v>yx</v></c></row>`), nil)
	require.NoError(t, err)
	c := p.Rows[0].Cells[0]
	require.Equal(t, xl.CellTypeFormula, c.Type)
	require.Equal(t, "str", c.TAttr)
	require.Equal(t, `CONCATENATE(B1,"x")`, c.Text)
	require.Equal(t, "yx", c.CachedV)
}

func TestDetectSpansMultiRow(t *testing.T) {
	p, err := Parse(sheetXML(
		`<row r="2"><c r="A2" t="inlineStr"><is><t>{{#each items}}</t></is></c></row>`+
			`<row r="3"><c r="A3" t="inlineStr"><is><t>{{/each}}</t></is></c></row>`), nil)
	require.NoError(t, err)
	require.Len(t, p.Spans, 1)
	require.Equal(t, "each", p.Spans[0].Name)
	require.Equal(t, "items", p.Spans[0].Args)
	require.Equal(t, 0, p.Spans[0].OpenRow)
	require.Equal(t, 1, p.Spans[0].CloseRow)
}

func TestDetectSpansSameRowInlined(t *testing.T) {
	p, err := Parse(sheetXML(
		`<row r="1"><c r="A1" t="inlineStr"><is><t>{{#if ok}}yes{{/if}}</t></is></c></row>`), nil)
	require.NoError(t, err)
	require.Empty(t, p.Spans, "open and close in the same row must stay inline")
}

func TestDetectSpansMismatchFails(t *testing.T) {
	_, err := Parse(sheetXML(
		`<row r="1"><c r="A1" t="inlineStr"><is><t>{{#each items}}</t></is></c></row>`+
			`<row r="2"><c r="A2" t="inlineStr"><is><t>{{/if}}</t></is></c></row>`), nil)
	require.Error(t, err)
	var rerr *xl.RenderError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, xl.KindTemplateParse, rerr.Kind)
}

func TestDetectSpansUnterminatedFails(t *testing.T) {
	_, err := Parse(sheetXML(
		`<row r="1"><c r="A1" t="inlineStr"><is><t>{{#each items}}</t></is></c></row>`), nil)
	require.Error(t, err)
}
