package render

import (
	"archive/zip"
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adnsv/go-xltmpl/xl"
)

const tinyPNGBase64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+A8AAQUBAScY42YAAAAASUVORK5CYII="

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/xl/workbook.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"/>
<Override PartName="/xl/worksheets/sheet1.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"/>
</Types>`

const workbookXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<sheets><sheet name="Sheet1" sheetId="1" r:id="rId1"/></sheets>
</workbook>`

const workbookRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet1.xml"/>
</Relationships>`

// buildPackage assembles a minimal one-sheet XLSX package around the given
// worksheet body (the bytes between <sheetData> and </sheetData>).
func buildPackage(t *testing.T, sheetDataInner string) []byte {
	t.Helper()
	sheetXML := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"` +
		` xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">` +
		`<sheetData>` + sheetDataInner + `</sheetData>` +
		`</worksheet>`
	return zipOf(t, map[string]string{
		"[Content_Types].xml":           contentTypesXML,
		"xl/workbook.xml":               workbookXML,
		"xl/_rels/workbook.xml.rels":    workbookRelsXML,
		"xl/worksheets/sheet1.xml":      sheetXML,
	})
}

func zipOf(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for path, content := range parts {
		w, err := zw.Create(path)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func cellText(t *testing.T, sheetXML []byte, ref string) string {
	t.Helper()
	re := regexp.MustCompile(`(?s)<c r="` + ref + `"[^>]*>.*?</c>`)
	m := re.Find(sheetXML)
	require.NotNil(t, m, "cell %s not found in %s", ref, sheetXML)
	tre := regexp.MustCompile(`(?s)<t[^>]*>(.*?)</t>`)
	tm := tre.FindSubmatch(m)
	if tm == nil {
		return ""
	}
	return string(tm[1])
}

func worksheetPart(t *testing.T, out []byte) []byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(out), int64(len(out)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name == "xl/worksheets/sheet1.xml" {
			rc, err := f.Open()
			require.NoError(t, err)
			defer rc.Close()
			var b bytes.Buffer
			_, err = b.ReadFrom(rc)
			require.NoError(t, err)
			return b.Bytes()
		}
	}
	t.Fatal("sheet1.xml not found in output package")
	return nil
}

// Scenario 1: basic substitution.
func TestRenderBasicSubstitution(t *testing.T) {
	tpl := buildPackage(t, `<row r="1"><c r="A1" t="inlineStr"><is><t xml:space="preserve">Hello {{name}}</t></is></c></row>`)
	result, err := Render(tpl, []byte(`{"name":"World"}`), Options{})
	require.NoError(t, err)
	sheet := worksheetPart(t, result.Bytes)
	require.Equal(t, "Hello World", cellText(t, sheet, "A1"))
	require.Contains(t, string(sheet), `t="inlineStr"`)
}

// Scenario 2: a token fragmented across multiple <t> runs
// renders identically to an unsplit token.
func TestRenderFragmentedToken(t *testing.T) {
	tpl := buildPackage(t, `<row r="1"><c r="A1" t="inlineStr"><is><r><t>{{na</t></r><r><t>me}}</t></r></is></c></row>`)
	result, err := Render(tpl, []byte(`{"name":"X"}`), Options{})
	require.NoError(t, err)
	sheet := worksheetPart(t, result.Bytes)
	require.Equal(t, "X", cellText(t, sheet, "A1"))
}

// Scenario 3: a row-level #each loop duplicates the row
// carrying the opening marker once per item; the row carrying only the
// matching closing marker is rendered once, as the span's terminator, not
// once per item.
func TestRenderRowLoop(t *testing.T) {
	inner := `<row r="2">` +
		`<c r="A2" t="inlineStr"><is><t xml:space="preserve">{{#each items}}</t></is></c>` +
		`<c r="B2" t="inlineStr"><is><t xml:space="preserve">{{name}}</t></is></c>` +
		`</row>` +
		`<row r="3"><c r="A3" t="inlineStr"><is><t xml:space="preserve">{{/each}}</t></is></c></row>`
	tpl := buildPackage(t, inner)
	data := `{"items":[{"name":"a"},{"name":"b"},{"name":"c"}]}`
	result, err := Render(tpl, []byte(data), Options{})
	require.NoError(t, err)
	sheet := worksheetPart(t, result.Bytes)
	s := string(sheet)
	require.Contains(t, s, `<row r="2"`)
	require.Contains(t, s, `<row r="3"`)
	require.Contains(t, s, `<row r="4"`)
	require.Equal(t, "a", cellText(t, sheet, "B2"))
	require.Equal(t, "b", cellText(t, sheet, "B3"))
	require.Equal(t, "c", cellText(t, sheet, "B4"))
	// The closing-marker row survives once, past the three data rows, but
	// contributes nothing to the bounding box once its marker is stripped.
	require.Contains(t, s, `<row r="5"`)
	require.Contains(t, s, `<dimension ref="B2:B4"/>`)
}

// A multi-row #if span must render its body once when true and drop it
// (down to just the terminator row) when false, without ever re-evaluating
// the same span recursively.
func TestRenderRowIfSpanMultiRow(t *testing.T) {
	inner := `<row r="1"><c r="A1" t="inlineStr"><is><t xml:space="preserve">{{#if show}}</t></is></c></row>` +
		`<row r="2"><c r="A2" t="inlineStr"><is><t xml:space="preserve">yes</t></is></c></row>` +
		`<row r="3"><c r="A3" t="inlineStr"><is><t xml:space="preserve">{{/if}}</t></is></c></row>`
	tpl := buildPackage(t, inner)

	result, err := Render(tpl, []byte(`{"show":true}`), Options{})
	require.NoError(t, err)
	sheet := worksheetPart(t, result.Bytes)
	require.Equal(t, "yes", cellText(t, sheet, "A2"))

	result, err = Render(tpl, []byte(`{"show":false}`), Options{})
	require.NoError(t, err)
	sheet = worksheetPart(t, result.Bytes)
	s := string(sheet)
	require.NotContains(t, s, ">yes</t>")
	require.Contains(t, s, `<row r="1"`)
	require.NotContains(t, s, `<row r="2"`)
}

// Scenario 4: removeRow deletes the flagged row and renumbers
// the survivors contiguously.
func TestRenderRowRemoval(t *testing.T) {
	inner := `<row r="1"><c r="A1" t="inlineStr"><is><t xml:space="preserve">keep1</t></is></c></row>` +
		`<row r="2"><c r="A2" t="inlineStr"><is><t xml:space="preserve">{{#if hide}}{{removeRow}}{{/if}}</t></is></c></row>` +
		`<row r="3"><c r="A3" t="inlineStr"><is><t xml:space="preserve">keep2</t></is></c></row>`
	tpl := buildPackage(t, inner)
	result, err := Render(tpl, []byte(`{"hide":true}`), Options{})
	require.NoError(t, err)
	sheet := worksheetPart(t, result.Bytes)
	s := string(sheet)
	require.Contains(t, s, `<row r="1"`)
	require.Contains(t, s, `<row r="2"`)
	require.NotContains(t, s, `<row r="3"`)
	require.Equal(t, "keep1", cellText(t, sheet, "A1"))
	require.Equal(t, "keep2", cellText(t, sheet, "A2"))
}

// Scenario 5: mergeCell with dynamic column computation;
// invoking the same merge twice must not duplicate the entry.
func TestRenderMergeDynamicColumn(t *testing.T) {
	inner := `<row r="5">` +
		`<c r="B5" t="inlineStr"><is><t xml:space="preserve">{{mergeCell (concat (_c) (_r) ":" (toColumnName (_c) 3) (_r))}}{{mergeCell (concat (_c) (_r) ":" (toColumnName (_c) 3) (_r))}}</t></is></c>` +
		`</row>`
	tpl := buildPackage(t, inner)
	result, err := Render(tpl, []byte(`{}`), Options{})
	require.NoError(t, err)
	sheet := worksheetPart(t, result.Bytes)
	s := string(sheet)
	require.Contains(t, s, `<row r="5"`, "a lone row keeps its template position")
	require.Equal(t, 1, strings.Count(s, `<mergeCell ref="B5:E5"/>`))
}

// Scenario 6: image insertion creates a drawing part and a media part.
func TestRenderImageInsertion(t *testing.T) {
	inner := `<row r="3"><c r="C3" t="inlineStr"><is><t xml:space="preserve">{{img pic 100 0}}</t></is></c></row>`
	tpl := buildPackage(t, inner)
	data := `{"pic":"` + tinyPNGBase64 + `"}`
	result, err := Render(tpl, []byte(data), Options{Deterministic: true})
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(result.Bytes), int64(len(result.Bytes)))
	require.NoError(t, err)
	var foundDrawing, foundMedia bool
	for _, f := range zr.File {
		if regexp.MustCompile(`^xl/drawings/drawing\d+\.xml$`).MatchString(f.Name) {
			foundDrawing = true
		}
		if regexp.MustCompile(`^xl/media/image\d+\.png$`).MatchString(f.Name) {
			foundMedia = true
		}
	}
	require.True(t, foundDrawing, "expected a drawing part to be created")
	require.True(t, foundMedia, "expected a media part to be created")
}

// A template with no {{ tokens must leave the worksheet part byte-for-byte
// as it shipped.
func TestRenderNoTemplateTokensPreservesContent(t *testing.T) {
	inner := `<row r="1"><c r="A1" t="inlineStr"><is><t xml:space="preserve">plain text</t></is></c></row>`
	tpl := buildPackage(t, inner)
	result, err := Render(tpl, []byte(`{"anything":1}`), Options{})
	require.NoError(t, err)
	sheet := worksheetPart(t, result.Bytes)
	require.Equal(t, mustPart(t, tpl, "xl/worksheets/sheet1.xml"), sheet)
	require.Equal(t, "plain text", cellText(t, sheet, "A1"))
}

func TestRenderInvalidZip(t *testing.T) {
	_, err := Render([]byte("not a zip"), []byte(`{}`), Options{})
	require.Error(t, err)
	var rerr *xl.RenderError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, xl.KindInvalidZip, rerr.Kind)
}

func TestRenderInvalidDataJSON(t *testing.T) {
	tpl := buildPackage(t, `<row r="1"><c r="A1" t="inlineStr"><is><t xml:space="preserve">{{x}}</t></is></c></row>`)
	_, err := Render(tpl, []byte(`not json`), Options{})
	require.Error(t, err)
	var rerr *xl.RenderError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, xl.KindDataParse, rerr.Kind)
}

func TestRenderHideAllSheetsLeavesOneVisible(t *testing.T) {
	inner := `<row r="1"><c r="A1" t="inlineStr"><is><t xml:space="preserve">{{hideCurrentSheet}}</t></is></c></row>`
	tpl := buildPackage(t, inner)
	result, err := Render(tpl, []byte(`{}`), Options{})
	require.NoError(t, err)
	wb := string(mustPart(t, result.Bytes, "xl/workbook.xml"))
	require.NotContains(t, wb, `state="hidden"`, "hiding the only sheet must be dropped with a warning")
	require.NotEmpty(t, result.Warnings)
}

func mustPart(t *testing.T, out []byte, name string) []byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(out), int64(len(out)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			require.NoError(t, err)
			defer rc.Close()
			var b bytes.Buffer
			_, err = b.ReadFrom(rc)
			require.NoError(t, err)
			return b.Bytes()
		}
	}
	t.Fatalf("part %s not found", name)
	return nil
}
