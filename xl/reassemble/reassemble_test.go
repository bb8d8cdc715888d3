package reassemble

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

var tTextRe = regexp.MustCompile(`(?s)<t[^>]*>(.*?)</t>`)

func concatText(t *testing.T, doc []byte) string {
	t.Helper()
	var s string
	for _, m := range tTextRe.FindAllSubmatch(doc, -1) {
		s += string(m[1])
	}
	return s
}

func TestScopeUntouchedPassesThroughVerbatim(t *testing.T) {
	in := []byte(`<is><r><rPr><b/></rPr><t>plain</t></r></is>`)
	r := Scope(in)
	require.False(t, r.Changed)
	require.Equal(t, in, r.Bytes)
}

func TestScopeMergesTokenSplitAcrossTwoRuns(t *testing.T) {
	in := []byte(`<is><r><t>{{na</t></r><r><t xml:space="preserve">me}}</t></r></is>`)
	r := Scope(in)
	require.True(t, r.Changed)
	require.Equal(t, "{{name}}", concatText(t, r.Bytes))
}

func TestScopeMergesTokenSplitAcrossThreeRuns(t *testing.T) {
	in := []byte(`<is><r><t>{{</t></r><r><rPr><i/></rPr><t>na</t></r><r><t>me}}</t></r></is>`)
	r := Scope(in)
	require.True(t, r.Changed)
	require.Equal(t, "{{name}}", concatText(t, r.Bytes))
}

func TestScopePreservesTextOutsideExpression(t *testing.T) {
	in := []byte(`<is><r><t>Total: {{su</t></r><r><t>m}} units</t></r></is>`)
	r := Scope(in)
	require.Equal(t, "Total: {{sum}} units", concatText(t, r.Bytes))
}

func TestScopeElidesComment(t *testing.T) {
	in := []byte(`<is><r><t>a{{! no</t></r><r><t>te }}b</t></r></is>`)
	r := Scope(in)
	require.Equal(t, "ab", concatText(t, r.Bytes))
}

func TestScopeUnterminatedKeptVerbatimWithWarning(t *testing.T) {
	in := []byte(`<is><r><t>dangling {{oops</t></r></is>`)
	r := Scope(in)
	require.NotEmpty(t, r.Warnings)
	require.Equal(t, "dangling {{oops", concatText(t, r.Bytes))
}

func TestDocumentOnlyTouchesScopes(t *testing.T) {
	in := []byte(`<sheetData><row r="1"><c r="A1"><v>42</v></c>` +
		`<c r="B1" t="inlineStr"><is><r><t>{{x</t></r><r><t>}}</t></r></is></c></row></sheetData>`)
	r := Document(in)
	require.True(t, r.Changed)
	require.Contains(t, string(r.Bytes), `<v>42</v>`)
	require.Contains(t, string(r.Bytes), `{{x}}`)
}

func TestDocumentNoScopesUnchanged(t *testing.T) {
	in := []byte(`<sheetData><row r="1"><c r="A1"><v>1</v></c></row></sheetData>`)
	r := Document(in)
	require.False(t, r.Changed)
	require.Equal(t, in, r.Bytes)
}
