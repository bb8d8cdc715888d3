package hbs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adnsv/go-xltmpl/xl"
)

func newTestEngine() *Engine {
	return NewEngine(xl.NewSheet(0, "Sheet1"), &xl.WarningSink{}, nil)
}

func render(t *testing.T, e *Engine, text string, data Value) string {
	t.Helper()
	nodes, _, err := Parse(text)
	require.NoError(t, err)
	out, err := e.Render(nodes, data)
	require.NoError(t, err)
	return out
}

func TestRenderPlainPath(t *testing.T) {
	e := newTestEngine()
	out := render(t, e, "Hello {{name}}", map[string]Value{"name": "World"})
	require.Equal(t, "Hello World", out)
}

func TestRenderDottedPath(t *testing.T) {
	e := newTestEngine()
	data := map[string]Value{"user": map[string]Value{"name": "Ada"}}
	require.Equal(t, "Ada", render(t, e, "{{user.name}}", data))
}

func TestRenderIfElse(t *testing.T) {
	e := newTestEngine()
	require.Equal(t, "yes", render(t, e, "{{#if ok}}yes{{else}}no{{/if}}", map[string]Value{"ok": true}))
	require.Equal(t, "no", render(t, e, "{{#if ok}}yes{{else}}no{{/if}}", map[string]Value{"ok": false}))
}

func TestRenderUnless(t *testing.T) {
	e := newTestEngine()
	require.Equal(t, "shown", render(t, e, "{{#unless hidden}}shown{{/unless}}", map[string]Value{"hidden": false}))
	require.Equal(t, "", render(t, e, "{{#unless hidden}}shown{{/unless}}", map[string]Value{"hidden": true}))
}

func TestRenderEachArrayWithIndexFirstLast(t *testing.T) {
	e := newTestEngine()
	data := map[string]Value{"items": []Value{"a", "b", "c"}}
	out := render(t, e, "{{#each items}}[{{@index}}:{{this}}{{#if @first}}*{{/if}}{{#if @last}}!{{/if}}]{{/each}}", data)
	require.Equal(t, "[0:a*][1:b][2:c!]", out)
}

func TestRenderEachObjectWithKey(t *testing.T) {
	e := newTestEngine()
	data := map[string]Value{"m": map[string]Value{"b": 2.0, "a": 1.0}}
	out := render(t, e, "{{#each m}}{{@key}}={{this}};{{/each}}", data)
	require.Equal(t, "a=1;b=2;", out)
}

func TestRenderWith(t *testing.T) {
	e := newTestEngine()
	data := map[string]Value{"user": map[string]Value{"name": "Bob"}}
	require.Equal(t, "Bob", render(t, e, "{{#with user}}{{name}}{{/with}}", data))
}

func TestRenderSubexpressionArgs(t *testing.T) {
	e := newTestEngine()
	out := render(t, e, "{{concat (upper name) \"!\"}}", map[string]Value{"name": "ok"})
	require.Equal(t, "OK!", out)
}

func TestRenderArithmeticHelpers(t *testing.T) {
	e := newTestEngine()
	require.Equal(t, "7", render(t, e, "{{add a b}}", map[string]Value{"a": 3.0, "b": 4.0}))
	require.Equal(t, "1", render(t, e, "{{sub a b}}", map[string]Value{"a": 3.0, "b": 2.0}))
}

func TestRenderComparisonHelpers(t *testing.T) {
	e := newTestEngine()
	require.Equal(t, "yes", render(t, e, "{{#if (eq a b)}}yes{{else}}no{{/if}}", map[string]Value{"a": 1.0, "b": 1.0}))
	require.Equal(t, "no", render(t, e, "{{#if (gt a b)}}yes{{else}}no{{/if}}", map[string]Value{"a": 1.0, "b": 2.0}))
}

func TestRenderRootAndParentPaths(t *testing.T) {
	e := newTestEngine()
	data := map[string]Value{"title": "Report", "items": []Value{"x"}}
	out := render(t, e, "{{#each items}}{{@root.title}}:{{../title}}{{/each}}", data)
	require.Equal(t, "Report:Report", out)
}

func TestCurrentCellHelpers(t *testing.T) {
	e := newTestEngine()
	e.CurrentCol = "C"
	e.CurrentRow = 5
	e.CurrentRef = "C5"
	require.Equal(t, "C5", render(t, e, "{{_cr}}", map[string]Value{}))
	require.Equal(t, "C", render(t, e, "{{_c}}", map[string]Value{}))
	require.Equal(t, "5", render(t, e, "{{_r}}", map[string]Value{}))
}

func TestNumHelperSetsCellNumeric(t *testing.T) {
	e := newTestEngine()
	e.ResetCell()
	nodes, _, err := Parse("{{num val}}")
	require.NoError(t, err)
	_, err = e.Render(nodes, map[string]Value{"val": 42.0})
	require.NoError(t, err)
	require.True(t, e.CellNumeric)
	require.Equal(t, "42", e.CellNumericText)
}

func TestFormulaHelperSetsCellFormula(t *testing.T) {
	e := newTestEngine()
	e.ResetCell()
	nodes, _, err := Parse("{{formula \"SUM(A1:A2)\"}}")
	require.NoError(t, err)
	_, err = e.Render(nodes, map[string]Value{})
	require.NoError(t, err)
	require.True(t, e.CellFormulaSet)
	require.Equal(t, "SUM(A1:A2)", e.CellFormula)
}

func TestRenderBracketIndexPath(t *testing.T) {
	e := newTestEngine()
	data := map[string]Value{"items": []Value{
		map[string]Value{"name": "first"},
		map[string]Value{"name": "second"},
	}}
	require.Equal(t, "second", render(t, e, "{{items[1].name}}", data))
	require.Equal(t, render(t, e, "{{items[0].name}}", data), render(t, e, "{{items.0.name}}", data))
}

func TestUnknownPathRendersEmpty(t *testing.T) {
	e := newTestEngine()
	require.Equal(t, "", render(t, e, "{{missing.deeper}}", map[string]Value{}))
}

func TestTripleStacheEqualsDoubleStache(t *testing.T) {
	e := newTestEngine()
	data := map[string]Value{"x": "<b>"}
	require.Equal(t, render(t, e, "{{x}}", data), render(t, e, "{{{x}}}", data))
}

func TestParsePartialRejected(t *testing.T) {
	_, _, err := Parse("{{> header}}")
	require.Error(t, err)
	var rerr *xl.RenderError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, xl.KindTemplateParse, rerr.Kind)
}

func TestParseMismatchedBlockRejected(t *testing.T) {
	_, _, err := Parse("{{#if a}}x{{/each}}")
	require.Error(t, err)
}

func TestRenderElseIfChain(t *testing.T) {
	e := newTestEngine()
	tpl := "{{#if a}}A{{else if b}}B{{else}}C{{/if}}"
	require.Equal(t, "A", render(t, e, tpl, map[string]Value{"a": true}))
	require.Equal(t, "B", render(t, e, tpl, map[string]Value{"b": true}))
	require.Equal(t, "C", render(t, e, tpl, map[string]Value{}))
}

func TestRenderWhitespaceControl(t *testing.T) {
	e := newTestEngine()
	out := render(t, e, "x   {{~name~}}   y", map[string]Value{"name": "Z"})
	require.Equal(t, "xZy", out)
}

func TestRenderStringHelpers(t *testing.T) {
	e := newTestEngine()
	data := map[string]Value{"s": "MiXeD", "items": []Value{1.0, 2.0}}
	require.Equal(t, "MIXED", render(t, e, "{{upper s}}", data))
	require.Equal(t, "mixed", render(t, e, "{{lower s}}", data))
	require.Equal(t, "2", render(t, e, "{{len items}}", data))
	require.Equal(t, "0", render(t, e, "{{len missing}}", data))
}

func TestMergeCellInvalidRangeWarnsAndDrops(t *testing.T) {
	e := newTestEngine()
	out := render(t, e, `{{mergeCell "nonsense"}}`, map[string]Value{})
	require.Equal(t, "", out)
	require.Empty(t, e.Sheet.MergeRanges())
	require.NotEmpty(t, e.Sink.Warnings)
}

func TestHyperlinkExternalWithoutRelationshipDropped(t *testing.T) {
	e := newTestEngine()
	out := render(t, e, `{{hyperlink "A1" "https://example.com/x"}}`, map[string]Value{})
	require.Equal(t, "", out)
	require.Empty(t, e.Sheet.Hyperlinks())
	require.NotEmpty(t, e.Sink.Warnings)
}

func TestHyperlinkInternalRecorded(t *testing.T) {
	e := newTestEngine()
	render(t, e, `{{hyperlink "B2" "Sheet2!A1" "go there"}}`, map[string]Value{})
	links := e.Sheet.Hyperlinks()
	require.Len(t, links, 1)
	require.True(t, links[0].Internal)
	require.Equal(t, "B2", links[0].Ref)
	require.Equal(t, "go there", links[0].Display)
}

func TestEscapedBracesStayLiteral(t *testing.T) {
	e := newTestEngine()
	out := render(t, e, `show \{{name}} raw`, map[string]Value{"name": "X"})
	require.Equal(t, "show {{name}} raw", out)
}

func TestEqualDoesNotCoerceBoolToNumber(t *testing.T) {
	e := newTestEngine()
	require.Equal(t, "no", render(t, e, "{{#if (eq a b)}}yes{{else}}no{{/if}}", map[string]Value{"a": true, "b": 1.0}))
	require.Equal(t, "yes", render(t, e, "{{#if (eq a b)}}yes{{else}}no{{/if}}", map[string]Value{"a": true, "b": true}))
	require.Equal(t, "yes", render(t, e, "{{#if (eq a b)}}yes{{else}}no{{/if}}", map[string]Value{"a": 1.0, "b": "1"}))
}
