package xl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanExpressionsPlain(t *testing.T) {
	spans, warnings := ScanExpressions("Hello {{name}}!")
	require.Empty(t, warnings)
	require.Len(t, spans, 1)
	require.Equal(t, SpanExpr, spans[0].Kind)
	require.Equal(t, "name", spans[0].Inner)
	require.False(t, spans[0].Triple)
	require.Equal(t, "{{name}}", "Hello {{name}}!"[spans[0].Start:spans[0].End])
}

func TestScanExpressionsTripleBrace(t *testing.T) {
	spans, _ := ScanExpressions("{{{raw}}}")
	require.Len(t, spans, 1)
	require.Equal(t, SpanExpr, spans[0].Kind)
	require.Equal(t, "raw", spans[0].Inner)
	require.True(t, spans[0].Triple)
}

func TestScanExpressionsComment(t *testing.T) {
	spans, _ := ScanExpressions("a{{! note }}b")
	require.Len(t, spans, 1)
	require.Equal(t, SpanComment, spans[0].Kind)
}

func TestScanExpressionsEscape(t *testing.T) {
	spans, _ := ScanExpressions(`literal \{{name}} stays`)
	require.NotEmpty(t, spans)
	require.Equal(t, SpanEscape, spans[0].Kind)
}

func TestScanExpressionsUnterminated(t *testing.T) {
	spans, warnings := ScanExpressions("broken {{name")
	require.NotEmpty(t, warnings)
	require.Len(t, spans, 1)
	require.Equal(t, SpanUnterminated, spans[0].Kind)
}

func TestScanExpressionsSubexpressionParens(t *testing.T) {
	text := `{{mergeCell (concat (_c) (_r))}}`
	spans, _ := ScanExpressions(text)
	require.Len(t, spans, 1)
	require.Equal(t, "mergeCell (concat (_c) (_r))", spans[0].Inner)
}
