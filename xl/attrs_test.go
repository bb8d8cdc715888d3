package xl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAttrs(t *testing.T) {
	attrs := ParseAttrs(`r="A1" s="3" t="inlineStr"`)
	v, ok := attrs.Get("r")
	require.True(t, ok)
	require.Equal(t, "A1", v)
	v, ok = attrs.Get("s")
	require.True(t, ok)
	require.Equal(t, "3", v)
	_, ok = attrs.Get("missing")
	require.False(t, ok)
}

func TestAttrsWithoutAndSet(t *testing.T) {
	attrs := ParseAttrs(`r="B2" s="1"`)
	attrs = attrs.Without("r")
	_, ok := attrs.Get("r")
	require.False(t, ok)
	attrs = attrs.Set("t", "n")
	v, ok := attrs.Get("t")
	require.True(t, ok)
	require.Equal(t, "n", v)
	// Set overwrites in place.
	attrs = attrs.Set("s", "2")
	v, _ = attrs.Get("s")
	require.Equal(t, "2", v)
}

func TestEscapeDecodeXMLTextRoundTrip(t *testing.T) {
	raw := `Tom & Jerry <says> "hi" it's "fine"`
	escaped := EscapeXMLText(raw)
	require.NotContains(t, escaped, "<says>")
	decoded := DecodeXMLText(escaped)
	require.Equal(t, raw, decoded)
}

func TestDecodeXMLTextNumericRefs(t *testing.T) {
	require.Equal(t, "A", DecodeXMLText("&#65;"))
	require.Equal(t, "A", DecodeXMLText("&#x41;"))
}

func TestEscapeXMLAttr(t *testing.T) {
	got := EscapeXMLAttr(`a"b<c&d`)
	require.Equal(t, `a&quot;b&lt;c&amp;d`, got)
}
