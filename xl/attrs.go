package xl

import (
	"regexp"
	"strconv"
	"strings"
)

// Attr is a single XML attribute, order-preserved.
type Attr struct {
	Name  string
	Value string
}

// Attrs is an ordered, mutable attribute list used when splicing edits into
// otherwise-untouched XML elements (row/cell tags) without disturbing
// attributes this package doesn't know about.
type Attrs []Attr

// ParseAttrs parses the attribute portion of a start tag, e.g. the bytes
// between `<row` and the closing `>`/`/>`. It is a small hand-rolled scanner
// rather than encoding/xml's attribute decoding because callers need to
// preserve and re-emit attributes they don't otherwise model, keeping the
// package valid byte-for-byte outside the edits.
func ParseAttrs(s string) Attrs {
	var out Attrs
	i := 0
	n := len(s)
	for i < n {
		for i < n && isSpace(s[i]) {
			i++
		}
		if i >= n {
			break
		}
		start := i
		for i < n && s[i] != '=' && !isSpace(s[i]) {
			i++
		}
		name := s[start:i]
		for i < n && isSpace(s[i]) {
			i++
		}
		if i >= n || s[i] != '=' {
			break
		}
		i++ // '='
		for i < n && isSpace(s[i]) {
			i++
		}
		if i >= n || (s[i] != '"' && s[i] != '\'') {
			break
		}
		quote := s[i]
		i++
		vstart := i
		for i < n && s[i] != quote {
			i++
		}
		value := s[vstart:i]
		if i < n {
			i++ // closing quote
		}
		if name != "" {
			out = append(out, Attr{Name: name, Value: unescapeXMLAttr(value)})
		}
	}
	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// Get returns the value of the named attribute and whether it was present.
func (a Attrs) Get(name string) (string, bool) {
	for _, at := range a {
		if at.Name == name {
			return at.Value, true
		}
	}
	return "", false
}

// Set overwrites the named attribute in place, or appends it if absent.
func (a Attrs) Set(name, value string) Attrs {
	for i := range a {
		if a[i].Name == name {
			a[i].Value = value
			return a
		}
	}
	return append(a, Attr{Name: name, Value: value})
}

// Without returns a copy with the named attributes removed.
func (a Attrs) Without(names ...string) Attrs {
	out := make(Attrs, 0, len(a))
	for _, at := range a {
		drop := false
		for _, n := range names {
			if at.Name == n {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, at)
		}
	}
	return out
}

// String renders the attribute list back into tag-attribute form.
func (a Attrs) String() string {
	var b strings.Builder
	for _, at := range a {
		b.WriteByte(' ')
		b.WriteString(at.Name)
		b.WriteString(`="`)
		b.WriteString(EscapeXMLAttr(at.Value))
		b.WriteByte('"')
	}
	return b.String()
}

func unescapeXMLAttr(s string) string {
	if !strings.ContainsRune(s, '&') {
		return s
	}
	r := strings.NewReplacer(
		"&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&",
	)
	return r.Replace(s)
}

// EscapeXMLText escapes text content for safe placement inside an XML
// element. The template engine itself never escapes; the reassemble pass
// uses this for the text runs it rebuilds, while rendered cell values are
// escaped by the XML writer that emits the rewritten sheet.
func EscapeXMLText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '\r':
			b.WriteString("&#13;")
		case '\t', '\n':
			b.WriteRune(r)
		default:
			if r < 0x20 {
				// XML 1.0 forbids most C0 control characters outright.
				continue
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

var textEntityRe = regexp.MustCompile(`&(#x[0-9A-Fa-f]+|#[0-9]+|amp|lt|gt|quot|apos);`)

// DecodeXMLText unescapes the five predefined XML entities plus numeric
// character references, the inverse of EscapeXMLText. Shared by the
// reassemble pass and the rowmodel parse, which both need to read a run's
// decoded text before re-escaping or re-scanning it.
func DecodeXMLText(s string) string {
	if !strings.ContainsRune(s, '&') {
		return s
	}
	return textEntityRe.ReplaceAllStringFunc(s, func(ent string) string {
		name := ent[1 : len(ent)-1]
		switch name {
		case "amp":
			return "&"
		case "lt":
			return "<"
		case "gt":
			return ">"
		case "quot":
			return `"`
		case "apos":
			return "'"
		}
		var n int64
		if strings.HasPrefix(name, "#x") {
			n, _ = strconv.ParseInt(name[2:], 16, 32)
		} else {
			n, _ = strconv.ParseInt(name[1:], 10, 32)
		}
		return string(rune(n))
	})
}

// EscapeXMLAttr escapes text content for placement inside a quoted XML
// attribute value.
func EscapeXMLAttr(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '"':
			b.WriteString("&quot;")
		case '\n':
			b.WriteString("&#10;")
		case '\t':
			b.WriteString("&#9;")
		case '\r':
			b.WriteString("&#13;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
