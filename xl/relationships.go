package xl

import (
	"bytes"
	"encoding/xml"

	srwxml "github.com/adnsv/srw/xml"
)

// Relationship is one `<Relationship>` edge, as stored in a `_rels/*.rels`
// sibling part.
type Relationship struct {
	ID     string
	Type   string
	Target string
	Mode   string // "External" or "" (internal, the default)
}

type relsDoc struct {
	XMLName xml.Name `xml:"Relationships"`
	Rels    []struct {
		ID         string `xml:"Id,attr"`
		Type       string `xml:"Type,attr"`
		Target     string `xml:"Target,attr"`
		TargetMode string `xml:"TargetMode,attr"`
	} `xml:"Relationship"`
}

// ParseRelationships parses a `.rels` part's bytes into an ordered list.
func ParseRelationships(data []byte) ([]Relationship, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var doc relsDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, Wrapf(KindInvalidXLSX, err, "parsing relationships")
	}
	out := make([]Relationship, 0, len(doc.Rels))
	for _, r := range doc.Rels {
		out = append(out, Relationship{ID: r.ID, Type: r.Type, Target: r.Target, Mode: r.TargetMode})
	}
	return out, nil
}

// WriteRelationships serializes a relationship list back to `.rels` XML.
// The list is an ordered slice rather than a map so existing relationship
// order — and therefore existing relationship ids — survives edits.
func WriteRelationships(rels []Relationship) []byte {
	var bb bytes.Buffer
	x := srwxml.NewWriter(&bb, srwxml.WriterConfig{Indent: srwxml.Indent2Spaces})
	x.XmlStandaloneDecl()
	x.OTag("Relationships")
	x.Attr("xmlns", "http://schemas.openxmlformats.org/package/2006/relationships")
	for _, r := range rels {
		x.OTag("+Relationship").Attr("Id", r.ID).Attr("Type", r.Type).Attr("Target", r.Target)
		if r.Mode != "" {
			x.Attr("TargetMode", r.Mode)
		}
		x.CTag()
	}
	x.CTag()
	return bb.Bytes()
}

// NextRelID returns "rIdN" one past the highest existing numeric rIdN in
// rels, so newly appended relationships never collide with ones already in
// the template.
func NextRelID(rels []Relationship) string {
	max := 0
	for _, r := range rels {
		if n, ok := parseRID(r.ID); ok && n > max {
			max = n
		}
	}
	return "rId" + itoaSmall(max+1)
}

func parseRID(id string) (int, bool) {
	if len(id) < 4 || id[:3] != "rId" {
		return 0, false
	}
	n := 0
	for _, r := range id[3:] {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

func itoaSmall(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// ContentTypes is a parsed `[Content_Types].xml`: a Default map (extension
// -> content-type) plus Override map (exact part path -> content-type).
type ContentTypes struct {
	Defaults  map[string]string
	Overrides map[string]string
	order     []string // override insertion order, for stable output
}

type ctypesDoc struct {
	XMLName  xml.Name `xml:"Types"`
	Defaults []struct {
		Extension   string `xml:"Extension,attr"`
		ContentType string `xml:"ContentType,attr"`
	} `xml:"Default"`
	Overrides []struct {
		PartName    string `xml:"PartName,attr"`
		ContentType string `xml:"ContentType,attr"`
	} `xml:"Override"`
}

func ParseContentTypes(data []byte) (*ContentTypes, error) {
	var doc ctypesDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, Wrapf(KindInvalidXLSX, err, "parsing [Content_Types].xml")
	}
	ct := &ContentTypes{Defaults: map[string]string{}, Overrides: map[string]string{}}
	for _, d := range doc.Defaults {
		ct.Defaults[d.Extension] = d.ContentType
	}
	for _, o := range doc.Overrides {
		ct.Overrides[o.PartName] = o.ContentType
		ct.order = append(ct.order, o.PartName)
	}
	return ct, nil
}

// AddOverride registers (or overwrites) a part's content-type override.
func (ct *ContentTypes) AddOverride(partName, contentType string) {
	if _, exists := ct.Overrides[partName]; !exists {
		ct.order = append(ct.order, partName)
	}
	ct.Overrides[partName] = contentType
}

// RemoveOverride drops a part's override entry (used when deleting a part).
func (ct *ContentTypes) RemoveOverride(partName string) {
	delete(ct.Overrides, partName)
	for i, o := range ct.order {
		if o == partName {
			ct.order = append(ct.order[:i], ct.order[i+1:]...)
			break
		}
	}
}

// AddDefault registers (or overwrites) an extension-wide default.
func (ct *ContentTypes) AddDefault(ext, contentType string) {
	ct.Defaults[ext] = contentType
}

func (ct *ContentTypes) Write() []byte {
	var bb bytes.Buffer
	x := srwxml.NewWriter(&bb, srwxml.WriterConfig{Indent: srwxml.Indent2Spaces})
	x.XmlStandaloneDecl()
	x.OTag("Types")
	x.Attr("xmlns", "http://schemas.openxmlformats.org/package/2006/content-types")
	for _, ext := range SortedKeys(ct.Defaults) {
		x.OTag("+Default").Attr("Extension", ext).Attr("ContentType", ct.Defaults[ext]).CTag()
	}
	for _, part := range ct.order {
		ctype, ok := ct.Overrides[part]
		if !ok {
			continue
		}
		x.OTag("+Override").Attr("PartName", part).Attr("ContentType", ctype).CTag()
	}
	x.CTag()
	return bb.Bytes()
}

