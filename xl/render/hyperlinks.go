package render

import (
	"bytes"

	srwxml "github.com/adnsv/srw/xml"

	"github.com/adnsv/go-xltmpl/xl"
)

// hyperlinksXML renders a sheet's resolved hyperlinks into a `<hyperlinks>`
// element, through the same srw/xml writer xl/relationships.go builds
// `.rels`/content-types with. Internal
// targets ("Sheet!Cell") use location=; external targets reuse the
// pre-existing relationship the `hyperlink` helper already validated exists
// (engine.Helpers["hyperlink"] refuses to record an external link with no
// match, so externalRels is guaranteed to have an entry for every
// non-internal link reaching here).
func hyperlinksXML(links []*xl.Hyperlink, externalRels map[string]string) string {
	if len(links) == 0 {
		return ""
	}
	var bb bytes.Buffer
	x := srwxml.NewWriter(&bb, srwxml.WriterConfig{Indent: srwxml.Indent2Spaces})
	x.OTag("hyperlinks")
	for _, h := range links {
		x.OTag("+hyperlink").Attr("ref", h.Ref)
		if h.Internal {
			x.Attr("location", h.Target)
		} else if rid, ok := externalRels[h.Target]; ok {
			x.Attr("r:id", rid)
		}
		if h.Display != "" {
			x.Attr("display", h.Display)
		}
		x.CTag()
	}
	x.CTag()
	return bb.String()
}
