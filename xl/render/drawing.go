package render

import (
	"bytes"
	"fmt"
	"regexp"

	srwxml "github.com/adnsv/srw/xml"

	"github.com/adnsv/go-xltmpl/xl"
)

const (
	drawingXdrNS = "http://schemas.openxmlformats.org/drawingml/2006/spreadsheetDrawing"
	drawingANS   = "http://schemas.openxmlformats.org/drawingml/2006/main"
	drawingRNS   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
)

// drawingAnchorInput is one image anchor queued for xl/drawings/drawingN.xml,
// with its drawing-part-local relationship id and shape id already
// assigned.
type drawingAnchorInput struct {
	Img     *xl.ImageAnchor
	RelID   string
	ShapeID int
}

// writeAnchorXML emits one `<xdr:oneCellAnchor>` for an image, anchored at
// the recorded cell with pixel->EMU conversion, through the same srw/xml
// writer xl/relationships.go and workbookxml.go build their generated
// parts with.
func writeAnchorXML(x *srwxml.Writer, a drawingAnchorInput) error {
	col, row, err := xl.ParseCellRef(a.Img.Ref)
	if err != nil {
		return xl.Wrapf(xl.KindInternal, err, "image anchor cell %q", a.Img.Ref)
	}
	cx := xl.PixelsToEMU(a.Img.WidthPixels)
	cy := xl.PixelsToEMU(a.Img.HeightPixels)

	x.OTag("xdr:oneCellAnchor")
	x.OTag("+xdr:from")
	x.OTag("xdr:col").Write(col - 1).CTag()
	x.OTag("+xdr:colOff").Write(0).CTag()
	x.OTag("+xdr:row").Write(row - 1).CTag()
	x.OTag("+xdr:rowOff").Write(0).CTag()
	x.CTag() // xdr:from
	x.OTag("+xdr:ext").Attr("cx", cx).Attr("cy", cy).CTag()
	x.OTag("+xdr:pic")
	x.OTag("+xdr:nvPicPr")
	x.OTag("xdr:cNvPr").Attr("id", a.ShapeID).Attr("name", fmt.Sprintf("Picture %d", a.ShapeID)).CTag()
	x.OTag("+xdr:cNvPicPr").CTag()
	x.CTag() // xdr:nvPicPr
	x.OTag("+xdr:blipFill")
	x.OTag("a:blip").Attr("r:embed", a.RelID).CTag()
	x.OTag("+a:stretch")
	x.OTag("a:fillRect").CTag()
	x.CTag() // a:stretch
	x.CTag() // xdr:blipFill
	x.OTag("+xdr:spPr")
	x.OTag("+a:xfrm")
	x.OTag("a:off").Attr("x", 0).Attr("y", 0).CTag()
	x.OTag("+a:ext").Attr("cx", cx).Attr("cy", cy).CTag()
	x.CTag() // a:xfrm
	x.OTag("+a:prstGeom").Attr("prst", "rect")
	x.OTag("a:avLst").CTag()
	x.CTag() // a:prstGeom
	x.CTag() // xdr:spPr
	x.CTag() // xdr:pic
	x.OTag("+xdr:clientData").CTag()
	x.CTag() // xdr:oneCellAnchor
	return nil
}

// drawingAnchorXML renders one anchor as a standalone fragment, for splicing
// into an existing drawing part's raw bytes (appendAnchorsToDrawing), where
// the surrounding document is preserved byte-for-byte and only the new
// anchors are freshly generated.
func drawingAnchorXML(a drawingAnchorInput) (string, error) {
	var bb bytes.Buffer
	x := srwxml.NewWriter(&bb, srwxml.WriterConfig{Indent: srwxml.Indent2Spaces})
	if err := writeAnchorXML(x, a); err != nil {
		return "", err
	}
	return bb.String(), nil
}

// newDrawingXML builds a brand-new xl/drawings/drawingN.xml part body: since
// no existing content needs preserving, the whole document — prolog,
// namespaces, and every anchor — is generated in one srw/xml writer pass.
func newDrawingXML(anchors []drawingAnchorInput) ([]byte, error) {
	var bb bytes.Buffer
	x := srwxml.NewWriter(&bb, srwxml.WriterConfig{Indent: srwxml.Indent2Spaces})
	x.XmlStandaloneDecl()
	x.OTag("xdr:wsDr")
	x.Attr("xmlns:xdr", drawingXdrNS)
	x.Attr("xmlns:a", drawingANS)
	x.Attr("xmlns:r", drawingRNS)
	for _, a := range anchors {
		if err := writeAnchorXML(x, a); err != nil {
			return nil, err
		}
	}
	x.CTag()
	return bb.Bytes(), nil
}

var wsDrCloseRe = regexp.MustCompile(`</xdr:wsDr>\s*$`)

// appendAnchorsToDrawing splices additional anchors into an existing drawing
// part, just before its closing tag, leaving every anchor already present —
// and anything else this package doesn't model in that part — untouched.
func appendAnchorsToDrawing(existing []byte, anchors []drawingAnchorInput) ([]byte, error) {
	loc := wsDrCloseRe.FindIndex(existing)
	if loc == nil {
		return newDrawingXML(anchors)
	}
	var bb bytes.Buffer
	bb.Write(existing[:loc[0]])
	for _, a := range anchors {
		frag, err := drawingAnchorXML(a)
		if err != nil {
			return nil, err
		}
		bb.WriteString(frag)
	}
	bb.WriteString(`</xdr:wsDr>`)
	return bb.Bytes(), nil
}
