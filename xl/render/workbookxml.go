package render

import (
	"bytes"
	"regexp"
	"strconv"

	srwxml "github.com/adnsv/srw/xml"

	"github.com/adnsv/go-xltmpl/xl"
)

var (
	sheetsBlockRe = regexp.MustCompile(`(?s)<sheets>.*?</sheets>|<sheets\s*/>`)
	sheetEntryRe  = regexp.MustCompile(`<sheet\b([^>]*)/>`)
)

// workbookDoc is xl/workbook.xml decomposed the same byte-splice way
// rowmodel.Parsed treats a worksheet part: everything outside the one
// element this package rewrites (here, <sheets>) is preserved verbatim.
type workbookDoc struct {
	Preamble  []byte
	Postamble []byte
	Sheets    []*xl.SheetMeta
}

// parseWorkbookXML reads the workbook's sheet list in document order: each
// sheet's display name, its workbook-relationship id (used to resolve the
// worksheet part via xl/_rels/workbook.xml.rels), its sheetId, and its
// current visibility state.
func parseWorkbookXML(data []byte) (*workbookDoc, error) {
	loc := sheetsBlockRe.FindIndex(data)
	if loc == nil {
		return nil, xl.Errorf(xl.KindInvalidXLSX, "xl/workbook.xml has no <sheets> element")
	}
	doc := &workbookDoc{Preamble: data[:loc[0]], Postamble: data[loc[1]:]}
	block := data[loc[0]:loc[1]]
	for i, m := range sheetEntryRe.FindAllSubmatchIndex(block, -1) {
		attrs := xl.ParseAttrs(string(block[m[2]:m[3]]))
		name, _ := attrs.Get("name")
		rid, _ := attrs.Get("r:id")
		sheetIDStr, _ := attrs.Get("sheetId")
		sheetID, _ := strconv.Atoi(sheetIDStr)
		state, _ := attrs.Get("state")
		doc.Sheets = append(doc.Sheets, &xl.SheetMeta{
			Index:         i,
			Name:          name,
			RelID:         rid,
			SheetID:       sheetID,
			OriginalState: state,
		})
	}
	if len(doc.Sheets) == 0 {
		return nil, xl.Errorf(xl.KindInvalidXLSX, "workbook has no sheets")
	}
	return doc, nil
}

// write regenerates the <sheets> block from the workbook's resolved
// rename/hide/delete state, leaving every other part of xl/workbook.xml —
// bookViews, definedNames, calcPr, … — untouched. The block itself is
// rebuilt with the same srw/xml writer xl/relationships.go uses for
// `.rels`/content-types.
func (d *workbookDoc) write(wb *xl.Workbook) []byte {
	var bb bytes.Buffer
	bb.Write(d.Preamble)

	x := srwxml.NewWriter(&bb, srwxml.WriterConfig{Indent: srwxml.Indent2Spaces})
	x.OTag("sheets")
	for _, s := range wb.Sheets {
		if s.Deleted() {
			continue
		}
		x.OTag("+sheet").Attr("name", s.Name).Attr("sheetId", s.SheetID)
		if st := s.HideState(); st != "" {
			x.Attr("state", st)
		}
		x.Attr("r:id", s.RelID)
		x.CTag()
	}
	x.CTag()

	bb.Write(d.Postamble)
	return bb.Bytes()
}
