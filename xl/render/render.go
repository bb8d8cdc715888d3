// Package render exposes Render, the library's sole end-to-end entry
// point: read a template package, run the reassemble/rowmodel/rewrite
// pipeline over every worksheet, apply workbook-level side effects, and
// write a fresh XLSX package.
package render

import (
	"encoding/json"
	"path"
	"strconv"
	"strings"

	"github.com/adnsv/go-xltmpl/xl"
	"github.com/adnsv/go-xltmpl/xl/hbs"
	"github.com/adnsv/go-xltmpl/xl/reassemble"
	"github.com/adnsv/go-xltmpl/xl/rewrite"
	"github.com/adnsv/go-xltmpl/xl/rowmodel"
)

const (
	relTypeWorksheet = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet"
	relTypeHyperlink = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/hyperlink"
	relTypeDrawing   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/drawing"
	relTypeImage     = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"

	ctDrawing = "application/vnd.openxmlformats-officedocument.drawing+xml"
	ctRels    = "application/vnd.openxmlformats-package.relationships+xml"
)

// Options configures a single Render invocation.
type Options struct {
	// Deterministic substitutes a monotonic counter for the drawing
	// relationship ids that are otherwise fresh random UUIDs, so test
	// output is reproducible.
	Deterministic bool
}

// Result is the outcome of a successful Render: the rewritten package bytes
// plus any non-fatal warnings accumulated along the way.
type Result struct {
	Bytes    []byte
	Warnings []string
}

// sheetOutcome is one sheet's rewrite output plus everything the
// finalization pass needs about the part it came from, carried across the
// Resolve() barrier (workbook-level rename/hide/delete must see every
// sheet's requests before any sheet's drawing/hyperlink splicing happens,
// since a deleted sheet's part is never written at all).
type sheetOutcome struct {
	meta                 *xl.SheetMeta
	partPath             string
	result               *rewrite.Result
	origRels             []xl.Relationship
	externRels           map[string]string
	existingDrawingRelID string
	hasTemplate          bool
}

// Render is the library's primary entry point: template_bytes + data_json
// -> rendered_bytes.
func Render(templateBytes, dataJSON []byte, opts Options) (*Result, error) {
	pkg, err := xl.ReadPackage(templateBytes)
	if err != nil {
		return nil, err
	}

	var data hbs.Value
	if len(strings.TrimSpace(string(dataJSON))) > 0 {
		if err := json.Unmarshal(dataJSON, &data); err != nil {
			return nil, xl.Wrapf(xl.KindDataParse, err, "decoding data context")
		}
	}

	var warnings []string

	wbPath, ok := pkg.FindPart(xl.IsWorkbookPart)
	if !ok {
		return nil, xl.Errorf(xl.KindInvalidXLSX, "missing xl/workbook.xml")
	}
	wbXML, _ := pkg.Get(wbPath)
	wbDoc, err := parseWorkbookXML(wbXML)
	if err != nil {
		return nil, err
	}

	wbRelsPath, ok := pkg.FindPart(xl.IsWorkbookRelsPart)
	if !ok {
		wbRelsPath = xl.RelsPathFor(wbPath)
	}
	wbRelsXML, _ := pkg.Get(wbRelsPath)
	wbRels, err := xl.ParseRelationships(wbRelsXML)
	if err != nil {
		return nil, err
	}
	partForRelID := map[string]string{}
	for _, r := range wbRels {
		if r.Type == relTypeWorksheet {
			partForRelID[r.ID] = resolveTarget(path.Dir(wbPath), r.Target)
		}
	}

	var sharedStrings []rowmodel.SharedString
	if ssPath, ok := pkg.FindPart(xl.IsSharedStringsPart); ok {
		ssXML, _ := pkg.Get(ssPath)
		var ssWarnings []string
		sharedStrings, ssWarnings = parseSharedStrings(ssXML)
		warnings = append(warnings, ssWarnings...)
	}

	wb := &xl.Workbook{Sheets: wbDoc.Sheets}
	idgen := &xl.IDGenerator{Deterministic: opts.Deterministic}
	mp := newMediaPool(pkg)
	ct, err := contentTypesOf(pkg)
	if err != nil {
		return nil, err
	}

	outcomes := make([]sheetOutcome, 0, len(wbDoc.Sheets))

	for _, meta := range wbDoc.Sheets {
		partPath, ok := partForRelID[meta.RelID]
		if !ok {
			return nil, xl.Errorf(xl.KindInvalidXLSX, "sheet %q: no worksheet relationship %q", meta.Name, meta.RelID)
		}
		sheetXML, ok := pkg.Get(partPath)
		if !ok {
			return nil, xl.Errorf(xl.KindInvalidXLSX, "sheet %q: missing part %q", meta.Name, partPath)
		}

		reassembled := reassemble.Document(sheetXML)
		warnings = append(warnings, reassembled.Warnings...)

		parsed, err := rowmodel.Parse(reassembled.Bytes, sharedStrings)
		if err != nil {
			return nil, err
		}

		var origRels []xl.Relationship
		if relsXML, ok := pkg.Get(xl.RelsPathFor(partPath)); ok {
			origRels, err = xl.ParseRelationships(relsXML)
			if err != nil {
				return nil, err
			}
		}
		externRels := map[string]string{}
		for _, r := range origRels {
			if r.Type == relTypeHyperlink && r.Mode == "External" {
				externRels[r.Target] = r.ID
			}
		}

		result, err := rewrite.Sheet(parsed, meta.Index, meta.Name, data, externRels)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, result.Warnings...)

		if result.Workbook.RenameSet {
			wb.RequestRename(meta.Index, result.Workbook.RenameTo)
		}
		if result.Workbook.HideSet {
			wb.RequestHide(meta.Index, result.Workbook.HideLevel)
		}
		if result.Workbook.DeleteSet {
			wb.RequestDelete(meta.Index)
		}

		outcomes = append(outcomes, sheetOutcome{
			meta:                 meta,
			partPath:             partPath,
			result:               result,
			origRels:             origRels,
			externRels:           externRels,
			existingDrawingRelID: parsed.ExistingDrawingRelID,
			hasTemplate:          parsed.HasAnyTemplate,
		})
	}

	sink := &xl.WarningSink{}
	wb.Resolve(sink)
	for _, w := range sink.Warnings {
		warnings = append(warnings, w.String())
	}

	deletedRelIDs := map[string]bool{}
	for _, oc := range outcomes {
		if oc.meta.Deleted() {
			deletedRelIDs[oc.meta.RelID] = true
		}
	}

	for _, oc := range outcomes {
		if oc.meta.Deleted() {
			deleteSheetPart(pkg, ct, oc.partPath)
			continue
		}

		// A sheet with no template tokens produced no side effects either;
		// leave its part (and its .rels) byte-for-byte as the template
		// shipped them.
		sheet := oc.result.Sheet
		if !oc.hasTemplate && len(sheet.Images()) == 0 &&
			len(sheet.MergeRanges()) == 0 && len(sheet.Hyperlinks()) == 0 {
			continue
		}

		rels, drawingRelID, err := finalizeDrawing(pkg, ct, mp, idgen, oc.partPath, oc.existingDrawingRelID, oc.origRels, oc.result.Sheet.Images())
		if err != nil {
			return nil, err
		}
		if len(rels) > 0 {
			pkg.Set(xl.RelsPathFor(oc.partPath), xl.WriteRelationships(rels))
			ct.AddDefault("rels", ctRels)
		}

		pkg.Set(oc.partPath, assembleFinalSheet(oc.result, oc.externRels, drawingRelID))
	}

	pkg.Set(wbPath, wbDoc.write(wb))
	if len(wbRels) > 0 {
		keptWBRels := wbRels[:0]
		for _, r := range wbRels {
			if !deletedRelIDs[r.ID] {
				keptWBRels = append(keptWBRels, r)
			}
		}
		pkg.Set(wbRelsPath, xl.WriteRelationships(keptWBRels))
	}
	ctPath, _ := pkg.FindPart(xl.IsContentTypesPart)
	pkg.Set(ctPath, ct.Write())

	out, err := pkg.Write()
	if err != nil {
		return nil, err
	}
	return &Result{Bytes: out, Warnings: warnings}, nil
}

// finalizeDrawing ensures a drawing part exists for a sheet carrying
// recorded images, reusing the sheet's existing
// drawing part/relationship when present, creating both when absent. It
// returns the sheet's relationship list (possibly with a new drawing
// relationship appended) and the r:id to reference from the sheet's own
// `<drawing>` element (empty if the sheet has neither an existing drawing
// nor new images).
func finalizeDrawing(pkg *xl.Package, ct *xl.ContentTypes, mp *mediaPool, idgen *xl.IDGenerator, sheetPartPath, existingDrawingRelID string, sheetRels []xl.Relationship, images []*xl.ImageAnchor) ([]xl.Relationship, string, error) {
	rels := sheetRels
	var drawingPartPath, drawingRelID string
	if existingDrawingRelID != "" {
		// Honor the sheet's existing drawing only when its relationship
		// actually resolves to a drawing part.
		if target := findTarget(rels, existingDrawingRelID, path.Dir(sheetPartPath)); xl.IsDrawingPart(target) {
			drawingPartPath = target
			drawingRelID = existingDrawingRelID
		}
	}
	if drawingPartPath == "" {
		if len(images) == 0 {
			return rels, drawingRelID, nil
		}
		drawingPartPath = nextDrawingPartPath(pkg)
		drawingRelID = xl.NextRelID(rels)
		rels = append(rels, xl.Relationship{
			ID:     drawingRelID,
			Type:   relTypeDrawing,
			Target: relativeTarget(path.Dir(sheetPartPath), drawingPartPath),
		})
		ct.AddOverride("/"+drawingPartPath, ctDrawing)
	}

	if len(images) == 0 {
		return rels, drawingRelID, nil
	}

	drawingRelsPath := xl.RelsPathFor(drawingPartPath)
	var drawingRels []xl.Relationship
	if data, ok := pkg.Get(drawingRelsPath); ok {
		var err error
		drawingRels, err = xl.ParseRelationships(data)
		if err != nil {
			return nil, "", err
		}
	}

	anchors := make([]drawingAnchorInput, 0, len(images))
	for i, img := range images {
		mediaPath := mp.register(img.Blob, img.Format, ct)
		embedID := "rId" + strings.ReplaceAll(idgen.Next(), "-", "")
		img.RelID = embedID
		img.MediaFileName = path.Base(mediaPath)
		drawingRels = append(drawingRels, xl.Relationship{
			ID:     embedID,
			Type:   relTypeImage,
			Target: relativeTarget(path.Dir(drawingPartPath), mediaPath),
		})
		anchors = append(anchors, drawingAnchorInput{Img: img, RelID: embedID, ShapeID: len(drawingRels) + i + 1})
	}

	if existing, ok := pkg.Get(drawingPartPath); ok {
		doc, err := appendAnchorsToDrawing(existing, anchors)
		if err != nil {
			return nil, "", err
		}
		pkg.Set(drawingPartPath, doc)
	} else {
		doc, err := newDrawingXML(anchors)
		if err != nil {
			return nil, "", err
		}
		pkg.Set(drawingPartPath, doc)
	}
	pkg.Set(drawingRelsPath, xl.WriteRelationships(drawingRels))
	ct.AddDefault("rels", ctRels)

	return rels, drawingRelID, nil
}

// nextDrawingPartPath picks a drawing part name one past the highest
// drawingN.xml already in the package, so a template that ships its own
// drawings never collides with a freshly created one.
func nextDrawingPartPath(pkg *xl.Package) string {
	max := 0
	for p := range pkg.Parts {
		if n, ok := xl.DrawingIndexFromPart(p); ok && n > max {
			max = n
		}
	}
	return "xl/drawings/drawing" + strconv.Itoa(max+1) + ".xml"
}

func findTarget(rels []xl.Relationship, id, baseDir string) string {
	for _, r := range rels {
		if r.ID == id {
			return resolveTarget(baseDir, r.Target)
		}
	}
	return ""
}

// resolveTarget resolves a relationship Target against the directory of the
// part that owns the .rels file it came from (OOXML targets are relative to
// that directory unless they start with "/").
func resolveTarget(baseDir, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join(baseDir, target))
}

// relativeTarget is resolveTarget's inverse: a part path relative to the
// directory of the part that will own the new Relationship (every part path
// in this package is "xl/..." and at most two directories deep, so a
// general-purpose path algebra is unnecessary).
func relativeTarget(baseDir, partPath string) string {
	baseParts := strings.Split(baseDir, "/")
	targetParts := strings.Split(partPath, "/")
	i := 0
	for i < len(baseParts) && i < len(targetParts)-1 && baseParts[i] == targetParts[i] {
		i++
	}
	rel := make([]string, 0, len(baseParts)-i+len(targetParts)-i)
	for range baseParts[i:] {
		rel = append(rel, "..")
	}
	rel = append(rel, targetParts[i:]...)
	return strings.Join(rel, "/")
}

func contentTypesOf(pkg *xl.Package) (*xl.ContentTypes, error) {
	ctPath, _ := pkg.FindPart(xl.IsContentTypesPart)
	data, _ := pkg.Get(ctPath)
	return xl.ParseContentTypes(data)
}

func deleteSheetPart(pkg *xl.Package, ct *xl.ContentTypes, partPath string) {
	pkg.Delete(partPath)
	ct.RemoveOverride("/" + partPath)
	pkg.Delete(xl.RelsPathFor(partPath))
}

// assembleFinalSheet splices the hyperlinks and drawing reference the
// rewrite pass left a gap for (rewrite.Result's doc comment) between Head and
// Tail, now that relationship ids are known.
func assembleFinalSheet(r *rewrite.Result, externalRels map[string]string, drawingRelID string) []byte {
	var b strings.Builder
	b.Write(r.Head)
	b.WriteString(hyperlinksXML(r.Sheet.Hyperlinks(), externalRels))
	if drawingRelID != "" {
		b.WriteString(`<drawing r:id="`)
		b.WriteString(xl.EscapeXMLAttr(drawingRelID))
		b.WriteString(`"/>`)
	}
	b.Write(r.Tail)
	return []byte(b.String())
}
