package xl

import (
	"path"
	"regexp"
	"strconv"
)

// Part classification: recognizes the handful of part kinds the rest of
// the pipeline cares about, purely from path shape. None of this needs to
// open [Content_Types].xml — OOXML part *names* are conventional and
// stable across producers.

var worksheetPartRe = regexp.MustCompile(`^xl/worksheets/sheet([0-9]+)\.xml$`)

func IsWorksheetPart(p string) bool {
	return worksheetPartRe.MatchString(normalizePath(p))
}

func IsWorkbookPart(p string) bool {
	return normalizePath(p) == "xl/workbook.xml"
}

func IsContentTypesPart(p string) bool {
	return normalizePath(p) == "[Content_Types].xml"
}

func IsSharedStringsPart(p string) bool {
	return normalizePath(p) == "xl/sharedStrings.xml"
}

func IsWorkbookRelsPart(p string) bool {
	return normalizePath(p) == "xl/_rels/workbook.xml.rels"
}

var drawingPartRe = regexp.MustCompile(`^xl/drawings/drawing([0-9]+)\.xml$`)

func IsDrawingPart(p string) bool {
	return drawingPartRe.MatchString(normalizePath(p))
}

// RelsPathFor returns the `_rels/<basename>.rels` sibling path for a part,
// e.g. "xl/worksheets/sheet1.xml" -> "xl/worksheets/_rels/sheet1.xml.rels".
func RelsPathFor(partPath string) string {
	partPath = normalizePath(partPath)
	dir, base := path.Split(partPath)
	return dir + "_rels/" + base + ".rels"
}

// SheetIndexFromPart extracts the 1-based N from "xl/worksheets/sheetN.xml".
func SheetIndexFromPart(p string) (int, bool) {
	return partIndex(p, worksheetPartRe)
}

// DrawingIndexFromPart extracts the 1-based N from "xl/drawings/drawingN.xml".
func DrawingIndexFromPart(p string) (int, bool) {
	return partIndex(p, drawingPartRe)
}

func partIndex(p string, re *regexp.Regexp) (int, bool) {
	m := re.FindStringSubmatch(normalizePath(p))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
