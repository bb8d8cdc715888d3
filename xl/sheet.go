package xl

// Hyperlink is an accumulated `hyperlink` side-effect, keyed by cell and
// resolved last-write-wins.
type Hyperlink struct {
	Ref      string // cell the link is attached to, e.g. "B5"
	Target   string // external URL, or internal "Sheet2!A1" location
	Display  string // optional display text override
	Internal bool   // true when Target is an internal sheet!cell location
}

// ImageAnchor is an accumulated `img` side-effect: a decoded picture
// anchored at the current cell when the helper fired.
type ImageAnchor struct {
	Ref           string
	Blob          []byte
	Format        string // "png", "jpeg", "gif", "bmp", "tiff", "webp"
	WidthPixels   float64
	HeightPixels  float64
	RelID         string // assigned during finalization
	MediaFileName string // assigned during finalization
}

// Sheet is the rewrite-time, side-effect-carrying representation of one
// worksheet. It is built fresh for every render and discarded afterward.
type Sheet struct {
	Index int // zero-based position in the workbook
	Name  string

	Rows []*Row

	mergeCells   []string // dedup by exact range string, insertion order
	mergeCellSet map[string]bool
	hyperlinks   map[string]*Hyperlink // keyed by cell ref, last-write-wins
	hyperlinkOrd []string              // insertion order of first-seen refs
	images       []*ImageAnchor
}

// NewSheet constructs an empty Sheet wrapper ready to accumulate rows and
// side effects during a single render.
func NewSheet(index int, name string) *Sheet {
	return &Sheet{
		Index:        index,
		Name:         name,
		mergeCellSet: map[string]bool{},
		hyperlinks:   map[string]*Hyperlink{},
	}
}

// AddMergeRange records a merge side-effect, deduplicating by exact range
// string in first-seen order.
func (s *Sheet) AddMergeRange(ref string) {
	if s.mergeCellSet[ref] {
		return
	}
	s.mergeCellSet[ref] = true
	s.mergeCells = append(s.mergeCells, ref)
}

// MergeRanges returns the deduplicated merge ranges in first-seen order.
func (s *Sheet) MergeRanges() []string {
	return s.mergeCells
}

// AddHyperlink records a hyperlink side-effect; a later call for the same
// cell ref overwrites the earlier one (last-write-wins).
func (s *Sheet) AddHyperlink(h Hyperlink) {
	if _, exists := s.hyperlinks[h.Ref]; !exists {
		s.hyperlinkOrd = append(s.hyperlinkOrd, h.Ref)
	}
	hh := h
	s.hyperlinks[h.Ref] = &hh
}

// Hyperlinks returns the resolved hyperlinks in first-seen cell order.
func (s *Sheet) Hyperlinks() []*Hyperlink {
	out := make([]*Hyperlink, 0, len(s.hyperlinkOrd))
	for _, ref := range s.hyperlinkOrd {
		out = append(out, s.hyperlinks[ref])
	}
	return out
}

// AddImage records an image side-effect; anchors are never deduplicated.
func (s *Sheet) AddImage(a ImageAnchor) {
	img := a
	s.images = append(s.images, &img)
}

// Images returns the accumulated image anchors in the order recorded.
func (s *Sheet) Images() []*ImageAnchor {
	return s.images
}

// Dimension computes the `<dimension ref="A1:Zn"/>` bounding box from the
// current (post-render, post-deletion) row/cell set. Returns "A1" when the
// sheet has no non-empty cells.
func (s *Sheet) Dimension() string {
	minCol, minRow := 0, 0
	maxCol, maxRow := 0, 0
	any := false
	for _, r := range s.Rows {
		for _, c := range r.Cells {
			if c.Type == CellTypeUnset && c.Text == "" {
				continue
			}
			any = true
			if minCol == 0 || c.Col < minCol {
				minCol = c.Col
			}
			if c.Col > maxCol {
				maxCol = c.Col
			}
			if minRow == 0 || r.Number < minRow {
				minRow = r.Number
			}
			if r.Number > maxRow {
				maxRow = r.Number
			}
		}
	}
	if !any {
		return "A1"
	}
	return CellCoordAsString(minCol, minRow) + ":" + CellCoordAsString(maxCol, maxRow)
}
