package xl

// CellType mirrors the handful of SpreadsheetML cell value types this
// system produces. CellTypeSharedString is retained for completeness but
// the rewriter never emits it for templated cells — every templated string
// cell is promoted to CellTypeInlineString instead.
type CellType int

const (
	CellTypeUnset CellType = iota
	CellTypeBool
	CellTypeNumber
	CellTypeInlineString
	CellTypeSharedString
	CellTypeFormula
	CellTypeError
)

// Cell is the rewrite-time representation of a single worksheet cell: its
// coordinate, its resolved value, and the small amount of formatting state
// (style index) that must survive untouched across the rewrite.
type Cell struct {
	Col        int    // 1-based
	Type       CellType
	Text       string // inline string / formula text / literal numeric text, depending on Type
	StyleIndex string // original "s" attribute, preserved verbatim; empty if none
	TAttr      string // original "t" attribute of a formula cell ("str" etc.), empty otherwise
	CachedV    string // a formula cell's cached <v> result, carried through unchanged
	Extra      Attrs  // any other original <c> attributes this package does not model

	HasTemplate bool // whether the source text contained "{{" before rendering
}

// Ref returns the cell's coordinate string for the given 1-based row number.
func (c *Cell) Ref(row int) string {
	return CellCoordAsString(c.Col, row)
}
