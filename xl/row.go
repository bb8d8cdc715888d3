package xl

// Row is the rewrite-time representation of a `<row>` element: its cells in
// column order plus whatever row-level attributes (height, custom flags)
// the original template carried, preserved verbatim across renumbering.
type Row struct {
	OriginalR int // 1-based row number as it appeared in the source template
	Number    int // current 1-based row number; reassigned during renumbering
	Cells     []*Cell
	Extra     Attrs // original row attributes other than "r", preserved verbatim

	HasTemplate bool // true if any cell's source text contained "{{"
	RemoveRow   bool // set once the `removeRow` helper fires for this row instance
}

// CellAt returns the cell at the given 1-based column, or nil.
func (r *Row) CellAt(col int) *Cell {
	for _, c := range r.Cells {
		if c.Col == col {
			return c
		}
	}
	return nil
}

// Clone produces an independent copy of the row suitable for duplication by
// an `#each` loop iteration: cells and attributes are deep-copied so that
// rendering one duplicate can never mutate another.
func (r *Row) Clone() *Row {
	cp := &Row{
		OriginalR:   r.OriginalR,
		Number:      r.Number,
		Extra:       append(Attrs(nil), r.Extra...),
		HasTemplate: r.HasTemplate,
	}
	cp.Cells = make([]*Cell, len(r.Cells))
	for i, c := range r.Cells {
		cc := *c
		cc.Extra = append(Attrs(nil), c.Extra...)
		cp.Cells[i] = &cc
	}
	return cp
}
