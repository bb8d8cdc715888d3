package xl

import (
	"strconv"
	"strings"
	"unicode/utf16"
)

// SheetMeta is workbook-level bookkeeping for one sheet: its display name
// and the lifecycle side effects (rename/hide/delete) accumulated against
// it during rendering, applied by package finalization.
type SheetMeta struct {
	Index   int
	Name    string
	RelID   string
	SheetID int

	// OriginalState is the "state" attribute ("", "hidden", "veryHidden")
	// as it appeared in the template's workbook.xml, carried through
	// untouched when no hideCurrentSheet request overrides it.
	OriginalState string

	renameRequested bool
	renameTo        string
	hideRequested   bool
	hideLevel       string
	deleteRequested bool
}

// Workbook is the workbook-level side-effect accumulator for a single
// render invocation.
type Workbook struct {
	Sheets      []*SheetMeta
	deleteOrder []int // sheet indices, in the order delete was first requested
}

// RequestRename records a `setCurrentSheetName` side effect, last-write-wins
// per sheet index.
func (wb *Workbook) RequestRename(index int, name string) {
	wb.Sheets[index].renameRequested = true
	wb.Sheets[index].renameTo = name
}

// RequestHide records a `hideCurrentSheet` side effect.
func (wb *Workbook) RequestHide(index int, level string) {
	if level != "veryHidden" {
		level = "hidden"
	}
	wb.Sheets[index].hideRequested = true
	wb.Sheets[index].hideLevel = level
}

// RequestDelete records a `deleteCurrentSheet` side effect.
func (wb *Workbook) RequestDelete(index int) {
	if !wb.Sheets[index].deleteRequested {
		wb.deleteOrder = append(wb.deleteOrder, index)
	}
	wb.Sheets[index].deleteRequested = true
}

// Resolve applies rename, then hide, then delete, each guarded by its
// precondition, leaving behind the final (sanitized, disambiguated) sheet
// name set along with any warnings.
func (wb *Workbook) Resolve(sink *WarningSink) {
	wb.resolveRenames(sink)
	wb.resolveHides(sink)
	wb.resolveDeletes(sink)
}

func (wb *Workbook) resolveRenames(sink *WarningSink) {
	used := map[string]bool{}
	for _, s := range wb.Sheets {
		used[s.Name] = true
	}
	for _, s := range wb.Sheets {
		if !s.renameRequested {
			continue
		}
		candidate := sanitizeSheetName(s.renameTo)
		if candidate == "" {
			sink.Warnf(s.Name, "", "rename to empty/invalid name ignored")
			continue
		}
		delete(used, s.Name)
		final := disambiguate(candidate, used)
		used[final] = true
		s.Name = final
	}
}

func (wb *Workbook) resolveHides(sink *WarningSink) {
	// A sheet already hidden in the template counts against the "at least
	// one visible sheet" precondition exactly like a freshly requested
	// hide does — only a sheet whose final state is visible keeps the
	// workbook openable.
	remainingVisible := 0
	for _, s := range wb.Sheets {
		if s.deleteRequested {
			continue
		}
		hidden := s.OriginalState != "" || s.hideRequested
		if !hidden {
			remainingVisible++
		}
	}
	if remainingVisible > 0 {
		return
	}
	// Hiding every remaining sheet: drop the last-requested hide so one
	// sheet stays visible. Only a freshly requested hide is ours to drop; a sheet
	// that was already hidden in the template before this render started
	// is left alone.
	for i := len(wb.Sheets) - 1; i >= 0; i-- {
		s := wb.Sheets[i]
		if s.hideRequested && !s.deleteRequested {
			s.hideRequested = false
			sink.Warnf(s.Name, "", "hide dropped to keep at least one sheet visible")
			return
		}
	}
}

func (wb *Workbook) resolveDeletes(sink *WarningSink) {
	deleting := map[int]bool{}
	for _, idx := range wb.deleteOrder {
		deleting[idx] = true
	}
	// Deleting everything: drop requested deletes, last-requested first,
	// until at least one sheet survives.
	for i := len(wb.deleteOrder) - 1; i >= 0 && len(wb.Sheets)-len(deleting) < 1; i-- {
		idx := wb.deleteOrder[i]
		delete(deleting, idx)
		wb.Sheets[idx].deleteRequested = false
		sink.Warnf(wb.Sheets[idx].Name, "", "delete dropped to keep at least one sheet")
	}
}

// Deleted reports whether the sheet is marked for removal.
func (s *SheetMeta) Deleted() bool { return s.deleteRequested }

// HideState returns the sheet's final "state" attribute value ("", "hidden",
// or "veryHidden"): a hideCurrentSheet request wins, otherwise whatever
// state the template already had survives untouched.
func (s *SheetMeta) HideState() string {
	if s.hideRequested {
		return s.hideLevel
	}
	return s.OriginalState
}

// sanitizeSheetName strips the characters Excel forbids and truncates to 31
// UTF-16 code units. Leading/trailing single quotes are
// stripped rather than rejected, since rename input comes from template
// data rather than a programmer.
func sanitizeSheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return -1
		}
		return r
	}, name)
	name = strings.Trim(name, "'")
	units := utf16.Encode([]rune(name))
	if len(units) > 31 {
		units = units[:31]
	}
	return string(utf16.Decode(units))
}

// disambiguate appends "(n)" until name is unused.
func disambiguate(name string, used map[string]bool) string {
	if !used[name] {
		return name
	}
	base := name
	maxBase := 31
	for n := 2; ; n++ {
		suffix := " (" + strconv.Itoa(n) + ")"
		b := base
		if len(b)+len(suffix) > maxBase {
			b = b[:maxBase-len(suffix)]
		}
		candidate := b + suffix
		if !used[candidate] {
			return candidate
		}
	}
}
