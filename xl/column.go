package xl

import (
	"strconv"
	"strings"
	"unicode"
)

// ColumnNumberAsLetters converts a 1-based column number to Excel column
// letters. For example: 1 -> "A", 26 -> "Z", 27 -> "AA", 702 -> "ZZ".
// Panics if n < 1.
func ColumnNumberAsLetters(n int) string {
	if n < 1 {
		panic("invalid column number")
	}
	var s string
	for n > 0 {
		s = string(rune((n-1)%26+65)) + s
		n = (n - 1) / 26
	}
	return s
}

// ColumnLettersAsNumber is the inverse of ColumnNumberAsLetters: a 1-based
// integer with A=1. Returns an error for anything outside A-Z letters.
func ColumnLettersAsNumber(letters string) (int, error) {
	if letters == "" {
		return 0, Errorf(KindTemplateEval, "empty column name")
	}
	n := 0
	for _, ch := range strings.ToUpper(letters) {
		if ch < 'A' || ch > 'Z' {
			return 0, Errorf(KindTemplateEval, "invalid column letter %q", letters)
		}
		n = n*26 + int(ch-'A') + 1
	}
	return n, nil
}

// CellCoordAsString converts 1-based column and row numbers to an Excel
// cell reference. For example: (1, 1) -> "A1", (3, 5) -> "C5".
func CellCoordAsString(col, row int) string {
	if row < 0 {
		panic("invalid row number")
	}
	return ColumnNumberAsLetters(col) + strconv.Itoa(row)
}

// ParseCellRef parses a cell reference like "A1" into 1-based column and
// row numbers.
func ParseCellRef(ref string) (col, row int, err error) {
	if ref == "" {
		return 0, 0, Errorf(KindTemplateEval, "empty cell reference")
	}
	i := 0
	for i < len(ref) && unicode.IsLetter(rune(ref[i])) {
		i++
	}
	if i == 0 || i == len(ref) {
		return 0, 0, Errorf(KindTemplateEval, "invalid cell reference %q", ref)
	}
	col, err = ColumnLettersAsNumber(ref[:i])
	if err != nil {
		return 0, 0, err
	}
	row, convErr := strconv.Atoi(ref[i:])
	if convErr != nil || row < 1 {
		return 0, 0, Errorf(KindTemplateEval, "invalid row number in %q", ref)
	}
	return col, row, nil
}

// ParseRangeRef parses a merge/range reference like "A1:B2".
func ParseRangeRef(ref string) (startCol, startRow, endCol, endRow int, err error) {
	parts := strings.Split(ref, ":")
	if len(parts) != 2 {
		return 0, 0, 0, 0, Errorf(KindTemplateEval, "invalid range %q, expected A1:B2", ref)
	}
	startCol, startRow, err = ParseCellRef(parts[0])
	if err != nil {
		return 0, 0, 0, 0, err
	}
	endCol, endRow, err = ParseCellRef(parts[1])
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return startCol, startRow, endCol, endRow, nil
}

// ColumnName implements the `toColumnName` helper contract: given a
// current column (either letters or a 1-based integer string) and an
// offset, returns the shifted column's letters.
func ColumnName(current string, offset int) (string, error) {
	var col int
	if n, convErr := strconv.Atoi(strings.TrimSpace(current)); convErr == nil {
		col = n
	} else {
		c, err := ColumnLettersAsNumber(current)
		if err != nil {
			return "", err
		}
		col = c
	}
	col += offset
	if col < 1 {
		return "", Errorf(KindTemplateEval, "column shift below A: %q offset %d", current, offset)
	}
	return ColumnNumberAsLetters(col), nil
}

// ColumnIndex implements `toColumnIndex`: column letters -> 1-based integer.
func ColumnIndex(name string) (int, error) {
	return ColumnLettersAsNumber(name)
}
