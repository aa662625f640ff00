package sheets

import (
	"fmt"
)

// columnName converts a 1-based column index to its A1 letter form
// (1 -> A, 26 -> Z, 27 -> AA).
func columnName(col int) string {
	name := ""
	for col > 0 {
		col--
		name = string(rune('A'+col%26)) + name
		col /= 26
	}
	return name
}

// anchor formats a worksheet-qualified A1 reference for the top-left cell of
// an upload, e.g. anchor("inventory", 1, 4) -> "'inventory'!D1".
func anchor(worksheet string, row, col int) string {
	return fmt.Sprintf("'%s'!%s%d", worksheet, columnName(col), row)
}
