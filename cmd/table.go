package cmd

import (
	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
)

// PrintTableNoPad prints rows as a table without cell padding.
func PrintTableNoPad(rows pterm.TableData, hasHeader bool) {
	table := pterm.DefaultTable.WithData(rows).WithBoxed(false)
	if hasHeader {
		table = table.WithHasHeader()
	}
	_ = table.Render()
}

// cell returns the first non-empty value, or "-" so empty table cells stay
// visible.
func cell(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return "-"
}

// sizeCell shows a component's source size, e.g. "4.2 kB".
func sizeCell(n int64) string {
	if n < 0 {
		return "-"
	}
	return humanize.Bytes(uint64(n))
}
