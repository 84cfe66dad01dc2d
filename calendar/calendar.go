package calendar

import (
	"strconv"
	"time"
)

type Kind int

const (
	KindHeader Kind = iota
	KindEmpty
	KindDate
)

// Weekday labels, Sunday first.
var Headers = [7]string{"S", "M", "T", "W", "T", "F", "S"}

// Cell is one slot of the month grid. Day is zero for header and empty cells.
type Cell struct {
	Kind         Kind
	Label        string
	Day          int
	IsSpecialDay bool
}

// Build returns the grid for the given month: 7 header cells, one empty cell per
// weekday before the 1st, then one date cell per day of the month.
func Build(year int, month time.Month, specialDay int) []Cell {
	first := firstOfMonth(year, month)
	days := DaysIn(year, month)
	lead := int(first.Weekday())

	cells := make([]Cell, 0, len(Headers)+lead+days)
	for _, h := range Headers {
		cells = append(cells, Cell{Kind: KindHeader, Label: h})
	}
	for i := 0; i < lead; i++ {
		cells = append(cells, Cell{Kind: KindEmpty})
	}
	for day := 1; day <= days; day++ {
		cells = append(cells, Cell{
			Kind:         KindDate,
			Label:        strconv.Itoa(day),
			Day:          day,
			IsSpecialDay: day == specialDay,
		})
	}
	return cells
}

// DaysIn reports the number of days in month, leap years included.
func DaysIn(year int, month time.Month) int {
	// Day 0 of the next month normalizes to the last day of this one.
	return time.Date(year, month+1, 0, 12, 0, 0, 0, time.UTC).Day()
}

// FirstWeekday returns the weekday index (0=Sunday) of the 1st of month.
func FirstWeekday(year int, month time.Month) int {
	return int(firstOfMonth(year, month).Weekday())
}

// Rows splits cells into weeks of seven, padding the last week with empty cells.
func Rows(cells []Cell) [][]Cell {
	var rows [][]Cell
	for len(cells) > 0 {
		n := min(len(Headers), len(cells))
		row := make([]Cell, len(Headers))
		copy(row, cells[:n])
		for i := n; i < len(row); i++ {
			row[i] = Cell{Kind: KindEmpty}
		}
		rows = append(rows, row)
		cells = cells[n:]
	}
	return rows
}

func firstOfMonth(year int, month time.Month) time.Time {
	// Noon avoids any DST edge when the weekday is read back.
	return time.Date(year, month, 1, 12, 0, 0, 0, time.UTC)
}
