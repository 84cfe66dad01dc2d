package calendar

import (
	"testing"
	"time"
)

func countKinds(cells []Cell) (headers, empties, dates, special int) {
	for _, c := range cells {
		switch c.Kind {
		case KindHeader:
			headers++
		case KindEmpty:
			empties++
		case KindDate:
			dates++
		}
		if c.IsSpecialDay {
			special++
		}
	}
	return
}

func TestBuildCounts(t *testing.T) {
	tests := []struct {
		year      int
		month     time.Month
		special   int
		wantEmpty int
		wantDates int
	}{
		{2025, time.August, 13, 5, 31}, // Friday
		{2024, time.February, 29, 4, 29},
		{2023, time.February, 13, 3, 28},
		{2000, time.February, 1, 2, 29},
		{1900, time.February, 1, 4, 28},
		{2023, time.October, 31, 0, 31}, // starts on Sunday
		{2025, time.November, 30, 6, 30},
	}

	for _, tt := range tests {
		cells := Build(tt.year, tt.month, tt.special)
		headers, empties, dates, special := countKinds(cells)
		if headers != 7 {
			t.Errorf("%d-%02d: headers = %d, want 7", tt.year, tt.month, headers)
		}
		if empties != tt.wantEmpty {
			t.Errorf("%d-%02d: empties = %d, want %d", tt.year, tt.month, empties, tt.wantEmpty)
		}
		if empties != FirstWeekday(tt.year, tt.month) {
			t.Errorf("%d-%02d: empties = %d, FirstWeekday = %d", tt.year, tt.month, empties, FirstWeekday(tt.year, tt.month))
		}
		if dates != tt.wantDates {
			t.Errorf("%d-%02d: dates = %d, want %d", tt.year, tt.month, dates, tt.wantDates)
		}
		if special != 1 {
			t.Errorf("%d-%02d: special cells = %d, want 1", tt.year, tt.month, special)
		}
	}
}

func TestBuildOrder(t *testing.T) {
	cells := Build(2025, time.August, 13)

	for i, want := range Headers {
		if cells[i].Kind != KindHeader || cells[i].Label != want {
			t.Fatalf("cell %d = %+v, want header %q", i, cells[i], want)
		}
	}

	firstDate := 7 + 5
	for i := 7; i < firstDate; i++ {
		if cells[i].Kind != KindEmpty {
			t.Fatalf("cell %d = %+v, want empty", i, cells[i])
		}
	}
	for day := 1; day <= 31; day++ {
		c := cells[firstDate+day-1]
		if c.Kind != KindDate || c.Day != day {
			t.Fatalf("cell for day %d = %+v", day, c)
		}
		if c.IsSpecialDay != (day == 13) {
			t.Errorf("day %d special = %v", day, c.IsSpecialDay)
		}
	}
	if got := cells[firstDate+12].Label; got != "13" {
		t.Errorf("label = %q, want 13", got)
	}
}

func TestBuildSpecialDayOutOfRange(t *testing.T) {
	for _, day := range []int{0, -1, 31} {
		_, _, _, special := countKinds(Build(2024, time.February, day))
		if special != 0 {
			t.Errorf("special day %d: got %d special cells, want 0", day, special)
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	a := Build(2025, time.August, 13)
	b := Build(2025, time.August, 13)
	if len(a) != len(b) {
		t.Fatalf("len %d != %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("cell %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestRows(t *testing.T) {
	cells := Build(2025, time.August, 13)
	rows := Rows(cells)

	// header + 6 weeks (5 leading blanks + 31 days = 36 cells)
	if len(rows) != 7 {
		t.Fatalf("rows = %d, want 7", len(rows))
	}
	for i, row := range rows {
		if len(row) != 7 {
			t.Errorf("row %d has %d cells", i, len(row))
		}
	}
	last := rows[len(rows)-1]
	if last[0].Day != 31 {
		t.Errorf("last row starts with %+v, want day 31", last[0])
	}
	for _, c := range last[1:] {
		if c.Kind != KindEmpty {
			t.Errorf("padding cell = %+v, want empty", c)
		}
	}
}
