package datefmt

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFormat_Truncate(t *testing.T) {
	cases := []struct {
		name   string
		in     time.Time
		offset int
		want   string
	}{
		{"midday", time.Date(2024, 3, 1, 10, 15, 30, 999, time.UTC), 0, "2024-03-01 00:00:00"},
		{"next day", time.Date(2024, 3, 1, 10, 15, 30, 0, time.UTC), 1, "2024-03-02 00:00:00"},
		{"leap day", time.Date(2024, 2, 28, 23, 59, 59, 0, time.UTC), 1, "2024-02-29 00:00:00"},
		{"year end", time.Date(2023, 12, 31, 1, 0, 0, 0, time.UTC), 1, "2024-01-01 00:00:00"},
		{"negative", time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), -1, "2023-12-31 00:00:00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Format(tc.in, tc.offset, true)
			if err != nil {
				t.Fatalf("Format: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Format = %q; want %q", got, tc.want)
			}
		})
	}
}

func TestFormat_NoTruncateIgnoresOffset(t *testing.T) {
	ts := time.Date(2024, 1, 2, 5, 6, 7, 0, time.UTC)
	got, err := Format(ts, 3, false)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if got != "2024-01-02 05:06:07" {
		t.Fatalf("Format = %q", got)
	}
}

func TestFormat_ZeroIsInvalid(t *testing.T) {
	_, err := Format(time.Time{}, 0, true)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v; want ErrInvalidInput", err)
	}
}

func TestFormat_TruncatedProperties(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 800; i++ {
		d := start.Add(time.Duration(i) * 31 * time.Hour)

		day, _ := Format(d, 0, true)
		if !strings.HasSuffix(day, " 00:00:00") {
			t.Fatalf("%v: %q does not end at midnight", d, day)
		}
		if day[:10] != d.Format("2006-01-02") {
			t.Fatalf("%v: %q has the wrong calendar date", d, day)
		}

		next, _ := Format(d, 1, true)
		if want := d.AddDate(0, 0, 1).Format("2006-01-02") + " 00:00:00"; next != want {
			t.Fatalf("%v: offset 1 = %q; want %q", d, next, want)
		}
	}
}

func TestFormatter_Location(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	f := New(loc)
	// 23:30 UTC is already the next day two hours east.
	got, err := f.Format(time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC), 0, true)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if got != "2024-01-02 00:00:00" {
		t.Fatalf("Format = %q", got)
	}
}

// String order must match time order for any two boundaries.
func TestBoundaryOrderMatchesTimeOrder(t *testing.T) {
	times := []time.Time{
		time.Date(999, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC),
		time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC),
	}
	for i := range times {
		for j := range times {
			a, _ := Format(times[i], 0, false)
			b, _ := Format(times[j], 0, false)
			if len(a) != len(Layout) || len(b) != len(Layout) {
				t.Fatalf("width changed: %q %q", a, b)
			}
			if (a < b) != times[i].Before(times[j]) {
				t.Fatalf("order mismatch: %q vs %q", a, b)
			}
		}
	}
}

func TestResolveRange(t *testing.T) {
	f := New(time.UTC)
	now := time.Date(2024, 3, 1, 10, 15, 30, 0, time.UTC)

	r, err := f.ResolveRange(Default, Default, now)
	if err != nil {
		t.Fatalf("ResolveRange: %v", err)
	}
	if r.Begin != "2024-03-01 00:00:00" || r.End != "2024-03-02 00:00:00" {
		t.Fatalf("range = %v", r)
	}

	r, err = f.ResolveRange("2024-01-01 00:00:00", Default, now)
	if err != nil {
		t.Fatalf("ResolveRange: %v", err)
	}
	if r.Begin != "2024-01-01 00:00:00" || r.End != "2024-03-02 00:00:00" {
		t.Fatalf("range = %v", r)
	}

	bad := [][2]string{
		{"2024-1-1 00:00:00", Default},
		{"2024-01-01", Default},
		{Default, "yesterday"},
		{"2024-01-02 00:00:00", "2024-01-01 00:00:00"},
	}
	for _, b := range bad {
		if _, err := f.ResolveRange(b[0], b[1], now); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("ResolveRange(%q, %q) err = %v; want ErrInvalidInput", b[0], b[1], err)
		}
	}
}

func TestRange_HalfOpen(t *testing.T) {
	r := Range{Begin: "2024-01-01 00:00:00", End: "2024-01-02 00:00:00"}
	if !r.Contains("2024-01-01 00:00:00") {
		t.Fatal("begin should be included")
	}
	if r.Contains("2024-01-02 00:00:00") {
		t.Fatal("end should be excluded")
	}
	if !r.Contains("2024-01-01 23:59:59") {
		t.Fatal("last second should be included")
	}
	if r.Contains("2023-12-31 23:59:59") {
		t.Fatal("before begin should be excluded")
	}
}
