package transcripts

import (
	"testing"
	"time"
)

func TestPeriodKeyFormats(t *testing.T) {
	cases := map[string]int{
		"Q2FY26":   20262,
		"q2 fy26":  20262,
		"FY26Q2":   20262,
		"2025-Q3":  20253,
		"Q3 2025":  20253,
		"Q1FY2027": 20271,
	}
	for in, want := range cases {
		got, ok := PeriodKey(in)
		if !ok || got != want {
			t.Fatalf("PeriodKey(%q) = %d, %v; want %d", in, got, ok, want)
		}
	}
	if _, ok := PeriodKey("H1-2025"); ok {
		t.Fatalf("expected unrecognized format")
	}
}

func TestSortNewestFirst(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	list := []Transcript{
		{Period: "Q4FY25", ReceivedAt: base},
		{Period: "Q2FY26", ReceivedAt: base},
		{Period: "annual-2024", ReceivedAt: base},
		{Period: "Q1FY26", ReceivedAt: base},
		{Period: "Q3FY25", ReceivedAt: base},
	}
	SortNewestFirst(list)
	want := []string{"Q2FY26", "Q1FY26", "Q4FY25", "Q3FY25", "annual-2024"}
	for i, p := range want {
		if list[i].Period != p {
			t.Fatalf("position %d: got %s want %s (%v)", i, list[i].Period, p, list)
		}
	}
}
