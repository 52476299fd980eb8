package shard

import (
	"testing"
	"time"
)

func TestParseRoundTrip(t *testing.T) {
	id, err := Parse("03-2027")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id.Year != 2027 || id.Month != time.March {
		t.Fatalf("got %+v", id)
	}
	if got := id.String(); got != "03-2027" {
		t.Fatalf("String() = %q", got)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "2027-03", "13-2027", "march", "3-2027x"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", s)
		}
	}
}

func TestCoveringSpansMonthBoundary(t *testing.T) {
	start := time.Date(2026, time.January, 25, 10, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.February, 5, 10, 0, 0, 0, time.UTC)

	ids := Covering(start, end)
	if len(ids) != 2 {
		t.Fatalf("got %d shards, want 2: %v", len(ids), ids)
	}
	if ids[0].String() != "01-2026" || ids[1].String() != "02-2026" {
		t.Fatalf("got %v", ids)
	}
}

func TestCoveringSingleMonth(t *testing.T) {
	start := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.June, 30, 23, 59, 59, 0, time.UTC)

	ids := Covering(start, end)
	if len(ids) != 1 || ids[0].String() != "06-2026" {
		t.Fatalf("got %v", ids)
	}
}

func TestCoveringCrossesYear(t *testing.T) {
	start := time.Date(2025, time.November, 12, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)

	ids := Covering(start, end)
	want := []string{"11-2025", "12-2025", "01-2026", "02-2026"}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i, w := range want {
		if ids[i].String() != w {
			t.Errorf("ids[%d] = %s, want %s", i, ids[i], w)
		}
	}
}
