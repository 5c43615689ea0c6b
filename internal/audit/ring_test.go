package audit

import (
	"strconv"
	"testing"
)

func TestRingFIFOEviction(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.Append(Entry{ClientIP: "ip", URI: strconv.Itoa(i)})
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 (capacity)", r.Len())
	}
	entries := r.Query(0, 10, "", "")
	if len(entries) != 3 {
		t.Fatalf("Query returned %d entries, want 3", len(entries))
	}
	// Oldest two entries (uri "0", "1") should have been evicted.
	if entries[0].URI != "2" {
		t.Errorf("oldest retained entry URI = %q, want %q", entries[0].URI, "2")
	}
	if entries[len(entries)-1].URI != "4" {
		t.Errorf("newest entry URI = %q, want %q", entries[len(entries)-1].URI, "4")
	}
}

func TestRingDefaultsCapacity(t *testing.T) {
	r := NewRing(0)
	if cap(r.buf) != 10000 {
		t.Errorf("default capacity = %d, want 10000", cap(r.buf))
	}
}

func TestRingQueryFiltersByIPAndRuleID(t *testing.T) {
	r := NewRing(10)
	r.Append(Entry{ClientIP: "1.1.1.1", RuleID: "r1"})
	r.Append(Entry{ClientIP: "2.2.2.2", RuleID: "r2"})
	r.Append(Entry{ClientIP: "1.1.1.1", RuleID: "r2"})

	byIP := r.Query(0, 10, "1.1.1.1", "")
	if len(byIP) != 2 {
		t.Errorf("filter by ip returned %d entries, want 2", len(byIP))
	}
	byRule := r.Query(0, 10, "", "r2")
	if len(byRule) != 2 {
		t.Errorf("filter by rule_id returned %d entries, want 2", len(byRule))
	}
	both := r.Query(0, 10, "1.1.1.1", "r2")
	if len(both) != 1 {
		t.Errorf("filter by ip+rule_id returned %d entries, want 1", len(both))
	}
}

func TestRingQueryPaginates(t *testing.T) {
	r := NewRing(10)
	for i := 0; i < 5; i++ {
		r.Append(Entry{URI: strconv.Itoa(i)})
	}
	page := r.Query(2, 2, "", "")
	if len(page) != 2 {
		t.Fatalf("page len = %d, want 2", len(page))
	}
	if page[0].URI != "2" || page[1].URI != "3" {
		t.Errorf("page = %+v, want entries with URI 2,3", page)
	}
}

func TestRingQueryOffsetBeyondLengthReturnsEmpty(t *testing.T) {
	r := NewRing(10)
	r.Append(Entry{})
	if got := r.Query(5, 10, "", ""); got != nil {
		t.Errorf("Query with offset beyond length = %v, want nil", got)
	}
}

func TestRingAssignsMonotonicIDs(t *testing.T) {
	r := NewRing(10)
	r.Append(Entry{})
	r.Append(Entry{})
	entries := r.Query(0, 10, "", "")
	if entries[0].ID != 1 || entries[1].ID != 2 {
		t.Errorf("IDs = %d, %d, want 1, 2", entries[0].ID, entries[1].ID)
	}
}
