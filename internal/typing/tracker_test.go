package typing

import (
	"testing"
	"time"
)

func TestSetAndClear(t *testing.T) {
	tr := NewTracker()
	tr.Set(1, 2, time.Now())

	if !tr.isTyping(1, 2) {
		t.Fatalf("expected 1 typing to 2")
	}
	if tr.isTyping(2, 1) {
		t.Fatalf("indicators are directional")
	}
	if !tr.Clear(1, 2) {
		t.Fatalf("clear should report an existing entry")
	}
	if tr.Clear(1, 2) {
		t.Fatalf("second clear must be a no-op")
	}
	if tr.Len() != 0 {
		t.Fatalf("tracker should be empty")
	}
}

func TestSweep(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	threshold := 10 * time.Second

	tests := []struct {
		name    string
		age     time.Duration
		expired bool
	}{
		{"fresh", 1 * time.Second, false},
		{"at threshold", 10 * time.Second, false},
		{"stale", 11 * time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker()
			tr.Set(1, 2, base)

			got := tr.Sweep(base.Add(tt.age), threshold)
			if tt.expired {
				if len(got) != 1 || got[0] != (Pair{Sender: 1, Recipient: 2}) {
					t.Fatalf("expected expired pair, got %v", got)
				}
				if tr.isTyping(1, 2) {
					t.Fatalf("expired entry must be removed")
				}
				return
			}
			if len(got) != 0 {
				t.Fatalf("expected nothing expired, got %v", got)
			}
			if !tr.isTyping(1, 2) {
				t.Fatalf("fresh entry must stay")
			}
		})
	}
}

func TestSweep_RefreshKeepsEntry(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker()

	tr.Set(1, 2, base)
	tr.Set(1, 2, base.Add(8*time.Second))

	if got := tr.Sweep(base.Add(12*time.Second), 10*time.Second); len(got) != 0 {
		t.Fatalf("refreshed entry must not expire, got %v", got)
	}
	if got := tr.Sweep(base.Add(19*time.Second), 10*time.Second); len(got) != 1 {
		t.Fatalf("expected refreshed entry to expire later, got %v", got)
	}
}

func TestSweep_OnlyStaleEntries(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker()
	tr.Set(1, 2, base)
	tr.Set(1, 3, base.Add(9*time.Second))
	tr.Set(4, 2, base)

	got := tr.Sweep(base.Add(15*time.Second), 10*time.Second)
	want := []Pair{{Sender: 1, Recipient: 2}, {Sender: 4, Recipient: 2}}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if !tr.isTyping(1, 3) {
		t.Fatalf("fresh entry of the same sender must survive")
	}
}

func TestClearBefore(t *testing.T) {
	tr := NewTracker()
	cutoff := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tr.Set(1, 3, cutoff.Add(-time.Second))
	tr.Set(1, 2, cutoff)
	tr.Set(1, 4, cutoff.Add(time.Millisecond))
	tr.Set(5, 1, cutoff.Add(-time.Second))

	got := tr.ClearBefore(1, cutoff)
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("unexpected recipients: %v", got)
	}
	if !tr.isTyping(1, 4) {
		t.Fatalf("indicator newer than the cutoff must survive")
	}
	if tr.ClearBefore(1, cutoff) != nil {
		t.Fatalf("second ClearBefore must be empty")
	}
	if !tr.isTyping(5, 1) {
		t.Fatalf("other senders must be untouched")
	}

	if got := tr.ClearBefore(1, cutoff.Add(time.Second)); len(got) != 1 || got[0] != 4 {
		t.Fatalf("expected the remaining indicator, got %v", got)
	}
	if tr.Len() != 1 {
		t.Fatalf("only sender 5 should remain, got %d", tr.Len())
	}
}
