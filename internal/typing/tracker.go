// Package typing keeps the "user A is typing to user B" indicators.
package typing

import (
	"sort"
	"sync"
	"time"
)

// Pair identifies one typing indicator.
type Pair struct {
	Sender    uint64
	Recipient uint64
}

// Tracker maps sender -> recipient -> time of the last typing signal.
type Tracker struct {
	mu      sync.Mutex
	senders map[uint64]map[uint64]time.Time
}

func NewTracker() *Tracker {
	return &Tracker{senders: make(map[uint64]map[uint64]time.Time)}
}

// Set records or refreshes the indicator for (sender, recipient).
func (t *Tracker) Set(sender, recipient uint64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.senders[sender]
	if !ok {
		m = make(map[uint64]time.Time)
		t.senders[sender] = m
	}
	m[recipient] = at
}

// Clear removes the indicator and reports whether it existed.
func (t *Tracker) Clear(sender, recipient uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.senders[sender]
	if !ok {
		return false
	}
	if _, ok := m[recipient]; !ok {
		return false
	}
	delete(m, recipient)
	if len(m) == 0 {
		delete(t.senders, sender)
	}
	return true
}

// ClearBefore removes the indicators of sender last signalled at or before cutoff and returns
// their recipients, ascending. Newer indicators stay.
func (t *Tracker) ClearBefore(sender uint64, cutoff time.Time) []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.senders[sender]
	if !ok {
		return nil
	}
	cleared := make(map[uint64]time.Time, len(m))
	for rcpt, at := range m {
		if !at.After(cutoff) {
			cleared[rcpt] = at
			delete(m, rcpt)
		}
	}
	if len(m) == 0 {
		delete(t.senders, sender)
	}
	if len(cleared) == 0 {
		return nil
	}
	return sortedRecipients(cleared)
}

func sortedRecipients(m map[uint64]time.Time) []uint64 {
	out := make([]uint64, 0, len(m))
	for rcpt := range m {
		out = append(out, rcpt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *Tracker) isTyping(sender, recipient uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.senders[sender][recipient]
	return ok
}

// Sweep removes and returns every indicator whose last signal is more than threshold before now.
func (t *Tracker) Sweep(now time.Time, threshold time.Duration) []Pair {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []Pair
	for sender, m := range t.senders {
		for rcpt, at := range m {
			if now.Sub(at) > threshold {
				expired = append(expired, Pair{Sender: sender, Recipient: rcpt})
				delete(m, rcpt)
			}
		}
		if len(m) == 0 {
			delete(t.senders, sender)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if expired[i].Sender != expired[j].Sender {
			return expired[i].Sender < expired[j].Sender
		}
		return expired[i].Recipient < expired[j].Recipient
	})
	return expired
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, m := range t.senders {
		n += len(m)
	}
	return n
}
