package presence

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegisterSession_FirstAndLast(t *testing.T) {
	r := NewRegistry()

	if !r.RegisterSession(1, "a") {
		t.Fatalf("first session should report first")
	}
	if r.RegisterSession(1, "b") {
		t.Fatalf("second session should not report first")
	}
	if !r.IsOnline(1) {
		t.Fatalf("user should be online")
	}
	if r.UnregisterSession(1, "a") {
		t.Fatalf("user still has a session")
	}
	if !r.IsOnline(1) {
		t.Fatalf("user should still be online")
	}
	if !r.UnregisterSession(1, "b") {
		t.Fatalf("last session should report offline")
	}
	if r.IsOnline(1) {
		t.Fatalf("user should be offline")
	}
}

func TestUnregister_UnknownIsNoop(t *testing.T) {
	r := NewRegistry()
	if r.UnregisterSession(9, "x") {
		t.Fatalf("unknown user must return false")
	}
	r.RegisterSession(9, "a")
	if r.UnregisterSession(9, "x") {
		t.Fatalf("unknown session must return false")
	}
	if !r.IsOnline(9) {
		t.Fatalf("unknown session must not affect the user")
	}
}

func TestRegister_DuplicateSession(t *testing.T) {
	r := NewRegistry()
	r.RegisterSession(1, "a")
	if r.RegisterSession(1, "a") {
		t.Fatalf("duplicate register must not report first")
	}
	if n := r.SessionCount(1); n != 1 {
		t.Fatalf("expected 1 session, got %d", n)
	}
	if !r.UnregisterSession(1, "a") {
		t.Fatalf("removing the only session should report offline")
	}
}

// Any interleaving of registers and unregisters leaves a user online iff the number of sessions
// still registered is non-zero.
func TestOnlineMatchesSessionSet(t *testing.T) {
	r := NewRegistry()
	steps := []struct {
		op   string
		sid  string
		want bool
	}{
		{"reg", "a", true},
		{"reg", "b", true},
		{"unreg", "a", true},
		{"reg", "c", true},
		{"unreg", "b", true},
		{"unreg", "zzz", true},
		{"unreg", "c", false},
		{"unreg", "c", false},
		{"reg", "d", true},
	}
	for i, s := range steps {
		if s.op == "reg" {
			r.RegisterSession(7, s.sid)
		} else {
			r.UnregisterSession(7, s.sid)
		}
		if got := r.IsOnline(7); got != s.want {
			t.Fatalf("step %d (%s %s): online=%v want %v", i, s.op, s.sid, got, s.want)
		}
	}
}

func TestConcurrentLastSessions_ExactlyOneOffline(t *testing.T) {
	for round := 0; round < 200; round++ {
		r := NewRegistry()
		r.RegisterSession(1, "a")
		r.RegisterSession(1, "b")

		var offline int32
		var wg sync.WaitGroup
		for _, sid := range []string{"a", "b"} {
			wg.Add(1)
			go func(sid string) {
				defer wg.Done()
				if r.UnregisterSession(1, sid) {
					atomic.AddInt32(&offline, 1)
				}
			}(sid)
		}
		wg.Wait()

		if offline != 1 {
			t.Fatalf("round %d: expected exactly one offline transition, got %d", round, offline)
		}
	}
}

func TestConcurrentFirstSessions_ExactlyOneFirst(t *testing.T) {
	r := NewRegistry()
	var first int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if r.RegisterSession(3, fmt.Sprintf("s-%d", i)) {
				atomic.AddInt32(&first, 1)
			}
		}(i)
	}
	wg.Wait()

	if first != 1 {
		t.Fatalf("expected exactly one first session, got %d", first)
	}
	if n := r.SessionCount(3); n != 50 {
		t.Fatalf("expected 50 sessions, got %d", n)
	}
}

func TestTouch(t *testing.T) {
	r := NewRegistry()
	r.Touch(1, time.Now())
	if _, ok := r.LastActivity(1); ok {
		t.Fatalf("touching an offline user must not create an entry")
	}

	r.RegisterSession(1, "a")
	at := time.Now().Add(time.Minute)
	r.Touch(1, at)
	got, ok := r.LastActivity(1)
	if !ok || !got.Equal(at) {
		t.Fatalf("expected last activity %v, got %v ok=%v", at, got, ok)
	}
}

func TestStatuses(t *testing.T) {
	r := NewRegistry()
	r.RegisterSession(1, "a")
	got := r.Statuses([]uint64{1, 2})
	if !got[1] || got[2] {
		t.Fatalf("unexpected statuses: %v", got)
	}
	if r.OnlineCount() != 1 {
		t.Fatalf("expected 1 online user")
	}
}
