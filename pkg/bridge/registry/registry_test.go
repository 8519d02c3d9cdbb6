package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegistry_CreateGetRemove(t *testing.T) {
	r := New()
	if r.Count() != 0 {
		t.Fatalf("initial count=%d, want 0", r.Count())
	}

	release, err := r.Create("CA1", Handle{CallSID: "CA1", StreamSID: "MZ1"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if r.Count() != 1 {
		t.Fatalf("count=%d, want 1", r.Count())
	}

	h, err := r.Get("CA1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if h.StreamSID != "MZ1" {
		t.Fatalf("streamSid got=%q, want MZ1", h.StreamSID)
	}

	if _, err := r.Get("CA2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err got=%v, want ErrNotFound", err)
	}

	release()
	if _, err := r.Get("CA1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err after release got=%v, want ErrNotFound", err)
	}
}

func TestRegistry_DuplicateCreateFails(t *testing.T) {
	r := New()
	release, err := r.Create("CA1", Handle{CallSID: "CA1"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := r.Create("CA1", Handle{CallSID: "CA1"}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("err got=%v, want ErrAlreadyExists", err)
	}

	// Once the first is fully released the call id is usable again.
	release()
	release2, err := r.Create("CA1", Handle{CallSID: "CA1"})
	if err != nil {
		t.Fatalf("create after release failed: %v", err)
	}
	release2()
}

func TestRegistry_ReleaseIsIdempotent(t *testing.T) {
	r := New()
	release, err := r.Create("CA1", Handle{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	release()
	release()
	r.Remove("CA1")
	if r.Count() != 0 {
		t.Fatalf("count=%d, want 0", r.Count())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if ok := r.Wait(ctx); !ok {
		t.Fatalf("expected Wait to return true")
	}
}

func TestRegistry_RemoveByCallSID(t *testing.T) {
	r := New()
	if _, err := r.Create("CA1", Handle{}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	r.Remove("CA1")
	if r.Count() != 0 {
		t.Fatalf("count=%d, want 0", r.Count())
	}
	r.Remove("CA1")
	r.Remove("missing")
}

func TestRegistry_CancelAll(t *testing.T) {
	r := New()
	var c1, c2 atomic.Int64
	if _, err := r.Create("CA1", Handle{Cancel: func() { c1.Add(1) }}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := r.Create("CA2", Handle{Cancel: func() { c2.Add(1) }}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if n := r.CancelAll(); n != 2 {
		t.Fatalf("canceled=%d, want 2", n)
	}
	if c1.Load() != 1 || c2.Load() != 1 {
		t.Fatalf("cancel calls=%d/%d, want 1/1", c1.Load(), c2.Load())
	}
}

func TestRegistry_WaitTimesOut(t *testing.T) {
	r := New()
	if _, err := r.Create("CA1", Handle{}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if ok := r.Wait(ctx); ok {
		t.Fatalf("expected Wait to time out while a session is live")
	}
}

func TestRegistry_ConcurrentCreates(t *testing.T) {
	r := New()
	var created atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Create("CA1", Handle{}); err == nil {
				created.Add(1)
			}
		}()
	}
	wg.Wait()
	if created.Load() != 1 {
		t.Fatalf("created=%d, want exactly 1", created.Load())
	}
	if r.Count() != 1 {
		t.Fatalf("count=%d, want 1", r.Count())
	}
}
