package runner

import (
	"context"
	"testing"
	"time"
)

func TestDedupKey(t *testing.T) {
	if DedupKey("s", "print(1)") != DedupKey("s", "print(1)") {
		t.Error("same input should give the same key")
	}
	if DedupKey("s1", "print(1)") == DedupKey("s2", "print(1)") {
		t.Error("sessions must not share keys")
	}
	if DedupKey("ab", "c") == DedupKey("a", "bc") {
		t.Error("separator should keep session and code apart")
	}
	if len(DedupKey("", "")) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(DedupKey("", "")))
	}
}

func TestDedup_LookupWindow(t *testing.T) {
	clock := newFakeClock()
	d := NewDedup(time.Minute)
	d.now = clock.Now

	d.Store("k", Outcome{Text: "cached"})

	clock.Advance(30 * time.Second)
	got, age, ok := d.Lookup("k")
	if !ok || got.Text != "cached" || age != 30*time.Second {
		t.Errorf("Lookup = (%q, %s, %v), want (cached, 30s, true)", got.Text, age, ok)
	}

	clock.Advance(31 * time.Second)
	if _, _, ok := d.Lookup("k"); ok {
		t.Error("entry should have expired")
	}
	if d.Len() != 0 {
		t.Errorf("Len = %d, expired entry should be dropped on lookup", d.Len())
	}
}

func TestDedup_Sweep(t *testing.T) {
	clock := newFakeClock()
	d := NewDedup(time.Minute)
	d.now = clock.Now

	d.Store("old", Outcome{})
	clock.Advance(45 * time.Second)
	d.Store("new", Outcome{})
	clock.Advance(30 * time.Second)

	if removed := d.Sweep(); removed != 1 {
		t.Errorf("Sweep removed %d, want 1", removed)
	}
	if d.Len() != 1 {
		t.Errorf("Len = %d, want 1", d.Len())
	}
	if _, _, ok := d.Lookup("new"); !ok {
		t.Error("fresh entry should survive the sweep")
	}
}

func TestDedup_EvictsWhenFull(t *testing.T) {
	clock := newFakeClock()
	d := NewDedup(time.Hour)
	d.now = clock.Now

	for i := 0; i < maxDedupEntries; i++ {
		d.Store(DedupKey("s", string(rune(i))), Outcome{})
		clock.Advance(time.Millisecond)
	}
	d.Store("overflow", Outcome{})

	if d.Len() != maxDedupEntries {
		t.Errorf("Len = %d, want %d", d.Len(), maxDedupEntries)
	}
	if _, _, ok := d.Lookup(DedupKey("s", string(rune(0)))); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, _, ok := d.Lookup("overflow"); !ok {
		t.Error("new entry should be stored")
	}
}

func TestDedup_Nil(t *testing.T) {
	d := NewDedup(0)
	if d != nil {
		t.Fatal("zero window should disable the cache")
	}
	d.Store("k", Outcome{})
	if _, _, ok := d.Lookup("k"); ok {
		t.Error("nil cache should never hit")
	}
	if d.Sweep() != 0 || d.Len() != 0 {
		t.Error("nil cache should be empty")
	}
	d.Run(context.Background(), time.Millisecond)
}

func TestDedup_RunStopsOnCancel(t *testing.T) {
	d := NewDedup(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		d.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestCodeHash(t *testing.T) {
	// sha256("print(1)")
	if got := CodeHash("print(1)"); len(got) != 64 || got == CodeHash("print(2)") {
		t.Errorf("CodeHash = %q", got)
	}
}
