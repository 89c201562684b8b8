package cache

import (
	"clipstash/pkg/domain"
	"testing"
	"time"
)

func newClip(id string, expires time.Time) *domain.Clip {
	return &domain.Clip{ID: id, Content: "c-" + id, CreatedAt: expires.Add(-time.Hour), ExpiresAt: expires}
}

func TestNewLRUValidatesSize(t *testing.T) {
	if _, err := NewLRU(0); err == nil {
		t.Error("expected error for size 0")
	}
	if _, err := NewLRU(maxSize + 1); err == nil {
		t.Error("expected error for oversized cache")
	}
}

func TestLRUGetReturnsCopy(t *testing.T) {
	l, err := NewLRU(10)
	if err != nil {
		t.Fatal(err)
	}
	l.Set(newClip("a", time.Now().Add(time.Hour)))

	got, ok := l.Get("a")
	if !ok {
		t.Fatal("expected hit")
	}
	got.AccessCount = 99

	again, _ := l.Get("a")
	if again.AccessCount != 0 {
		t.Errorf("mutation leaked into the table: AccessCount = %d", again.AccessCount)
	}
}

func TestLRUDelete(t *testing.T) {
	l, _ := NewLRU(10)
	l.Set(newClip("a", time.Now().Add(time.Hour)))
	if !l.Delete("a") {
		t.Error("first Delete should report presence")
	}
	if l.Delete("a") {
		t.Error("second Delete should report absence")
	}
	if _, ok := l.Get("a"); ok {
		t.Error("entry still present after Delete")
	}
}

func TestLRUSweep(t *testing.T) {
	l, _ := NewLRU(10)
	now := time.Now()
	l.Set(newClip("old1", now.Add(-time.Minute)))
	l.Set(newClip("old2", now.Add(-time.Second)))
	l.Set(newClip("fresh", now.Add(time.Minute)))

	if removed := l.Sweep(now); removed != 2 {
		t.Errorf("Sweep removed %d, want 2", removed)
	}
	if l.Len() != 1 {
		t.Errorf("Len after sweep = %d, want 1", l.Len())
	}
	if _, ok := l.Get("fresh"); !ok {
		t.Error("unexpired entry was swept")
	}
}

func TestLRUSnapshotIncludesExpired(t *testing.T) {
	l, _ := NewLRU(10)
	now := time.Now()
	l.Set(newClip("old", now.Add(-time.Minute)))
	l.Set(newClip("fresh", now.Add(time.Minute)))

	if got := len(l.Snapshot()); got != 2 {
		t.Errorf("Snapshot len = %d, want 2", got)
	}
	if l.Len() != 2 {
		t.Error("Snapshot must not remove entries")
	}
}

func TestLRUEvictsAtCapacity(t *testing.T) {
	l, _ := NewLRU(2)
	exp := time.Now().Add(time.Hour)
	l.Set(newClip("a", exp))
	l.Set(newClip("b", exp))
	l.Get("a")
	l.Set(newClip("c", exp))

	if _, ok := l.Get("b"); ok {
		t.Error("least recently used entry should have been evicted")
	}
	if _, ok := l.Get("a"); !ok {
		t.Error("recently used entry was evicted")
	}
}
