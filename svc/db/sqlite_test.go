package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clips.db")
	s, err := openSQLite(path, 2, 2, time.Second)
	if err != nil {
		t.Fatalf("openSQLite: %v", err)
	}
	t.Cleanup(func() { s.db.Close() })
	return s
}

func TestSQLitePutGetDelete(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	clip := sampleClip("abc")

	if err := s.Put(ctx, clip, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	clip.Content = "updated"
	if err := s.Put(ctx, clip, time.Minute); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := s.Get(ctx, "abc")
	if err != nil || got == nil {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if got.Content != "updated" {
		t.Errorf("Content = %q", got.Content)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Count = %d", n)
	}
	ok, err := s.Delete(ctx, "abc")
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	ok, _ = s.Delete(ctx, "abc")
	if ok {
		t.Error("second Delete reported true")
	}
	if got, _ := s.Get(ctx, "abc"); got != nil {
		t.Error("deleted row still readable")
	}
}

func TestSQLiteExpiry(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now()
	s.now = func() time.Time { return now }

	if err := s.Put(ctx, sampleClip("a"), 5*time.Second); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, sampleClip("b"), time.Hour); err != nil {
		t.Fatal(err)
	}
	now = now.Add(10 * time.Second)

	if got, err := s.Get(ctx, "a"); err != nil || got != nil {
		t.Errorf("expired Get = %v, %v", got, err)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
	ok, err := s.Delete(ctx, "a")
	if err != nil || ok {
		t.Errorf("Delete of expired row = %v, %v", ok, err)
	}

	if err := s.Put(ctx, sampleClip("c"), time.Second); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Second)
	n, err := s.PurgeExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("PurgeExpired = %d, want 1", n)
	}
}

func TestSQLiteCircuitBreaker(t *testing.T) {
	s := newTestSQLite(t)
	for i := 0; i < maxFailures; i++ {
		s.recordError(context.DeadlineExceeded)
	}
	if s.Connected() {
		t.Error("open circuit should report disconnected")
	}
	if err := s.checkCircuit(); err != ErrCircuitOpen {
		t.Errorf("checkCircuit = %v", err)
	}
	s.recordError(nil)
	if !s.Connected() {
		t.Error("circuit did not close after success")
	}
}

func TestSQLiteClose(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "c.db"), testCfg("sqlite://x"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if s.Connected() {
		t.Error("closed tier reports connected")
	}
	if err := s.Put(context.Background(), sampleClip("z"), time.Minute); err == nil {
		t.Error("Put after Close succeeded")
	}
}

func TestSQLiteDeleteRemovesStaleRow(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now()
	s.now = func() time.Time { return now }
	if err := s.Put(ctx, sampleClip("stale"), time.Second); err != nil {
		t.Fatal(err)
	}
	now = now.Add(time.Minute)

	ok, err := s.Delete(ctx, "stale")
	if err != nil || ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM clips WHERE id = ?`, "stale").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("stale row left behind: %d", n)
	}
}

func TestSQLiteStalePurgeFailuresTripBreaker(t *testing.T) {
	s := newTestSQLite(t)
	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	for i := 0; i < maxFailures; i++ {
		if err := s.purgeStale(expired, "x"); err == nil {
			t.Fatal("purgeStale succeeded on an expired context")
		}
	}
	if s.Connected() {
		t.Error("stale purge failures did not open the circuit")
	}
}
