package db

import (
	"clipstash/cfg"
	"clipstash/pkg/domain"
	"context"
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func testCfg(url string) *cfg.Cfg {
	return &cfg.Cfg{
		DurableURL:          url,
		DurableTimeout:      time.Second,
		DurableMaxRetries:   0,
		DurableRetryBackoff: 10 * time.Millisecond,
		DurablePingInterval: time.Hour,
	}
}

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	url := "redis://" + mr.Addr()
	r, err := NewRedis(context.Background(), url, testCfg(url))
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r, mr
}

func sampleClip(id string) *domain.Clip {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.Clip{
		ID:          id,
		Content:     "hello",
		ContentType: domain.ContentText,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
		MaxAccess:   3,
	}
}

func TestRedisPutGetDelete(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()
	if !r.Connected() {
		t.Fatal("expected connected after startup ping")
	}

	clip := sampleClip("abc")
	if err := r.Put(ctx, clip, 90*time.Second); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ttl := mr.TTL(keyPrefix + "abc"); ttl != 90*time.Second {
		t.Errorf("TTL = %v, want 90s", ttl)
	}

	got, err := r.Get(ctx, "abc")
	if err != nil || got == nil {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if got.Content != "hello" || got.MaxAccess != 3 || !got.ExpiresAt.Equal(clip.ExpiresAt) {
		t.Errorf("Get = %+v", got)
	}

	n, err := r.Count(ctx)
	if err != nil || n != 1 {
		t.Errorf("Count = %d, %v", n, err)
	}

	ok, err := r.Delete(ctx, "abc")
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	ok, err = r.Delete(ctx, "abc")
	if err != nil || ok {
		t.Fatalf("second Delete = %v, %v", ok, err)
	}
}

func TestRedisMissIsNotAnError(t *testing.T) {
	r, _ := newTestRedis(t)
	got, err := r.Get(context.Background(), "nope")
	if err != nil || got != nil {
		t.Fatalf("Get miss = %v, %v", got, err)
	}
	if !r.Connected() {
		t.Error("a miss must not mark the tier disconnected")
	}
}

func TestRedisKeyExpires(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()
	if err := r.Put(ctx, sampleClip("short"), 2*time.Second); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(3 * time.Second)
	got, err := r.Get(ctx, "short")
	if err != nil || got != nil {
		t.Fatalf("Get after ttl = %v, %v", got, err)
	}
}

func TestRedisMinimumTTL(t *testing.T) {
	r, mr := newTestRedis(t)
	if err := r.Put(context.Background(), sampleClip("tiny"), 200*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL(keyPrefix + "tiny"); ttl != time.Second {
		t.Errorf("TTL = %v, want 1s floor", ttl)
	}
}

func TestRedisOutageFlipsConnected(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()
	if !r.Connected() {
		t.Fatal("expected connected")
	}
	mr.Close()
	if _, err := r.Get(ctx, "any"); err == nil {
		t.Fatal("expected error with server down")
	}
	if r.Connected() {
		t.Error("tier still reports connected after transport failure")
	}

	if err := mr.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if err := r.Ping(ctx); err != nil {
		t.Fatalf("Ping after restart: %v", err)
	}
	if !r.Connected() {
		t.Error("tier did not recover after successful ping")
	}
}

func TestRedisUnreachableAtStartup(t *testing.T) {
	url := "redis://127.0.0.1:1"
	r, err := NewRedis(context.Background(), url, testCfg(url))
	if err != nil {
		t.Fatalf("NewRedis must not fail on an unreachable server: %v", err)
	}
	defer r.Close()
	if r.Connected() {
		t.Error("unreachable server reported connected")
	}
}

func TestRedisCloseIdempotent(t *testing.T) {
	r, _ := newTestRedis(t)
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	r.Close()
	if r.Connected() {
		t.Error("closed tier reports connected")
	}
}

func TestIsTransportErr(t *testing.T) {
	if isTransportErr(nil) {
		t.Error("nil")
	}
	if isTransportErr(context.Canceled) {
		t.Error("canceled")
	}
	if !isTransportErr(context.DeadlineExceeded) {
		t.Error("deadline exceeded should count as transport failure")
	}
}

func TestCallerDeadlineKeepsTierConnected(t *testing.T) {
	r := &Redis{}
	r.connected.Store(true)
	h := lifecycleHook{r: r}

	caller, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	h.observe(caller, context.DeadlineExceeded)
	if !r.Connected() {
		t.Fatal("a caller's expired deadline marked the tier disconnected")
	}

	tierCtx, tierCancel := context.WithDeadlineCause(context.Background(), time.Now().Add(-time.Second), errTierTimeout)
	defer tierCancel()
	h.observe(tierCtx, context.DeadlineExceeded)
	if r.Connected() {
		t.Error("the tier's own timeout did not mark it disconnected")
	}
}

func TestRedisCommandWithExpiredCallerContext(t *testing.T) {
	r, _ := newTestRedis(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	if _, err := r.Get(ctx, "any"); err == nil {
		t.Fatal("expected error from an expired context")
	}
	if !r.Connected() {
		t.Error("tier marked disconnected by a caller deadline")
	}
}

func TestRedisTLSFromCfg(t *testing.T) {
	c := testCfg("rediss://cache.internal:6380")
	c.DurableTLS = true
	c.DurableTLSServerName = "cache.example"
	tc, err := redisTLS(&tls.Config{ServerName: "cache.internal"}, c)
	if err != nil {
		t.Fatal(err)
	}
	if tc.ServerName != "cache.example" {
		t.Errorf("ServerName = %q", tc.ServerName)
	}
	if tc.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x", tc.MinVersion)
	}
	if tc.RootCAs != nil {
		t.Error("RootCAs set without a CA bundle")
	}

	c.DurableTLSCACert = filepath.Join(t.TempDir(), "missing.pem")
	if _, err := redisTLS(nil, c); err == nil {
		t.Error("missing CA bundle accepted")
	}

	junk := filepath.Join(t.TempDir(), "junk.pem")
	if err := os.WriteFile(junk, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}
	c.DurableTLSCACert = junk
	if _, err := redisTLS(nil, c); err == nil {
		t.Error("CA bundle without certificates accepted")
	}
}
