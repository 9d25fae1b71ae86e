package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestService(t *testing.T, path string, reloads *atomic.Int32) (*Service, context.Context) {
	t.Helper()
	svc := NewService(path, func(_ context.Context, got string) error {
		if got != path {
			t.Errorf("reload path = %q, want %q", got, path)
		}
		reloads.Add(1)
		return nil
	}, testLogger())
	svc.SetDebounce(30 * time.Millisecond)
	svc.SetPollInterval(20 * time.Millisecond)
	svc.probeTimeout = 200 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return svc, ctx
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestSeedChangeTriggersReload(t *testing.T) {
	dir := t.TempDir()
	seed := filepath.Join(dir, "cameras.json")
	if err := os.WriteFile(seed, []byte(`[]`), 0o600); err != nil {
		t.Fatal(err)
	}

	var reloads atomic.Int32
	svc, ctx := newTestService(t, seed, &reloads)
	go svc.Start(ctx)
	time.Sleep(300 * time.Millisecond) // let the probe and watcher initialize

	if reloads.Load() != 0 {
		t.Fatalf("reload before any change: %d", reloads.Load())
	}

	if err := os.WriteFile(seed, []byte(`[{"code":"001000","name":"Praça"}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return reloads.Load() >= 1 }) {
		t.Fatal("expected reload after seed write")
	}

	// A burst of writes collapses into one further reload.
	before := reloads.Load()
	for i := range 5 {
		payload := []byte(`[{"code":"001000","name":"v` + string(rune('a'+i)) + `x"}]`)
		if err := os.WriteFile(seed, payload, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if !waitFor(t, 2*time.Second, func() bool { return reloads.Load() > before }) {
		t.Fatal("expected reload after burst")
	}
	time.Sleep(200 * time.Millisecond)
	if got := reloads.Load() - before; got > 2 {
		t.Errorf("burst produced %d reloads, want at most 2", got)
	}
}

func TestOtherFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	seed := filepath.Join(dir, "cameras.json")
	if err := os.WriteFile(seed, []byte(`[]`), 0o600); err != nil {
		t.Fatal(err)
	}

	var reloads atomic.Int32
	svc, ctx := newTestService(t, seed, &reloads)
	go svc.Start(ctx)
	time.Sleep(300 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if got := reloads.Load(); got != 0 {
		t.Errorf("reloads = %d, want 0", got)
	}
}

func TestMissingSeedNotReloaded(t *testing.T) {
	dir := t.TempDir()
	seed := filepath.Join(dir, "cameras.json")
	if err := os.WriteFile(seed, []byte(`[]`), 0o600); err != nil {
		t.Fatal(err)
	}

	var reloads atomic.Int32
	svc, ctx := newTestService(t, seed, &reloads)
	go svc.Start(ctx)
	time.Sleep(300 * time.Millisecond)

	if err := os.Remove(seed); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if got := reloads.Load(); got != 0 {
		t.Errorf("reloads = %d, want 0", got)
	}
}

func TestProbeFSNotify_MissingDir(t *testing.T) {
	if ProbeFSNotify(filepath.Join(t.TempDir(), "nope"), 100*time.Millisecond) {
		t.Error("probe should fail for a missing directory")
	}
}
