package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewBridge(t *testing.T) {
	noop := func() {}
	now := func() time.Time { return time.Time{} }

	t.Run("requires path", func(t *testing.T) {
		if _, err := NewBridge("", time.Second, now, noop, nil); err == nil {
			t.Error("expected error for empty path")
		}
	})

	t.Run("requires callbacks", func(t *testing.T) {
		if _, err := NewBridge("x.json", time.Second, nil, noop, nil); err == nil {
			t.Error("expected error for nil lastSave")
		}
		if _, err := NewBridge("x.json", time.Second, now, nil, nil); err == nil {
			t.Error("expected error for nil onExternal")
		}
	})
}

func startBridge(t *testing.T, path string, quiet time.Duration, lastSave func() time.Time) *atomic.Int32 {
	t.Helper()
	var fired atomic.Int32
	bridge, err := NewBridge(path, quiet, lastSave, func() { fired.Add(1) }, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := bridge.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = bridge.Close() })
	return &fired
}

func TestBridgeExternalChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Last save long outside the quiet window: any change is external.
	lastSave := func() time.Time { return time.Now().Add(-time.Minute) }
	fired := startBridge(t, path, 100*time.Millisecond, lastSave)

	if err := os.WriteFile(path, []byte(`{"edited":true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for fired.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("external change never detected")
		case <-time.After(10 * time.Millisecond):
		}
	}
	// Debounce must collapse the burst into a single evaluation.
	time.Sleep(500 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Errorf("expected exactly one callback, got %d", n)
	}
}

func TestBridgeQuietWindowSuppressesSelfWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Last save is always "just now": every change looks self-caused.
	lastSave := time.Now
	fired := startBridge(t, path, 5*time.Second, lastSave)

	if err := os.WriteFile(path, []byte(`{"self":true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(700 * time.Millisecond)
	if n := fired.Load(); n != 0 {
		t.Errorf("self-caused change must not fire the callback, got %d", n)
	}
}

func TestBridgeIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.json")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	lastSave := func() time.Time { return time.Now().Add(-time.Minute) }
	fired := startBridge(t, path, 100*time.Millisecond, lastSave)

	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(700 * time.Millisecond)
	if n := fired.Load(); n != 0 {
		t.Errorf("sibling file change must be ignored, got %d", n)
	}
}
