package source

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"meshmap/internal/domain"
)

func writeSeed(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
}

func TestSeedSourceAppliesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	writeSeed(t, path, `
devices:
  - name: alpha
    addresses: ["100.64.0.1"]
services:
  "svc:web":
    - 100.100.1.1
`)

	var (
		mu  sync.Mutex
		got *domain.Directory
	)
	src := NewSeed(path, func(ctx context.Context, d *domain.Directory) {
		mu.Lock()
		defer mu.Unlock()
		got = d
	}, nil)

	if src.Name() != "seed" {
		t.Errorf("name = %q, want seed", src.Name())
	}
	if src.Type() != TypeWatcher {
		t.Errorf("type = %q, want %q", src.Type(), TypeWatcher)
	}

	if err := src.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got == nil {
		t.Fatal("directory never delivered")
	}
	if len(got.Devices) != 1 || got.Devices[0].Name != "alpha" {
		t.Errorf("devices = %+v", got.Devices)
	}
	if addrs := got.Services["svc:web"]; len(addrs) != 1 {
		t.Errorf("services = %+v", got.Services)
	}
}

func TestSeedSourceReappliesOnEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	writeSeed(t, path, "devices:\n  - name: alpha\n    addresses: [\"100.64.0.1\"]\n")

	applied := make(chan *domain.Directory, 4)
	src := NewSeed(path, func(ctx context.Context, d *domain.Directory) { applied <- d }, nil)

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { src.Stop() })

	// Start applies the file once
	select {
	case d := <-applied:
		if len(d.Devices) != 1 {
			t.Fatalf("initial devices = %d, want 1", len(d.Devices))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("initial directory never delivered")
	}

	// Let the watch install before editing
	time.Sleep(100 * time.Millisecond)
	writeSeed(t, path, `
devices:
  - name: alpha
    addresses: ["100.64.0.1"]
  - name: beta
    addresses: ["100.64.0.2"]
`)

	deadline := time.After(3 * time.Second)
	for {
		select {
		case d := <-applied:
			if len(d.Devices) == 2 {
				return
			}
		case <-deadline:
			t.Fatal("edited directory never delivered")
		}
	}
}

func TestSeedSourceStartFailsWhenMissing(t *testing.T) {
	src := NewSeed(filepath.Join(t.TempDir(), "absent.yaml"), nil, nil)
	if err := src.Start(context.Background()); err == nil {
		t.Error("start with a missing seed file did not error")
	}
}
