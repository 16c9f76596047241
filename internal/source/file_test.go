package source

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"meshmap/internal/domain"
)

// batchCollector is a sink that accumulates delivered batches
type batchCollector struct {
	mu      sync.Mutex
	batches []domain.LogBatch
}

func (c *batchCollector) sink(b domain.LogBatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, b)
}

func (c *batchCollector) snapshot() []domain.LogBatch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.LogBatch(nil), c.batches...)
}

func (c *batchCollector) await(t *testing.T, want int) []domain.LogBatch {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		got := c.snapshot()
		if len(got) >= want {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d batches, want %d", len(got), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func writeSpool(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

const envelopeBody = `{"logs":[{
	"nodeId":"node-1",
	"start":"2024-06-01T12:00:00Z",
	"end":"2024-06-01T12:05:00Z",
	"virtualTraffic":[{"proto":6,"src":"100.64.0.1:52131","dst":"100.64.0.2:443","txBytes":1500}]
}]}`

func TestFileSourceWatchesDirectory(t *testing.T) {
	dir := t.TempDir()
	collector := &batchCollector{}

	// One file already waiting before the source starts
	writeSpool(t, dir, "old.json", envelopeBody)

	src := NewFile(dir, collector.sink, nil)
	src.debounce = 20 * time.Millisecond
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { src.Stop() })

	got := collector.await(t, 1)
	if got[0].Source != "spool:old.json" {
		t.Errorf("source = %q, want spool:old.json", got[0].Source)
	}
	if len(got[0].Records) != 1 {
		t.Fatalf("got %d records, want 1", len(got[0].Records))
	}
	if got[0].Records[0].Src != "100.64.0.1:52131" {
		t.Errorf("src = %q", got[0].Records[0].Src)
	}

	// A bare log array dropped while watching
	writeSpool(t, dir, "new.json", `[{
		"nodeId":"node-2",
		"physicalTraffic":[{"proto":17,"src":"192.168.1.4:5353","dst":"192.168.1.5:5353","txBytes":320}]
	}]`)

	got = collector.await(t, 2)
	last := got[len(got)-1]
	if last.Source != "spool:new.json" {
		t.Errorf("source = %q, want spool:new.json", last.Source)
	}
	if len(last.Records) != 1 || last.Records[0].Class != domain.TrafficPhysical {
		t.Errorf("records = %+v", last.Records)
	}
}

func TestFileSourceDecompressesZstd(t *testing.T) {
	dir := t.TempDir()
	collector := &batchCollector{}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	compressed := enc.EncodeAll([]byte(envelopeBody), nil)
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "batch.json.zst"), compressed, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	src := NewFile(dir, collector.sink, nil)
	if err := src.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	got := collector.snapshot()
	if len(got) != 1 {
		t.Fatalf("got %d batches, want 1", len(got))
	}
	if got[0].Source != "spool:batch.json.zst" {
		t.Errorf("source = %q", got[0].Source)
	}
	if len(got[0].Records) != 1 || got[0].Records[0].TxBytes != 1500 {
		t.Errorf("records = %+v", got[0].Records)
	}
}

func TestFileSourceSkipsAlreadyProcessed(t *testing.T) {
	dir := t.TempDir()
	collector := &batchCollector{}
	writeSpool(t, dir, "batch.json", envelopeBody)

	src := NewFile(dir, collector.sink, nil)
	if err := src.Sync(context.Background()); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if err := src.Sync(context.Background()); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	if got := collector.snapshot(); len(got) != 1 {
		t.Errorf("got %d batches, want 1 (second sync must not redeliver)", len(got))
	}

	// Rewriting with a newer modtime delivers again
	future := time.Now().Add(time.Hour)
	path := filepath.Join(dir, "batch.json")
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if err := src.Sync(context.Background()); err != nil {
		t.Fatalf("third sync: %v", err)
	}
	if got := collector.snapshot(); len(got) != 2 {
		t.Errorf("got %d batches, want 2 after rewrite", len(got))
	}
}

func TestFileSourceIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	collector := &batchCollector{}
	writeSpool(t, dir, "notes.txt", "not a spool file")
	writeSpool(t, dir, "broken.json", "{truncated")

	src := NewFile(dir, collector.sink, nil)
	if err := src.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	// The garbage file is rejected with a warning, never an error
	if got := collector.snapshot(); len(got) != 0 {
		t.Errorf("got %d batches, want 0", len(got))
	}
}
