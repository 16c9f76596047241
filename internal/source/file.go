package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	json "github.com/json-iterator/go"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"meshmap/internal/domain"
)

// zstdDecoder is shared across files; zstd.Decoder is safe for concurrent
// use
var zstdDecoder *zstd.Decoder

func init() {
	var err error
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("source: zstd decoder initialization failed: " + err.Error())
	}
}

// FileSource ingests network-log files dropped into a spool directory,
// either plain .json or zstd-compressed .json.zst. Each file becomes its
// own batch source, so a rewritten file replaces its previous batch while
// distinct files accumulate.
type FileSource struct {
	dir      string
	sink     SinkFunc
	log      *zap.Logger
	debounce time.Duration

	mu   sync.Mutex
	seen map[string]time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewFile creates the spool-directory source
func NewFile(dir string, sink SinkFunc, log *zap.Logger) *FileSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileSource{
		dir:      dir,
		sink:     sink,
		log:      log.Named("spool"),
		debounce: 500 * time.Millisecond,
		seen:     make(map[string]time.Time),
		done:     make(chan struct{}),
	}
}

// Name implements Source
func (s *FileSource) Name() string { return "spool" }

// Type implements Source
func (s *FileSource) Type() Type { return TypeWatcher }

// Start begins watching the spool directory and ingests any files that
// were already waiting in it
func (s *FileSource) Start(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("spool source: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("spool source: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("spool source: watch %s: %w", s.dir, err)
	}

	ctx, s.cancel = context.WithCancel(ctx)
	go s.watch(ctx, watcher)

	return s.Sync(ctx)
}

// Stop shuts down the watcher
func (s *FileSource) Stop() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

// Sync scans the directory and processes files not seen yet or rewritten
// since their last read
func (s *FileSource) Sync(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("spool source: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !spoolFile(entry.Name()) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := s.processFile(path); err != nil {
			s.log.Warn("spool file rejected", zap.String("path", path), zap.Error(err))
		}
	}
	return nil
}

func (s *FileSource) watch(ctx context.Context, watcher *fsnotify.Watcher) {
	defer close(s.done)
	defer watcher.Close()

	timers := make(map[string]*time.Timer)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !spoolFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			// Writers produce a burst of events per file; wait for the
			// burst to end before reading
			if timer, exists := timers[event.Name]; exists {
				timer.Stop()
			}
			path := event.Name
			timers[path] = time.AfterFunc(s.debounce, func() {
				if err := s.processFile(path); err != nil {
					s.log.Warn("spool file rejected", zap.String("path", path), zap.Error(err))
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("watcher error", zap.Error(err))

		case <-ctx.Done():
			for _, timer := range timers {
				timer.Stop()
			}
			return
		}
	}
}

func (s *FileSource) processFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	last, ok := s.seen[path]
	s.mu.Unlock()
	if ok && !info.ModTime().After(last) {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.HasSuffix(path, ".zst") {
		raw, err = zstdDecoder.DecodeAll(raw, nil)
		if err != nil {
			return fmt.Errorf("zstd decompress: %w", err)
		}
	}

	logs, err := decodeLogs(raw)
	if err != nil {
		return err
	}

	batch := domain.LogBatch{Source: "spool:" + filepath.Base(path)}
	for i := range logs {
		l := &logs[i]
		batch.Merge(domain.LogBatch{Start: l.Start, End: l.End, Records: l.Flatten()})
	}

	s.mu.Lock()
	s.seen[path] = info.ModTime()
	s.mu.Unlock()

	if s.sink != nil {
		s.sink(batch)
	}
	s.log.Info("spool file ingested",
		zap.String("file", filepath.Base(path)),
		zap.Int("logs", len(logs)),
		zap.Int("records", len(batch.Records)),
	)
	return nil
}

// decodeLogs accepts either the API envelope or a bare log array
func decodeLogs(raw []byte) ([]domain.NetworkLog, error) {
	var env struct {
		Logs []domain.NetworkLog `json:"logs"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && env.Logs != nil {
		return env.Logs, nil
	}

	var logs []domain.NetworkLog
	if err := json.Unmarshal(raw, &logs); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return logs, nil
}

// spoolFile reports whether a path looks like a network-log drop
func spoolFile(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".json.zst")
}
