package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"

	"github.com/forenvision/case-console/internal/core/domain"
	"github.com/forenvision/case-console/internal/core/ports"
)

const (
	fileMode = 0o600
	dirMode  = 0o700

	DefaultPollInterval = 500 * time.Millisecond
)

var (
	_ ports.KeyValueStore = (*FileStore)(nil)
	_ ports.SessionSync   = (*FileWatcher)(nil)
)

// fileDocument is the on-disk layout. Origin names the instance that wrote
// the file last so watchers can skip their own writes.
type fileDocument struct {
	Origin    string            `json:"origin,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
	Entries   map[string]string `json:"entries"`
}

// FileStore persists entries in one JSON file. Every write replaces the file
// through a rename, so readers see either the old or the new document.
// Writers hold an advisory lock on "<path>.lock" for the whole
// read-modify-write, which serializes instances in other processes too.
type FileStore struct {
	path   string
	origin string
	lock   *flock.Flock
	now    func() time.Time

	mu sync.Mutex
}

func NewFileStore(path, origin string) *FileStore {
	return &FileStore{path: path, origin: origin, lock: flock.New(path + ".lock"), now: time.Now}
}

func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	doc, err := readDocument(f.path)
	if err != nil {
		return "", false, err
	}
	v, ok := doc.Entries[key]
	return v, ok, nil
}

func (f *FileStore) SetMany(_ context.Context, entries map[string]string) error {
	return f.update(func(doc *fileDocument) bool {
		for k, v := range entries {
			doc.Entries[k] = v
		}
		return true
	})
}

func (f *FileStore) Delete(_ context.Context, keys ...string) error {
	return f.update(func(doc *fileDocument) bool {
		for _, k := range keys {
			delete(doc.Entries, k)
		}
		return true
	})
}

func (f *FileStore) Update(_ context.Context, keys []string, edit func(entries map[string]string) bool) error {
	return f.update(func(doc *fileDocument) bool {
		entries := make(map[string]string, len(keys))
		for _, k := range keys {
			if v, ok := doc.Entries[k]; ok {
				entries[k] = v
			}
		}
		if !edit(entries) {
			return false
		}
		for _, k := range keys {
			if v, ok := entries[k]; ok {
				doc.Entries[k] = v
			} else {
				delete(doc.Entries, k)
			}
		}
		return true
	})
}

// update runs apply on the current document under both locks and writes
// the result unless apply returns false.
func (f *FileStore) update(apply func(doc *fileDocument) bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), dirMode); err != nil {
		return fmt.Errorf("session file: mkdir: %w", err)
	}
	if err := f.lock.Lock(); err != nil {
		return fmt.Errorf("session file: lock: %w", err)
	}
	defer f.lock.Unlock()

	doc, err := readDocument(f.path)
	if err != nil {
		return err
	}
	if !apply(doc) {
		return nil
	}
	doc.Origin = f.origin
	doc.UpdatedAt = f.now().UTC()

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("session file: encode: %w", err)
	}
	return writeAtomic(f.path, data)
}

func readDocument(path string) (*fileDocument, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &fileDocument{Entries: map[string]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session file: read: %w", err)
	}
	return decodeDocument(data), nil
}

// decodeDocument never fails: a corrupt file reads as empty, which the
// session layer already treats as "anonymous".
func decodeDocument(data []byte) *fileDocument {
	var doc fileDocument
	if len(data) == 0 || json.Unmarshal(data, &doc) != nil || doc.Entries == nil {
		doc.Entries = map[string]string{}
	}
	return &doc
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".session-*")
	if err != nil {
		return fmt.Errorf("session file: temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("session file: write: %w", err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("session file: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session file: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("session file: rename: %w", err)
	}
	return nil
}

// FileWatcher is the SessionSync of a FileStore: the write itself is the
// broadcast, and Listen polls the file for content changes.
type FileWatcher struct {
	path     string
	interval time.Duration
	log      zerolog.Logger
}

func NewFileWatcher(path string, interval time.Duration, log zerolog.Logger) *FileWatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &FileWatcher{path: path, interval: interval, log: log}
}

func (w *FileWatcher) Broadcast(context.Context, domain.SyncMessage) error {
	return nil
}

func (w *FileWatcher) Listen(ctx context.Context) (<-chan domain.SyncMessage, error) {
	last, _, err := w.snapshot()
	if err != nil {
		return nil, err
	}

	ch := make(chan domain.SyncMessage)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			digest, doc, err := w.snapshot()
			if err != nil {
				w.log.Warn().Err(err).Str("path", w.path).Msg("session file poll failed")
				continue
			}
			if digest == last {
				continue
			}
			last = digest

			msg := domain.SyncMessage{Origin: doc.Origin, At: doc.UpdatedAt}
			select {
			case ch <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (w *FileWatcher) snapshot() ([32]byte, *fileDocument, error) {
	data, err := os.ReadFile(w.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return [32]byte{}, nil, fmt.Errorf("session file: read: %w", err)
	}
	return blake3.Sum256(data), decodeDocument(data), nil
}
