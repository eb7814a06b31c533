package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/manifest"
)

// DeadLetter is an item that failed ingestion, kept so it can be submitted
// again on its own.
type DeadLetter struct {
	ContentHash string `json:"content_hash" yaml:"content_hash"`
	Item        Item   `json:"item" yaml:"item"`
	Error       string `json:"error" yaml:"error"`
	// ErrorType is resilience.ErrorTransient or resilience.ErrorPermanent.
	ErrorType     string    `json:"error_type" yaml:"error_type"`
	Attempts      int       `json:"attempts" yaml:"attempts"`
	FirstFailedAt time.Time `json:"first_failed_at" yaml:"first_failed_at"`
	LastFailedAt  time.Time `json:"last_failed_at" yaml:"last_failed_at"`
}

// DeadLetterSink records the outcome of a run: failed items are added (or
// their attempt count bumped) and items that now made it through, as new or
// duplicate, are cleared.
type DeadLetterSink interface {
	Record(ctx context.Context, failed []DeadLetter, resolved []string) error
}

// deadLetterFile is the on-disk format. LoadItems understands it, so the file
// can be passed straight back to `ingest --input`.
type deadLetterFile struct {
	DeadLetters []DeadLetter `json:"dead_letters" yaml:"dead_letters"`
}

// FileDeadLetters keeps dead letters in a JSON file.
type FileDeadLetters struct {
	mu   sync.Mutex
	path string
}

// NewFileDeadLetters creates a sink writing to path.
func NewFileDeadLetters(path string) *FileDeadLetters {
	return &FileDeadLetters{path: path}
}

// Path returns the file location.
func (f *FileDeadLetters) Path() string { return f.path }

// Entries returns the stored dead letters. A missing file has none.
func (f *FileDeadLetters) Entries() ([]DeadLetter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

// Record implements DeadLetterSink.
func (f *FileDeadLetters) Record(_ context.Context, failed []DeadLetter, resolved []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing, err := f.read()
	if err != nil {
		return err
	}
	if len(existing) == 0 && len(failed) == 0 {
		return nil
	}

	byHash := make(map[string]DeadLetter, len(existing)+len(failed))
	for _, dl := range existing {
		byHash[dl.ContentHash] = dl
	}
	for _, h := range resolved {
		delete(byHash, h)
	}
	for _, dl := range failed {
		if prev, ok := byHash[dl.ContentHash]; ok {
			dl.Attempts += prev.Attempts
			dl.FirstFailedAt = prev.FirstFailedAt
		}
		byHash[dl.ContentHash] = dl
	}

	out := deadLetterFile{DeadLetters: make([]DeadLetter, 0, len(byHash))}
	for _, dl := range byHash {
		out.DeadLetters = append(out.DeadLetters, dl)
	}
	sort.Slice(out.DeadLetters, func(i, j int) bool {
		a, b := out.DeadLetters[i], out.DeadLetters[j]
		if !a.FirstFailedAt.Equal(b.FirstFailedAt) {
			return a.FirstFailedAt.Before(b.FirstFailedAt)
		}
		return a.ContentHash < b.ContentHash
	})
	return f.write(out)
}

func (f *FileDeadLetters) read() ([]DeadLetter, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read dead letters %s", f.path)
	}
	var file deadLetterFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "ingest: decode dead letters %s", f.path)
	}
	return file.DeadLetters, nil
}

// write replaces the file atomically.
func (f *FileDeadLetters) write(file deadLetterFile) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return eris.Wrap(err, "ingest: encode dead letters")
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "ingest: create dead letter temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "ingest: write dead letters")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "ingest: close dead letters")
	}
	return eris.Wrap(os.Rename(tmp.Name(), f.path), "ingest: replace dead letters")
}

// deadLetterFor builds the entry for a failed item.
func deadLetterFor(item Item, errType, msg string, at time.Time) DeadLetter {
	return DeadLetter{
		ContentHash:   manifest.HashContent(item.Text),
		Item:          item,
		Error:         msg,
		ErrorType:     errType,
		Attempts:      1,
		FirstFailedAt: at,
		LastFailedAt:  at,
	}
}
