package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/resilience"
)

const (
	// DefaultBackups is the number of rotating backups kept by FileBackend.
	DefaultBackups = 5

	backupSuffix = ".bak"
	backupLayout = "20060102T150405.000000000Z"
)

// FileBackend stores the ledger as one JSON document. Every Save copies the
// current primary to a timestamped backup, writes a temp file in the same
// directory and renames it over the primary, so a crash leaves either the
// old file or the complete new one.
type FileBackend struct {
	path    string
	backups int
	now     func() time.Time
}

// NewFileBackend creates a FileBackend for path keeping backups rotating
// copies. Non-positive backups uses DefaultBackups.
func NewFileBackend(path string, backups int) *FileBackend {
	if backups <= 0 {
		backups = DefaultBackups
	}
	return &FileBackend{path: path, backups: backups, now: time.Now}
}

// Name implements Backend.
func (b *FileBackend) Name() string { return "file" }

// Path returns the primary file path.
func (b *FileBackend) Path() string { return b.path }

// Close implements Backend.
func (b *FileBackend) Close() error { return nil }

// Load implements Backend. A missing primary with no backups yields an empty
// ledger. Otherwise a missing, corrupt or unreadable primary falls back to
// the newest backup that decodes; only when none does is an error returned.
func (b *FileBackend) Load(_ context.Context) (*Ledger, error) {
	l, err := readLedger(b.path)
	if err == nil {
		return l, nil
	}
	missing := errors.Is(err, fs.ErrNotExist)

	backups, listErr := b.Backups()
	if listErr != nil {
		return nil, eris.Wrapf(err, "manifest: load %s (listing backups: %v)", b.path, listErr)
	}
	if missing && len(backups) == 0 {
		return NewLedger(), nil
	}
	for _, backup := range backups {
		bl, berr := readLedger(backup)
		if berr != nil {
			zap.L().Warn("manifest: skipping unreadable backup",
				zap.String("backup", backup),
				zap.Error(berr),
			)
			continue
		}
		zap.L().Warn("manifest: degraded start, primary unusable, loaded backup",
			zap.String("path", b.path),
			zap.String("backup", backup),
			zap.Bool("primary_missing", missing),
			zap.Error(err),
		)
		return bl, nil
	}
	return nil, eris.Wrapf(err, "manifest: load %s and no usable backup among %d", b.path, len(backups))
}

// Save implements Backend.
func (b *FileBackend) Save(_ context.Context, l *Ledger) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return resilience.Permanent(eris.Wrap(err, "manifest: encode ledger"))
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "manifest: create directory %s", dir)
	}

	if err := b.backup(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "manifest: create temp file")
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return eris.Wrap(err, "manifest: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return eris.Wrap(err, "manifest: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return eris.Wrap(err, "manifest: close temp file")
	}

	if err := os.Rename(tmpPath, b.path); err != nil {
		os.Remove(tmpPath)
		return eris.Wrap(err, "manifest: rename temp file")
	}
	syncDir(dir)
	return nil
}

// Backups lists backup files newest first.
func (b *FileBackend) Backups() ([]string, error) {
	matches, err := filepath.Glob(b.path + ".*" + backupSuffix)
	if err != nil {
		return nil, eris.Wrap(err, "manifest: list backups")
	}
	// The timestamp layout sorts lexically in time order.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}

// backup copies the current primary, if any, and prunes old backups.
func (b *FileBackend) backup() error {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "manifest: read primary for backup")
	}

	name := b.path + "." + b.now().UTC().Format(backupLayout) + backupSuffix
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return eris.Wrapf(err, "manifest: write backup %s", name)
	}

	backups, err := b.Backups()
	if err != nil {
		return err
	}
	for _, old := range backups[min(len(backups), b.backups):] {
		if err := os.Remove(old); err != nil && !errors.Is(err, fs.ErrNotExist) {
			zap.L().Warn("manifest: prune backup failed", zap.String("backup", old), zap.Error(err))
		}
	}
	return nil
}

func readLedger(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, eris.Errorf("manifest: %s is empty", path)
	}
	var l Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, eris.Wrapf(err, "manifest: decode %s", path)
	}
	return l.ensure(), nil
}

// syncDir flushes the directory entry after a rename. Failures are ignored:
// not every filesystem supports fsync on directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
