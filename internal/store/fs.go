// Package store provides snapshot persistence backends.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/TangyRyan/Weibo-project-zy/internal/hotspot"
)

// StorageError wraps a backend failure with the path or key involved.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error at %s: %v", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// FS persists snapshots as JSON documents under <root>/<date>/<HH>.json.
type FS struct {
	root string
}

// NewFS validates and prepares the base directory.
func NewFS(root string) (*FS, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &StorageError{Path: root, Err: err}
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, &StorageError{Path: abs, Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, &StorageError{Path: abs, Err: err}
	}
	if !info.IsDir() {
		return nil, &StorageError{Path: abs, Err: fmt.Errorf("not a directory")}
	}
	return &FS{root: abs}, nil
}

// Persist writes the snapshot atomically: a temp file in the target
// directory followed by a rename, so readers never observe a partial
// document.
func (f *FS) Persist(ctx context.Context, snap *hotspot.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := snap.Validate(); err != nil {
		return err
	}
	dir := filepath.Join(f.root, snap.Date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &StorageError{Path: dir, Err: err}
	}
	final := filepath.Join(dir, hourFile(snap.Hour))

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return &StorageError{Path: final, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+hourFile(snap.Hour)+".tmp-*")
	if err != nil {
		return &StorageError{Path: dir, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &StorageError{Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &StorageError{Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return &StorageError{Path: final, Err: err}
	}
	return nil
}

// Load reads the archived snapshot for one hour slot. Absent slots return
// hotspot.ErrNotArchived.
func (f *FS) Load(ctx context.Context, date string, hour int) (*hotspot.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateSlot(date, hour); err != nil {
		return nil, err
	}
	path := filepath.Join(f.root, date, hourFile(hour))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, hotspot.ErrNotArchived
		}
		return nil, &StorageError{Path: path, Err: err}
	}
	var snap hotspot.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &StorageError{Path: path, Err: err}
	}
	return &snap, nil
}

func hourFile(hour int) string {
	return fmt.Sprintf("%02d.json", hour)
}

// validateSlot rejects malformed dates and out-of-range hours before they
// reach the filesystem, which also blocks path traversal through the date
// component.
func validateSlot(date string, hour int) error {
	if _, err := time.Parse(hotspot.DateLayout, date); err != nil {
		return fmt.Errorf("invalid date %q: %w", date, err)
	}
	if hour < 0 || hour > 23 {
		return fmt.Errorf("invalid hour %d", hour)
	}
	return nil
}
