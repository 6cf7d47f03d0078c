package policy

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"lhihi/internal/logging"
)

// Holder gives lock-free access to the active table. Readers take a snapshot
// per request so a reload never changes a decision halfway through a call.
type Holder struct {
	current atomic.Pointer[Table]
}

// NewHolder returns a holder seeded with t, or the built-in table when t is nil.
func NewHolder(t *Table) *Holder {
	if t == nil {
		t = Default()
	}
	h := &Holder{}
	h.current.Store(t)
	return h
}

// Current returns the active table.
func (h *Holder) Current() *Table {
	return h.current.Load()
}

// Set replaces the active table after validating it.
func (h *Holder) Set(t *Table) error {
	if t == nil {
		return fmt.Errorf("%w: nil table", ErrInvalidPolicy)
	}
	if err := t.Validate(); err != nil {
		return err
	}
	h.current.Store(t)
	return nil
}

// Reload loads path and swaps it in. On error the previous table stays active.
func (h *Holder) Reload(path string) error {
	t, err := Load(path)
	if err == nil {
		h.current.Store(t)
	}
	version := h.Current().Version
	logging.Audit().PolicyReload(path, version, err)
	if err != nil {
		logging.PolicyWarn("Policy reload rejected, keeping version %s: %v", version, err)
		return err
	}
	logging.Policy("Policy version %s loaded from %s", version, path)
	return nil
}

// Watch reloads path whenever it is written or replaced, until ctx is done.
// The parent directory is watched so editors that rename over the file are
// still seen.
func (h *Holder) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve policy path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	logging.Policy("Watching policy file %s", abs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			_ = h.Reload(abs)
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.PolicyWarn("Policy watcher error: %v", werr)
		}
	}
}
