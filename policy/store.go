package policy

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Store is the driver's handle on the policy file: it owns the exclusive
// write path and hands out read-only Policy snapshots to concurrent
// request-handling tasks.
//
// Reads take a shared lock; edits take an exclusive lock spanning
// validate, mutate-in-memory, write-to-disk, and release, so a reader
// never observes a edit that has been applied in memory but not yet
// made durable on disk (§5).
type Store struct {
	path string

	mu      sync.RWMutex
	current *Policy

	watcher *fsnotify.Watcher
	changed chan struct{}
}

// OpenStore loads the policy file at path and returns a Store backing
// it. The file is also watched for external changes (an operator editing
// it directly rather than through the interactive loop); Changed()
// reports these.
func OpenStore(path string) (*Store, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating policy file watcher: %w", err)
	}

	// Watch the containing directory, not the file itself: Save replaces
	// the file via rename, which on Linux detaches an inode-based watch
	// from the file it used to point at. Watching the directory and
	// filtering by name survives replacement.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()

		return nil, fmt.Errorf("watching policy directory for %s: %w", path, err)
	}

	s := &Store{
		path:    path,
		current: doc.Snapshot(),
		watcher: watcher,
		changed: make(chan struct{}, 1),
	}

	go s.watchLoop()

	return s, nil
}

func (s *Store) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}

			if event.Name != s.path {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			select {
			case s.changed <- struct{}{}:
			default:
			}
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Changed signals that the on-disk policy file was modified by a party
// other than this Store (e.g. an operator's text editor). The driver may
// select on it to decide when to Reload.
func (s *Store) Changed() <-chan struct{} {
	return s.changed
}

// Snapshot returns the current Policy. Safe for concurrent use.
func (s *Store) Snapshot() *Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current
}

// Reload re-reads the policy file from disk and replaces the current
// snapshot, picking up edits made outside of Apply (e.g. direct file
// edits observed via Changed).
func (s *Store) Reload() error {
	doc, err := LoadDocument(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.current = doc.Snapshot()
	s.mu.Unlock()

	return nil
}

// Apply loads the document fresh from disk, applies edit, writes the
// result back atomically, and swaps the in-memory snapshot — all under
// the exclusive lock, so a wrapper that reloads after observing this
// edit's Continue response is guaranteed the edit is already durable
// (edit-then-respond order, §5 and law 6).
func (s *Store) Apply(edit Edit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := LoadDocument(s.path)
	if err != nil {
		return err
	}

	edit.Apply(doc)

	if err := doc.Save(s.path); err != nil {
		return err
	}

	s.current = doc.Snapshot()

	return nil
}

// Close stops the background file watch.
func (s *Store) Close() error {
	return s.watcher.Close()
}
