package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// SessionWatcher watches the directory containing a login session file and
// reports writes, the way the teacher's HotReloadSystem watches a config
// file's directory (fsnotify only reliably delivers events at directory
// granularity on some platforms) rather than the file itself.
type SessionWatcher struct {
	sessionPath string
	watcher     *fsnotify.Watcher

	mu         sync.Mutex
	isWatching bool
}

// NewSessionWatcher constructs a watcher for the session file at path.
func NewSessionWatcher(path string) (*SessionWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create session watcher: %w", err)
	}
	return &SessionWatcher{sessionPath: path, watcher: w}, nil
}

// Watch starts watching the session file's directory and returns a channel
// that receives a signal every time the session file is rewritten, removed,
// or renamed out from under the process (an out-of-band login tool may do
// any of the three). The channel is closed when ctx is done or Stop is
// called.
func (s *SessionWatcher) Watch(ctx context.Context) (<-chan struct{}, <-chan error) {
	changes := make(chan struct{}, 1)
	errs := make(chan error, 1)

	s.mu.Lock()
	if s.isWatching {
		s.mu.Unlock()
		close(changes)
		close(errs)
		return changes, errs
	}
	dir := filepath.Dir(s.sessionPath)
	if err := s.watcher.Add(dir); err != nil {
		s.mu.Unlock()
		errs <- fmt.Errorf("config: watch session dir %s: %w", dir, err)
		close(changes)
		close(errs)
		return changes, errs
	}
	s.isWatching = true
	s.mu.Unlock()

	go func() {
		defer close(changes)
		defer close(errs)
		for {
			select {
			case e, ok := <-s.watcher.Events:
				if !ok {
					return
				}
				if e.Name != s.sessionPath {
					continue
				}
				if e.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					select {
					case changes <- struct{}{}:
					default:
					}
				}
			case err, ok := <-s.watcher.Errors:
				if !ok {
					return
				}
				select {
				case errs <- err:
				default:
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return changes, errs
}

// Stop closes the underlying watcher. Idempotent.
func (s *SessionWatcher) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isWatching {
		return nil
	}
	s.isWatching = false
	return s.watcher.Close()
}
