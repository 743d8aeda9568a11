package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/louisbranch/gamewatch/internal/services/tracker/domain"
)

// BanlistWatcher serves the current banned-word list and reloads it when the
// file changes, so bans take effect without a restart. The parent directory
// is watched rather than the file itself, which survives editors that
// replace the file by rename.
type BanlistWatcher struct {
	path    string
	watcher *fsnotify.Watcher

	mu   sync.RWMutex
	list domain.Banlist
}

// NewBanlistWatcher loads the banlist at path and starts watching its
// directory. A missing file yields an empty list; an empty path disables
// banned-word filtering entirely.
func NewBanlistWatcher(path string) (*BanlistWatcher, error) {
	w := &BanlistWatcher{path: path, list: domain.NewBanlist(nil)}
	if path == "" {
		return w, nil
	}

	if err := w.reload(); err != nil {
		log.Printf("banlist: %v", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create banlist watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch banlist directory: %w", err)
	}
	w.watcher = watcher
	return w, nil
}

// Current returns the banlist in effect.
func (w *BanlistWatcher) Current() domain.Banlist {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.list
}

// Run processes file events until ctx is canceled.
func (w *BanlistWatcher) Run(ctx context.Context) {
	if w.watcher == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := w.reload(); err != nil {
				log.Printf("banlist reload: %v", err)
				continue
			}
			log.Printf("banlist reloaded: %d entries", w.Current().Len())
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("banlist watcher: %v", err)
		}
	}
}

// Close stops the underlying file watcher.
func (w *BanlistWatcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}

func (w *BanlistWatcher) reload() error {
	list, err := domain.LoadBanlist(w.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			list = domain.NewBanlist(nil)
		} else {
			return err
		}
	}
	w.mu.Lock()
	w.list = list
	w.mu.Unlock()
	return nil
}
