package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBanlistWatcherLoadsInitialList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "banlist.txt")
	if err := os.WriteFile(path, []byte("badword\nworse\n"), 0o644); err != nil {
		t.Fatalf("write banlist: %v", err)
	}

	watcher, err := NewBanlistWatcher(path)
	if err != nil {
		t.Fatalf("NewBanlistWatcher() error = %v", err)
	}
	defer watcher.Close()

	if got := watcher.Current().Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	if !watcher.Current().Matches("xBadWordx") {
		t.Error("Matches(xBadWordx) = false, want true")
	}
}

func TestBanlistWatcherMissingFileIsEmpty(t *testing.T) {
	watcher, err := NewBanlistWatcher(filepath.Join(t.TempDir(), "absent.txt"))
	if err != nil {
		t.Fatalf("NewBanlistWatcher() error = %v", err)
	}
	defer watcher.Close()

	if got := watcher.Current().Len(); got != 0 {
		t.Fatalf("Len() = %d, want 0", got)
	}
}

func TestBanlistWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "banlist.txt")
	if err := os.WriteFile(path, []byte("badword\n"), 0o644); err != nil {
		t.Fatalf("write banlist: %v", err)
	}

	watcher, err := NewBanlistWatcher(path)
	if err != nil {
		t.Fatalf("NewBanlistWatcher() error = %v", err)
	}
	defer watcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)

	if err := os.WriteFile(path, []byte("badword\nnewword\n"), 0o644); err != nil {
		t.Fatalf("rewrite banlist: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if watcher.Current().Len() == 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Len() = %d after reload window, want 2", watcher.Current().Len())
}
