package importer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for more file events before it
// runs a sync.
const DefaultDebounce = 300 * time.Millisecond

// Watch runs Sync whenever Markdown files under root change, until ctx is
// cancelled. Bursts of events (editors writing temp files, renames) are
// collapsed into one sync. New directories are added to the watch list.
func (im *Importer) Watch(ctx context.Context, root string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("importer: watcher: %w", err)
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return fmt.Errorf("importer: watch %s: %w", root, err)
	}
	im.logger.Info("watcher: started", slog.String("root", root))

	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			im.logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			rep, err := im.Sync(ctx)
			if err != nil {
				im.logger.Warn("watcher: sync failed", slog.String("error", err.Error()))
				continue
			}
			im.logger.Info("watcher: synced",
				slog.Int("created", rep.Created),
				slog.Int("updated", rep.Updated),
				slog.Int("deleted", rep.Deleted),
				slog.Int("failed", rep.Failed))

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						im.logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					schedule()
					continue
				}
			}
			if relevant(ev) {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			im.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// relevant reports whether ev can change the set of posts: writes to a
// Markdown file, and removals or renames of anything since a whole directory
// may have gone.
func relevant(ev fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return false
	}
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		return true
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return false
	}
	return strings.EqualFold(filepath.Ext(ev.Name), postExt)
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return w.Add(path)
		}
		return nil
	})
}
