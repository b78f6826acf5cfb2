package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces the burst of events one save produces.
const DefaultWatchDebounce = 250 * time.Millisecond

// Watch reloads the graph from the store whenever one of files changes in
// dir. Files are matched by base name; the directory is watched because
// atomic writes replace the files. Watch runs until ctx is canceled and
// returns once the watcher is set up.
func (l *Loader) Watch(ctx context.Context, dir string, files []string, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	names := make(map[string]struct{}, len(files))
	for _, f := range files {
		names[filepath.Base(f)] = struct{}{}
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	go l.watchLoop(ctx, watcher, names, debounce)
	return nil
}

func (l *Loader) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, names map[string]struct{}, debounce time.Duration) {
	defer watcher.Close()

	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			if ctx.Err() != nil {
				return
			}
			res, err := l.Load(ctx)
			if err != nil {
				l.logger.WarnContext(ctx, "reload after file change failed", "error", err)
				return
			}
			l.logger.InfoContext(ctx, "pricing graph reloaded", "models", len(res.Graph.Models))
		})
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if _, watched := names[filepath.Base(event.Name)]; !watched {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.WarnContext(ctx, "pricing data watch error", "error", err)
		}
	}
}
