package gitsync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/milalabs/licsync/internal/cmn/fileutil"
	"github.com/milalabs/licsync/internal/logger"
	"github.com/milalabs/licsync/internal/logger/tag"
)

const defaultDebounce = 2 * time.Second

// storeWatcher reports collection files changed on disk, batching bursts
// of events into one callback.
type storeWatcher struct {
	dir      string
	debounce time.Duration
	onChange func(names []string)
	watcher  *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func newStoreWatcher(dir string, debounce time.Duration, onChange func(names []string)) (*storeWatcher, error) {
	if err := os.MkdirAll(dir, privateDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &storeWatcher{
		dir:      dir,
		debounce: debounce,
		onChange: onChange,
		watcher:  watcher,
		done:     make(chan struct{}),
	}, nil
}

func (w *storeWatcher) Start(ctx context.Context) {
	w.wg.Go(func() {
		w.loop(ctx)
	})
}

func (w *storeWatcher) loop(ctx context.Context) {
	pending := make(map[string]struct{})
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isCollectionEvent(event) {
				continue
			}
			pending[filepath.Base(event.Name)] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn(ctx, "Store watcher error", tag.Dir(w.dir), tag.Error(err))

		case <-timerC:
			timerC = nil
			names := make([]string, 0, len(pending))
			for name := range pending {
				names = append(names, name)
			}
			clear(pending)
			sort.Strings(names)
			w.onChange(names)
		}
	}
}

// Close stops the watcher and waits for the event loop to exit.
func (w *storeWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

func isCollectionEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Base(event.Name)
	return filepath.Ext(name) == collectionExt && !fileutil.IsTempFile(name)
}
