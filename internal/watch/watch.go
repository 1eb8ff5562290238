// Package watch triggers the consumption pipeline when a manifest in a local
// folder tree is written.
package watch

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"cdmutil/internal/lake"
)

const defaultDebounce = 250 * time.Millisecond

// Handler runs for one changed manifest.
type Handler func(ctx context.Context, manifestPath string) error

type Watcher struct {
	Dir      string
	Debounce time.Duration
	Handle   Handler
}

func New(dir string, handle Handler) *Watcher {
	return &Watcher{Dir: dir, Debounce: defaultDebounce, Handle: handle}
}

func isManifest(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), lake.ManifestSuffix)
}

// Run blocks until ctx is cancelled. Handler errors are logged and do not
// stop the watcher; writes to the same manifest within Debounce coalesce.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watchDirRecursive(watcher, w.Dir); err != nil {
		return err
	}
	log.Info().Str("dir", w.Dir).Msg("watching for manifest changes")

	var (
		mu     sync.Mutex
		timers = map[string]*time.Timer{}
		wg     sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			if t.Stop() {
				wg.Done()
			}
		}
		mu.Unlock()
		wg.Wait()
	}()

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				// new sub-folders get watched too
				if err := watchDirRecursive(watcher, event.Name); err != nil {
					log.Debug().Err(err).Str("path", event.Name).Msg("not a directory")
				}
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !isManifest(event.Name) {
				continue
			}

			path := event.Name
			mu.Lock()
			if t, ok := timers[path]; ok && t.Stop() {
				wg.Done()
			}
			wg.Add(1)
			var t *time.Timer
			t = time.AfterFunc(debounce, func() {
				defer wg.Done()
				mu.Lock()
				if timers[path] == t {
					delete(timers, path)
				}
				mu.Unlock()

				log.Info().Str("manifest", path).Msg("manifest changed")
				if err := w.Handle(ctx, path); err != nil {
					log.Error().Err(err).Str("manifest", path).Msg("pipeline failed")
				}
			})
			timers[path] = t
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("watcher error")
		}
	}
}

// watchDirRecursive adds a directory and all subdirectories to the watcher.
func watchDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
