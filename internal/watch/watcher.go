// Package watch re-runs scene registration when OBS creates or rewrites a
// scene collection.
package watch

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/omuapps/obssync/internal/event"
	"github.com/omuapps/obssync/internal/logging"
	"github.com/omuapps/obssync/internal/scene"
)

// DefaultDebounce is how long the directory must be quiet before the handler runs.
const DefaultDebounce = 500 * time.Millisecond

// Handler receives the files that changed since the last call, sorted.
type Handler func(ctx context.Context, files []string)

// Options configures a Watcher.
type Options struct {
	// Pattern filters file names. Defaults to scene.DefaultPattern.
	Pattern  string
	Debounce time.Duration
	// Publish receives a SceneDiscovered event per new file. Defaults to event.Publish.
	Publish func(event.Event)
}

// Watcher watches one scene-collection directory.
type Watcher struct {
	watcher *fsnotify.Watcher
	dir     string
	opts    Options
	handle  Handler
	log     zerolog.Logger

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
}

// New watches dir. The directory must exist.
func New(dir string, handle Handler, opts Options) (*Watcher, error) {
	if opts.Pattern == "" {
		opts.Pattern = scene.DefaultPattern
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Publish == nil {
		opts.Publish = event.Publish
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	log := logging.Component("watch")
	log.Info().Str("dir", dir).Str("pattern", opts.Pattern).Msg("scene watcher initialized")

	return &Watcher{
		watcher: w,
		dir:     dir,
		opts:    opts,
		handle:  handle,
		log:     log,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching. The handler runs on the watcher goroutine with ctx.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run(ctx)
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	pending := make(map[string]bool) // file -> created
	timer := time.NewTimer(w.opts.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			pending[ev.Name] = pending[ev.Name] || ev.Has(fsnotify.Create)
			timer.Reset(w.opts.Debounce)
		case <-timer.C:
			w.flush(ctx, pending)
			pending = make(map[string]bool)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("scene watcher error")
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}
	ok, _ := doublestar.Match(w.opts.Pattern, filepath.Base(ev.Name))
	return ok
}

func (w *Watcher) flush(ctx context.Context, pending map[string]bool) {
	if len(pending) == 0 {
		return
	}
	files := make([]string, 0, len(pending))
	for file, created := range pending {
		files = append(files, file)
		if created {
			w.opts.Publish(event.Event{Type: event.SceneDiscovered, Data: event.SceneData{File: file}})
		}
	}
	sort.Strings(files)
	w.log.Debug().Strs("files", files).Msg("scene collections changed")
	w.handle(ctx, files)
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Stop stops the watcher and waits for a running handler to return.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}

	if started {
		<-w.doneCh
	}
	return w.watcher.Close()
}
