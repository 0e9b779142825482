package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"heatbatch/internal/model"
)

// Result is one parse of a watched batch file.
type Result struct {
	Schedule *model.Schedule
	Err      error
}

// Watcher re-parses a batch file whenever it changes on disk.
// Editors often replace files instead of writing them in place, so the
// directory is watched rather than the file itself.
type Watcher struct {
	mu       sync.Mutex
	parser   *Parser
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	results  chan Result
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// NewWatcher creates a Watcher for the batch file at path.
func NewWatcher(path string, parser *Parser) (*Watcher, error) {
	abs, err := filepath.Abs(model.ExpandTilde(path))
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		parser:   parser,
		path:     abs,
		watcher:  fw,
		debounce: 200 * time.Millisecond,
		results:  make(chan Result, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Results delivers a fresh parse after each settled change. The channel is
// closed once the watcher stops.
func (w *Watcher) Results() <-chan Result {
	return w.results
}

// Start begins watching. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.running = true
	w.parser.logger.Debug("Watching batch file", zap.String("path", w.path))
	go w.run(ctx)
	return nil
}

// Stop ends the watch loop and releases the underlying watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	if err := w.watcher.Close(); err != nil {
		w.parser.logger.Warn("Error closing watcher", zap.Error(err))
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	defer close(w.results)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.parser.logger.Debug("Batch file changed", zap.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.parser.logger.Warn("Watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			sched, err := w.parser.Parse(w.path)
			select {
			case w.results <- Result{Schedule: sched, Err: err}:
			case <-w.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}
