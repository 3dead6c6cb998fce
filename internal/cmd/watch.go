package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/piper/internal/errors"
	"github.com/Iron-Ham/piper/internal/pipeline"
)

// watchDebounce coalesces the burst of events an editor produces on save.
const watchDebounce = 50 * time.Millisecond

// watchDefinition runs the definition at path, then re-runs it every time
// the file changes. A change kills the current run before the next one
// starts. It returns when ctx is cancelled.
func watchDefinition(ctx context.Context, path string, r *runner) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory: editors that save by rename replace the file's
	// inode, which drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	var (
		cancel context.CancelFunc
		done   chan struct{}
	)
	stopCurrent := func() {
		if cancel == nil {
			return
		}
		cancel()
		<-done
		cancel = nil
	}
	start := func() {
		def, err := pipeline.LoadDefinition(nil, abs)
		if err != nil {
			fmt.Fprintln(r.stderr, r.styles.failure.Render("piper: "+err.Error()))
			return
		}
		var runCtx context.Context
		runCtx, cancel = context.WithCancel(ctx)
		done = make(chan struct{})
		go func(done chan struct{}) {
			defer close(done)
			code := r.run(runCtx, def.Specs())
			if runCtx.Err() == nil {
				r.logger.Info("pipeline finished", "definition", abs, "exit_code", code)
				fmt.Fprintln(r.stderr, r.styles.muted.Render(fmt.Sprintf("piper: exited %d, watching %s", code, path)))
			}
		}(done)
	}

	start()
	defer stopCurrent()

	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C // drain initial timer

	for {
		select {
		case <-ctx.Done():
			return errors.ErrCanceled

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounceTimer.Reset(watchDebounce)

		case <-debounceTimer.C:
			r.logger.Debug("definition changed, restarting pipeline", "definition", abs)
			stopCurrent()
			start()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("file watcher error", "error", err)
		}
	}
}
