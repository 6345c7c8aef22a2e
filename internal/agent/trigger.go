package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/fotad-io/fotad/pkg/log"
)

// TriggerWatcher turns the presence of a marker file into check-now
// commands. Operators (or provisioning scripts without HTTP access) touch
// the file; the watcher consumes it and nudges the agent. Event driven, no
// polling.
type TriggerWatcher struct {
	path   string
	logger log.Logger
}

func NewTriggerWatcher(path string) *TriggerWatcher {
	return &TriggerWatcher{
		path:   path,
		logger: log.WithName("trigger"),
	}
}

// Run watches until ctx is cancelled, sending one value per consumed
// marker. The marker is removed before signalling so a touch during a
// running cycle queues exactly one follow-up check.
func (w *TriggerWatcher) Run(ctx context.Context, checkNow chan<- struct{}) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create trigger dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	// A marker left over from before we started still counts.
	w.consume(ctx, checkNow)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != w.path {
				continue
			}
			if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) {
				w.consume(ctx, checkNow)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error(err, "Trigger watcher error")
		}
	}
}

func (w *TriggerWatcher) consume(ctx context.Context, checkNow chan<- struct{}) {
	if _, err := os.Stat(w.path); err != nil {
		return
	}
	if err := os.Remove(w.path); err != nil {
		w.logger.Error(err, "Failed to remove trigger marker", "path", w.path)
		return
	}
	w.logger.Info("Manual check trigger consumed", "path", w.path)
	select {
	case checkNow <- struct{}{}:
	case <-ctx.Done():
	}
}
