package state

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Dicklesworthstone/dmux/internal/util"
)

const (
	// watchDebounce coalesces rapid filesystem events before reloading.
	watchDebounce = 100 * time.Millisecond
	// watchRetryMin/Max bound the re-open backoff after a watcher failure.
	watchRetryMin = time.Second
	watchRetryMax = 30 * time.Second
)

var errWatcherClosed = errors.New("watcher channel closed")

// Watch reloads the store when another process rewrites the config file.
// It runs until ctx is cancelled and survives watcher failures by
// re-opening with a doubling backoff. The project directory is watched
// rather than the file itself so atomic rename-into-place is seen.
func (s *Store) Watch(ctx context.Context) error {
	w, err := s.openWatcher()
	if err != nil {
		return err
	}
	go s.watchLoop(ctx, w)
	return nil
}

func (s *Store) openWatcher() (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(util.ProjectDir(s.projectRoot)); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func (s *Store) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	retry := watchRetryMin
	for {
		err := s.consumeEvents(ctx, w)
		w.Close()
		if err == nil {
			return
		}

		// Re-open, waiting longer after each consecutive failure.
		for {
			s.logger().Warn("config watcher failed",
				slog.Any("error", err), slog.Duration("retry_in", retry))
			select {
			case <-ctx.Done():
				return
			case <-time.After(retry):
			}
			if retry < watchRetryMax {
				retry *= 2
			}
			if w, err = s.openWatcher(); err == nil {
				break
			}
		}
		retry = watchRetryMin
		// events may have been missed while the watcher was down
		s.reloadFromDisk(ctx)
	}
}

// consumeEvents pumps watcher events into debounced reloads. It returns
// nil when ctx ends and an error when the watcher needs to be re-opened.
func (s *Store) consumeEvents(ctx context.Context, w *fsnotify.Watcher) error {
	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	target := filepath.Base(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return errWatcherClosed
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(watchDebounce, func() {
				if ctx.Err() != nil {
					return
				}
				s.reloadFromDisk(ctx)
			})

		case err, ok := <-w.Errors:
			if !ok {
				return errWatcherClosed
			}
			return err
		}
	}
}
