package scheduler

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchFiles starts an fsnotify watcher over every distinct path named
// by a File-triggered task in store, translating fsnotify events into
// ObserveFileEvent calls until ctx is cancelled. Call once per process;
// re-adding a path fsnotify already watches is a harmless no-op on most
// platforms but callers should still avoid overlapping calls.
func (s *Scheduler) WatchFiles(ctx context.Context, paths []string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := watcher.Add(p); err != nil {
			s.log.Warn("file trigger watch failed", "path", p, "error", err)
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				s.ObserveFileEvent(ctx, FileEvent{Path: ev.Name, Op: fsOpName(ev.Op), At: time.Now()})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn("file watcher error", "error", err)
			}
		}
	}()
	return nil
}

func fsOpName(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	case op&fsnotify.Chmod != 0:
		return "chmod"
	default:
		return "unknown"
	}
}
