package config

import (
	"context"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow absorbs the burst of events editors emit on save.
const debounceWindow = 300 * time.Millisecond

// Watch invokes onChange after the file at path settles following a write.
// Editors that save via rename drop the inotify watch, so the path is
// re-added when that happens. The watcher stops when ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()
		var debounce *time.Timer
		for {
			select {
			case <-ctx.Done():
				if debounce != nil {
					debounce.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					if err := w.Add(path); err != nil {
						log.Printf("config watch: re-add %s: %v", path, err)
						continue
					}
				} else if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceWindow, onChange)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("config watch: %v", err)
			}
		}
	}()
	return nil
}
