package watcher

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ProbeFSNotify tests whether fsnotify delivers events for the given
// directory. It creates a temporary file inside dir, watches for the Create
// event, and returns true if the event arrives within the timeout. Network
// mounts commonly fail this check.
func ProbeFSNotify(dir string, timeout time.Duration) bool {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return false
	}
	defer w.Close() //nolint:errcheck

	if err := w.Add(dir); err != nil {
		return false
	}

	probeName := fmt.Sprintf(".camwatch_probe_%d", rand.Int64()) //nolint:gosec // G404: not security-sensitive
	probePath := filepath.Join(dir, probeName)

	f, err := os.Create(probePath) //nolint:gosec // G304: probe file is temporary
	if err != nil {
		return false
	}
	f.Close()                  //nolint:errcheck
	defer os.Remove(probePath) //nolint:errcheck

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return false
			}
			if ev.Has(fsnotify.Create) && filepath.Base(ev.Name) == probeName {
				return true
			}
		case <-w.Errors:
			return false
		case <-timer.C:
			return false
		}
	}
}
