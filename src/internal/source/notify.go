// FILE: thermwatch/src/internal/source/notify.go
package source

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/lixenwraith/log"
)

// writeNotifier signals when the tailed file may have grown.
// The parent directory is watched so rotations are seen too.
type writeNotifier struct {
	watcher *fsnotify.Watcher
	path    string
	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	logger  *log.Logger
}

func newWriteNotifier(path string, logger *log.Logger) (*writeNotifier, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	n := &writeNotifier{
		watcher: watcher,
		path:    filepath.Clean(path),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		logger:  logger,
	}

	n.wg.Add(1)
	go n.loop()

	return n, nil
}

func (n *writeNotifier) loop() {
	defer n.wg.Done()

	for {
		select {
		case <-n.done:
			return
		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != n.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				n.notify()
			}
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			n.logger.Warn("msg", "Filesystem watcher error",
				"component", "tailer",
				"path", n.path,
				"error", err)
			// Fall back to the next poll
			n.notify()
		}
	}
}

// notify never blocks; one pending wake-up is enough
func (n *writeNotifier) notify() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *writeNotifier) C() <-chan struct{} {
	return n.wake
}

func (n *writeNotifier) close() error {
	close(n.done)
	err := n.watcher.Close()
	n.wg.Wait()
	return err
}
