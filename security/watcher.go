package security

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DocumentWatcher watches the governance and permissions documents for
// changes so a running participant can pick up renewed or revoked
// permissions without restarting.
type DocumentWatcher struct {
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	onChange func(path string)

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// WatchDocuments watches every "file:" URI in files and calls onChange
// with the changed path. URIs with other schemes are skipped.
func WatchDocuments(files Files, onChange func(path string), logger *slog.Logger) (*DocumentWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &ConfigError{Op: "watch", URI: "", Err: err}
	}
	dw := &DocumentWatcher{watcher: w, logger: logger, onChange: onChange}

	watched := 0
	for _, uri := range []string{files.Governance, files.Permissions, files.PermissionsCACertificate} {
		path := FilePath(uri)
		if path == "" {
			continue
		}
		if err := w.Add(path); err != nil {
			logger.Debug("cannot watch security document", "path", path, "error", err)
			continue
		}
		watched++
	}
	logger.Debug("watching security documents", "count", watched)

	dw.wg.Add(1)
	go dw.run()
	return dw, nil
}

func (dw *DocumentWatcher) run() {
	defer dw.wg.Done()
	for {
		select {
		case ev, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			dw.logger.Info("security document changed", "path", ev.Name)
			dw.onChange(ev.Name)
		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			dw.logger.Warn("security document watch error", "error", err)
		}
	}
}

// Close stops watching.
func (dw *DocumentWatcher) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.closed {
		return nil
	}
	dw.closed = true
	err := dw.watcher.Close()
	dw.wg.Wait()
	return err
}
