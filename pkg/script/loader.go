package script

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Source hands out the script new sessions should run.
type Source interface {
	Current() *Script
}

// Static is a Source that always returns the same script.
type Static struct{ S *Script }

// Current implements Source.
func (s Static) Current() *Script { return s.S }

// Loader loads the conversation script from the widget document and
// optionally hot-reloads it.
type Loader struct {
	path string

	mu      sync.RWMutex
	current *Script
}

// NewLoader creates a loader for the document at path.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load reads and validates the document. The active script is replaced
// only when the new one is valid.
func (l *Loader) Load() (*Script, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %q: %v", ErrConfiguration, l.path, err)
	}
	s, err := Parse(l.path, data)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", l.path, err)
	}

	l.mu.Lock()
	l.current = s
	l.mu.Unlock()

	return s, nil
}

// Current returns the last successfully loaded script, or nil.
func (l *Loader) Current() *Script {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// WatchAndReload watches the document's directory and reloads the script
// when the document is written. Blocks until done is closed.
func (l *Loader) WatchAndReload(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", dir, err)
	}
	target := filepath.Clean(l.path)

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if s, err := l.Load(); err != nil {
					slog.Warn("script reload rejected, keeping previous",
						slog.String("path", l.path), slog.String("error", err.Error()))
				} else {
					slog.Info("script reloaded",
						slog.String("path", l.path), slog.Int("steps", s.StepCount()))
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
