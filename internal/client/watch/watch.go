// Package watch notices changes made to the local store by other processes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dmitrijs2005/storyline/internal/logging"
)

// DBPath extracts the file path from a SQLite DSN. ok is false for
// in-memory databases.
func DBPath(dsn string) (path string, ok bool) {
	if dsn == "" || dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return "", false
	}
	path = strings.TrimPrefix(dsn, "file:")
	path, _, _ = strings.Cut(path, "?")
	return path, path != ""
}

// Watcher reports writes to a SQLite file and its journal files, debounced.
// fsnotify watches the parent directory because SQLite replaces the WAL and
// journal files rather than writing them in place.
type Watcher struct {
	fs    *fsnotify.Watcher
	names map[string]struct{}
	delay time.Duration
	log   logging.Logger
}

func New(dbPath string, delay time.Duration, log logging.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	base := filepath.Base(abs)
	return &Watcher{
		fs: fw,
		names: map[string]struct{}{
			base:              {},
			base + "-wal":     {},
			base + "-journal": {},
		},
		delay: delay,
		log:   log,
	}, nil
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if _, ok := w.names[filepath.Base(ev.Name)]; !ok {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) ||
		ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove)
}

// Run calls onChange once per burst of relevant events until ctx is done or
// the watcher is closed.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context)) error {
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if w.relevant(ev) {
				fire = time.After(w.delay)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				fire = time.After(w.delay)
			}
			w.log.Warn(ctx, "file watcher error", "error", err)

		case <-fire:
			fire = nil
			onChange(ctx)
		}
	}
}

func (w *Watcher) Close() error {
	return w.fs.Close()
}
