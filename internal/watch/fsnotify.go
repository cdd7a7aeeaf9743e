package watch

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// fsSource adapts an fsnotify watcher on the file's parent directory. Watching
// the directory keeps notifications flowing when editors replace the file by
// renaming a temporary file over it.
type fsSource struct {
	w      *fsnotify.Watcher
	target string
	events chan struct{}
	errors chan error
}

// OpenFS is the default Opener. Write and create events on path are
// coalesced into a single pending notification.
func OpenFS(path string) (Source, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, err
	}
	s := &fsSource{
		w:      w,
		target: abs,
		events: make(chan struct{}, 1),
		errors: make(chan error, 1),
	}
	go s.pump()
	return s, nil
}

func (s *fsSource) pump() {
	defer close(s.events)
	defer close(s.errors)
	for {
		select {
		case ev, ok := <-s.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != s.target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			select {
			case s.events <- struct{}{}:
			default:
			}
		case err, ok := <-s.w.Errors:
			if !ok {
				return
			}
			select {
			case s.errors <- err:
			default:
			}
		}
	}
}

func (s *fsSource) Events() <-chan struct{} { return s.events }
func (s *fsSource) Errors() <-chan error    { return s.errors }
func (s *fsSource) Close() error            { return s.w.Close() }
