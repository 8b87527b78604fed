package datasetcfg

import (
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConfigWatcher watches a configuration file and broadcasts each decoded
// generation to its subscribers. Generations that fail to decode are logged
// and dropped rather than broadcast, so subscribers only ever see usable
// configurations.
type ConfigWatcher[T any] struct {
	logger *zap.Logger
	path   string
	decode func(data []byte) (T, error)
	watch  *fsnotify.Watcher

	lock     sync.Mutex
	watchers map[uuid.UUID]chan<- T
}

type ConfigWatcherOptions[T any] struct {
	Logger *zap.Logger
	Path   string

	// Decode turns file contents into a configuration value.
	Decode func(data []byte) (T, error)
}

func NewConfigWatcher[T any](opts *ConfigWatcherOptions[T]) (*ConfigWatcher[T], error) {
	watch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &ConfigWatcher[T]{
		logger:   opts.Logger,
		path:     opts.Path,
		decode:   opts.Decode,
		watch:    watch,
		watchers: make(map[uuid.UUID]chan<- T),
	}

	err = watch.Add(opts.Path)
	if err != nil {
		watch.Close()
		return nil, err
	}

	go w.run()

	return w, nil
}

func (w *ConfigWatcher[T]) run() {
	for {
		select {
		case event, ok := <-w.watch.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.reload()
			}
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				// Editors commonly replace the file; re-arm the watch on
				// the path and pick up whatever is there now.
				if err := w.watch.Add(w.path); err == nil {
					w.reload()
				}
			}
		case err, ok := <-w.watch.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", zap.Error(err))
		}
	}
}

func (w *ConfigWatcher[T]) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Warn("failed to read updated config",
			zap.String("path", w.path),
			zap.Error(err))
		return
	}

	config, err := w.decode(data)
	if err != nil {
		w.logger.Warn("ignoring undecodable config update",
			zap.String("path", w.path),
			zap.Error(err))
		return
	}

	w.broadcast(config)
}

func (w *ConfigWatcher[T]) broadcast(config T) {
	w.lock.Lock()
	defer w.lock.Unlock()

	for _, ch := range w.watchers {
		ch <- config
	}
}

// Subscribe registers a channel to receive configuration generations and
// returns the matching unsubscribe function.
func (w *ConfigWatcher[T]) Subscribe(ch chan<- T) func() {
	w.lock.Lock()
	defer w.lock.Unlock()

	id := uuid.New()
	w.watchers[id] = ch

	return func() {
		w.lock.Lock()
		defer w.lock.Unlock()
		delete(w.watchers, id)
	}
}

func (w *ConfigWatcher[T]) Close() error {
	return w.watch.Close()
}
