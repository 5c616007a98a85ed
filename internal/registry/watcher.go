package registry

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"chatcore/pkg/types"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher re-lists the registry after model files are created, removed or
// renamed, coalescing bursts of events into one callback.
type Watcher struct {
	reg      *Registry
	fsw      *fsnotify.Watcher
	onChange func([]types.Model)
	debounce time.Duration
	log      zerolog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewWatcher watches reg's directory. onChange receives the fresh listing.
func NewWatcher(reg *Registry, log zerolog.Logger, onChange func([]types.Model)) (*Watcher, error) {
	return newWatcher(reg, log, defaultDebounce, onChange)
}

func newWatcher(reg *Registry, log zerolog.Logger, debounce time.Duration, onChange func([]types.Model)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(reg.Dir()); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", reg.Dir(), err)
	}
	w := &Watcher{
		reg:      reg,
		fsw:      fsw,
		onChange: onChange,
		debounce: debounce,
		log:      log,
		stop:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Close stops the watcher and waits for the event loop to exit.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stop)
		w.wg.Wait()
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-w.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !relevant(ev) {
				continue
			}
			w.log.Debug().Str("file", filepath.Base(ev.Name)).Str("op", ev.Op.String()).Msg("model dir event")
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("model dir watcher error")
		case <-fire:
			fire = nil
			models, err := w.reg.List()
			if err != nil {
				w.log.Warn().Err(err).Msg("relist models")
				continue
			}
			if w.onChange != nil {
				w.onChange(models)
			}
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if !IsModelFile(ev.Name) {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}
