package catalog

import (
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const watchDebounce = 500 * time.Millisecond

// Watcher observes the model directories and invokes onChange after external
// edits settle, so status stays in sync when files are added or removed
// behind the app's back. In-flight .download temp files are ignored.
type Watcher struct {
	watcher  *fsnotify.Watcher
	log      *zap.Logger
	onChange func()
	done     chan struct{}
}

// NewWatcher starts watching the given directories, creating them if needed.
func NewWatcher(dirs []string, onChange func(), log *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Warn("create watched directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		if err := fw.Add(dir); err != nil {
			log.Warn("watch directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	w := &Watcher{
		watcher:  fw,
		log:      log,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				fire = timer.C
			} else {
				timer.Reset(watchDebounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("model directory watch error", zap.Error(err))
		case <-fire:
			timer = nil
			fire = nil
			w.onChange()
		}
	}
}

// relevant filters out temp files written during active transfers.
func relevant(ev fsnotify.Event) bool {
	if strings.HasSuffix(ev.Name, ".download") || strings.HasSuffix(ev.Name, ".tmp") {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) != 0
}
