// internal/ingest/watcher.go
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	apperrors "quill/internal/errors"
	"quill/internal/template"
)

// Watcher monitors an inbox directory for edited template bundles and
// records them as commits. A bundle is up to three flat files named
// <template-id>.html, <template-id>.css and <template-id>.js; missing
// sections commit as empty. This stands in for the upload/parsing
// pipeline, which drops re-parsed documents here.
type Watcher struct {
	svc     *template.Service
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	inbox  string
	branch string
	author string

	// Debounce window so a bundle's three writes land as one commit.
	settle time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	done   chan struct{}
}

type Options struct {
	Inbox  string
	Branch string
	Author string
	Settle time.Duration
}

func NewWatcher(svc *template.Service, opts Options, logger *zap.Logger) (*Watcher, error) {
	if opts.Inbox == "" {
		return nil, fmt.Errorf("inbox directory is required")
	}
	if err := os.MkdirAll(opts.Inbox, 0755); err != nil {
		return nil, fmt.Errorf("creating inbox directory: %w", err)
	}
	if opts.Branch == "" {
		opts.Branch = template.DefaultBranchName
	}
	if opts.Author == "" {
		opts.Author = "ingest"
	}
	if opts.Settle == 0 {
		opts.Settle = 500 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fsw.Add(opts.Inbox); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching inbox: %w", err)
	}

	w := &Watcher{
		svc:     svc,
		watcher: fsw,
		logger:  logger,
		inbox:   opts.Inbox,
		branch:  opts.Branch,
		author:  opts.Author,
		settle:  opts.Settle,
		timers:  make(map[string]*time.Timer),
		done:    make(chan struct{}),
	}

	go w.watchLoop()

	return w, nil
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", zap.Error(err))
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	templateID, ok := bundleID(filepath.Base(event.Name))
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[templateID]; ok {
		t.Stop()
	}
	w.timers[templateID] = time.AfterFunc(w.settle, func() {
		w.commitBundle(templateID)
	})
}

// bundleID extracts the template id from a bundle file name.
func bundleID(name string) (string, bool) {
	ext := filepath.Ext(name)
	switch ext {
	case ".html", ".css", ".js":
		return strings.TrimSuffix(name, ext), true
	}
	return "", false
}

func (w *Watcher) commitBundle(templateID string) {
	w.mu.Lock()
	delete(w.timers, templateID)
	w.mu.Unlock()

	html := w.readSection(templateID, "html")
	css := w.readSection(templateID, "css")
	js := w.readSection(templateID, "js")

	// A concurrent editor commit can move the head while the bundle
	// settles; re-resolving and retrying once is the sanctioned path.
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		_, err = w.svc.Commit(templateID, w.branch, w.author, "Imported from inbox", html, css, js)
		if err == nil || !apperrors.IsFastForward(err) {
			break
		}
	}
	if err != nil {
		w.logger.Error("committing inbox bundle",
			zap.String("template_id", templateID),
			zap.Error(err))
		return
	}

	w.consume(templateID)
	w.logger.Info("inbox bundle committed",
		zap.String("template_id", templateID),
		zap.String("branch", w.branch))
}

func (w *Watcher) readSection(templateID, ext string) string {
	data, err := os.ReadFile(filepath.Join(w.inbox, templateID+"."+ext))
	if err != nil {
		return ""
	}
	return string(data)
}

func (w *Watcher) consume(templateID string) {
	for _, ext := range []string{"html", "css", "js"} {
		path := filepath.Join(w.inbox, templateID+"."+ext)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			w.logger.Warn("removing consumed bundle file", zap.String("path", path), zap.Error(err))
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)

	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()

	return w.watcher.Close()
}
