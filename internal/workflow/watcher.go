package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors a drop directory for workflow YAML files. Each new
// or rewritten .yaml/.yml file is loaded, registered, and executed.
type Watcher struct {
	engine  *Engine
	dir     string
	watcher *fsnotify.Watcher
	// autoApprove is passed through to Execute for dropped workflows;
	// there is no interactive approver in watch mode.
	autoApprove bool

	mu sync.Mutex
	// seen avoids double-starting a workflow when an editor emits both
	// create and write events for the same file.
	seen map[string]bool

	done     chan struct{}
	debugLog func(format string, args ...interface{})
}

// NewWatcher creates a watcher on dir, creating the directory if needed.
func NewWatcher(engine *Engine, dir string, autoApprove bool) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create watch directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &Watcher{
		engine:      engine,
		dir:         dir,
		watcher:     fsw,
		autoApprove: autoApprove,
		seen:        make(map[string]bool),
		done:        make(chan struct{}),
		debugLog:    func(format string, args ...interface{}) {},
	}, nil
}

// SetDebugLog sets the debug logging function.
func (w *Watcher) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		w.debugLog = fn
	}
}

// Run watches until the context ends. Files already present in the
// directory are picked up first.
func (w *Watcher) Run(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				w.handleFile(ctx, filepath.Join(w.dir, entry.Name()))
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.handleFile(ctx, event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.debugLog("[workflow.Watcher] watch error: %v", err)
		}
	}
}

// handleFile loads one dropped workflow file and starts it.
func (w *Watcher) handleFile(ctx context.Context, path string) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return
	}

	w.mu.Lock()
	if w.seen[path] {
		w.mu.Unlock()
		return
	}
	w.seen[path] = true
	w.mu.Unlock()

	wf, err := w.engine.CreateFromFile(path)
	if err != nil {
		w.debugLog("[workflow.Watcher] rejected %s: %v", path, err)
		w.mu.Lock()
		delete(w.seen, path)
		w.mu.Unlock()
		return
	}

	w.debugLog("[workflow.Watcher] loaded %s as workflow %s", path, wf.ID)
	go func() {
		if err := w.engine.Execute(ctx, wf.ID, w.autoApprove); err != nil {
			w.debugLog("[workflow.Watcher] workflow %s finished with error: %v", wf.ID, err)
		}
	}()
}

// Close stops the watcher.
func (w *Watcher) Close() {
	close(w.done)
	w.watcher.Close()
}
