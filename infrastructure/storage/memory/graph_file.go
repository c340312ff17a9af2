package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/robotflow/domain/knowledge"
)

// ParseGraph decodes a YAML (or JSON) graph document and validates it.
func ParseGraph(data []byte) (knowledge.Graph, error) {
	var g knowledge.Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return knowledge.Graph{}, fmt.Errorf("%w: %v", knowledge.ErrInvalidGraph, err)
	}
	if err := g.Validate(); err != nil {
		return knowledge.Graph{}, err
	}
	return g, nil
}

// LoadGraphFile reads and validates a graph file.
func LoadGraphFile(path string) (knowledge.Graph, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied graph path
	if err != nil {
		return knowledge.Graph{}, fmt.Errorf("read graph file: %w", err)
	}
	return ParseGraph(data)
}

// NewKnowledgeStoreFromFile builds a store from a graph file.
func NewKnowledgeStoreFromFile(path string) (*KnowledgeStore, error) {
	g, err := LoadGraphFile(path)
	if err != nil {
		return nil, err
	}
	return NewKnowledgeStore(g)
}

// ReloadFunc is called after every reload attempt. err is nil on success;
// on failure the previous graph stays active.
type ReloadFunc func(path string, err error)

// Watcher reloads a KnowledgeStore when its graph file changes.
type Watcher struct {
	store    *KnowledgeStore
	path     string
	watcher  *fsnotify.Watcher
	onReload ReloadFunc

	closeOnce sync.Once
	done      chan struct{}
}

// NewWatcher watches the directory of path so that editors which replace
// the file on save are still observed.
func NewWatcher(store *KnowledgeStore, path string, onReload ReloadFunc) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	if onReload == nil {
		onReload = func(string, error) {}
	}
	return &Watcher{
		store:    store,
		path:     abs,
		watcher:  fw,
		onReload: onReload,
		done:     make(chan struct{}),
	}, nil
}

// Run processes file events until ctx is done or Close is called.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			return ctx.Err()
		case <-w.done:
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.onReload(w.path, w.reload())
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.onReload(w.path, err)
		}
	}
}

func (w *Watcher) reload() error {
	g, err := LoadGraphFile(w.path)
	if err != nil {
		return err
	}
	return w.store.Load(g)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
