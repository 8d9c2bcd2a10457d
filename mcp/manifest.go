package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/invopop/jsonschema"

	"github.com/honganh1206/mcp-runtime/logger"
)

// toolManifest is the on-disk shape of a *.tool.json file: a static tool
// definition whose calls return a fixed response, useful for prototyping
// or exposing canned data without writing a handler.
type toolManifest struct {
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	InputSchema  *jsonschema.Schema `json:"inputSchema,omitempty"`
	StaticResult json.RawMessage   `json:"staticResult"`
}

// ManifestWatcher watches a directory of *.tool.json files and keeps a
// Registry's tool catalogue in sync with them: create/write loads or
// reloads the tool, remove unregisters it. Rapid successive writes to one
// file (e.g. editors that truncate-then-write) are debounced.
type ManifestWatcher struct {
	dir      string
	registry *Registry
	debounce time.Duration

	watcher *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]*time.Timer
	// loaded maps file path to the tool name it last registered, so a
	// remove event (or a rename that changes the name) can clean up the
	// correct registry entry.
	loaded map[string]string
}

// NewManifestWatcher builds a watcher over dir, not yet running; call Run
// to start its event loop.
func NewManifestWatcher(dir string, registry *Registry, debounce time.Duration) (*ManifestWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	return &ManifestWatcher{
		dir:      dir,
		registry: registry,
		debounce: debounce,
		watcher:  w,
		timers:   make(map[string]*time.Timer),
		loaded:   make(map[string]string),
	}, nil
}

// LoadExisting registers every *.tool.json file already present in the
// watched directory, before Run starts picking up further changes.
func (mw *ManifestWatcher) LoadExisting() error {
	entries, err := os.ReadDir(mw.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".tool.json") {
			continue
		}
		mw.reload(filepath.Join(mw.dir, e.Name()))
	}
	return nil
}

// Run blocks, applying watched-directory events to the registry until ctx
// is cancelled.
func (mw *ManifestWatcher) Run(ctx context.Context) {
	defer mw.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-mw.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".tool.json") {
				continue
			}
			switch {
			case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
				mw.remove(event.Name)
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				mw.debouncedReload(event.Name)
			}
		case err, ok := <-mw.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("mcp: manifest watcher error: %v", err)
		}
	}
}

func (mw *ManifestWatcher) debouncedReload(path string) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if t, ok := mw.timers[path]; ok {
		t.Stop()
	}
	mw.timers[path] = time.AfterFunc(mw.debounce, func() { mw.reload(path) })
}

func (mw *ManifestWatcher) reload(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warning("mcp: manifest %s unreadable: %v", path, err)
		return
	}
	var manifest toolManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		logger.Warning("mcp: manifest %s is not valid JSON: %v", path, err)
		return
	}

	mw.mu.Lock()
	prevName, hadPrev := mw.loaded[path]
	mw.loaded[path] = manifest.Name
	mw.mu.Unlock()

	if hadPrev && prevName != manifest.Name {
		mw.registry.RemoveTool(prevName)
	}

	tool := Tool{Name: manifest.Name, Description: manifest.Description, InputSchema: manifest.InputSchema}
	err = mw.registry.AddTool(tool, func(RequestHandlerExtra, json.RawMessage) (*CallToolResult, error) {
		return &CallToolResult{Content: []ContentBlock{{Type: "text", Text: string(manifest.StaticResult)}}}, nil
	})
	if err != nil {
		logger.Warning("mcp: failed to register manifest tool %q: %v", manifest.Name, err)
	}
}

func (mw *ManifestWatcher) remove(path string) {
	mw.mu.Lock()
	name, ok := mw.loaded[path]
	delete(mw.loaded, path)
	mw.mu.Unlock()
	if ok {
		mw.registry.RemoveTool(name)
	}
}

// Close stops the watcher without waiting for Run's goroutine to return.
func (mw *ManifestWatcher) Close() error {
	return mw.watcher.Close()
}
