package threshold

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

type file struct {
	Default    float64 `yaml:"default"`
	Thresholds []Entry `yaml:"thresholds"`
}

// Load reads a threshold file.
func Load(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read threshold file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse threshold file: %w", err)
	}

	engine, err := NewEngine(f.Thresholds, f.Default)
	if err != nil {
		return nil, fmt.Errorf("invalid threshold file %s: %w", path, err)
	}
	return engine, nil
}

// Store holds the current engine of a threshold file and swaps it when the
// file changes.
type Store struct {
	path   string
	engine atomic.Pointer[Engine]
}

func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the file. The current engine is kept if the file is invalid.
func (s *Store) Reload() error {
	engine, err := Load(s.path)
	if err != nil {
		return err
	}
	s.engine.Store(engine)
	return nil
}

func (s *Store) Engine() *Engine {
	return s.engine.Load()
}

// Watch reloads the store whenever the file is written or replaced, until ctx ends.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files by rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.path, err)
	}

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.Reload(); err != nil {
				slog.Warn("Failed to reload thresholds", "path", s.path, "error", err)
				continue
			}
			slog.Info("Thresholds reloaded", "path", s.path, "count", len(s.Engine().Entries()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Threshold watcher error", "error", err)
		}
	}
}
