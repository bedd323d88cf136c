// Copyright 2025 The Planor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RulesWatcher keeps the rules text in sync with a rules file on disk, so a
// long-running orchestration picks up rule edits without a restart.
type RulesWatcher struct {
	path string

	mu   sync.RWMutex
	text string
}

// NewRulesWatcher reads the rules file and starts watching it for changes.
// The watch stops when ctx is cancelled.
func NewRulesWatcher(ctx context.Context, path string) (*RulesWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve rules path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", absPath, err)
	}

	w := &RulesWatcher{path: absPath, text: string(data)}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory; some systems don't support watching files directly.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch rules directory: %w", err)
	}

	go w.watchLoop(ctx, watcher)

	slog.Info("Watching rules file", "path", absPath)
	return w, nil
}

// Text returns the current rules text. Safe for concurrent use; this is the
// RulesProvider handed to the planner and executor.
func (w *RulesWatcher) Text() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.text
}

func (w *RulesWatcher) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	// Debounce to coalesce rapid editor writes.
	var debounce *time.Timer
	const debounceDelay = 100 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, w.reload)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Rules watcher error", "error", err)
		}
	}
}

func (w *RulesWatcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		slog.Warn("Failed to reload rules file", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	w.text = string(data)
	w.mu.Unlock()

	slog.Info("Reloaded rules file", "path", w.path)
}
