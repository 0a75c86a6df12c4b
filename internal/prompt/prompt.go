// Package prompt implements an optional override table for the Analysis
// Agents' and Roundtable Participants' system prompts (spec.md design note
// "Prompt-engineering details are data"). Adapted from the teacher's
// pkg/core/prompt.Registry/LoadFromDirectory pattern, but scoped to a flat
// name->text map loaded from one directory of plain-text files rather than
// the teacher's per-provider template variants, since this module has only
// one LLM Gateway backend.
package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ddorchestrator/internal/ddrerr"
)

// Registry is a read-only, concurrency-safe name -> prompt-text table.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]string
}

// LoadFromDirectory reads every *.txt file in dir (non-recursive); the key
// is the filename without its extension (e.g. "team_analyst_system.txt" ->
// "team_analyst_system"), the value is the trimmed file content.
func LoadFromDirectory(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ddrerr.Wrap(ddrerr.InternalError, "prompt: read directory "+dir, err)
	}

	templates := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".txt" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, ddrerr.Wrap(ddrerr.InternalError, "prompt: read file "+e.Name(), err)
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		templates[name] = strings.TrimSpace(string(data))
	}
	return &Registry{templates: templates}, nil
}

// Get returns the override text registered under name, if any. Safe to call
// on a nil *Registry, which every caller does when no override directory is
// configured.
func (r *Registry) Get(name string) (string, bool) {
	if r == nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.templates[name]
	return v, ok
}

// Count reports how many overrides are currently loaded.
func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.templates)
}
