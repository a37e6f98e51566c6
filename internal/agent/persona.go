package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Persona pairs a prompt template with the tool catalog a caller source is
// allowed to reach. Limited-capability callers (widgets, email-in, MCP) get
// a restricted catalog instead of inline branches in the loop.
type Persona struct {
	Name           string   `yaml:"name"`
	AllowedTools   []string `yaml:"allowed_tools"`
	PromptTemplate string   `yaml:"prompt_template"`
}

type personaFile struct {
	Personas []Persona `yaml:"personas"`
}

// PersonaTable is the declarative persona registry, selected by request
// source. It can be reloaded at runtime when the backing file changes.
type PersonaTable struct {
	mu       sync.RWMutex
	path     string
	personas map[string]Persona
}

// DefaultPersonaName is used when a request's source is empty or unknown.
const DefaultPersonaName = "default"

// NewPersonaTable builds the built-in table, then overlays the YAML file at
// path if it exists.
func NewPersonaTable(path string) (*PersonaTable, error) {
	t := &PersonaTable{path: path, personas: builtinPersonas()}
	if path != "" {
		if err := t.reload(); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	return t, nil
}

func builtinPersonas() map[string]Persona {
	return map[string]Persona{
		DefaultPersonaName: {
			Name:           DefaultPersonaName,
			PromptTemplate: defaultPromptTemplate,
		},
		"capture": {
			Name: "capture",
			AllowedTools: []string{
				"respond", "clarify",
				"create_note", "list_pages", "list_sections", "query_notes", "list_tags",
			},
			PromptTemplate: capturePromptTemplate,
		},
	}
}

// Select returns the persona for a request source, falling back to the
// default persona.
func (t *PersonaTable) Select(source string) Persona {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.personas[source]; ok {
		return p
	}
	return t.personas[DefaultPersonaName]
}

// AllowedSet returns the persona's allow-set, or nil for the full catalog.
func (p Persona) AllowedSet() map[string]bool {
	if len(p.AllowedTools) == 0 {
		return nil
	}
	out := make(map[string]bool, len(p.AllowedTools))
	for _, name := range p.AllowedTools {
		out[name] = true
	}
	return out
}

func (t *PersonaTable) reload() error {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return err
	}
	var f personaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("personas: parse %s: %w", t.path, err)
	}
	merged := builtinPersonas()
	for _, p := range f.Personas {
		if p.Name == "" {
			continue
		}
		merged[p.Name] = p
	}
	t.mu.Lock()
	t.personas = merged
	t.mu.Unlock()
	return nil
}

// Watch reloads the persona file whenever it changes on disk, until ctx is
// cancelled. Reload failures keep the previous table.
func (t *PersonaTable) Watch(ctx context.Context, logger *slog.Logger) error {
	if t.path == "" {
		<-ctx.Done()
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(t.path); err != nil {
		logger.Warn("personas: watch failed", slog.String("path", t.path), slog.String("error", err.Error()))
		<-ctx.Done()
		return nil
	}
	logger.Info("personas: watching", slog.String("path", t.path))

	// Debounce bursts from editors that write in multiple events.
	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time
	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(200 * time.Millisecond)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			return nil
		case <-reloadCh:
			if err := t.reload(); err != nil {
				logger.Warn("personas: reload failed", slog.String("error", err.Error()))
			} else {
				logger.Info("personas: reloaded")
			}
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("personas: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
