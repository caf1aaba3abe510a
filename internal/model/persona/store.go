package persona

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store exposes persona retrieval for handlers and the engine front ends.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
	FindByName(name string) (Persona, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	mu    sync.RWMutex
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	s := &MemoryStore{}
	s.Replace(items)
	return s
}

// List returns a copy of the stored personas in order.
func (s *MemoryStore) List() []Persona {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Persona, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item.Clone())
	}
	return out
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if item.ID == id {
			return item.Clone(), true
		}
	}
	return Persona{}, false
}

// FindByName matches display names case-insensitively.
func (s *MemoryStore) FindByName(name string) (Persona, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if strings.EqualFold(item.Name, strings.TrimSpace(name)) {
			return item.Clone(), true
		}
	}
	return Persona{}, false
}

// Replace swaps the stored personas, filling in missing IDs.
func (s *MemoryStore) Replace(items []Persona) {
	next := make([]Persona, 0, len(items))
	for _, item := range items {
		p := item.Clone()
		if p.ID == "" {
			p.ID = Slug(p.Name)
		}
		next = append(next, p)
	}

	s.mu.Lock()
	s.items = next
	s.mu.Unlock()
}

type personaFile struct {
	Personas []Persona `json:"personas" yaml:"personas"`
}

// LoadFile reads personas from a YAML or JSON file. Both a bare list and a
// {personas: [...]} document are accepted.
func LoadFile(path string) ([]Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var items []Persona
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		items, err = decodeJSON(data)
	default:
		items, err = decodeYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse personas %s: %w", path, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("personas file %s is empty", path)
	}

	for i := range items {
		if strings.TrimSpace(items[i].Name) == "" {
			return nil, fmt.Errorf("persona %d in %s has no name", i+1, path)
		}
		if items[i].ID == "" {
			items[i].ID = Slug(items[i].Name)
		}
	}
	return items, nil
}

func decodeYAML(data []byte) ([]Persona, error) {
	var wrapped personaFile
	if err := yaml.Unmarshal(data, &wrapped); err == nil && len(wrapped.Personas) > 0 {
		return wrapped.Personas, nil
	}
	var items []Persona
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func decodeJSON(data []byte) ([]Persona, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var items []Persona
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	var wrapped personaFile
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Personas, nil
}
