package vehicle

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store exposes vehicle lookup for HTTP handlers.
type Store interface {
	List() []Vehicle
	FindByID(id string) (Vehicle, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Vehicle
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied vehicles.
func NewMemoryStore(items []Vehicle) *MemoryStore {
	return &MemoryStore{items: append([]Vehicle(nil), items...)}
}

// List returns the catalog in declaration order.
func (s *MemoryStore) List() []Vehicle {
	return append([]Vehicle(nil), s.items...)
}

// FindByID looks up a vehicle by identifier, falling back to a
// case-insensitive name match so "Nexon EV" and "nexon-ev" both resolve.
func (s *MemoryStore) FindByID(id string) (Vehicle, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	for _, item := range s.items {
		if strings.EqualFold(item.Name, strings.TrimSpace(id)) {
			return item, true
		}
	}
	return Vehicle{}, false
}

type catalogFile struct {
	Vehicles []Vehicle `yaml:"vehicles"`
}

// LoadCatalog 从 YAML 文件读取车型目录。
func LoadCatalog(path string) ([]Vehicle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vehicle catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse vehicle catalog %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(file.Vehicles))
	for i, item := range file.Vehicles {
		item.ID = strings.TrimSpace(item.ID)
		item.Name = strings.TrimSpace(item.Name)
		if item.ID == "" || item.Name == "" {
			return nil, fmt.Errorf("vehicle catalog entry %d: id and name are required", i)
		}
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("vehicle catalog entry %d: duplicate id %q", i, item.ID)
		}
		seen[item.ID] = struct{}{}
		file.Vehicles[i] = item
	}

	if len(file.Vehicles) == 0 {
		return nil, fmt.Errorf("vehicle catalog %s is empty", path)
	}
	return file.Vehicles, nil
}
