package schema

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// LoadDir reads all entity definitions (*.json) from dir and populates the registry.
func LoadDir(dir string, reg *Registry) error {
	names, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}

	var entities []*Entity
	for _, de := range names {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, de.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		var entity Entity
		if err := json.Unmarshal(data, &entity); err != nil {
			log.Printf("WARN: skipping schema %s (invalid JSON): %v", de.Name(), err)
			continue
		}
		if entity.Name == "" {
			log.Printf("WARN: skipping schema %s (missing name)", de.Name())
			continue
		}
		if entity.Collection == "" {
			entity.Collection = entity.Name
		}
		entities = append(entities, &entity)
	}

	reg.Load(entities)
	log.Printf("Loaded %d entity schemas from %s", len(entities), dir)
	return nil
}
