package persona

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// ErrEmptyCatalog is returned when a catalog file declares no personas.
var ErrEmptyCatalog = errors.New("persona catalog is empty")

type catalogFile struct {
	Personas []Persona `toml:"personas"`
}

// LoadCatalog reads a TOML persona catalog:
//
//	[[personas]]
//	id = "code-wizard"
//	name = "Code Wizard"
//	system_instruction = "You are an expert programmer..."
//	grounding = false
func LoadCatalog(path string) ([]Persona, error) {
	var file catalogFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("decode persona catalog %s: %w", path, err)
	}
	if err := Validate(file.Personas); err != nil {
		return nil, fmt.Errorf("invalid persona catalog %s: %w", path, err)
	}
	return file.Personas, nil
}

// Validate checks that every persona has a unique id and a name.
func Validate(items []Persona) error {
	if len(items) == 0 {
		return ErrEmptyCatalog
	}
	seen := make(map[string]struct{}, len(items))
	for i := range items {
		items[i].ID = strings.TrimSpace(items[i].ID)
		items[i].Name = strings.TrimSpace(items[i].Name)
		if items[i].ID == "" {
			return fmt.Errorf("persona #%d: id is required", i+1)
		}
		if items[i].Name == "" {
			return fmt.Errorf("persona %q: name is required", items[i].ID)
		}
		if _, dup := seen[items[i].ID]; dup {
			return fmt.Errorf("persona %q: duplicate id", items[i].ID)
		}
		seen[items[i].ID] = struct{}{}
	}
	return nil
}
