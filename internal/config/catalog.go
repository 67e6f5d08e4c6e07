package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/BartekS5/sante-etl/pkg/models"
)

// LoadCatalog reads and validates the table catalog at filePath. An empty
// path yields the built-in catalog.
func LoadCatalog(filePath string) (*models.Catalog, error) {
	if filePath == "" {
		return models.DefaultCatalog(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file '%s': %w", filePath, err)
	}
	catalog, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("catalog file '%s': %w", filePath, err)
	}
	return catalog, nil
}

// ParseCatalog decodes a YAML catalog. Unknown keys are rejected.
func ParseCatalog(data []byte) (*models.Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var catalog models.Catalog
	if err := dec.Decode(&catalog); err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &catalog, nil
}
