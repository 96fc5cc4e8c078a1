package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"creditscore/internal/schema"
)

type schemaFile struct {
	SchemaVersion string         `yaml:"schema_version"`
	Columns       schema.Columns `yaml:"columns"`
}

// LoadSchemaFile parses a column-schema YAML and validates it. An empty path
// yields the built-in credit schema.
func LoadSchemaFile(path string) (schema.Columns, error) {
	if path == "" {
		return schema.Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return schema.Columns{}, err
	}
	var f schemaFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return schema.Columns{}, fmt.Errorf("schema file %s: %w", path, err)
	}
	if f.SchemaVersion == "" {
		f.SchemaVersion = schema.Version
	}
	if f.SchemaVersion != schema.Version {
		return schema.Columns{}, fmt.Errorf("schema file schema_version %q not supported (want %q)", f.SchemaVersion, schema.Version)
	}
	if err := f.Columns.Validate(); err != nil {
		return schema.Columns{}, err
	}
	return f.Columns, nil
}
