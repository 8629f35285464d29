// Package config loads connection settings from a YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dbrelay/dbrelay/protocol"
)

// File is the on-disk configuration layout.
//
//	database:
//	  path: ./app.db
//	  create: true
//	  readonly: false
//	  verbose: false
type File struct {
	Database protocol.Settings `yaml:"database"`
}

// Load reads settings from the YAML file at path. Keys absent from the file
// keep their defaults (in-memory database, create enabled).
func Load(path string) (protocol.Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return protocol.Settings{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes settings from raw YAML.
func Parse(data []byte) (protocol.Settings, error) {
	f := File{Database: protocol.DefaultSettings()}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return protocol.Settings{}, fmt.Errorf("parse config: %w", err)
	}
	if f.Database.Path != "" && f.Database.StorageScope != "" {
		return protocol.Settings{}, fmt.Errorf("config: path and storage_scope are mutually exclusive")
	}
	return f.Database, nil
}
