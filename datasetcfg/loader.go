package datasetcfg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Parse decodes a datasets configuration document. Unknown fields are
// rejected so typos surface instead of silently dropping settings.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	err := decoder.Decode(&cfg)
	if errors.Is(err, io.EOF) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse datasets config: %w", err)
	}

	return &cfg, nil
}

// Load reads and parses the datasets configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read datasets config: %w", err)
	}
	return Parse(data)
}
