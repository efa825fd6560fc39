package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the on-disk encoding of a model file.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

func (f Format) String() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "json"
}

// FormatForPath picks the encoding from the file extension; anything other
// than .yaml or .yml is JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Decode parses data into an untyped tree.
func Decode(data []byte, f Format) (map[string]any, error) {
	var tree map[string]any
	switch f {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("model: decode yaml: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&tree); err != nil {
			return nil, fmt.Errorf("model: decode json: %w", err)
		}
	}
	if tree == nil {
		tree = map[string]any{}
	}
	return tree, nil
}

// Encode renders a tree in the given format.
func Encode(tree map[string]any, f Format) ([]byte, error) {
	switch f {
	case FormatYAML:
		data, err := yaml.Marshal(tree)
		if err != nil {
			return nil, fmt.Errorf("model: encode yaml: %w", err)
		}
		return data, nil
	default:
		data, err := json.MarshalIndent(tree, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("model: encode json: %w", err)
		}
		return append(data, '\n'), nil
	}
}

// Load reads a model file (JSON or YAML by extension) and builds a Handler.
func Load(path string, opts ...Option) (*Handler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: read %s: %w", path, err)
	}
	tree, err := Decode(data, FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("model: %s: %w", path, err)
	}
	h, err := New(tree, opts...)
	if err != nil {
		return nil, fmt.Errorf("model: %s: %w", path, err)
	}
	return h, nil
}

// Save writes the current tree to path, creating parent directories.
func (h *Handler) Save(path string) error {
	data, err := Encode(h.Tree(), FormatForPath(path))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("model: create dir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("model: write %s: %w", path, err)
	}
	return nil
}
