package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes a rule from JSON. JSON is the canonical wire encoding; use
// ParseYAML for rule files authored by hand.
func Parse(data []byte) (*Rule, error) {
	var r Rule
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode rule: %w", err)
	}
	return &r, nil
}

// ParseYAML decodes a rule from YAML. Since JSON is a subset of YAML this
// also accepts JSON documents.
func ParseYAML(data []byte) (*Rule, error) {
	var r Rule
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode rule: %w", err)
	}
	return &r, nil
}

// LoadFile reads a rule definition from disk, choosing the decoder by file
// extension (.json for JSON, anything else is treated as YAML).
func LoadFile(path string) (*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return Parse(data)
	}
	return ParseYAML(data)
}
