package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	yaml "go.yaml.in/yaml/v3"
)

// coerceToJSONBytes converts YAML (or JSON, which is valid YAML) into
// canonical JSON so a single strict json.Decoder handles both formats.
func coerceToJSONBytes(raw []byte) ([]byte, error) {
	var tree any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	tree = normalizeYAML(tree)
	out, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("convert yaml to json: %w", err)
	}
	return out, nil
}

// normalizeYAML rewrites map keys to strings so the tree is JSON-encodable.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprintf("%v", k)] = normalizeYAML(val)
		}
		return m
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}

// decodeStrict unmarshals JSON into Config, rejecting unknown fields and
// trailing garbage. Typos in config files should fail loudly, not silently.
func decodeStrict(jsonBytes []byte, dst *Config) error {
	dec := json.NewDecoder(bytes.NewReader(jsonBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("decode config: trailing data after document")
	}
	return nil
}
