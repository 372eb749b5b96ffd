package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	yaml "go.yaml.in/yaml/v3"
)

// coerceToJSONBytes expands ${VAR} references, then converts YAML or TOML to
// JSON so a single strict decoder (DisallowUnknownFields) handles every format.
//
// Returns (jsonBytes, format, err) where format is json, yaml or toml.
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var (
		v      any
		format string
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, format, fmt.Errorf("yaml unmarshal: %w", err)
		}
	case ".toml":
		format = "toml"
		if err := toml.Unmarshal(data, &v); err != nil {
			return nil, format, fmt.Errorf("toml unmarshal: %w", err)
		}
	default:
		return data, "json", nil
	}

	j, err := json.Marshal(normalizeKeys(v))
	if err != nil {
		return nil, format, fmt.Errorf("%s->json marshal: %w", format, err)
	}
	return j, format, nil
}

// normalizeKeys makes every map key a string so the tree can be marshaled as
// JSON. An empty document becomes an empty object.
func normalizeKeys(in any) any {
	switch x := in.(type) {
	case nil:
		return map[string]any{}
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeValue(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeValue(v)
		}
		return m
	default:
		return in
	}
}

func normalizeValue(in any) any {
	switch x := in.(type) {
	case map[any]any, map[string]any:
		return normalizeKeys(x)
	case []any:
		for i := range x {
			x[i] = normalizeValue(x[i])
		}
		return x
	default:
		return in
	}
}
