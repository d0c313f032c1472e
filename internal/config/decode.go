package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

type format string

const (
	formatJSON format = "json"
	formatYAML format = "yaml"
)

// detectFormat goes by extension first. Anything else that starts with '{'
// is JSON and the rest is YAML, which covers config piped through stdin.
func detectFormat(name string, data []byte) format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return formatYAML
	case ".json":
		return formatJSON
	}
	if t := bytes.TrimSpace(data); len(t) > 0 && t[0] == '{' {
		return formatJSON
	}
	return formatYAML
}

// decodeStrict fills cfg from data. YAML is re-encoded as JSON first so both
// formats share one decoder that rejects unknown fields.
func decodeStrict(name string, data []byte, cfg *Config) error {
	f := detectFormat(name, data)
	if f == formatYAML {
		var tree any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return fmt.Errorf("yaml config: %w", err)
		}
		if tree == nil {
			return errors.New("yaml config: empty document")
		}
		j, err := json.Marshal(stringKeys(tree))
		if err != nil {
			return fmt.Errorf("yaml config: %w", err)
		}
		data = j
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("%s config: %w", f, err)
	}
	switch err := dec.Decode(&struct{}{}); {
	case err == io.EOF:
		return nil
	case err == nil:
		return fmt.Errorf("%s config: trailing data", f)
	default:
		return fmt.Errorf("%s config: %w", f, err)
	}
}

// stringKeys rewrites map[any]any nodes (numeric or bool keys in YAML) so the
// tree can be marshaled as JSON.
func stringKeys(node any) any {
	switch n := node.(type) {
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, v := range n {
			out[fmt.Sprint(k)] = stringKeys(v)
		}
		return out
	case map[string]any:
		for k, v := range n {
			n[k] = stringKeys(v)
		}
		return n
	case []any:
		for i, v := range n {
			n[i] = stringKeys(v)
		}
		return n
	}
	return node
}
