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

// decodeFile overlays the file contents onto cfg. YAML (.yaml/.yml) is
// converted to JSON first so both formats share the same strict rules:
// unknown keys and trailing documents are errors.
func decodeFile(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		jb, err := yamlToJSON(b)
		if err != nil {
			return err
		}
		b = jb
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var extra json.RawMessage
	switch err := dec.Decode(&extra); {
	case errors.Is(err, io.EOF):
		return nil
	case err == nil:
		return errors.New("unexpected data after config object")
	default:
		return err
	}
}

func yamlToJSON(b []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	out, err := json.Marshal(jsonValue(doc))
	if err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return out, nil
}

// jsonValue rewrites YAML mappings with non-string keys (e.g. `1: x`) into
// string-keyed maps that encoding/json can marshal.
func jsonValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = jsonValue(item)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, item := range t {
			m[fmt.Sprint(k)] = jsonValue(item)
		}
		return m
	case []any:
		for i, item := range t {
			t[i] = jsonValue(item)
		}
		return t
	}
	return v
}
