package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML document and exposes it as a LookupFunc using the same
// keys as the environment. Nested sections join with "_" so that
//
//	ai:
//	  sql_models: [gpt-4o, gpt-4]
//
// answers QUERYLENS_AI_SQL_MODELS with "gpt-4o,gpt-4".
func LoadFile(path string) (LookupFunc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return ParseYAML(raw)
}

func ParseYAML(raw []byte) (LookupFunc, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	values := map[string]string{}
	if err := flatten(strings.TrimSuffix(envPrefix, "_"), doc, values); err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}, nil
}

// Layered consults each lookup in order and returns the first hit.
func Layered(lookups ...LookupFunc) LookupFunc {
	return func(key string) (string, bool) {
		for _, lookup := range lookups {
			if lookup == nil {
				continue
			}
			if value, ok := lookup(key); ok {
				return value, true
			}
		}
		return "", false
	}
}

func flatten(prefix string, node map[string]any, out map[string]string) error {
	for name, value := range node {
		key := prefix + "_" + strings.ToUpper(strings.TrimSpace(name))
		switch typed := value.(type) {
		case map[string]any:
			if err := flatten(key, typed, out); err != nil {
				return err
			}
		case []any:
			parts := make([]string, 0, len(typed))
			for _, item := range typed {
				if _, nested := item.(map[string]any); nested {
					return fmt.Errorf("config key %s: lists of sections are not supported", key)
				}
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		case nil:
		default:
			out[key] = fmt.Sprint(typed)
		}
	}
	return nil
}
