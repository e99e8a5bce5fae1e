package config

import (
	"fmt"
	"os"
	"regexp"
)

// EnvVarSpec is a parsed config value: either a literal or a reference to
// an environment variable with an optional default.
type EnvVarSpec struct {
	VarName      string
	HasDefault   bool
	DefaultValue string
	IsLiteral    bool
	LiteralValue string
}

// envVarPattern matches ${VAR} and ${VAR:default} syntax
var envVarPattern = regexp.MustCompile(`^\$\{([A-Z_][A-Z0-9_]*)(?::([^}]*))?\}$`)

// ParseEnvVar parses a config value that may reference an environment variable.
//
// Supported formats:
//   - ${VAR}         - Required environment variable
//   - ${VAR:default} - Optional environment variable with default
//   - literal        - Anything else, kept as is
//
// Examples:
//
//	ParseEnvVar("${SMTP_TOKEN}") -> required env var "SMTP_TOKEN"
//	ParseEnvVar("${REDIS_ADDR:localhost:6379}") -> env var with default
//	ParseEnvVar("${lowercase}") -> literal "${lowercase}"
func ParseEnvVar(value string) *EnvVarSpec {
	m := envVarPattern.FindStringSubmatchIndex(value)
	if m == nil {
		return &EnvVarSpec{IsLiteral: true, LiteralValue: value}
	}

	spec := &EnvVarSpec{VarName: value[m[2]:m[3]]}
	if m[4] >= 0 {
		spec.HasDefault = true
		spec.DefaultValue = value[m[4]:m[5]]
	}
	return spec
}

// Resolve returns the value the reference stands for, reading the environment
// through lookup.
func (s *EnvVarSpec) Resolve(lookup func(string) (string, bool)) (string, error) {
	if s.IsLiteral {
		return s.LiteralValue, nil
	}
	if v, ok := lookup(s.VarName); ok {
		return v, nil
	}
	if s.HasDefault {
		return s.DefaultValue, nil
	}
	return "", fmt.Errorf("environment variable %s is required but not set", s.VarName)
}

// ExpandEnv walks a decoded config section and replaces every ${VAR} string
// with its value from the process environment.
func ExpandEnv(section map[string]any) (map[string]any, error) {
	return expandWith(section, os.LookupEnv)
}

func expandWith(section map[string]any, lookup func(string) (string, bool)) (map[string]any, error) {
	if section == nil {
		return nil, nil
	}
	out, err := expandValue(section, "", lookup)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func expandValue(value any, path string, lookup func(string) (string, bool)) (any, error) {
	switch v := value.(type) {
	case string:
		resolved, err := ParseEnvVar(v).Resolve(lookup)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return resolved, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			resolved, err := expandValue(item, join(path, key), lookup)
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := expandValue(item, fmt.Sprintf("%s[%d]", path, i), lookup)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
