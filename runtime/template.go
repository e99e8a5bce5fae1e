package runtime

import (
	"regexp"
	"strings"
)

// placeholderPattern matches ${path} where path is one or more dot separated
// segments. Whitespace just inside the braces is tolerated.
var placeholderPattern = regexp.MustCompile(`\$\{\s*([A-Za-z0-9_\-]+(?:\.[A-Za-z0-9_\-]+)*)\s*\}`)

// Resolve replaces every ${path} in template with the stringified value found
// at path in data. Placeholders whose path is missing or nil are left as they
// were. Substituted text is never scanned again.
func Resolve(template string, data map[string]any) string {
	if !strings.Contains(template, "${") {
		return template
	}

	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]
		v, ok := lookupPath(data, path)
		if !ok {
			return match
		}
		return Stringify(v)
	})
}

// ResolveValue resolves templates inside an arbitrary config value. Strings
// are resolved with Resolve, except that a string consisting of exactly one
// placeholder yields the referenced value itself so that lists, maps and
// numbers keep their type. Maps and lists are resolved element by element
// into fresh containers.
func ResolveValue(v any, data map[string]any) any {
	switch t := v.(type) {
	case string:
		if loc := placeholderPattern.FindStringSubmatchIndex(t); loc != nil && loc[0] == 0 && loc[1] == len(t) {
			if raw, ok := lookupPath(data, t[loc[2]:loc[3]]); ok {
				return raw
			}
			return t
		}
		return Resolve(t, data)
	case map[string]any:
		return ResolveMap(t, data)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = ResolveValue(item, data)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, item := range t {
			out[i] = Resolve(item, data)
		}
		return out
	default:
		return v
	}
}

// ResolveMap returns a copy of m with every value passed through ResolveValue.
func ResolveMap(m map[string]any, data map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = ResolveValue(v, data)
	}
	return out
}
