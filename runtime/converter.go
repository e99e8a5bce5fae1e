package runtime

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
)

// mapToStruct converts a map[string]any to a struct using mapstructure.
// It uses json tags for field mapping, flattens embedded structs and
// supports time.Duration, time.Time and comma separated list conversions.
func mapToStruct(m map[string]any, target any) error {
	return decodeWithTag(m, target, "json")
}

// mapToStructFromYAML is mapToStruct for config structs keyed by yaml tags.
func mapToStructFromYAML(m map[string]any, target any) error {
	return decodeWithTag(m, target, "yaml")
}

func decodeWithTag(m map[string]any, target any, tag string) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: tag,
		Squash:  true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToSliceHookFunc(","),
			boolToStringHookFunc(),
		),
		WeaklyTypedInput: true, // Allow type coercion (e.g., "1500" -> int64)
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(m); err != nil {
		return fmt.Errorf("failed to decode map to struct: %w", err)
	}

	return nil
}

// boolToStringHookFunc keeps booleans readable when they land in a string
// field. Weak decoding alone would turn true into "1".
func boolToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.Bool || t.Kind() != reflect.String {
			return data, nil
		}
		return strconv.FormatBool(data.(bool)), nil
	}
}

// structToMap converts a struct to map[string]any using JSON round-trip.
// This respects json tags and properly handles nested structs.
func structToMap(s any) (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal struct: %w", err)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal to map: %w", err)
	}

	return result, nil
}
