package skill

import (
	"fmt"
	"math"
	"reflect"
	"sort"
)

var optionTypes = map[string]bool{
	"":        true,
	"string":  true,
	"integer": true,
	"number":  true,
	"boolean": true,
	"array":   true,
	"object":  true,
}

// NormalizeConfigSchema turns a config_schema block into a flat option map.
// Both the flat form (option -> {type, default, allowed}) and the JSON Schema
// form ({type: object, properties: {...}, required: [...]}) are accepted.
func NormalizeConfigSchema(raw map[string]any) (map[string]OptionSpec, error) {
	if len(raw) == 0 {
		return map[string]OptionSpec{}, nil
	}

	options := raw
	required := map[string]bool{}

	if props, ok := schemaProperties(raw); ok {
		options = props
		if list, ok := raw["required"].([]any); ok {
			for _, item := range list {
				name, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("config_schema: required entries must be strings")
				}
				required[name] = true
			}
		}
	}

	specs := make(map[string]OptionSpec, len(options))
	for name, value := range options {
		fields, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("config_schema: option %s must be a mapping", name)
		}
		spec, err := optionFromFields(name, fields)
		if err != nil {
			return nil, err
		}
		if required[name] {
			spec.Required = true
		}
		specs[name] = spec
	}

	for name := range required {
		if _, ok := specs[name]; !ok {
			return nil, fmt.Errorf("config_schema: required option %s is not defined", name)
		}
	}

	return specs, nil
}

// schemaKeywords are the top-level keys allowed in the JSON Schema form
// besides type and properties
var schemaKeywords = map[string]bool{
	"$schema":              true,
	"title":                true,
	"description":          true,
	"required":             true,
	"additionalProperties": true,
}

// schemaProperties returns the properties block when raw is in JSON Schema
// form. With type: object present the shape is explicit. Without it, raw is
// only treated as a schema when every other key is a schema keyword and
// every property is a mapping, so a flat option named "properties" stays an
// option.
func schemaProperties(raw map[string]any) (map[string]any, bool) {
	props, ok := raw["properties"].(map[string]any)
	if !ok {
		return nil, false
	}

	if t, present := raw["type"]; present {
		s, ok := t.(string)
		return props, ok && s == "object"
	}

	for key := range raw {
		if key != "properties" && !schemaKeywords[key] {
			return nil, false
		}
	}
	for _, value := range props {
		if _, ok := value.(map[string]any); !ok {
			return nil, false
		}
	}
	return props, true
}

func optionFromFields(name string, fields map[string]any) (OptionSpec, error) {
	var spec OptionSpec

	if t, ok := fields["type"]; ok {
		s, ok := t.(string)
		if !ok {
			return spec, fmt.Errorf("config_schema: option %s: type must be a string", name)
		}
		spec.Type = s
	}
	if !optionTypes[spec.Type] {
		return spec, fmt.Errorf("config_schema: option %s: unsupported type %q", name, spec.Type)
	}

	if d, ok := fields["description"].(string); ok {
		spec.Description = d
	}
	if r, ok := fields["required"].(bool); ok {
		spec.Required = r
	}

	for _, key := range []string{"allowed", "enum"} {
		v, ok := fields[key]
		if !ok {
			continue
		}
		list, ok := v.([]any)
		if !ok {
			return spec, fmt.Errorf("config_schema: option %s: %s must be a list", name, key)
		}
		spec.Allowed = list
		break
	}

	if d, ok := fields["default"]; ok {
		if err := spec.check(d); err != nil {
			return spec, fmt.Errorf("config_schema: option %s: default: %w", name, err)
		}
		spec.Default = d
	}

	return spec, nil
}

// check validates value against the option's type and allowed values
func (s OptionSpec) check(value any) error {
	if !matchesType(s.Type, value) {
		return fmt.Errorf("expected %s, got %T", s.Type, value)
	}
	if len(s.Allowed) == 0 {
		return nil
	}
	for _, allowed := range s.Allowed {
		if equalValues(allowed, value) {
			return nil
		}
	}
	return fmt.Errorf("value %v is not one of %v", value, s.Allowed)
}

// ResolveConfig merges supplied values with the schema's defaults. With an
// empty schema the supplied values pass through unchanged.
func ResolveConfig(schema map[string]OptionSpec, supplied map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(schema)+len(supplied))

	if len(schema) == 0 {
		for k, v := range supplied {
			resolved[k] = v
		}
		return resolved, nil
	}

	unknown := make([]string, 0)
	for k := range supplied {
		if _, ok := schema[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: unknown options %v", ErrInvalidConfig, unknown)
	}

	for name, spec := range schema {
		value, ok := supplied[name]
		if !ok {
			if spec.Default != nil {
				resolved[name] = spec.Default
				continue
			}
			if spec.Required {
				return nil, fmt.Errorf("%w: option %s is required", ErrInvalidConfig, name)
			}
			continue
		}
		if err := spec.check(value); err != nil {
			return nil, fmt.Errorf("%w: option %s: %v", ErrInvalidConfig, name, err)
		}
		resolved[name] = value
	}

	return resolved, nil
}

func matchesType(typ string, value any) bool {
	switch typ {
	case "":
		return true
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "integer":
		f, ok := toFloat(value)
		return ok && f == math.Trunc(f)
	case "number":
		_, ok := toFloat(value)
		return ok
	case "array":
		return value != nil && reflect.TypeOf(value).Kind() == reflect.Slice
	case "object":
		return value != nil && reflect.TypeOf(value).Kind() == reflect.Map
	default:
		return false
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// equalValues compares numbers by value so 3 from YAML equals 3.0 from JSON
func equalValues(a, b any) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum && bNum {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}
