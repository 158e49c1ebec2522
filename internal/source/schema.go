package source

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field type tags.
const (
	TypeString  = "string"
	TypeBoolean = "boolean"
	TypeNumber  = "number"
)

// FieldSpec declares the type of one data field of an event file.
//
//	shorthand:  amount: double!
//	long form:  amount:
//	              type: double
//	              required: true
//	              min: 0
type FieldSpec struct {
	Type     string   `yaml:"type"`
	Kind     string   `yaml:"-"` // int32, int64, float or double for numbers
	Required bool     `yaml:"required,omitempty"`
	Min      *float64 `yaml:"min,omitempty"`
	Max      *float64 `yaml:"max,omitempty"`
}

// UnmarshalYAML accepts both declaration styles.
func (f *FieldSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return f.parseType(value.Value)
	}

	type alias FieldSpec
	var a alias
	if err := value.Decode(&a); err != nil {
		return err
	}
	*f = FieldSpec(a)
	if f.Type == "" {
		return fmt.Errorf("field missing 'type'")
	}
	required := f.Required
	if err := f.parseType(f.Type); err != nil {
		return err
	}
	f.Required = f.Required || required
	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		return fmt.Errorf("min (%v) cannot exceed max (%v)", *f.Min, *f.Max)
	}
	if f.Type != TypeNumber && (f.Min != nil || f.Max != nil) {
		return fmt.Errorf("%s fields do not support min/max constraints", f.Type)
	}
	return nil
}

func (f *FieldSpec) parseType(s string) error {
	if strings.HasSuffix(s, "!") {
		f.Required = true
		s = strings.TrimSuffix(s, "!")
	}
	switch s {
	case "string":
		f.Type = TypeString
	case "bool":
		f.Type = TypeBoolean
	case "int32", "int64", "float", "double":
		f.Type = TypeNumber
		f.Kind = s
	default:
		return fmt.Errorf("unsupported type %q (must be: string, bool, int32, int64, float, double)", s)
	}
	return nil
}

// Schema maps data field names to their declarations.
type Schema map[string]*FieldSpec

// Check validates an event's data against the schema. Undeclared fields are
// allowed.
func (s Schema) Check(data map[string]any) error {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := s[name]
		v, ok := data[name]
		if !ok || v == nil {
			if spec.Required {
				return fmt.Errorf("data.%s is required", name)
			}
			continue
		}
		if err := spec.check(v); err != nil {
			return fmt.Errorf("data.%s: %w", name, err)
		}
	}
	return nil
}

func (f *FieldSpec) check(v any) error {
	switch f.Type {
	case TypeString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %s", typeName(v))
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected bool, got %s", typeName(v))
		}
	case TypeNumber:
		n, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("expected %s, got %s", f.Kind, typeName(v))
		}
		switch f.Kind {
		case "int32":
			if n != math.Trunc(n) || n < math.MinInt32 || n > math.MaxInt32 {
				return fmt.Errorf("%v is not an int32", v)
			}
		case "int64":
			if n != math.Trunc(n) {
				return fmt.Errorf("%v is not an integer", v)
			}
		}
		if f.Min != nil && n < *f.Min {
			return fmt.Errorf("%v is below minimum %v", v, *f.Min)
		}
		if f.Max != nil && n > *f.Max {
			return fmt.Errorf("%v exceeds maximum %v", v, *f.Max)
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func typeName(v any) string {
	switch v.(type) {
	case bool:
		return "bool"
	case int, int64, uint64, float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
