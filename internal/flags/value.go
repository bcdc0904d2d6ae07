package flags

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Kind is the value type of an option.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindEnum
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindEnum:
		return "enum"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// value implements pflag.Value for every Kind. present is false while an
// option defined without a default has not been set.
type value struct {
	kind     Kind
	present  bool
	s        string
	i        int
	f        float64
	b        bool
	choices  []string
	validate func(string) error
}

func (v *value) String() string {
	if !v.present {
		return ""
	}
	switch v.kind {
	case KindInt:
		return strconv.Itoa(v.i)
	case KindFloat:
		return formatFloat(v.f)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.s
	}
}

func (v *value) Type() string {
	if v.kind == KindEnum {
		return "string"
	}
	return v.kind.String()
}

// Set parses s according to the kind. The stored value is left untouched
// when s is rejected.
func (v *value) Set(s string) error {
	if v.validate != nil {
		if err := v.validate(s); err != nil {
			return err
		}
	}
	switch v.kind {
	case KindString:
		v.s = s
	case KindEnum:
		if !slices.Contains(v.choices, s) {
			return fmt.Errorf("value %q not in [%s]", s, strings.Join(v.choices, ", "))
		}
		v.s = s
	case KindInt:
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("parse int %q: %w", s, err)
		}
		v.i = n
	case KindFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("parse float %q: %w", s, err)
		}
		v.f = f
	case KindBool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("parse bool %q: %w", s, err)
		}
		v.b = b
	default:
		return fmt.Errorf("unsupported kind %s", v.kind)
	}
	v.present = true
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
