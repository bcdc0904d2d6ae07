// Package flags holds named, typed options with defaults and documentation.
//
// A Registry is an explicit value owned by the program entry point; there is
// no process-wide registry. Options are defined once during startup, values
// are layered in from files, the environment and the command line, and the
// registry is then only read. A Registry is not safe for concurrent mutation.
package flags

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

var (
	ErrDuplicateFlag = errors.New("flag already defined")
	ErrUnknownFlag   = errors.New("unknown flag")
	ErrInvalidValue  = errors.New("invalid flag value")
	ErrKindMismatch  = errors.New("flag kind mismatch")
)

// Source records which layer supplied an option's current value. Later
// layers have higher precedence.
type Source int

const (
	SourceDefault Source = iota
	SourceFile
	SourceEnv
	SourceFlag
)

func (s Source) String() string {
	switch s {
	case SourceDefault:
		return "default"
	case SourceFile:
		return "file"
	case SourceEnv:
		return "env"
	case SourceFlag:
		return "flag"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// Option is a read-only view of a registered option.
type Option struct {
	Name       string
	Kind       Kind
	Usage      string
	Default    string
	HasDefault bool
	Choices    []string
	Value      string
	Present    bool
	Source     Source
}

type entry struct {
	flag       *pflag.Flag
	val        *value
	hasDefault bool
	source     Source
}

// Registry is a set of uniquely named options kept in definition order.
type Registry struct {
	fs      *pflag.FlagSet
	entries map[string]*entry
	order   []string
}

// New returns an empty registry. name is used in parse error messages.
func New(name string) *Registry {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, n string) pflag.NormalizedName {
		return pflag.NormalizedName(normalize(n))
	})
	return &Registry{fs: fs, entries: make(map[string]*entry)}
}

// normalize lets --learning-rate and --learning_rate name the same option.
func normalize(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

func (r *Registry) define(name, usage string, v *value, def string, hasDefault bool) error {
	name = normalize(name)
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidValue)
	}
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateFlag, name)
	}
	if hasDefault {
		if err := v.Set(def); err != nil {
			return fmt.Errorf("%w: default for %s: %v", ErrInvalidValue, name, err)
		}
	}
	f := r.fs.VarPF(v, name, "", usage)
	if v.kind == KindBool {
		f.NoOptDefVal = "true"
	}
	r.entries[name] = &entry{flag: f, val: v, hasDefault: hasDefault}
	r.order = append(r.order, name)
	return nil
}

// DefineString defines a string option with a default.
func (r *Registry) DefineString(name, def, usage string) error {
	return r.define(name, usage, &value{kind: KindString}, def, true)
}

// DefineOptionalString defines a string option with no default value.
func (r *Registry) DefineOptionalString(name, usage string) error {
	return r.define(name, usage, &value{kind: KindString}, "", false)
}

// DefineInt defines an integer option with a default.
func (r *Registry) DefineInt(name string, def int, usage string) error {
	return r.define(name, usage, &value{kind: KindInt}, strconv.Itoa(def), true)
}

// DefineOptionalInt defines an integer option with no default value.
func (r *Registry) DefineOptionalInt(name, usage string) error {
	return r.define(name, usage, &value{kind: KindInt}, "", false)
}

// DefineFloat defines a float option with a default.
func (r *Registry) DefineFloat(name string, def float64, usage string) error {
	return r.define(name, usage, &value{kind: KindFloat}, formatFloat(def), true)
}

// DefineBool defines a boolean option with a default.
func (r *Registry) DefineBool(name string, def bool, usage string) error {
	return r.define(name, usage, &value{kind: KindBool}, strconv.FormatBool(def), true)
}

// DefineEnum defines a string option restricted to choices. def must be
// one of them.
func (r *Registry) DefineEnum(name, def string, choices []string, usage string) error {
	if len(choices) == 0 {
		return fmt.Errorf("%w: enum %s has no choices", ErrInvalidValue, normalize(name))
	}
	v := &value{kind: KindEnum, choices: slices.Clone(choices)}
	return r.define(name, usage, v, def, true)
}

// SetValidator attaches fn to name. fn runs before every later Set and its
// error rejects the value.
func (r *Registry) SetValidator(name string, fn func(string) error) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	e.val.validate = fn
	return nil
}

func (r *Registry) lookup(name string) (*entry, error) {
	e, ok := r.entries[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFlag, name)
	}
	return e, nil
}

// Set parses s into the named option and records src as its source.
func (r *Registry) Set(name, s string, src Source) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	return r.set(e, s, src)
}

func (r *Registry) set(e *entry, s string, src Source) error {
	if err := e.val.Set(s); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, e.flag.Name, err)
	}
	e.flag.Changed = true
	e.source = src
	return nil
}

// Parse reads --name=value, --name value and bare --bool arguments.
// Positional arguments are returned.
func (r *Registry) Parse(args []string) ([]string, error) {
	var setErr error
	err := r.fs.ParseAll(args, func(f *pflag.Flag, s string) error {
		e, ok := r.entries[f.Name]
		if !ok {
			setErr = fmt.Errorf("%w: %s", ErrUnknownFlag, f.Name)
			return setErr
		}
		if err := r.set(e, s, SourceFlag); err != nil {
			setErr = err
			return err
		}
		return nil
	})
	if setErr != nil {
		return nil, setErr
	}
	if err != nil {
		if strings.Contains(err.Error(), "unknown") {
			return nil, fmt.Errorf("%w: %v", ErrUnknownFlag, err)
		}
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	return r.fs.Args(), nil
}

// ApplyValues sets every name in values with source src. Options already
// supplied by a higher-precedence source keep their value. Names are applied
// in sorted order so the first error is deterministic.
func (r *Registry) ApplyValues(values map[string]string, src Source) error {
	names := make([]string, 0, len(values))
	for n := range values {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		e, err := r.lookup(n)
		if err != nil {
			return err
		}
		if e.source > src {
			continue
		}
		if err := r.set(e, values[n], src); err != nil {
			return err
		}
	}
	return nil
}

// ApplyEnv looks up PREFIX_NAME for every option, NAME being the upper-cased
// option name, and sets matches with SourceEnv. An empty prefix uses NAME
// alone.
func (r *Registry) ApplyEnv(prefix string, lookup func(string) (string, bool)) error {
	values := make(map[string]string)
	for _, n := range r.order {
		key := EnvKey(prefix, n)
		if s, ok := lookup(key); ok {
			values[n] = s
		}
	}
	return r.ApplyValues(values, SourceEnv)
}

// EnvKey returns the environment variable consulted for option name.
func EnvKey(prefix, name string) string {
	key := strings.ToUpper(normalize(name))
	if prefix == "" {
		return key
	}
	return strings.ToUpper(prefix) + "_" + key
}

// Lookup returns the option called name.
func (r *Registry) Lookup(name string) (Option, bool) {
	e, ok := r.entries[normalize(name)]
	if !ok {
		return Option{}, false
	}
	return e.option(), true
}

// Options returns every option in definition order.
func (r *Registry) Options() []Option {
	out := make([]Option, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.entries[n].option())
	}
	return out
}

// IsPresent reports whether name currently holds a value. Options defined
// without a default are absent until set.
func (r *Registry) IsPresent(name string) bool {
	e, ok := r.entries[normalize(name)]
	return ok && e.val.present
}

func (e *entry) option() Option {
	return Option{
		Name:       e.flag.Name,
		Kind:       e.val.kind,
		Usage:      e.flag.Usage,
		Default:    e.flag.DefValue,
		HasDefault: e.hasDefault,
		Choices:    slices.Clone(e.val.choices),
		Value:      e.val.String(),
		Present:    e.val.present,
		Source:     e.source,
	}
}

func (r *Registry) typed(name string, kinds ...Kind) (*value, error) {
	e, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(kinds, e.val.kind) {
		return nil, fmt.Errorf("%w: %s is %s", ErrKindMismatch, e.flag.Name, e.val.kind)
	}
	return e.val, nil
}

// String returns the value of a string or enum option. Absent options
// return "".
func (r *Registry) String(name string) (string, error) {
	v, err := r.typed(name, KindString, KindEnum)
	if err != nil {
		return "", err
	}
	return v.s, nil
}

// Int returns the value of an integer option.
func (r *Registry) Int(name string) (int, error) {
	v, err := r.typed(name, KindInt)
	if err != nil {
		return 0, err
	}
	return v.i, nil
}

// Float returns the value of a float option.
func (r *Registry) Float(name string) (float64, error) {
	v, err := r.typed(name, KindFloat)
	if err != nil {
		return 0, err
	}
	return v.f, nil
}

// Bool returns the value of a boolean option.
func (r *Registry) Bool(name string) (bool, error) {
	v, err := r.typed(name, KindBool)
	if err != nil {
		return false, err
	}
	return v.b, nil
}
