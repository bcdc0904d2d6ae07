// Package config reads and writes flag value files. A file holds top-level
// attributes named after options:
//
//	bert_config_file = "uncased_L-12_H-768_A-12/bert_config.json"
//	learning_rate    = 1e-4
//	strategy_type    = "tpu"
//
// Files ending in .json use the equivalent JSON syntax.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/0x4D31/berttrain/internal/flags"
)

// Values maps option names to their textual values.
type Values map[string]string

// Read parses the flag file at path. Values are returned as text; the
// registry parses them when they are applied.
func Read(path string) (Values, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	absPath, err = filepath.EvalSymlinks(absPath)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	p := hclparse.NewParser()
	var f *hcl.File
	var diags hcl.Diagnostics
	if strings.EqualFold(filepath.Ext(absPath), ".json") {
		f, diags = p.ParseJSONFile(absPath)
	} else {
		f, diags = p.ParseHCLFile(absPath)
	}
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse config file: %w", diags)
	}
	attrs, diags := f.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse config file: %w", diags)
	}

	out := make(Values, len(attrs))
	for name, attr := range attrs {
		v, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("%s: %w", name, diags)
		}
		s, err := valueString(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = s
	}
	return out, nil
}

func valueString(v cty.Value) (string, error) {
	if v.IsNull() {
		return "", fmt.Errorf("null value")
	}
	if !v.IsWhollyKnown() || !v.Type().IsPrimitiveType() {
		return "", fmt.Errorf("value must be a string, number or bool, got %s", v.Type().FriendlyName())
	}
	sv, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", err
	}
	return sv.AsString(), nil
}

// ResolvePaths rewrites the named values to absolute paths by joining them
// with baseDir when they are relative local paths. URLs such as gs://bucket
// are left as they are.
func ResolvePaths(values Values, baseDir string, names ...string) error {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	for _, n := range names {
		p, ok := values[n]
		if !ok || p == "" || filepath.IsAbs(p) || strings.Contains(p, "://") {
			continue
		}
		values[n] = filepath.Join(abs, p)
	}
	return nil
}

// Load reads path and resolves the named path values against the file's
// directory.
func Load(path string, pathNames ...string) (Values, error) {
	values, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := ResolvePaths(values, filepath.Dir(path), pathNames...); err != nil {
		return nil, err
	}
	return values, nil
}

// Apply sets values into r as file-sourced values.
func Apply(r *flags.Registry, values Values) error {
	return r.ApplyValues(values, flags.SourceFile)
}

// Write renders every option of r that holds a value as an HCL file.
func Write(path string, r *flags.Registry) error {
	f := hclwrite.NewEmptyFile()
	body := f.Body()
	for _, o := range r.Options() {
		if !o.Present {
			continue
		}
		v, err := optionValue(o)
		if err != nil {
			return err
		}
		body.SetAttributeValue(o.Name, v)
	}
	return os.WriteFile(path, f.Bytes(), 0o600)
}

func optionValue(o flags.Option) (cty.Value, error) {
	switch o.Kind {
	case flags.KindInt:
		n, err := strconv.ParseInt(o.Value, 10, 64)
		if err != nil {
			return cty.NilVal, fmt.Errorf("%s: %w", o.Name, err)
		}
		return cty.NumberIntVal(n), nil
	case flags.KindFloat:
		fv, err := strconv.ParseFloat(o.Value, 64)
		if err != nil {
			return cty.NilVal, fmt.Errorf("%s: %w", o.Name, err)
		}
		return cty.NumberFloatVal(fv), nil
	case flags.KindBool:
		b, err := strconv.ParseBool(o.Value)
		if err != nil {
			return cty.NilVal, fmt.Errorf("%s: %w", o.Name, err)
		}
		return cty.BoolVal(b), nil
	default:
		return cty.StringVal(o.Value), nil
	}
}
