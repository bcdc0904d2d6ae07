package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/0x4D31/berttrain/internal/bert"
	"github.com/0x4D31/berttrain/internal/config"
	"github.com/0x4D31/berttrain/internal/flags"
)

// DefaultEnvPrefix prefixes the environment variables read for options,
// e.g. BERT_LEARNING_RATE.
const DefaultEnvPrefix = "BERT"

// Overrides holds option values taken from the command line, keyed by
// option name.
type Overrides map[string]string

// Options controls how Load layers option values. Precedence from lowest to
// highest: defaults, ConfigPath, EnvFile, LookupEnv, Args and Overrides.
type Options struct {
	ConfigPath string
	EnvFile    string
	// EnvPrefix defaults to DefaultEnvPrefix.
	EnvPrefix string
	// LookupEnv is usually os.LookupEnv. Nil skips the process environment.
	LookupEnv func(string) (string, bool)
	Args      []string
	Overrides Overrides
}

// AbsFromCWD resolves p against the current working directory when not
// already absolute and returns a canonical absolute path.
func AbsFromCWD(p string) (string, error) {
	if p == "" || filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	abs := filepath.Join(wd, p)
	abs, err = filepath.Abs(abs)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(abs)
	dir, err = filepath.EvalSymlinks(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.Base(abs)), nil
}

// NewRegistry returns a registry holding the BERT training options.
func NewRegistry() (*flags.Registry, error) {
	r := flags.New("bert")
	if err := bert.RegisterTrainingFlags(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Load builds a registry, layers every configured source into it and
// resolves the training configuration.
func Load(opts Options) (*flags.Registry, bert.Config, error) {
	r, err := NewRegistry()
	if err != nil {
		return nil, bert.Config{}, err
	}
	if err := Apply(r, opts); err != nil {
		return nil, bert.Config{}, err
	}
	cfg, err := bert.Resolve(r)
	if err != nil {
		return nil, bert.Config{}, err
	}
	return r, cfg, nil
}

// Apply layers the sources in opts into r. The command line is applied
// first so lower-precedence layers skip options it set.
func Apply(r *flags.Registry, opts Options) error {
	if len(opts.Args) > 0 {
		rest, err := r.Parse(opts.Args)
		if err != nil {
			return err
		}
		if len(rest) > 0 {
			return fmt.Errorf("unexpected arguments: %s", strings.Join(rest, " "))
		}
	}
	if err := r.ApplyValues(opts.Overrides, flags.SourceFlag); err != nil {
		return err
	}

	if opts.ConfigPath != "" {
		p, err := AbsFromCWD(opts.ConfigPath)
		if err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}
		values, err := config.Load(p, bert.PathFlags...)
		if err != nil {
			return fmt.Errorf("load %s: %w", opts.ConfigPath, err)
		}
		if err := config.Apply(r, values); err != nil {
			return fmt.Errorf("apply %s: %w", opts.ConfigPath, err)
		}
	}

	prefix := opts.EnvPrefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	if opts.EnvFile != "" {
		p, err := AbsFromCWD(opts.EnvFile)
		if err != nil {
			return fmt.Errorf("resolve env file: %w", err)
		}
		env, err := godotenv.Read(p)
		if err != nil {
			return fmt.Errorf("read env file %s: %w", opts.EnvFile, err)
		}
		if err := r.ApplyEnv(prefix, func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		}); err != nil {
			return fmt.Errorf("apply env file %s: %w", opts.EnvFile, err)
		}
	}
	if opts.LookupEnv != nil {
		if err := r.ApplyEnv(prefix, opts.LookupEnv); err != nil {
			return fmt.Errorf("apply environment: %w", err)
		}
	}
	return nil
}

// CLIFlags returns a command line flag for every option in r. Values are
// read back with OverridesFromCommand and parsed by the registry.
func CLIFlags(r *flags.Registry) []cli.Flag {
	opts := r.Options()
	out := make([]cli.Flag, 0, len(opts))
	for _, o := range opts {
		var aliases []string
		if dashed := strings.ReplaceAll(o.Name, "_", "-"); dashed != o.Name {
			aliases = []string{dashed}
		}
		usage := o.Usage
		if o.Kind == flags.KindEnum {
			usage += " One of: " + strings.Join(o.Choices, ", ") + "."
		}
		if o.Kind == flags.KindBool {
			def, _ := strconv.ParseBool(o.Default)
			out = append(out, &cli.BoolFlag{Name: o.Name, Aliases: aliases, Usage: usage, Value: def, Category: "training"})
			continue
		}
		out = append(out, &cli.StringFlag{Name: o.Name, Aliases: aliases, Usage: usage, DefaultText: o.Default, Category: "training"})
	}
	return out
}

// OverridesFromCommand collects the options of r that were set on cmd.
func OverridesFromCommand(cmd *cli.Command, r *flags.Registry) Overrides {
	ov := Overrides{}
	for _, o := range r.Options() {
		if !cmd.IsSet(o.Name) {
			continue
		}
		if o.Kind == flags.KindBool {
			ov[o.Name] = strconv.FormatBool(cmd.Bool(o.Name))
			continue
		}
		ov[o.Name] = cmd.String(o.Name)
	}
	return ov
}
