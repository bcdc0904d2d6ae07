package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	cblog "github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/0x4D31/berttrain/internal/bert"
	"github.com/0x4D31/berttrain/internal/config"
	"github.com/0x4D31/berttrain/internal/flags"
	"github.com/0x4D31/berttrain/internal/loader"
)

// version is overridden at build time using -ldflags "-X main.version=<version>".
var version = "dev"

func main() {
	cmd, err := newCommand()
	if err != nil {
		cblog.Fatal(err.Error())
	}
	cmd.ErrWriter = os.Stderr
	cmd.Writer = os.Stdout

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		cblog.Fatal(err.Error())
	}
}

func newCommand() (*cli.Command, error) {
	// proto only describes the options; every action loads a fresh registry.
	proto, err := loader.NewRegistry()
	if err != nil {
		return nil, err
	}
	return &cli.Command{
		Name:    "berttrain",
		Usage:   "inspect and validate BERT training flags",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("BERT_LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setLogLevel(cmd.String("log-level"))
			return ctx, nil
		},
		Commands: []*cli.Command{
			flagsCommand(proto),
			settingsCommand(proto),
			validateCommand(),
			initCommand(proto),
		},
	}, nil
}

func setLogLevel(level string) {
	switch strings.ToLower(level) {
	case "debug":
		cblog.SetLevel(cblog.DebugLevel)
	case "warn":
		cblog.SetLevel(cblog.WarnLevel)
	case "error":
		cblog.SetLevel(cblog.ErrorLevel)
	default:
		cblog.SetLevel(cblog.InfoLevel)
	}
}

// sourceFlags are the flags selecting where option values come from.
func sourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "HCL or JSON flag file", Sources: cli.EnvVars("BERT_CONFIG")},
		&cli.StringFlag{Name: "env-file", Usage: "dotenv file with " + loader.DefaultEnvPrefix + "_* variables", Sources: cli.EnvVars("BERT_ENV_FILE")},
		&cli.BoolFlag{Name: "no-env", Usage: "ignore " + loader.DefaultEnvPrefix + "_* variables in the process environment"},
	}
}

func withTrainingFlags(proto *flags.Registry, extra ...cli.Flag) []cli.Flag {
	out := append(sourceFlags(), extra...)
	return append(out, loader.CLIFlags(proto)...)
}

func flagsCommand(proto *flags.Registry) *cli.Command {
	return &cli.Command{
		Name:  "flags",
		Usage: "print every training option with its value and source",
		Flags: withTrainingFlags(proto,
			&cli.BoolFlag{Name: "json", Usage: "print JSON instead of a table"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return flagsAction(ctx, cmd, proto)
		},
	}
}

func settingsCommand(proto *flags.Registry) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "print the derived mixed precision settings",
		Flags: withTrainingFlags(proto,
			&cli.BoolFlag{Name: "json", Usage: "print JSON instead of text"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return settingsAction(ctx, cmd, proto)
		},
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "validate a flag file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Sources: cli.EnvVars("BERT_CONFIG")},
		},
		Action: validateAction,
	}
}

func initCommand(proto *flags.Registry) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "write a flag file holding the resolved values",
		Flags: withTrainingFlags(proto,
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Value: defaultFlagFile},
			&cli.BoolFlag{Name: "force", Usage: "overwrite an existing file"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return initAction(ctx, cmd, proto)
		},
	}
}

func parseFlags(cmd *cli.Command, proto *flags.Registry) parsedFlags {
	pf := parsedFlags{
		ConfigPath: cmd.String("config"),
		EnvFile:    cmd.String("env-file"),
		LogLevel:   strings.ToLower(cmd.String("log-level")),
		JSON:       cmd.Bool("json"),
		Overrides:  loader.OverridesFromCommand(cmd, proto),
	}
	if !cmd.Bool("no-env") {
		pf.LookupEnv = os.LookupEnv
	}
	return pf
}

func load(cmd *cli.Command, proto *flags.Registry) (*flags.Registry, bert.Config, error) {
	pf := parseFlags(cmd, proto)
	r, cfg, err := loader.Load(pf.loaderOptions())
	if err != nil {
		return nil, bert.Config{}, err
	}
	if pf.ConfigPath != "" {
		cblog.Debugf("loaded flag file %s", pf.ConfigPath)
	}
	if pf.EnvFile != "" {
		cblog.Debugf("loaded env file %s", pf.EnvFile)
	}
	cblog.Debugf("%d command line overrides", len(pf.Overrides))
	return r, cfg, nil
}

func flagsAction(_ context.Context, cmd *cli.Command, proto *flags.Registry) error {
	r, _, err := load(cmd, proto)
	if err != nil {
		return err
	}
	w := cmd.Root().Writer
	if cmd.Bool("json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(optionViews(r.Options()))
	}
	_, err = fmt.Fprintln(w, renderOptions(r.Options()))
	return err
}

func settingsAction(_ context.Context, cmd *cli.Command, proto *flags.Registry) error {
	_, cfg, err := load(cmd, proto)
	if err != nil {
		return err
	}
	w := cmd.Root().Writer
	s := newSettingsView(cfg)
	if cmd.Bool("json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	_, err = fmt.Fprintln(w, renderSettings(s))
	return err
}

func validateAction(_ context.Context, cmd *cli.Command) error {
	if !cmd.IsSet("config") {
		return errors.New("--config required")
	}
	p, err := loader.AbsFromCWD(cmd.String("config"))
	if err != nil {
		return err
	}
	values, err := config.Load(p, bert.PathFlags...)
	if err != nil {
		return err
	}
	r, err := loader.NewRegistry()
	if err != nil {
		return err
	}
	if err := config.Apply(r, values); err != nil {
		return err
	}
	if _, err := bert.Resolve(r); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(cmd.Root().ErrWriter, "config valid"); err != nil {
		return err
	}
	return nil
}

func initAction(_ context.Context, cmd *cli.Command, proto *flags.Registry) error {
	out, err := loader.AbsFromCWD(cmd.String("output"))
	if err != nil {
		return err
	}
	if !cmd.Bool("force") {
		if _, err := os.Stat(out); err == nil {
			return fmt.Errorf("%s exists, use --force to overwrite", out)
		}
	}
	r, _, err := load(cmd, proto)
	if err != nil {
		return err
	}
	if err := config.Write(out, r); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	cblog.Infof("wrote %s", out)
	return nil
}
