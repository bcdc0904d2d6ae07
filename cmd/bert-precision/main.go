package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	arg "github.com/alexflint/go-arg"
	"github.com/charmbracelet/lipgloss"

	"github.com/0x4D31/berttrain/internal/loader"
	"github.com/0x4D31/berttrain/internal/perf"
)

type cliArgs struct {
	Config    string   `arg:"-c,--config,env:BERT_CONFIG" help:"HCL or JSON flag file"`
	DType     string   `arg:"-d,--dtype" help:"training dtype, fp16 or fp32"`
	LossScale string   `arg:"-s,--loss-scale" help:"loss scale, a positive number or dynamic"`
	NoEnv     bool     `arg:"--no-env" help:"ignore BERT_* environment variables"`
	Rest      []string `arg:"positional" help:"further training flags, e.g. -- --learning_rate=1e-4"`
}

func (cliArgs) Description() string {
	return "prints the mixed precision settings derived from BERT training flags"
}

var (
	keyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
	valStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
)

func main() {
	var args cliArgs
	p, err := arg.NewParser(arg.Config{Program: "bert-precision"}, &args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := p.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, arg.ErrHelp) {
			p.WriteHelp(os.Stdout)
			return
		}
		p.Fail(err.Error())
	}
	if err := run(os.Stdout, args, os.LookupEnv); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(w io.Writer, args cliArgs, lookupEnv func(string) (string, bool)) error {
	opts := loader.Options{
		ConfigPath: args.Config,
		Args:       args.Rest,
		Overrides:  loader.Overrides{},
	}
	if !args.NoEnv {
		opts.LookupEnv = lookupEnv
	}
	if args.DType != "" {
		opts.Overrides[perf.FlagDType] = args.DType
	}
	if args.LossScale != "" {
		opts.Overrides[perf.FlagLossScale] = args.LossScale
	}
	_, cfg, err := loader.Load(opts)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s %s\n", keyStyle.Render("use_float16:"), valStyle.Render(fmt.Sprint(cfg.UseFloat16()))); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s %s\n", keyStyle.Render("loss_scale:"), valStyle.Render(cfg.LossScale.String()))
	return err
}
