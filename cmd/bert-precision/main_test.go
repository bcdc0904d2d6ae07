package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	arg "github.com/alexflint/go-arg"

	"github.com/0x4D31/berttrain/internal/flags"
)

func noEnv(string) (string, bool) { return "", false }

// output returns what run wrote with terminal styling removed.
func output(buf *bytes.Buffer) string {
	s := buf.String()
	b := make([]byte, 0, len(s))
	esc := false
	for i := 0; i < len(s); i++ {
		if esc {
			if s[i] >= '@' && s[i] <= '~' && s[i] != '[' {
				esc = false
			}
			continue
		}
		if s[i] == 0x1b {
			esc = true
			continue
		}
		b = append(b, s[i])
	}
	return string(b)
}

func parse(t *testing.T, argv ...string) cliArgs {
	t.Helper()
	var args cliArgs
	p, err := arg.NewParser(arg.Config{Program: "bert-precision"}, &args)
	if err != nil {
		t.Fatalf("parser: %v", err)
	}
	if err := p.Parse(argv); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return args
}

func TestRunDefaults(t *testing.T) {
	var buf bytes.Buffer
	if err := run(&buf, parse(t), noEnv); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := output(&buf)
	if !strings.Contains(out, "use_float16: false") || !strings.Contains(out, "loss_scale: 1") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRunFP16(t *testing.T) {
	var buf bytes.Buffer
	if err := run(&buf, parse(t, "--dtype", "fp16"), noEnv); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(output(&buf), "loss_scale: dynamic") {
		t.Fatalf("unexpected output:\n%s", output(&buf))
	}
}

func TestRunRestArgsAndConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bert.hcl")
	if err := os.WriteFile(cfgPath, []byte("dtype = \"fp16\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	var buf bytes.Buffer
	args := parse(t, "--config", cfgPath, "--", "--loss_scale=32")
	if err := run(&buf, args, noEnv); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(output(&buf), "use_float16: true") || !strings.Contains(output(&buf), "loss_scale: 32") {
		t.Fatalf("unexpected output:\n%s", output(&buf))
	}
}

func TestRunEnvironment(t *testing.T) {
	env := func(k string) (string, bool) {
		if k == "BERT_DTYPE" {
			return "fp16", true
		}
		return "", false
	}
	var buf bytes.Buffer
	if err := run(&buf, parse(t), env); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(output(&buf), "use_float16: true") {
		t.Fatalf("environment ignored:\n%s", output(&buf))
	}
	buf.Reset()
	if err := run(&buf, parse(t, "--no-env"), env); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(output(&buf), "use_float16: false") {
		t.Fatalf("environment used with --no-env:\n%s", output(&buf))
	}
}

func TestRunInvalid(t *testing.T) {
	var buf bytes.Buffer
	if err := run(&buf, parse(t, "--loss-scale", "lots"), noEnv); !errors.Is(err, flags.ErrInvalidValue) {
		t.Fatalf("expected invalid value, got %v", err)
	}
	if err := run(&buf, parse(t, "--dtype", "int8"), noEnv); !errors.Is(err, flags.ErrInvalidValue) {
		t.Fatalf("expected invalid value, got %v", err)
	}
}
