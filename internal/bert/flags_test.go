package bert

import (
	"errors"
	"testing"

	"github.com/0x4D31/berttrain/internal/flags"
	"github.com/0x4D31/berttrain/internal/perf"
)

func registered(t *testing.T) *flags.Registry {
	t.Helper()
	r := flags.New("bert")
	if err := RegisterTrainingFlags(r); err != nil {
		t.Fatalf("register: %v", err)
	}
	return r
}

func TestRegisterDefaults(t *testing.T) {
	r := registered(t)
	tests := []struct {
		name       string
		kind       flags.Kind
		hasDefault bool
		def        string
	}{
		{FlagBERTConfigFile, flags.KindString, false, ""},
		{FlagModelDir, flags.KindString, false, ""},
		{FlagTPU, flags.KindString, true, ""},
		{FlagInitCheckpoint, flags.KindString, false, ""},
		{FlagStrategyType, flags.KindEnum, true, "mirror"},
		{FlagNumTrainEpochs, flags.KindInt, true, "3"},
		{FlagStepsPerLoop, flags.KindInt, true, "200"},
		{FlagLearningRate, flags.KindFloat, true, "5e-05"},
		{FlagRunEagerly, flags.KindBool, true, "false"},
		{perf.FlagDType, flags.KindEnum, true, "fp32"},
		{perf.FlagLossScale, flags.KindString, false, ""},
		{perf.FlagEnableXLA, flags.KindBool, true, "false"},
	}
	for _, tt := range tests {
		opt, ok := r.Lookup(tt.name)
		if !ok {
			t.Errorf("%s not registered", tt.name)
			continue
		}
		if opt.Kind != tt.kind || opt.HasDefault != tt.hasDefault || opt.Default != tt.def {
			t.Errorf("%s: got kind=%s hasDefault=%v default=%q", tt.name, opt.Kind, opt.HasDefault, opt.Default)
		}
		if opt.Present != tt.hasDefault {
			t.Errorf("%s: present=%v", tt.name, opt.Present)
		}
	}
	if len(r.Options()) != len(tests) {
		t.Fatalf("registered %d options, want %d", len(r.Options()), len(tests))
	}
	opt, _ := r.Lookup(FlagStrategyType)
	if len(opt.Choices) != 3 || opt.Choices[0] != "tpu" || opt.Choices[2] != "multi_worker_mirror" {
		t.Fatalf("strategy choices %v", opt.Choices)
	}
}

func TestDisabledPerformanceFlags(t *testing.T) {
	r := registered(t)
	for _, n := range []string{
		perf.FlagNumParallelCalls, perf.FlagInterOp, perf.FlagIntraOp, perf.FlagSyntheticData,
		perf.FlagMaxTrainSteps, perf.FlagAllReduceAlg, perf.FlagNumPacks,
	} {
		if _, ok := r.Lookup(n); ok {
			t.Errorf("%s should not be registered", n)
		}
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	r := registered(t)
	if err := RegisterTrainingFlags(r); !errors.Is(err, flags.ErrDuplicateFlag) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	// A separate registry is independent.
	registered(t)
}

func TestStrategyType(t *testing.T) {
	r := registered(t)
	if err := r.Set(FlagStrategyType, "parameter_server", flags.SourceFlag); !errors.Is(err, flags.ErrInvalidValue) {
		t.Fatalf("expected invalid value, got %v", err)
	}
	if err := r.Set(FlagStrategyType, "mirror", flags.SourceFlag); err != nil {
		t.Fatalf("set: %v", err)
	}
	if s, _ := r.String(FlagStrategyType); s != "mirror" {
		t.Fatalf("strategy_type = %q", s)
	}
}

func TestLearningRateRoundTrip(t *testing.T) {
	r := registered(t)
	if err := r.Set(FlagLearningRate, "1e-4", flags.SourceFlag); err != nil {
		t.Fatalf("set: %v", err)
	}
	if f, _ := r.Float(FlagLearningRate); f != 1e-4 {
		t.Fatalf("learning_rate = %v", f)
	}
	if b, err := r.Bool(FlagRunEagerly); err != nil || b {
		t.Fatalf("run_eagerly = %v, %v", b, err)
	}
}

func TestUseFloat16(t *testing.T) {
	r := registered(t)
	if ok, err := UseFloat16(r); err != nil || ok {
		t.Fatalf("default UseFloat16 = %v, %v", ok, err)
	}
	if err := r.Set(perf.FlagDType, "fp16", flags.SourceFlag); err != nil {
		t.Fatalf("set: %v", err)
	}
	if ok, err := UseFloat16(r); err != nil || !ok {
		t.Fatalf("fp16 UseFloat16 = %v, %v", ok, err)
	}
	if _, err := UseFloat16(flags.New("empty")); err == nil {
		t.Fatal("expected error without dtype option")
	}
}

func TestGetLossScale(t *testing.T) {
	r := registered(t)
	ls, err := GetLossScale(r)
	if err != nil || ls.Dynamic() || ls.Value() != 1 {
		t.Fatalf("fp32 default loss scale = %v, %v", ls, err)
	}
	if err := r.Set(perf.FlagDType, "fp16", flags.SourceFlag); err != nil {
		t.Fatalf("set dtype: %v", err)
	}
	if ls, err = GetLossScale(r); err != nil || !ls.Dynamic() {
		t.Fatalf("fp16 default loss scale = %v, %v", ls, err)
	}
	if err := r.Set(perf.FlagLossScale, "1024", flags.SourceFlag); err != nil {
		t.Fatalf("set loss_scale: %v", err)
	}
	if ls, err = GetLossScale(r); err != nil || ls.Dynamic() || ls.Value() != 1024 {
		t.Fatalf("explicit loss scale = %v, %v", ls, err)
	}
	if err := r.Set(perf.FlagLossScale, "huge", flags.SourceFlag); !errors.Is(err, flags.ErrInvalidValue) {
		t.Fatalf("expected invalid value, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	r := registered(t)
	args := []string{
		"--bert_config_file=/data/bert_config.json",
		"--strategy_type=tpu",
		"--tpu=grpc://10.0.0.2:8470",
		"--learning_rate=2e-5",
		"--dtype=fp16",
		"--enable_xla",
	}
	if _, err := r.Parse(args); err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg, err := Resolve(r)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.BERTConfigFile != "/data/bert_config.json" || !cfg.Present[FlagBERTConfigFile] {
		t.Fatalf("bert_config_file %q", cfg.BERTConfigFile)
	}
	if cfg.Present[FlagInitCheckpoint] {
		t.Fatal("init_checkpoint should be absent")
	}
	if cfg.StrategyType != StrategyTPU || cfg.TPU != "grpc://10.0.0.2:8470" {
		t.Fatalf("unexpected strategy config: %+v", cfg)
	}
	if cfg.LearningRate != 2e-5 || cfg.NumTrainEpochs != 3 || cfg.StepsPerLoop != 200 {
		t.Fatalf("unexpected numeric config: %+v", cfg)
	}
	if !cfg.UseFloat16() || !cfg.LossScale.Dynamic() || !cfg.EnableXLA {
		t.Fatalf("unexpected precision config: %+v", cfg)
	}
	if cfg.ModelDirOrDefault() != DefaultModelDir {
		t.Fatalf("model dir %q", cfg.ModelDirOrDefault())
	}
}

func TestResolveUnregistered(t *testing.T) {
	if _, err := Resolve(flags.New("empty")); !errors.Is(err, flags.ErrUnknownFlag) {
		t.Fatalf("expected unknown flag, got %v", err)
	}
}
