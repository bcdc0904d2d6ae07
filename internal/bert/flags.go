// Package bert declares the command line options shared by BERT training
// programs and derives the mixed precision settings from them.
package bert

import (
	"fmt"

	"github.com/0x4D31/berttrain/internal/flags"
	"github.com/0x4D31/berttrain/internal/perf"
)

const (
	FlagBERTConfigFile = "bert_config_file"
	FlagModelDir       = "model_dir"
	FlagTPU            = "tpu"
	FlagInitCheckpoint = "init_checkpoint"
	FlagStrategyType   = "strategy_type"
	FlagNumTrainEpochs = "num_train_epochs"
	FlagStepsPerLoop   = "steps_per_loop"
	FlagLearningRate   = "learning_rate"
	FlagRunEagerly     = "run_eagerly"
)

// PathFlags are the options holding local paths or URLs. Relative paths in
// flag files are resolved against the file's directory.
var PathFlags = []string{FlagBERTConfigFile, FlagModelDir, FlagInitCheckpoint}

// DefaultModelDir is used by training programs when model_dir is unset.
const DefaultModelDir = "/tmp/bert20/"

// StrategyType selects how training is distributed.
type StrategyType string

const (
	// StrategyTPU runs on TPUs.
	StrategyTPU StrategyType = "tpu"
	// StrategyMirror uses the GPUs of a single host.
	StrategyMirror StrategyType = "mirror"
	// StrategyMultiWorkerMirror uses CPUs or GPUs across several hosts.
	StrategyMultiWorkerMirror StrategyType = "multi_worker_mirror"
)

// Strategies lists every accepted strategy_type value.
var Strategies = []StrategyType{StrategyTPU, StrategyMirror, StrategyMultiWorkerMirror}

// PerformanceOptions is the performance option subset BERT training uses.
var PerformanceOptions = perf.Options{
	DType:            true,
	DynamicLossScale: true,
	LossScale:        true,
	EnableXLA:        true,
}

// RegisterTrainingFlags defines the BERT training options in r. It must be
// called once per registry; a second call fails with flags.ErrDuplicateFlag.
func RegisterTrainingFlags(r *flags.Registry) error {
	choices := make([]string, len(Strategies))
	for i, s := range Strategies {
		choices[i] = string(s)
	}
	defs := []func() error{
		func() error {
			return r.DefineOptionalString(FlagBERTConfigFile,
				"Bert configuration file to define core bert layers.")
		},
		func() error {
			return r.DefineOptionalString(FlagModelDir,
				"The directory where the model weights and training/evaluation summaries are stored. If not specified, save to "+DefaultModelDir+".")
		},
		func() error {
			return r.DefineString(FlagTPU, "", "TPU address to connect to.")
		},
		func() error {
			return r.DefineOptionalString(FlagInitCheckpoint,
				"Initial checkpoint (usually from a pre-trained BERT model).")
		},
		func() error {
			return r.DefineEnum(FlagStrategyType, string(StrategyMirror), choices,
				"Distribution Strategy type to use for training. `tpu` uses TPUs, `mirror` uses GPUs with single host, `multi_worker_mirror` uses CPUs or GPUs with multiple hosts.")
		},
		func() error {
			return r.DefineInt(FlagNumTrainEpochs, 3, "Total number of training epochs to perform.")
		},
		func() error {
			return r.DefineInt(FlagStepsPerLoop, 200,
				"Number of steps per graph-mode loop. Only training step happens inside the loop. Callbacks will not be called inside.")
		},
		func() error {
			return r.DefineFloat(FlagLearningRate, 5e-5, "The initial learning rate for Adam.")
		},
		func() error {
			return r.DefineBool(FlagRunEagerly, false,
				"Run the model op by op without building a model function.")
		},
	}
	for _, def := range defs {
		if err := def(); err != nil {
			return fmt.Errorf("register bert flags: %w", err)
		}
	}
	if err := perf.Define(r, PerformanceOptions); err != nil {
		return fmt.Errorf("register performance flags: %w", err)
	}
	return nil
}

// UseFloat16 reports whether r selects half precision training.
func UseFloat16(r *flags.Registry) (bool, error) {
	dt, err := perf.GetDType(r)
	if err != nil {
		return false, err
	}
	return dt == perf.Float16, nil
}

// GetLossScale resolves the loss scale in r, defaulting to dynamic loss
// scaling for fp16.
func GetLossScale(r *flags.Registry) (perf.LossScale, error) {
	return perf.GetLossScale(r, perf.DynamicLossScale())
}
