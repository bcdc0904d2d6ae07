package bert

import (
	"github.com/0x4D31/berttrain/internal/flags"
	"github.com/0x4D31/berttrain/internal/perf"
)

// Config is a resolved snapshot of the training options. It is built once by
// Resolve and then shared read-only.
type Config struct {
	BERTConfigFile string
	ModelDir       string
	TPU            string
	InitCheckpoint string
	StrategyType   StrategyType
	NumTrainEpochs int
	StepsPerLoop   int
	LearningRate   float64
	RunEagerly     bool
	DType          perf.DType
	LossScale      perf.LossScale
	EnableXLA      bool

	// Present lists the options without defaults that hold a value.
	Present map[string]bool
}

// Resolve reads every training option from r. r must have been populated by
// RegisterTrainingFlags.
func Resolve(r *flags.Registry) (Config, error) {
	var cfg Config
	var err error
	strs := []struct {
		name string
		dst  *string
	}{
		{FlagBERTConfigFile, &cfg.BERTConfigFile},
		{FlagModelDir, &cfg.ModelDir},
		{FlagTPU, &cfg.TPU},
		{FlagInitCheckpoint, &cfg.InitCheckpoint},
	}
	cfg.Present = make(map[string]bool)
	for _, s := range strs {
		if *s.dst, err = r.String(s.name); err != nil {
			return Config{}, err
		}
		if r.IsPresent(s.name) {
			cfg.Present[s.name] = true
		}
	}
	st, err := r.String(FlagStrategyType)
	if err != nil {
		return Config{}, err
	}
	cfg.StrategyType = StrategyType(st)
	if cfg.NumTrainEpochs, err = r.Int(FlagNumTrainEpochs); err != nil {
		return Config{}, err
	}
	if cfg.StepsPerLoop, err = r.Int(FlagStepsPerLoop); err != nil {
		return Config{}, err
	}
	if cfg.LearningRate, err = r.Float(FlagLearningRate); err != nil {
		return Config{}, err
	}
	if cfg.RunEagerly, err = r.Bool(FlagRunEagerly); err != nil {
		return Config{}, err
	}
	if cfg.EnableXLA, err = r.Bool(perf.FlagEnableXLA); err != nil {
		return Config{}, err
	}
	if cfg.DType, err = perf.GetDType(r); err != nil {
		return Config{}, err
	}
	if cfg.LossScale, err = GetLossScale(r); err != nil {
		return Config{}, err
	}
	if r.IsPresent(perf.FlagLossScale) {
		cfg.Present[perf.FlagLossScale] = true
	}
	return cfg, nil
}

// UseFloat16 reports whether training runs in half precision.
func (c Config) UseFloat16() bool { return c.DType == perf.Float16 }

// ModelDirOrDefault returns ModelDir, or DefaultModelDir when it is unset.
func (c Config) ModelDirOrDefault() string {
	if c.ModelDir == "" {
		return DefaultModelDir
	}
	return c.ModelDir
}
