// Package perf defines the standard family of performance tuning options and
// the lookups that interpret them.
package perf

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/0x4D31/berttrain/internal/flags"
)

// Option names registered by Define.
const (
	FlagNumParallelCalls = "num_parallel_calls"
	FlagInterOp          = "inter_op_parallelism_threads"
	FlagIntraOp          = "intra_op_parallelism_threads"
	FlagSyntheticData    = "use_synthetic_data"
	FlagMaxTrainSteps    = "max_train_steps"
	FlagDType            = "dtype"
	FlagLossScale        = "loss_scale"
	FlagAllReduceAlg     = "all_reduce_alg"
	FlagNumPacks         = "num_packs"
	FlagEnableXLA        = "enable_xla"
)

// Options selects which option families Define registers.
type Options struct {
	NumParallelCalls bool
	InterOp          bool
	IntraOp          bool
	SyntheticData    bool
	MaxTrainSteps    bool
	DType            bool
	// DynamicLossScale allows "dynamic" as a loss_scale value.
	DynamicLossScale bool
	LossScale        bool
	AllReduceAlg     bool
	NumPacks         bool
	EnableXLA        bool
}

// Define registers every option family enabled in opts into r.
func Define(r *flags.Registry, opts Options) error {
	if opts.NumParallelCalls {
		if err := r.DefineInt(FlagNumParallelCalls, runtime.NumCPU(),
			"The number of records that are processed in parallel during input processing."); err != nil {
			return err
		}
	}
	if opts.InterOp {
		if err := r.DefineInt(FlagInterOp, 0,
			"Number of inter_op_parallelism_threads to use for CPU. 0 lets the runtime pick."); err != nil {
			return err
		}
	}
	if opts.IntraOp {
		if err := r.DefineInt(FlagIntraOp, 0,
			"Number of intra_op_parallelism_threads to use for CPU. 0 lets the runtime pick."); err != nil {
			return err
		}
	}
	if opts.SyntheticData {
		if err := r.DefineBool(FlagSyntheticData, false,
			"If set, use fake data (zeroes) instead of a real dataset. Removes input pipeline cost from benchmarks."); err != nil {
			return err
		}
	}
	if opts.MaxTrainSteps {
		if err := r.DefineOptionalInt(FlagMaxTrainSteps,
			"The model will stop training if the global step reaches this value. If unset, training runs until the epoch count is reached."); err != nil {
			return err
		}
	}
	if opts.DType {
		if err := r.DefineEnum(FlagDType, Float32.String(), []string{Float16.String(), Float32.String()},
			"The floating point type to train the model in."); err != nil {
			return err
		}
	}
	if opts.LossScale {
		usage := "The amount to scale the loss by when training in fp16. Must be a positive number. Defaults to 1 for fp32."
		if opts.DynamicLossScale {
			usage = "The amount to scale the loss by when training in fp16. Either a positive number or \"dynamic\" for an automatically adjusted scale."
		}
		if err := r.DefineOptionalString(FlagLossScale, usage); err != nil {
			return err
		}
		allowDynamic := opts.DynamicLossScale
		if err := r.SetValidator(FlagLossScale, func(s string) error {
			if s == dynamicName && !allowDynamic {
				return errors.New("dynamic loss scaling is not enabled")
			}
			_, err := ParseLossScale(s)
			return err
		}); err != nil {
			return err
		}
	}
	if opts.AllReduceAlg {
		if err := r.DefineOptionalString(FlagAllReduceAlg,
			"The all-reduce algorithm used by the distribution strategy."); err != nil {
			return err
		}
	}
	if opts.NumPacks {
		if err := r.DefineInt(FlagNumPacks, 1,
			"Number of gradient packs used by cross-device all-reduce."); err != nil {
			return err
		}
	}
	if opts.EnableXLA {
		if err := r.DefineBool(FlagEnableXLA, false,
			"Whether to enable XLA auto jit compilation."); err != nil {
			return err
		}
	}
	return nil
}

// DType is the floating point type used for training.
type DType int

const (
	Float32 DType = iota
	Float16
)

func (d DType) String() string {
	switch d {
	case Float16:
		return "fp16"
	case Float32:
		return "fp32"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// DefaultLossScale is the fixed loss scale conventionally paired with d.
func (d DType) DefaultLossScale() float64 {
	if d == Float16 {
		return 128
	}
	return 1
}

// ParseDType maps an option value to a DType.
func ParseDType(s string) (DType, error) {
	switch s {
	case "fp16":
		return Float16, nil
	case "fp32":
		return Float32, nil
	default:
		return 0, fmt.Errorf("unknown dtype %q", s)
	}
}

// GetDType returns the training dtype selected in r.
func GetDType(r *flags.Registry) (DType, error) {
	s, err := r.String(FlagDType)
	if err != nil {
		return 0, err
	}
	return ParseDType(s)
}

const dynamicName = "dynamic"

// LossScale is either dynamic or a fixed positive multiplier.
type LossScale struct {
	dynamic bool
	value   float64
}

// DynamicLossScale returns the dynamic policy.
func DynamicLossScale() LossScale { return LossScale{dynamic: true} }

// FixedLossScale returns a fixed multiplier.
func FixedLossScale(v float64) LossScale { return LossScale{value: v} }

func (l LossScale) Dynamic() bool { return l.dynamic }

// Value is the fixed multiplier; zero for the dynamic policy.
func (l LossScale) Value() float64 { return l.value }

func (l LossScale) String() string {
	if l.dynamic {
		return dynamicName
	}
	return strconv.FormatFloat(l.value, 'g', -1, 64)
}

// ParseLossScale accepts "dynamic" or a positive number.
func ParseLossScale(s string) (LossScale, error) {
	s = strings.TrimSpace(s)
	if s == dynamicName {
		return DynamicLossScale(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return LossScale{}, fmt.Errorf("loss scale %q is neither %q nor a number", s, dynamicName)
	}
	if v <= 0 {
		return LossScale{}, fmt.Errorf("loss scale must be positive, got %v", v)
	}
	return FixedLossScale(v), nil
}

// GetLossScale resolves the loss scale selected in r. An explicit loss_scale
// wins. Otherwise fp32 trains unscaled and fp16 uses defaultForFP16.
func GetLossScale(r *flags.Registry, defaultForFP16 LossScale) (LossScale, error) {
	if r.IsPresent(FlagLossScale) {
		s, err := r.String(FlagLossScale)
		if err != nil {
			return LossScale{}, err
		}
		return ParseLossScale(s)
	}
	dt, err := GetDType(r)
	if err != nil {
		return LossScale{}, err
	}
	if dt == Float32 {
		return FixedLossScale(1), nil
	}
	return defaultForFP16, nil
}
