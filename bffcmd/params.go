package bffcmd

import (
	"fmt"
	"os"
	"strconv"

	"go.brendoncarroll.net/star"

	"abiogenesis.dev/bff/bffss"
)

var defaults = bffss.DefaultConfig()

var (
	nParam = star.Param[uint64]{
		Name:    "n",
		Default: star.Ptr(strconv.FormatUint(defaults.TotalInteractions, 10)),
		Parse:   parseUint64,
	}
	soupSizeParam = star.Param[int]{
		Name:    "soup-size",
		Default: star.Ptr(strconv.Itoa(defaults.SoupSize)),
		Parse:   strconv.Atoi,
	}
	tapeLengthParam = star.Param[int]{
		Name:    "tape-length",
		Default: star.Ptr(strconv.Itoa(defaults.TapeLength)),
		Parse:   parsePositiveInt,
	}
	mutationRateParam = star.Param[float64]{
		Name:    "mutation-rate",
		Default: star.Ptr("0"),
		Parse:   parseFloat,
	}
	seedParam = star.Param[int64]{
		Name:    "seed",
		Default: star.Ptr(strconv.FormatInt(defaults.Seed, 10)),
		Parse:   parseInt64,
	}
	batchSizeParam = star.Param[int]{
		Name:    "batch-size",
		Default: star.Ptr(strconv.Itoa(defaults.BatchSize)),
		Parse:   strconv.Atoi,
	}
	maxOpsParam = star.Param[uint64]{
		Name:    "max-ops",
		Default: star.Ptr(strconv.FormatUint(defaults.MaxOps, 10)),
		Parse:   parseUint64,
	}
	timeoutProbParam = star.Param[float64]{
		Name:    "timeout-prob",
		Default: star.Ptr("0"),
		Parse:   parseFloat,
	}
	checkpointEveryParam = star.Param[uint64]{
		Name:    "checkpoint-every",
		Default: star.Ptr("0"),
		Parse:   parseUint64,
	}
	// metricsOutParam and stateOutParam are paths, or "" to skip writing.
	metricsOutParam = star.Param[string]{
		Name:    "metrics-out",
		Default: star.Ptr(""),
		Parse:   star.ParseString,
	}
	stateOutParam = star.Param[string]{
		Name:    "state-out",
		Default: star.Ptr(""),
		Parse:   star.ParseString,
	}
	countParam = star.Param[int]{
		Name:    "count",
		Default: star.Ptr("4"),
		Parse:   strconv.Atoi,
	}
	fileParam = star.Param[*os.File]{
		Name: "file",
		Parse: func(x string) (*os.File, error) {
			return os.Open(x)
		},
	}
)

var configParams = []star.IParam{
	nParam, soupSizeParam, tapeLengthParam, mutationRateParam, seedParam,
	batchSizeParam, maxOpsParam, timeoutProbParam, checkpointEveryParam,
}

// buildConfig builds an experiment config from the config params.
func buildConfig(c star.Context) bffss.ExperimentConfig {
	cfg := bffss.DefaultConfig()
	cfg.TotalInteractions = nParam.Load(c)
	cfg.SoupSize = soupSizeParam.Load(c)
	cfg.TapeLength = tapeLengthParam.Load(c)
	cfg.MutationRate = mutationRateParam.Load(c)
	cfg.Seed = seedParam.Load(c)
	cfg.BatchSize = batchSizeParam.Load(c)
	cfg.MaxOps = maxOpsParam.Load(c)
	cfg.TimeoutProb = timeoutProbParam.Load(c)
	cfg.CheckpointEvery = checkpointEveryParam.Load(c)
	return cfg
}

// parsePositiveInt parses an int which must be at least 1.
func parsePositiveInt(x string) (int, error) {
	n, err := strconv.Atoi(x)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("must be >= 1, have %d", n)
	}
	return n, nil
}

func parseUint64(x string) (uint64, error) {
	return strconv.ParseUint(x, 10, 64)
}

func parseInt64(x string) (int64, error) {
	return strconv.ParseInt(x, 10, 64)
}

func parseFloat(x string) (float64, error) {
	return strconv.ParseFloat(x, 64)
}
