package bffss

import (
	"errors"
	"fmt"

	"abiogenesis.dev/bff"
)

// ExperimentConfig is persisted as JSON with each run.
type ExperimentConfig struct {
	TotalInteractions uint64  `json:"total_interactions"`
	SoupSize          int     `json:"soup_size"`
	TapeLength        int     `json:"tape_length"`
	MutationRate      float64 `json:"mutation_rate"`
	Seed              int64   `json:"seed"`
	BatchSize         int     `json:"batch_size"`
	SampleInterval    uint64  `json:"sample_interval"`
	MaxOps            uint64  `json:"max_ops"`
	TimeoutProb       float64 `json:"timeout_prob"`
	// CheckpointEvery is the number of interactions between checkpoints.
	// 0 means only the final state is checkpointed.
	CheckpointEvery uint64 `json:"checkpoint_every"`

	// A phase transition is declared when the mean of the last TransitionWindow
	// sampled operation means exceeds TransitionOps.
	TransitionOps    float64 `json:"transition_ops"`
	TransitionWindow int     `json:"transition_window"`
}

func DefaultConfig() ExperimentConfig {
	return ExperimentConfig{
		TotalInteractions: 2_000_000,
		SoupSize:          bff.DefaultSoupSize,
		TapeLength:        bff.DefaultTapeLength,
		MutationRate:      0,
		Seed:              42,
		BatchSize:         1000,
		SampleInterval:    1000,
		MaxOps:            bff.DefaultMaxOps,
		TimeoutProb:       0,
		CheckpointEvery:   0,
		TransitionOps:     500,
		TransitionWindow:  10,
	}
}

func (c *ExperimentConfig) Validate() error {
	var errs []error
	if c.SoupSize < 2 {
		errs = append(errs, fmt.Errorf("soup_size must be >= 2, have %d", c.SoupSize))
	}
	if c.TapeLength < 1 {
		errs = append(errs, fmt.Errorf("tape_length must be >= 1, have %d", c.TapeLength))
	}
	if c.MutationRate < 0 || c.MutationRate > 1 {
		errs = append(errs, fmt.Errorf("mutation_rate must be in [0, 1], have %v", c.MutationRate))
	}
	if c.TimeoutProb < 0 || c.TimeoutProb > 1 {
		errs = append(errs, fmt.Errorf("timeout_prob must be in [0, 1], have %v", c.TimeoutProb))
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch_size must be >= 1, have %d", c.BatchSize))
	}
	if c.SampleInterval < 1 {
		errs = append(errs, fmt.Errorf("sample_interval must be >= 1, have %d", c.SampleInterval))
	}
	if c.MaxOps < 1 {
		errs = append(errs, fmt.Errorf("max_ops must be >= 1, have %d", c.MaxOps))
	}
	if c.TransitionWindow < 1 {
		errs = append(errs, fmt.Errorf("transition_window must be >= 1, have %d", c.TransitionWindow))
	}
	return errors.Join(errs...)
}
