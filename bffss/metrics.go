package bffss

import (
	"context"
	"encoding/json"
	"io"

	"go.brendoncarroll.net/exp/slices2"
)

// Metrics is the exported record of a run.
type Metrics struct {
	Config     ExperimentConfig `json:"config"`
	Results    *Results         `json:"results"`
	TimeSeries TimeSeries       `json:"time_series"`
}

// TimeSeries is the run's samples, as parallel columns.
type TimeSeries struct {
	SampledInteractions []uint64  `json:"sampled_interactions"`
	SampledOpsMean      []float64 `json:"sampled_ops_mean"`
	SampledOpsMax       []uint64  `json:"sampled_ops_max"`
	SampledDiversity    []float64 `json:"sampled_diversity"`
	SampledUnique       []int     `json:"sampled_unique"`
}

func NewTimeSeries(samples []Sample) TimeSeries {
	return TimeSeries{
		SampledInteractions: slices2.Map(samples, func(x Sample) uint64 { return x.Interactions }),
		SampledOpsMean:      slices2.Map(samples, func(x Sample) float64 { return x.OpsMean }),
		SampledOpsMax:       slices2.Map(samples, func(x Sample) uint64 { return x.OpsMax }),
		SampledDiversity:    slices2.Map(samples, func(x Sample) float64 { return x.Diversity }),
		SampledUnique:       slices2.Map(samples, func(x Sample) int { return x.Unique }),
	}
}

// Metrics collects the config, results and samples of a run.
// Results is nil if the run has not finished.
func (s *System) Metrics(ctx context.Context, rid RunID) (*Metrics, error) {
	ri, err := s.GetRun(ctx, rid)
	if err != nil {
		return nil, err
	}
	samples, err := s.ListSamples(ctx, rid)
	if err != nil {
		return nil, err
	}
	return &Metrics{
		Config:     ri.Config,
		Results:    ri.Results,
		TimeSeries: NewTimeSeries(samples),
	}, nil
}

func WriteMetrics(w io.Writer, m *Metrics) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}
