package soup

import "abiogenesis.dev/bff/bvm"

// Stats summarizes a batch of interactions.
type Stats struct {
	Count   int     `json:"count"`
	OpsMean float64 `json:"ops_mean"`
	OpsMax  uint64  `json:"ops_max"`

	Terminated int `json:"terminated"`
	Crashed    int `json:"crashed"`
	TimedOut   int `json:"timed_out"`
	Exhausted  int `json:"exhausted"`
}

func Summarize(results []InteractionResult) (ret Stats) {
	var total uint64
	for _, r := range results {
		total += r.Operations
		ret.OpsMax = max(ret.OpsMax, r.Operations)
		switch r.Outcome() {
		case bvm.Terminated:
			ret.Terminated++
		case bvm.Crashed:
			ret.Crashed++
		case bvm.TimedOut:
			ret.TimedOut++
		case bvm.Exhausted:
			ret.Exhausted++
		}
	}
	ret.Count = len(results)
	if ret.Count > 0 {
		ret.OpsMean = float64(total) / float64(ret.Count)
	}
	return ret
}
