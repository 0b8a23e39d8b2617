package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Weights maps a component key to its share of the total score.
type Weights map[string]float64

// DefaultWeights returns the built-in weighting. The values sum to 1.
func DefaultWeights() Weights {
	return Weights{
		ProblemScore:   0.20,
		PersonaScore:   0.10,
		SolutionScore:  0.25,
		MarketScore:    0.25,
		RetentionScore: 0.20,
	}
}

// LoadWeights reads a JSON object of weights from path and normalises it so
// the values sum to 1. A missing file yields the defaults and a nil error.
// Any other problem yields the defaults together with the reason, which the
// caller is expected to log.
func LoadWeights(path string) (Weights, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultWeights(), nil
	}
	if err != nil {
		return DefaultWeights(), fmt.Errorf("reading weights: %w", err)
	}

	var w Weights
	if err := json.Unmarshal(data, &w); err != nil {
		return DefaultWeights(), fmt.Errorf("parsing weights: %w", err)
	}
	return w.normalize()
}

func (w Weights) normalize() (Weights, error) {
	var total float64
	for _, v := range w {
		total += v
	}
	if total <= 0 {
		return DefaultWeights(), fmt.Errorf("weights sum to %v, want > 0", total)
	}
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v / total
	}
	return out, nil
}
