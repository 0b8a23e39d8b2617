// Package scoring turns a raw PMF survey into component scores, a weighted
// total and a validation stage.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pmfstudio/reportgate/internal/logging"
)

// Component keys, as they appear in weights files and responses.
const (
	ProblemScore   = "problem_score"
	PersonaScore   = "persona_score"
	SolutionScore  = "solution_score"
	MarketScore    = "market_score"
	RetentionScore = "retention_score"
)

// Stage is the PMF validation stage reached by a total score.
type Stage string

const (
	StageProblemDiscovery   Stage = "Problem Discovery"
	StageProblemSolutionFit Stage = "Problem/Solution Fit"
	StageProductMarketFit   Stage = "Product/Market Fit (In Progress)"
	StagePMFAchieved        Stage = "PMF Achieved"
)

// ErrInvalidInput is returned when a numeric survey field cannot be read as
// a number.
var ErrInvalidInput = errors.New("invalid survey input")

// Result is the outcome of scoring one survey.
type Result struct {
	Score      float64
	Stage      Stage
	Components map[string]float64
}

// Engine scores surveys with a fixed set of weights.
type Engine struct {
	weights Weights
}

func NewEngine(w Weights) *Engine {
	if len(w) == 0 {
		w = DefaultWeights()
	}
	return &Engine{weights: w}
}

// NewEngineFromFile loads weights from path, logging and falling back to the
// defaults when the file is unusable.
func NewEngineFromFile(ctx context.Context, path string, logger logging.Logger) *Engine {
	w, err := LoadWeights(path)
	if err != nil {
		logger.Warn(ctx, "using default score weights", "path", path, "error", err)
	}
	return NewEngine(w)
}

// Score builds component scores from raw and combines them.
func (e *Engine) Score(raw map[string]any) (Result, error) {
	comps, err := BuildComponents(raw)
	if err != nil {
		return Result{}, err
	}
	total := e.Total(comps)
	return Result{Score: total, Stage: StageFor(total), Components: comps}, nil
}

// Total is the weighted sum of comps, each clamped to [0, 100], rounded to
// one decimal. Components without a weight are ignored; weights without a
// component count as zero.
func (e *Engine) Total(comps map[string]float64) float64 {
	var total float64
	for key, w := range e.weights {
		total += w * clamp(comps[key])
	}
	return math.Round(total*10) / 10
}

// StageFor maps a total score to its stage.
func StageFor(score float64) Stage {
	switch {
	case score <= 40:
		return StageProblemDiscovery
	case score <= 60:
		return StageProblemSolutionFit
	case score <= 80:
		return StageProductMarketFit
	default:
		return StagePMFAchieved
	}
}

// BuildComponents derives the five component scores from a raw survey.
func BuildComponents(raw map[string]any) (map[string]float64, error) {
	interviews, err := intField(raw, "interviews_count")
	if err != nil {
		return nil, err
	}
	pilots, err := intField(raw, "pilot_users")
	if err != nil {
		return nil, err
	}
	paid, err := intField(raw, "paid_customers")
	if err != nil {
		return nil, err
	}
	solution, err := solutionScore(raw)
	if err != nil {
		return nil, err
	}

	return map[string]float64{
		ProblemScore:   problemScore(raw, interviews),
		PersonaScore:   personaScore(raw["target"]),
		SolutionScore:  solution,
		MarketScore:    marketScore(paid, pilots, interviews),
		RetentionScore: retentionScore(raw),
	}, nil
}

func problemScore(raw map[string]any, interviews int) float64 {
	problem, _ := raw["problem"].(string)
	hasProblem := strings.TrimSpace(problem) != ""
	switch {
	case hasProblem && interviews >= 8:
		return 90
	case hasProblem && interviews >= 3:
		return 70
	case interviews >= 8:
		return 60
	default:
		return 35
	}
}

func personaScore(target any) float64 {
	switch t := target.(type) {
	case []any:
		switch {
		case len(t) >= 2:
			return 85
		case len(t) == 1:
			return 65
		}
	case string:
		if utf8.RuneCountInString(t) > 10 {
			return 60
		}
	}
	return 30
}

// solutionScore prefers the Sean Ellis figure, then NPS, then the count of
// positive comments.
func solutionScore(raw map[string]any) (float64, error) {
	if v, ok := present(raw, "very_disappointed_percent"); ok {
		x, err := toFloat(v)
		if err != nil {
			return 0, fmt.Errorf("%w: very_disappointed_percent: %v", ErrInvalidInput, err)
		}
		return SeanEllisScore(x), nil
	}
	if v, ok := present(raw, "nps"); ok {
		if x, err := toFloat(v); err == nil {
			return ScaleNPS(x), nil
		}
	}
	positive, err := intField(raw, "positive_comments")
	if err != nil {
		return 0, err
	}
	if positive >= 5 {
		return 75, nil
	}
	return 50, nil
}

func marketScore(paid, pilots, interviews int) float64 {
	switch {
	case paid >= 20:
		return 90
	case pilots >= 50:
		return 85
	case pilots >= 10 || interviews >= 10:
		return 70
	default:
		return 40
	}
}

// retentionScore reads day-7 retention, else DAU/MAU scaled by 0.8. Ratios
// up to 1 are taken as fractions. Unreadable values score 40.
func retentionScore(raw map[string]any) float64 {
	if v, ok := present(raw, "day7_retention"); ok {
		d7, err := toFloat(v)
		if err != nil {
			return 40
		}
		return clamp(asPercent(d7))
	}
	if v, ok := present(raw, "dau_mau"); ok {
		dm, err := toFloat(v)
		if err != nil {
			return 40
		}
		return clamp(asPercent(dm) * 0.8)
	}
	return 40
}

// SeanEllisScore maps the share of "very disappointed" respondents (0-100)
// to a 0-100 solution score.
func SeanEllisScore(x float64) float64 {
	switch {
	case x <= 0:
		return 0
	case x >= 100:
		return 100
	case x < 20:
		return x * 1.2
	case x < 40:
		return 24 + (x-20)*1.8
	default:
		return math.Min(100, 60+(x-40))
	}
}

// ScaleNPS maps a Net Promoter Score (-100..100) onto 0..100.
func ScaleNPS(nps float64) float64 {
	return clamp((nps + 100) / 2)
}

func asPercent(v float64) float64 {
	if v <= 1 {
		return v * 100
	}
	return v
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// present returns raw[key] unless it is absent or null.
func present(raw map[string]any, key string) (any, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// intField reads an optional count. Empty values count as zero; fractional
// numbers are truncated.
func intField(raw map[string]any, key string) (int, error) {
	v, ok := present(raw, key)
	if !ok {
		return 0, nil
	}
	switch t := v.(type) {
	case float64:
		return int(math.Trunc(t)), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %q is not an integer", ErrInvalidInput, key, t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %s: unexpected %T", ErrInvalidInput, key, v)
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, fmt.Errorf("unexpected %T", v)
	}
}
