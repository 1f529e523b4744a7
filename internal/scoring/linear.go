package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/klyr/xssguard/internal/config"
)

const defaultThreshold = 0.5

// LinearModel is a logistic model over hashed n-gram features.
type LinearModel struct {
	Features  Features
	Bias      float64
	Threshold float64
	Weights   map[int]float64
}

type linearFile struct {
	Features  config.FeaturesConfig `json:"features"`
	Bias      float64               `json:"bias"`
	Threshold float64               `json:"threshold"`
	Weights   map[int]float64       `json:"weights"`
}

func LoadLinear(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file linearFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse linear model: %w", err)
	}
	if file.Threshold < 0 || file.Threshold >= 1 {
		return nil, fmt.Errorf("linear model threshold must be in [0,1)")
	}

	model := &LinearModel{
		Features:  FeaturesFromConfig(file.Features),
		Bias:      file.Bias,
		Threshold: file.Threshold,
		Weights:   file.Weights,
	}
	for bucket := range model.Weights {
		if bucket < 0 || bucket >= model.Features.Buckets {
			return nil, fmt.Errorf("weight bucket %d outside [0,%d)", bucket, model.Features.Buckets)
		}
	}
	return model, nil
}

// Probability returns the modelled probability that text is malicious.
func (m *LinearModel) Probability(text string) float64 {
	z := m.Bias
	for _, term := range m.Features.Sparse(text) {
		z += m.Weights[term.Bucket] * term.Weight
	}
	return 1 / (1 + math.Exp(-z))
}

func (m *LinearModel) Score(ctx context.Context, text string) (Label, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	threshold := m.Threshold
	if threshold == 0 {
		threshold = defaultThreshold
	}
	if m.Probability(text) >= threshold {
		return Malicious, nil
	}
	return Safe, nil
}
