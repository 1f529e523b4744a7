package main

import (
	"errors"

	"github.com/klyr/xssguard/internal/config"
	"github.com/klyr/xssguard/internal/detect"
	"github.com/klyr/xssguard/internal/observability"
	"github.com/klyr/xssguard/internal/scoring"
)

// errMalicious and errIncomplete make scan exit with status 2 and 3 when
// --fail-on-malicious is set.
var (
	errMalicious  = errors.New("malicious input found")
	errIncomplete = errors.New("some inputs could not be classified")
)

func exitCode(err error) int {
	switch {
	case errors.Is(err, errMalicious):
		return 2
	case errors.Is(err, errIncomplete):
		return 3
	default:
		return 1
	}
}

type classifierFlags struct {
	configPath string
	modelPath  string
	scorerType string
}

// loadClassifierConfig reads the config file, or starts from the built-in
// tables when none is given, then applies command line overrides.
func loadClassifierConfig(flags classifierFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.Load(flags.configPath)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		return nil, err
	}

	if flags.modelPath != "" {
		cfg.Classifier.Scorer.ModelPath = flags.modelPath
	}
	if flags.scorerType != "" {
		cfg.Classifier.Scorer.Type = flags.scorerType
	}
	if err := cfg.ValidateClassifier(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildClassifier(cfg *config.Config, metrics *observability.Metrics) (*detect.Classifier, error) {
	return detect.Build(cfg, detect.WrapScorer(func(s scoring.Scorer) scoring.Scorer {
		return observability.InstrumentScorer(s, metrics)
	}))
}
