package scoring

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klyr/xssguard/internal/config"
)

type Label string

const (
	Safe      Label = "safe"
	Malicious Label = "malicious"
)

func (l Label) Valid() bool {
	return l == Safe || l == Malicious
}

// Scorer maps normalized text to a label. Implementations must be
// deterministic for a fixed model and safe for concurrent use.
type Scorer interface {
	Score(ctx context.Context, text string) (Label, error)
}

// Func adapts a plain function to Scorer.
type Func func(ctx context.Context, text string) (Label, error)

func (f Func) Score(ctx context.Context, text string) (Label, error) {
	return f(ctx, text)
}

// Load builds the scorer described by cfg. Relative model paths are resolved
// against baseDir. The returned scorer may implement io.Closer.
func Load(cfg config.ScorerConfig, baseDir string) (Scorer, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("scorer modelPath is required")
	}
	path := cfg.ModelPath
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}

	switch cfg.Type {
	case config.ScorerLinear, "":
		model, err := LoadLinear(path)
		if err != nil {
			return nil, err
		}
		if model.Threshold == 0 {
			model.Threshold = cfg.Threshold
		}
		return model, nil
	case config.ScorerONNX:
		return LoadONNX(path, cfg.Threshold, cfg.ONNX)
	default:
		return nil, fmt.Errorf("unknown scorer type %q", cfg.Type)
	}
}

// Close releases scorer resources when the scorer holds any.
func Close(s Scorer) error {
	if closer, ok := s.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
