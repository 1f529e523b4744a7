package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/klyr/xssguard/internal/config"
)

// ONNXModel runs an exported classifier over the hashed feature vector. Each
// pooled session owns its tensors, so concurrent calls never share buffers.
type ONNXModel struct {
	features       Features
	threshold      float64
	maliciousIndex int
	width          int
	sessions       chan *onnxSession
	poolSize       int
}

type onnxSession struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func LoadONNX(modelPath string, threshold float64, cfg config.ONNXConfig) (*ONNXModel, error) {
	if cfg.Features.Buckets <= 0 {
		return nil, errors.New("onnx features.buckets must be > 0")
	}

	libPath := resolveSharedLibraryPath(cfg.SharedLibrary, filepath.Dir(modelPath))
	if libPath == "" {
		return nil, fmt.Errorf("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or classifier.scorer.onnx.sharedLibrary")
	}
	ort.SetSharedLibraryPath(libPath)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	inputName := cfg.InputName
	if inputName == "" {
		inputName = "input"
	}
	outputName, width, err := selectOutput(modelPath, cfg.OutputName)
	if err != nil {
		return nil, fmt.Errorf("inspect onnx model: %w", err)
	}
	if cfg.MaliciousIndex >= width {
		return nil, fmt.Errorf("maliciousIndex %d outside output width %d", cfg.MaliciousIndex, width)
	}

	poolSize := cfg.Sessions
	if poolSize <= 0 {
		poolSize = 1
	}

	features := FeaturesFromConfig(cfg.Features)
	model := &ONNXModel{
		features:       features,
		threshold:      threshold,
		maliciousIndex: cfg.MaliciousIndex,
		width:          width,
		sessions:       make(chan *onnxSession, poolSize),
		poolSize:       poolSize,
	}
	for i := 0; i < poolSize; i++ {
		ss, err := newONNXSession(modelPath, inputName, outputName, features.Buckets, width)
		if err != nil {
			_ = model.Close()
			return nil, fmt.Errorf("create onnx session %d/%d: %w", i+1, poolSize, err)
		}
		model.sessions <- ss
	}
	return model, nil
}

func newONNXSession(modelPath, inputName, outputName string, buckets, width int) (*onnxSession, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetIntraOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("set intra threads: %w", err)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(buckets)))
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(width)))
	if err != nil {
		_ = input.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{inputName},
		[]string{outputName},
		[]ort.Value{input},
		[]ort.Value{output},
		opts,
	)
	if err != nil {
		_ = input.Destroy()
		_ = output.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &onnxSession{session: session, input: input, output: output}, nil
}

func selectOutput(modelPath, name string) (string, int, error) {
	_, outputs, err := ort.GetInputOutputInfoWithOptions(modelPath, nil)
	if err != nil {
		return "", 0, err
	}
	if len(outputs) == 0 {
		return "", 0, errors.New("no outputs found")
	}

	chosen := outputs[0]
	if name != "" {
		found := false
		for _, out := range outputs {
			if out.Name == name {
				chosen, found = out, true
				break
			}
		}
		if !found {
			return "", 0, fmt.Errorf("output %q not found", name)
		}
	}

	width := 1
	if dims := chosen.Dimensions; len(dims) > 0 && dims[len(dims)-1] > 0 {
		width = int(dims[len(dims)-1])
	}
	return chosen.Name, width, nil
}

func (m *ONNXModel) Score(ctx context.Context, text string) (Label, error) {
	var ss *onnxSession
	select {
	case ss = <-m.sessions:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { m.sessions <- ss }()

	m.features.Dense(text, ss.input.GetData())
	if err := ss.session.Run(); err != nil {
		return "", fmt.Errorf("onnx run: %w", err)
	}

	p := maliciousProbability(ss.output.GetData(), m.maliciousIndex)
	if math.IsNaN(p) {
		return "", errors.New("onnx output is not a number")
	}
	if p >= m.threshold {
		return Malicious, nil
	}
	return Safe, nil
}

// Close destroys every pooled session. It must not race with Score.
func (m *ONNXModel) Close() error {
	var errs []error
	for {
		select {
		case ss := <-m.sessions:
			if err := ss.session.Destroy(); err != nil {
				errs = append(errs, err)
			}
			_ = ss.input.Destroy()
			_ = ss.output.Destroy()
		default:
			return errors.Join(errs...)
		}
	}
}

// maliciousProbability reads a single logit through a sigmoid, a row that
// already sums to one as probabilities, and anything else through softmax.
func maliciousProbability(raw []float32, index int) float64 {
	if len(raw) == 0 {
		return math.NaN()
	}
	if len(raw) == 1 {
		return 1 / (1 + math.Exp(-float64(raw[0])))
	}
	if index < 0 || index >= len(raw) {
		return math.NaN()
	}

	var sum float64
	probabilities := true
	for _, v := range raw {
		if v < 0 || v > 1 {
			probabilities = false
		}
		sum += float64(v)
	}
	if probabilities && math.Abs(sum-1) < 1e-3 {
		return float64(raw[index])
	}

	maxLogit := float64(raw[0])
	for _, v := range raw[1:] {
		maxLogit = math.Max(maxLogit, float64(v))
	}
	var denom float64
	for _, v := range raw {
		denom += math.Exp(float64(v) - maxLogit)
	}
	return math.Exp(float64(raw[index])-maxLogit) / denom
}

// resolveSharedLibraryPath prefers the configured path, then
// ONNXRUNTIME_SHARED_LIBRARY_PATH, then common install locations.
func resolveSharedLibraryPath(configured, modelDir string) string {
	if configured = strings.TrimSpace(configured); configured != "" {
		return configured
	}
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.so",
		"libonnxruntime.dylib",
		"onnxruntime.dll",
	}
	dirs := []string{
		modelDir,
		filepath.Join(modelDir, "lib"),
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}
	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
