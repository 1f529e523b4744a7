package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadExampleConfig(t *testing.T) {
	cfg, err := Load("../../configs/xssguard.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			t.Fatalf("Validate: %v", verr.Problems)
		}
		t.Fatalf("Validate: %v", err)
	}

	forms := cfg.Policies["forms"]
	if forms.Mode != ModeEnforce || forms.Limits.Timeout != 3*time.Second {
		t.Fatalf("unexpected forms policy %+v", forms)
	}
	if len(cfg.Classifier.Signatures) == 0 || len(cfg.Classifier.Allowlist) == 0 {
		t.Fatalf("expected default tables to be applied")
	}
	if cfg.Classifier.Scorer.Timeout != 200*time.Millisecond {
		t.Fatalf("unexpected scorer timeout %s", cfg.Classifier.Scorer.Timeout)
	}
	if got := cfg.ResolvePath(cfg.Classifier.Scorer.ModelPath); !filepath.IsAbs(got) || filepath.Base(got) != "linear.json" {
		t.Fatalf("unexpected resolved model path %q", got)
	}
}

func TestValidateReportsProblems(t *testing.T) {
	path := writeConfig(t, `
configVersion: 2
server:
  listen: ":8443"
upstreams:
  - name: app
    url: "not a url"
routes:
  - match:
      pathPrefix: "/_xssguard/admin"
    upstream: missing
    policy: default
policies:
  default:
    mode: learn
    limits:
      maxBodyBytes: 10
      maxHeaderBytes: 10
      timeout: 1s
classifier:
  scorer:
    type: svm
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	err = cfg.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	want := []string{
		"configVersion must be 1",
		"upstreams[0].url invalid",
		"routes[0].match.pathPrefix overlaps server.apiPrefix",
		`routes[0].upstream "missing" does not exist`,
		"policies.default.mode must be enforce|shadow",
		"policies.default.fields selects nothing to classify",
		"classifier.scorer.type must be linear|onnx",
	}
	joined := strings.Join(verr.Problems, "\n")
	for _, problem := range want {
		if !strings.Contains(joined, problem) {
			t.Fatalf("expected problem %q in:\n%s", problem, joined)
		}
	}
}

func TestSignaturesFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "sigs.yaml"), []byte(`
signatures:
  - id: only-script
    category: tag
    stage: normalized
    match:
      type: regex
      pattern: '<script'
`), 0o600); err != nil {
		t.Fatalf("write signatures: %v", err)
	}
	path := filepath.Join(dir, "xssguard.yaml")
	if err := os.WriteFile(path, []byte("configVersion: 1\nclassifier:\n  signaturesFile: sigs.yaml\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Classifier.Signatures) != 1 || cfg.Classifier.Signatures[0].ID != "only-script" {
		t.Fatalf("unexpected signatures %+v", cfg.Classifier.Signatures)
	}
}

func TestDefaultTables(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if cfg.Server.APIPrefix != "/_xssguard" || cfg.Classifier.Scorer.Type != ScorerLinear {
		t.Fatalf("unexpected defaults %+v", cfg.Server)
	}

	stages := map[string]int{}
	for _, rule := range DefaultSignatures() {
		stages[rule.Stage]++
	}
	if stages[StageRaw] == 0 || stages[StageNormalized] == 0 {
		t.Fatalf("expected raw and normalized signatures, got %v", stages)
	}

	err = cfg.ValidateClassifier()
	var verr *ValidationError
	if !errors.As(err, &verr) || len(verr.Problems) != 1 || verr.Problems[0] != "classifier.scorer.modelPath is required" {
		t.Fatalf("expected only the missing model to be reported, got %v", err)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xssguard.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
