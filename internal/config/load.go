package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/signatures.yaml
var defaultSignatures []byte

//go:embed defaults/allowlist.yaml
var defaultAllowlist []byte

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.baseDir = filepath.Dir(absPath)

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with the built-in signature and allowlist
// tables. The scorer still has to be pointed at a model.
func Default() (*Config, error) {
	cfg := &Config{ConfigVersion: 1}
	wd, err := os.Getwd()
	if err == nil {
		cfg.baseDir = wd
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSignatures reads a signature table from a YAML file with a top-level
// "signatures" list.
func LoadSignatures(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signatures: %w", err)
	}
	return parseSignatures(data)
}

func DefaultSignatures() []Rule {
	rules, err := parseSignatures(defaultSignatures)
	if err != nil {
		panic(fmt.Sprintf("embedded signatures: %v", err))
	}
	return rules
}

func DefaultAllowlist() []AllowlistEntry {
	var doc struct {
		Allowlist []AllowlistEntry `yaml:"allowlist"`
	}
	if err := yaml.Unmarshal(defaultAllowlist, &doc); err != nil {
		panic(fmt.Sprintf("embedded allowlist: %v", err))
	}
	return doc.Allowlist
}

func parseSignatures(data []byte) ([]Rule, error) {
	var doc struct {
		Signatures []Rule `yaml:"signatures"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse signatures: %w", err)
	}
	return doc.Signatures, nil
}

func (c *Config) applyDefaults() error {
	if c.Server.APIPrefix == "" {
		c.Server.APIPrefix = defaultAPIPrefix
	}

	cl := &c.Classifier
	if len(cl.Signatures) == 0 {
		if cl.SignaturesFile != "" {
			rules, err := LoadSignatures(c.resolvePath(cl.SignaturesFile))
			if err != nil {
				return err
			}
			cl.Signatures = rules
		} else {
			cl.Signatures = DefaultSignatures()
		}
	}
	if len(cl.Allowlist) == 0 {
		cl.Allowlist = DefaultAllowlist()
	}
	if cl.Workers <= 0 {
		cl.Workers = defaultWorkers
	}
	if cl.Scorer.Type == "" {
		cl.Scorer.Type = ScorerLinear
	}
	if cl.Scorer.Threshold == 0 {
		cl.Scorer.Threshold = defaultThreshold
	}
	if cl.Scorer.Timeout == 0 {
		cl.Scorer.Timeout = defaultScorerTimeout
	}

	for name, p := range c.Policies {
		if p.Fields.MaxFields <= 0 {
			p.Fields.MaxFields = 64
		}
		c.Policies[name] = p
	}
	return nil
}

func (c *Config) resolvePath(p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	base := c.baseDir
	if base == "" {
		base = "."
	}
	return filepath.Join(base, p)
}
