package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"
)

type ValidationError struct {
	Problems []string
}

func (v *ValidationError) Add(format string, args ...any) {
	v.Problems = append(v.Problems, fmt.Sprintf(format, args...))
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("%d validation error(s)", len(v.Problems))
}

func (c *Config) Validate() error {
	v := &ValidationError{}

	if c.ConfigVersion != 1 {
		v.Add("configVersion must be 1")
	}

	if err := validateListen(c.Server.Listen); err != nil {
		v.Add("server.listen invalid: %v", err)
	}
	if !strings.HasPrefix(c.Server.APIPrefix, "/") {
		v.Add("server.apiPrefix must start with /")
	}

	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" {
			v.Add("server.tls.certFile required when tls.enabled is true")
		}
		if c.Server.TLS.KeyFile == "" {
			v.Add("server.tls.keyFile required when tls.enabled is true")
		}
		if c.Server.TLS.CertFile != "" {
			if err := requireFile(c.resolvePath(c.Server.TLS.CertFile)); err != nil {
				v.Add("server.tls.certFile invalid: %v", err)
			}
		}
		if c.Server.TLS.KeyFile != "" {
			if err := requireFile(c.resolvePath(c.Server.TLS.KeyFile)); err != nil {
				v.Add("server.tls.keyFile invalid: %v", err)
			}
		}
	}

	if c.Metrics.Enabled {
		if err := validateListen(c.Metrics.Listen); err != nil {
			v.Add("metrics.listen invalid: %v", err)
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		v.Add("logging.level must be debug|info|warn|error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		v.Add("logging.format must be text|json")
	}

	upstreamNames := map[string]struct{}{}
	for i, upstream := range c.Upstreams {
		if upstream.Name == "" {
			v.Add("upstreams[%d].name is required", i)
		} else if _, exists := upstreamNames[upstream.Name]; exists {
			v.Add("upstreams[%d].name %q is duplicated", i, upstream.Name)
		} else {
			upstreamNames[upstream.Name] = struct{}{}
		}

		if upstream.URL == "" {
			v.Add("upstreams[%d].url is required", i)
		} else if err := validateURL(upstream.URL); err != nil {
			v.Add("upstreams[%d].url invalid: %v", i, err)
		}
	}

	policyNames := map[string]struct{}{}
	for name, policy := range c.Policies {
		if name == "" {
			v.Add("policies has an empty name")
			continue
		}
		policyNames[name] = struct{}{}

		switch policy.Mode {
		case ModeEnforce, ModeShadow:
		default:
			v.Add("policies.%s.mode must be enforce|shadow", name)
		}

		if policy.Limits.MaxBodyBytes <= 0 {
			v.Add("policies.%s.limits.maxBodyBytes must be > 0", name)
		}
		if policy.Limits.MaxHeaderBytes <= 0 {
			v.Add("policies.%s.limits.maxHeaderBytes must be > 0", name)
		}
		if policy.Limits.Timeout <= 0 {
			v.Add("policies.%s.limits.timeout must be > 0", name)
		}

		if !policy.Fields.Query && !policy.Fields.Form && !policy.Fields.JSON && len(policy.Fields.Headers) == 0 {
			v.Add("policies.%s.fields selects nothing to classify", name)
		}

		if policy.RateLimit.Enabled {
			if policy.RateLimit.RPS <= 0 {
				v.Add("policies.%s.rateLimit.rps must be > 0", name)
			}
			if policy.RateLimit.Burst <= 0 {
				v.Add("policies.%s.rateLimit.burst must be > 0", name)
			}
			switch policy.RateLimit.Key {
			case "", "ip", "ip_path":
			default:
				v.Add("policies.%s.rateLimit.key must be ip|ip_path", name)
			}
		}
	}

	for i, route := range c.Routes {
		if route.Match.PathPrefix == "" {
			v.Add("routes[%d].match.pathPrefix is required", i)
		} else if strings.HasPrefix(route.Match.PathPrefix, c.Server.APIPrefix) {
			v.Add("routes[%d].match.pathPrefix overlaps server.apiPrefix", i)
		}
		if route.Upstream == "" {
			v.Add("routes[%d].upstream is required", i)
		} else if _, exists := upstreamNames[route.Upstream]; !exists {
			v.Add("routes[%d].upstream %q does not exist", i, route.Upstream)
		}
		if route.Policy == "" {
			v.Add("routes[%d].policy is required", i)
		} else if _, exists := policyNames[route.Policy]; !exists {
			v.Add("routes[%d].policy %q does not exist", i, route.Policy)
		}
	}

	c.validateClassifier(v)

	if len(v.Problems) > 0 {
		sort.Strings(v.Problems)
		return v
	}
	return nil
}

// ValidateClassifier checks only the classifier section. One-shot commands
// that never listen use it instead of Validate.
func (c *Config) ValidateClassifier() error {
	v := &ValidationError{}
	c.validateClassifier(v)
	if len(v.Problems) > 0 {
		sort.Strings(v.Problems)
		return v
	}
	return nil
}

func (c *Config) validateClassifier(v *ValidationError) {
	cl := c.Classifier

	switch cl.Scorer.Type {
	case ScorerLinear:
		if cl.Scorer.ModelPath == "" {
			v.Add("classifier.scorer.modelPath is required")
		} else if err := requireFile(c.resolvePath(cl.Scorer.ModelPath)); err != nil {
			v.Add("classifier.scorer.modelPath invalid: %v", err)
		}
	case ScorerONNX:
		if cl.Scorer.ModelPath == "" {
			v.Add("classifier.scorer.modelPath is required")
		} else if err := requireFile(c.resolvePath(cl.Scorer.ModelPath)); err != nil {
			v.Add("classifier.scorer.modelPath invalid: %v", err)
		}
		if cl.Scorer.ONNX.Features.Buckets <= 0 {
			v.Add("classifier.scorer.onnx.features.buckets must be > 0")
		}
		if cl.Scorer.ONNX.MaliciousIndex < 0 {
			v.Add("classifier.scorer.onnx.maliciousIndex must be >= 0")
		}
	default:
		v.Add("classifier.scorer.type must be linear|onnx")
	}
	if cl.Scorer.Threshold <= 0 || cl.Scorer.Threshold >= 1 {
		v.Add("classifier.scorer.threshold must be between 0 and 1")
	}
	if cl.Scorer.Timeout < 0 {
		v.Add("classifier.scorer.timeout must be >= 0")
	}

	if len(cl.Signatures) == 0 {
		v.Add("classifier.signatures is empty")
	}
	ruleIDs := map[string]struct{}{}
	for i, rule := range cl.Signatures {
		if rule.ID == "" {
			v.Add("classifier.signatures[%d].id is required", i)
		} else if _, exists := ruleIDs[rule.ID]; exists {
			v.Add("classifier.signatures[%d].id %q is duplicated", i, rule.ID)
		} else {
			ruleIDs[rule.ID] = struct{}{}
		}

		if rule.Category == "" {
			v.Add("classifier.signatures[%d].category is required", i)
		}
		switch rule.Stage {
		case StageRaw, StageNormalized:
		default:
			v.Add("classifier.signatures[%d].stage must be raw|normalized", i)
		}

		switch rule.Match.Type {
		case "aho":
			if rule.Match.PatternsFile == "" && len(rule.Match.Patterns) == 0 {
				v.Add("classifier.signatures[%d].match needs patterns or patternsFile for aho", i)
			} else if rule.Match.PatternsFile != "" {
				if err := requireFile(c.resolvePath(rule.Match.PatternsFile)); err != nil {
					v.Add("classifier.signatures[%d].match.patternsFile invalid: %v", i, err)
				}
			}
		case "regex":
			if rule.Match.Pattern == "" {
				v.Add("classifier.signatures[%d].match.pattern is required for regex", i)
			} else if _, err := regexp.Compile(rule.Match.Pattern); err != nil {
				v.Add("classifier.signatures[%d].match.pattern invalid: %v", i, err)
			}
		default:
			v.Add("classifier.signatures[%d].match.type must be aho|regex", i)
		}
	}

	if len(cl.Allowlist) == 0 {
		v.Add("classifier.allowlist is empty")
	}
	entryIDs := map[string]struct{}{}
	for i, entry := range cl.Allowlist {
		if entry.ID == "" {
			v.Add("classifier.allowlist[%d].id is required", i)
		} else if _, exists := entryIDs[entry.ID]; exists {
			v.Add("classifier.allowlist[%d].id %q is duplicated", i, entry.ID)
		} else {
			entryIDs[entry.ID] = struct{}{}
		}
		if (entry.Pattern == "") == (len(entry.Keywords) == 0) {
			v.Add("classifier.allowlist[%d] needs exactly one of pattern or keywords", i)
		}
		if entry.Pattern != "" {
			if _, err := regexp.Compile(entry.Pattern); err != nil {
				v.Add("classifier.allowlist[%d].pattern invalid: %v", i, err)
			}
		}
		if entry.Exclude != "" {
			if _, err := regexp.Compile(entry.Exclude); err != nil {
				v.Add("classifier.allowlist[%d].exclude invalid: %v", i, err)
			}
		}
	}
}

func validateListen(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("address is required")
	}
	if _, err := net.ResolveTCPAddr("tcp", addr); err != nil {
		return err
	}
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("must include scheme and host")
	}
	return nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
