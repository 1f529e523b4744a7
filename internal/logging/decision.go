package logging

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"
)

const maxEvidence = 64

// Decision is written as a single JSON object per guarded request.
type Decision struct {
	Timestamp   time.Time      `json:"ts"`
	RequestID   string         `json:"request_id"`
	ClientIP    string         `json:"client_ip"`
	Host        string         `json:"host"`
	Method      string         `json:"method"`
	Path        string         `json:"path"`
	RouteID     string         `json:"route_id"`
	Policy      string         `json:"policy"`
	Mode        string         `json:"mode"`
	Action      string         `json:"action"`
	Reason      string         `json:"reason,omitempty"`
	StatusCode  int            `json:"status_code"`
	Fields      int            `json:"fields"`
	Findings    []FieldVerdict `json:"findings"`
	Unavailable bool           `json:"unavailable"`
	RateLimited bool           `json:"rate_limited"`
	DurationMS  int64          `json:"duration_ms"`
	UpstreamMS  int64          `json:"upstream_ms"`
}

// FieldVerdict records one malicious field of a request.
type FieldVerdict struct {
	Field    string `json:"field"`
	Decider  string `json:"decider"`
	Category string `json:"category,omitempty"`
	RuleID   string `json:"rule_id,omitempty"`
	Evidence string `json:"evidence,omitempty"`
}

type DecisionLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func NewDecisionLogger(w io.Writer) *DecisionLogger {
	return &DecisionLogger{w: w}
}

func OpenDecisionLog(path string) (*DecisionLogger, func() error, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return NewDecisionLogger(file), file.Close, nil
}

func (l *DecisionLogger) Write(decision Decision) error {
	decision.Findings = sanitizeFindings(decision.Findings)

	data, err := json.Marshal(decision)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.w.Write(append(data, '\n'))
	return err
}

func sanitizeFindings(findings []FieldVerdict) []FieldVerdict {
	if len(findings) == 0 {
		return nil
	}
	out := make([]FieldVerdict, len(findings))
	for i, finding := range findings {
		out[i] = finding
		out[i].Evidence = truncate(finding.Evidence)
	}
	return out
}

func truncate(value string) string {
	if len(value) <= maxEvidence {
		return value
	}
	cut := maxEvidence
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
