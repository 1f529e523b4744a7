package detect

import (
	"github.com/klyr/xssguard/internal/rules"
	"github.com/klyr/xssguard/internal/scoring"
)

// Stage names the pipeline step that decided a verdict.
type Stage string

const (
	StageAllowlist   Stage = "allowlist"
	StageSignature   Stage = "signature"
	StageStatistical Stage = "statistical"
)

// Verdict is the outcome of one classification. RuleID names the signature
// or allowlist entry that decided, if any.
type Verdict struct {
	Label    scoring.Label  `json:"label"`
	Stage    Stage          `json:"stage"`
	Category rules.Category `json:"category,omitempty"`
	RuleID   string         `json:"ruleId,omitempty"`
	Evidence string         `json:"evidence,omitempty"`
}

func (v Verdict) Malicious() bool {
	return v.Label == scoring.Malicious
}

// Decider renders the deciding stage as allowlist, signature:<category> or
// statistical.
func (v Verdict) Decider() string {
	if v.Stage == StageSignature {
		return string(StageSignature) + ":" + string(v.Category)
	}
	return string(v.Stage)
}

func signatureVerdict(match rules.Match) Verdict {
	return Verdict{
		Label:    scoring.Malicious,
		Stage:    StageSignature,
		Category: match.Category,
		RuleID:   match.RuleID,
		Evidence: match.Evidence,
	}
}
