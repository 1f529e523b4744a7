package policy

import (
	"testing"

	"github.com/klyr/xssguard/internal/detect"
	"github.com/klyr/xssguard/internal/scoring"
)

func TestDecideAction(t *testing.T) {
	malicious := Outcome{Fields: 2, Findings: []Finding{{
		Field:   "form.comment",
		Verdict: detect.Verdict{Label: scoring.Malicious, Stage: detect.StageSignature},
	}}}
	unavailable := Outcome{Fields: 2, Unavailable: true}
	both := Outcome{Fields: 2, Findings: malicious.Findings, Unavailable: true}
	clean := Outcome{Fields: 2}

	cases := []struct {
		name       string
		mode       string
		outcome    Outcome
		wantAction Action
		wantBlock  bool
	}{
		{"clean", "enforce", clean, ActionAllow, false},
		{"no-fields", "enforce", Outcome{}, ActionAllow, false},
		{"enforce-block", "enforce", malicious, ActionBlock, true},
		{"enforce-unavailable", "enforce", unavailable, ActionUnavailable, true},
		{"enforce-both", "enforce", both, ActionBlock, true},
		{"shadow", "shadow", malicious, ActionShadow, false},
		{"shadow-unavailable", "shadow", unavailable, ActionShadow, false},
		{"unknown", "unknown", malicious, ActionAllow, false},
	}

	for _, tt := range cases {
		action, block := DecideAction(tt.mode, tt.outcome)
		if action != tt.wantAction || block != tt.wantBlock {
			t.Fatalf("%s: expected (%s,%v) got (%s,%v)", tt.name, tt.wantAction, tt.wantBlock, action, block)
		}
	}
}
