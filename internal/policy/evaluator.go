package policy

import "github.com/klyr/xssguard/internal/config"

type Action string

const (
	ActionAllow       Action = "allow"
	ActionBlock       Action = "block"
	ActionShadow      Action = "shadow"
	ActionUnavailable Action = "unavailable"
)

// DecideAction maps a request outcome to an action. The bool is true when
// the request must not reach the upstream. A malicious finding wins over an
// unavailable classifier.
func DecideAction(mode string, outcome Outcome) (Action, bool) {
	if !outcome.Malicious() && !outcome.Unavailable {
		return ActionAllow, false
	}

	switch mode {
	case config.ModeShadow:
		return ActionShadow, false
	case config.ModeEnforce:
		if outcome.Malicious() {
			return ActionBlock, true
		}
		return ActionUnavailable, true
	default:
		return ActionAllow, false
	}
}
