package rules

// Engine holds the ordered signature table, split by stage. It is read-only
// after BuildEngine and safe for concurrent use.
type Engine struct {
	raw        []Rule
	normalized []Rule
}

func NewEngine(rules []Rule) *Engine {
	e := &Engine{}
	for _, rule := range rules {
		switch rule.Stage {
		case StageRaw:
			e.raw = append(e.raw, rule)
		case StageNormalized:
			e.normalized = append(e.normalized, rule)
		}
	}
	return e
}

// Match returns the first rule of the given stage that matches text.
func (e *Engine) Match(text string, stage Stage) (Match, bool) {
	if e == nil || text == "" {
		return Match{}, false
	}

	for _, rule := range e.Rules(stage) {
		matched, evidence := rule.Matcher.Match(text)
		if !matched {
			continue
		}
		return Match{
			RuleID:   rule.ID,
			Category: rule.Category,
			Stage:    rule.Stage,
			Evidence: evidence,
		}, true
	}
	return Match{}, false
}

func (e *Engine) Rules(stage Stage) []Rule {
	if e == nil {
		return nil
	}
	switch stage {
	case StageRaw:
		return e.raw
	case StageNormalized:
		return e.normalized
	default:
		return nil
	}
}

// Len reports the total number of rules across both stages.
func (e *Engine) Len() int {
	if e == nil {
		return 0
	}
	return len(e.raw) + len(e.normalized)
}
