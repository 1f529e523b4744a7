package rules

// Stage says which text a rule is evaluated against.
type Stage string

type MatchType string

// Category groups signatures by the kind of construct they detect.
type Category string

const (
	StageRaw        Stage = "raw"
	StageNormalized Stage = "normalized"
)

const (
	MatchRegex MatchType = "regex"
	MatchAho   MatchType = "aho"
)

const (
	CategoryTag                Category = "tag"
	CategoryEventHandler       Category = "event-handler"
	CategoryProtocol           Category = "protocol"
	CategoryScriptCall         Category = "script-call"
	CategoryDangerousAttribute Category = "dangerous-attribute"
	CategoryEncodedChar        Category = "encoded-char"
	CategoryCSSAttack          Category = "css-attack"
	CategoryCommentEvasion     Category = "comment-evasion"
	CategoryEscapeLiteral      Category = "escape-literal"
)

type Rule struct {
	ID            string
	Category      Category
	Stage         Stage
	CaseSensitive bool
	Matcher       Matcher
}

type Match struct {
	RuleID   string
	Category Category
	Stage    Stage
	Evidence string
}

// Matcher returns true if the input matches and a short evidence snippet
// (at most 64 bytes).
type Matcher interface {
	Match(input string) (bool, string)
}
