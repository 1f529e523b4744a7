package policy

import "github.com/klyr/xssguard/internal/detect"

// Finding is a malicious verdict for one request field.
type Finding struct {
	Field   string
	Verdict detect.Verdict
}

// Outcome summarizes the classification of every field of one request.
type Outcome struct {
	Fields      int
	Findings    []Finding
	Unavailable bool
}

func (o Outcome) Malicious() bool {
	return len(o.Findings) > 0
}
