package allowlist

import (
	"fmt"
	"sort"
	"strings"
)

// canaries must never be accepted by any allowlist pattern.
var canaries = []string{
	"<script>alert(1)</script>",
	"javascript:alert(1)",
	"<img src=x onerror=alert(1)>",
	`"><svg onload=alert(1)>`,
	"<iframe src=javascript:alert(1)>",
	"';alert(String.fromCharCode(88,83,83))//",
	"<body onload=alert(1)>",
	"%3Cscript%3Ealert(1)%3C/script%3E",
	"&#60;script&#62;alert(1)&#60;/script&#62;",
	"<a href=\"javascript:alert(1)\">vision</a>",
	"<b onmouseover=alert('matrix')>x</b>",
	"expression(alert(1))",
	"vision %3Cscript%3Ealert%281%29%3C/script%3E",
	"matrix &lt;img src=x onerror=alert&#40;1&#41;&gt;",
	"vision javascript:alert&#40;1&#41;",
	"weaver &#x3C;svg onload&#x3D;alert&#x28;1&#x29;&#x3E;",
}

// Audit returns one problem per structural pattern that is not anchored at
// both ends and per pattern that accepts a known payload. An empty result
// means the filter passed.
func Audit(f *Filter) []string {
	var problems []string
	for _, pattern := range f.Patterns() {
		if !pattern.keywords && !anchored(pattern.re.String()) {
			problems = append(problems, fmt.Sprintf("allowlist %s: pattern must be anchored with ^ and $", pattern.ID))
		}
		for _, payload := range canaries {
			if pattern.Match(payload) {
				problems = append(problems, fmt.Sprintf("allowlist %s: accepts payload %q", pattern.ID, payload))
			}
		}
	}
	sort.Strings(problems)
	return problems
}

func anchored(expr string) bool {
	expr = strings.TrimPrefix(expr, "(?i)")
	start := strings.HasPrefix(expr, "^") || strings.HasPrefix(expr, `\A`)
	end := (strings.HasSuffix(expr, "$") && !strings.HasSuffix(expr, `\$`)) || strings.HasSuffix(expr, `\z`)
	return start && end
}
