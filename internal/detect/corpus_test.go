package detect

import (
	"context"
	"strings"
	"testing"

	"github.com/klyr/xssguard/internal/scoring"
)

// Form inputs seen at signup and login boundaries. The scorer stub always
// answers safe, so every malicious case here must be caught before it.
var safeFormInputs = []string{
	"user@example.com",
	"test.email+tag@domain.co.uk",
	"first.last@company.org",
	"email@subdomain.example.com",
	"1234567890@example.com",
	"email@example-one.com",
	"_______@example.com",
	"email@example.name",
	"email@example.museum",
	"email@example.co.jp",
	"mypassword123",
	"SecurePass!2024",
	"normal_password",
	"P@ssw0rd",
	"correct horse battery staple",
	"Tr0ub4dor&3",
	"normal_text_123",
	"Summer2024!",
	"MyP@ssw0rd123",
	"simple_password",
	"John Doe",
	"Maria Garcia",
	"Zhang Wei",
	"Hello world",
	"123 Main Street",
	"+1-555-0123",
	"Paris, France",
	"Software Engineer",
	"Product Manager",
	"California, USA",
	"user.name@domain.com",
	"test+filter@domain.com",
	"first-last@company.com",
	"email@domain.co.uk",
	"name_with_underscores",
	"text-with-dashes",
	"numbers123",
	"mixed_Case123",
	"normal.text.here",
	"address+tag@email.com",
	"",
	"   ",
	"\t",
	"\n",
	strings.Repeat("a", 1000),
	"user@example.com" + strings.Repeat("a", 500),
}

var maliciousFormInputs = []string{
	"user<script>alert(1)</script>@example.com",
	"test@<svg onload=alert(1)>.com",
	"x@x.com<img src=x onerror=alert(1)>",
	"test@example.com' onmouseover='alert(1)",
	"user@<iframe src=javascript:alert(1)>.com",
	`test@example.com"><script>alert(1)</script>`,
	`x@x.com"><img src=x onerror=alert(1)>`,
	"test@example.com';alert(1)//",
	"user@<math><brute href=javascript:alert(1)>.com",
	"test@example.com`-alert(1)-`",
	"password<script>alert(1)</script>",
	"pass<svg onload=alert(1)>",
	"pwd<img src=x onerror=alert(1)>",
	"pass' onfocus='alert(1)'",
	`pwd"><script>alert(1)</script>`,
	"password<iframe src=javascript:alert(1)>",
	"pass<math><brute href=javascript:alert(1)>",
	"pwd';alert(1)//",
	"password`-alert(1)-`",
	"pass<object data=javascript:alert(1)>",
	"John<script>alert(1)</script>Doe",
	"Maria<svg onload=alert(1)>Garcia",
	"Zhang<img src=x onerror=alert(1)>Wei",
	"Name' onmouseover='alert(1)'",
	`User"><script>alert(1)</script>`,
	"Test<iframe src=javascript:alert(1)>Name",
	"X<math><brute href=javascript:alert(1)>Y",
	"Name';alert(1)//",
	"User`-alert(1)-`",
	"Test<embed src=javascript:alert(1)>Name",
	"test@example.com%22%3E%3Cscript%3Ealert(1)%3C/script%3E",
	"user@<IFRAME SRC=javascript:alert(1)>.com",
	"x@x.com`-prompt(1)-`",
	`password'-eval("window['pro'%2B'mpt'](1)")-'`,
	"test@example.com' onclick='alert(1)",
	"password' onfocus='alert(1)'",
	"name' onmouseover='alert(1)'",
	"input' onload='alert(1)'",
	"text' onerror='alert(1)'",
	"email' onsubmit='alert(1)'",
	"user' onchange='alert(1)'",
	"pass' onkeypress='alert(1)'",
	"field' onblur='alert(1)'",
	"data' ondblclick='alert(1)'",
	"normal@email.com<script>alert(1)</script>",
	"safe_password' onfocus='alert(1)'rest",
	"John<script>alert(1)</script>Doe@company.com",
}

func TestFormInputCorpus(t *testing.T) {
	classifier := newClassifier(t, &stubScorer{label: scoring.Safe})
	ctx := context.Background()

	for _, input := range safeFormInputs {
		verdict, err := classifier.Classify(ctx, input)
		if err != nil {
			t.Fatalf("Classify(%q) error: %v", input, err)
		}
		if verdict.Malicious() {
			t.Fatalf("false positive on %q: %+v", input, verdict)
		}
	}

	for _, input := range maliciousFormInputs {
		verdict, err := classifier.Classify(ctx, input)
		if err != nil {
			t.Fatalf("Classify(%q) error: %v", input, err)
		}
		if !verdict.Malicious() || verdict.Stage != StageSignature {
			t.Fatalf("false negative on %q: %+v", input, verdict)
		}
	}
}

func TestObfuscatedCorpus(t *testing.T) {
	classifier := newClassifier(t, &stubScorer{label: scoring.Safe})

	payloads := []string{
		"user@ex" + uesc("0061") + "mple.com",
		"test@<sv" + uesc("0067") + " onload=alert(1)>.com",
		"x@x.com<im" + uesc("0067") + " src=x onerror=alert(1)>",
		"password<scri" + uesc("0070") + "t>alert(1)</script>",
		"name<" + uesc("0073") + "vg onload=alert(1)>",
		"&#60;script&#62;",
		"&#x3c;svg onload=alert(1)&#x3e;",
		"&lt;iframe src=x&gt;",
		`\x3cscript\x3e`,
	}

	for _, payload := range payloads {
		verdict, err := classifier.Classify(context.Background(), payload)
		if err != nil {
			t.Fatalf("Classify(%q) error: %v", payload, err)
		}
		if !verdict.Malicious() {
			t.Fatalf("false negative on obfuscated %q: %+v", payload, verdict)
		}
	}
}
