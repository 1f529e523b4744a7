package normalize

import (
	"errors"
	"testing"
)

func TestApplyDecodeLayers(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"unicode-escape", "<" + uesc("0073") + "vg onload=alert(1)>", "<svg onload=alert(1)>"},
		{"unicode-escape-mixed-hex", uesc("003C") + uesc("003e"), "<>"},
		{"named-entity", "&lt;div&gt;", "<div>"},
		{"decimal-entity", "&#60;script&#62;", "<script>"},
		{"hex-entity", "&#x3c;img&#X3E;", "<img>"},
		{"percent", "%3Cscript%3E", "<script>"},
		{"percent-utf8", "caf%C3%A9", "café"},
		{"plus-kept", "a+b", "a+b"},
		{"entity-after-escape", "&#92;u0041", "\\" + "u0041"},
		{"escape-produces-percent", uesc("0025") + "3C", "<"},
	}

	for _, tt := range cases {
		got := Apply(tt.input, Options{}).Normalized
		if got != tt.want {
			t.Fatalf("%s: Apply(%q) expected %q, got %q", tt.name, tt.input, tt.want, got)
		}
	}
}

func TestApplySinglePass(t *testing.T) {
	res := Apply("%253Cscript%253E", Options{})
	if res.Normalized != "%3Cscript%3E" {
		t.Fatalf("expected one percent layer decoded, got %q", res.Normalized)
	}
	if res.Raw != "%253Cscript%253E" {
		t.Fatalf("expected raw preserved, got %q", res.Raw)
	}
}

func TestApplyMalformedLeftLiteral(t *testing.T) {
	cases := map[string]string{
		"%3":     "%3",
		"100%":   "100%",
		"%zz%3c": "%zz<",
		`\u12`:   `\u12`,
		`\uXYZW`: `\uXYZW`,
		`\\u004`: `\\u004`,
		"&zzz;":  "&zzz;",
		"%FF":    "\uFFFD",
		"":       "",
	}

	for input, want := range cases {
		got := Text(input)
		if got != want {
			t.Fatalf("Text(%q) expected %q, got %q", input, want, got)
		}
	}
}

func TestApplyCanonicalTextUnchanged(t *testing.T) {
	inputs := []string{
		"John Doe",
		"user@example.com",
		"Tr0ub4dor&3",
		"P@ssw0rd",
		"+1-555-0123",
		"日本語テキスト",
		"text-with-dashes",
		"invalid \xff utf8",
	}

	for _, input := range inputs {
		if got := Text(input); got != input {
			t.Fatalf("Text(%q) changed canonical text to %q", input, got)
		}
	}
}

func TestApplyFoldCompatibility(t *testing.T) {
	res := Apply("ｊａｖａ​script:", Options{FoldCompatibility: true})
	if res.Normalized != "javascript:" {
		t.Fatalf("expected folded text, got %q", res.Normalized)
	}

	res = Apply("ｊａｖａ", Options{})
	if res.Normalized != "ｊａｖａ" {
		t.Fatalf("expected fold disabled by default, got %q", res.Normalized)
	}
}

// uesc builds a literal backslash-u escape so the source stays readable.
func uesc(hex string) string {
	return "\\" + "u" + hex
}

type stringer struct{}

func (stringer) String() string { return "%3Cb%3E" }

func TestValueCoercion(t *testing.T) {
	cases := []struct {
		value any
		want  string
	}{
		{nil, ""},
		{42, "42"},
		{3.5, "3.5"},
		{true, "true"},
		{[]byte("&lt;"), "<"},
		{stringer{}, "<b>"},
		{errors.New("&amp;"), "&"},
	}

	for _, tt := range cases {
		got := Value(tt.value, Options{}).Normalized
		if got != tt.want {
			t.Fatalf("Value(%#v) expected %q, got %q", tt.value, tt.want, got)
		}
	}
}

func TestPath(t *testing.T) {
	cases := map[string]string{
		"/a//b/./c":         "/a/b/c",
		"/a/b/../c":         "/a/c",
		"../a/../b":         "/b",
		"/../a":             "/a",
		"/a/b/":             "/a/b/",
		"":                  "/",
		"/":                 "/",
		"/a/../../b":        "/b",
		`\admin\users`:      "/admin/users",
		"/static/..\\admin": "/admin",
	}

	for input, expected := range cases {
		got := Path(input)
		if got != expected {
			t.Fatalf("Path(%q) expected %q, got %q", input, expected, got)
		}
	}
}
