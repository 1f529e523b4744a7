package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klyr/xssguard/internal/config"
)

func TestExtractFieldsOrder(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.com/submit?b=2&a=1&a=3", nil)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	req.Header.Set("Referer", "https://example.com/")
	body := []byte("name=Jane&bio=hello")

	sel := config.FieldsConfig{Query: true, Form: true, Headers: []string{"referer"}}
	fields := extractFields(req, body, sel)

	want := []field{
		{"query.a", "1"},
		{"query.a", "3"},
		{"query.b", "2"},
		{"form.bio", "hello"},
		{"form.name", "Jane"},
		{"header.Referer", "https://example.com/"},
	}
	if len(fields) != len(want) {
		t.Fatalf("expected %d fields, got %d: %+v", len(want), len(fields), fields)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Fatalf("field %d: expected %+v, got %+v", i, want[i], fields[i])
		}
	}
}

func TestExtractFieldsJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.com/api", nil)
	req.Header.Set("Content-Type", "application/vnd.api+json")
	body := []byte(`{"user":{"name":"Ann","tags":["a","b"],"age":30},"<b>":true}`)

	fields := extractFields(req, body, config.FieldsConfig{JSON: true})

	got := make(map[string]string, len(fields))
	for _, f := range fields {
		got[f.Name] = f.Value
	}
	expect := map[string]string{
		"json.user.name":    "Ann",
		"json.user.tags[0]": "a",
		"json.user.tags[1]": "b",
		"json.<b>#key":      "<b>",
	}
	for name, value := range expect {
		if got[name] != value {
			t.Fatalf("expected %s=%q, got %q (all: %+v)", name, value, got[name], fields)
		}
	}
	if _, ok := got["json.user.age"]; ok {
		t.Fatalf("expected numbers to be skipped")
	}
}

func TestExtractFieldsUnparseableBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.com/api", nil)
	req.Header.Set("Content-Type", "application/json")
	body := []byte(`{"broken": "<script>`)

	fields := extractFields(req, body, config.FieldsConfig{JSON: true})
	if len(fields) != 1 || fields[0].Name != "json" || !strings.Contains(fields[0].Value, "<script>") {
		t.Fatalf("expected whole body as one field, got %+v", fields)
	}
}

func TestExtractFieldsRespectsSelection(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.com/?q=1", nil)
	req.Header.Set("Content-Type", "application/json")

	fields := extractFields(req, []byte(`{"a":"b"}`), config.FieldsConfig{})
	if len(fields) != 0 {
		t.Fatalf("expected no fields, got %+v", fields)
	}
}

func TestExtractFieldsMax(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/?a=1&b=2&c=3&d=4", nil)

	fields := extractFields(req, nil, config.FieldsConfig{Query: true, MaxFields: 2})
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}
}
