package gateway

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/klyr/xssguard/internal/config"
)

const maxJSONDepth = 8

// field is one user-controlled value taken from a request.
type field struct {
	Name  string
	Value string
}

type fieldCollector struct {
	fields []field
	max    int
}

func (c *fieldCollector) add(name, value string) bool {
	if c.max > 0 && len(c.fields) >= c.max {
		return false
	}
	c.fields = append(c.fields, field{Name: name, Value: value})
	return true
}

func (c *fieldCollector) full() bool {
	return c.max > 0 && len(c.fields) >= c.max
}

// extractFields collects the values selected by the policy in a stable
// order: query, form, JSON body, then headers.
func extractFields(r *http.Request, body []byte, sel config.FieldsConfig) []field {
	c := &fieldCollector{max: sel.MaxFields}

	if sel.Query && r.URL != nil {
		addValues(c, "query", r.URL.Query())
	}

	mediaType := ""
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if parsed, _, err := mime.ParseMediaType(ct); err == nil {
			mediaType = parsed
		}
	}

	if len(body) > 0 {
		switch {
		case sel.Form && mediaType == "application/x-www-form-urlencoded":
			if values, err := url.ParseQuery(string(body)); err == nil {
				addValues(c, "form", values)
			} else {
				c.add("form", string(body))
			}
		case sel.JSON && isJSON(mediaType):
			addJSON(c, body)
		}
	}

	for _, name := range sel.Headers {
		canon := http.CanonicalHeaderKey(name)
		for _, value := range r.Header.Values(canon) {
			if !c.add("header."+canon, value) {
				break
			}
		}
	}

	return c.fields
}

func addValues(c *fieldCollector, prefix string, values url.Values) {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		for _, value := range values[key] {
			if !c.add(prefix+"."+key, value) {
				return
			}
		}
	}
}

func isJSON(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func addJSON(c *fieldCollector, body []byte) {
	var value any
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&value); err != nil {
		c.add("json", string(body))
		return
	}
	walkJSON(c, "json", value, 0)
}

// walkJSON collects string values and object keys. Numbers and booleans
// cannot carry markup and are skipped.
func walkJSON(c *fieldCollector, path string, value any, depth int) {
	if depth > maxJSONDepth || c.full() {
		return
	}

	switch v := value.(type) {
	case string:
		c.add(path, v)
	case []any:
		for i, item := range v {
			walkJSON(c, path+"["+strconv.Itoa(i)+"]", item, depth+1)
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			child := path + "." + key
			if !plainKey(key) {
				c.add(child+"#key", key)
			}
			walkJSON(c, child, v[key], depth+1)
		}
	}
}

func plainKey(key string) bool {
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
		default:
			return false
		}
	}
	return true
}
