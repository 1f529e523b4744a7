package normalize

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode/utf8"
)

type Options struct {
	// FoldCompatibility applies NFKC and strips invisible format characters
	// after decoding. Off by default so canonical text is returned unchanged.
	FoldCompatibility bool
}

type Result struct {
	Raw        string
	Normalized string
}

// Apply decodes the layers a browser would peel off before executing input:
// \uXXXX escapes, then HTML entities, then percent-encoding. Each layer is
// decoded exactly once.
func Apply(input string, opts Options) Result {
	res := Result{Raw: input}

	decoded := decodeUnicodeEscapes(input)
	decoded = html.UnescapeString(decoded)
	decoded = decodePercent(decoded)

	if opts.FoldCompatibility {
		decoded = foldCompatibility(decoded)
	}

	res.Normalized = decoded
	return res
}

// Text is Apply with default options, returning only the normalized text.
func Text(input string) string {
	return Apply(input, Options{}).Normalized
}

// Value coerces v to text before normalizing it.
func Value(v any, opts Options) Result {
	return Apply(Coerce(v), opts)
}

func Coerce(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	case error:
		return t.Error()
	default:
		return fmt.Sprint(t)
	}
}

func decodeUnicodeEscapes(input string) string {
	idx := strings.Index(input, `\u`)
	if idx < 0 {
		return input
	}

	var b strings.Builder
	b.Grow(len(input))
	b.WriteString(input[:idx])

	for i := idx; i < len(input); {
		if input[i] == '\\' && i+6 <= len(input) && input[i+1] == 'u' && isHex4(input[i+2:i+6]) {
			code, err := strconv.ParseUint(input[i+2:i+6], 16, 32)
			if err == nil {
				// surrogate halves become utf8.RuneError
				b.WriteRune(rune(code))
				i += 6
				continue
			}
		}
		b.WriteByte(input[i])
		i++
	}
	return b.String()
}

func decodePercent(input string) string {
	if strings.IndexByte(input, '%') < 0 {
		return input
	}

	var b strings.Builder
	b.Grow(len(input))
	run := make([]byte, 0, 16)

	flush := func() {
		if len(run) == 0 {
			return
		}
		if utf8.Valid(run) {
			b.Write(run)
		} else {
			b.WriteString(strings.ToValidUTF8(string(run), string(utf8.RuneError)))
		}
		run = run[:0]
	}

	for i := 0; i < len(input); {
		if input[i] == '%' && i+2 < len(input) && isHex(input[i+1]) && isHex(input[i+2]) {
			run = append(run, unhex(input[i+1])<<4|unhex(input[i+2]))
			i += 3
			continue
		}
		flush()
		b.WriteByte(input[i])
		i++
	}
	flush()
	return b.String()
}

func isHex4(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isHex(s[i]) {
			return false
		}
	}
	return len(s) == 4
}

func isHex(c byte) bool {
	switch {
	case '0' <= c && c <= '9':
		return true
	case 'a' <= c && c <= 'f':
		return true
	case 'A' <= c && c <= 'F':
		return true
	}
	return false
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}
