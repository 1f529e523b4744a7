// Package obfuscate produces encoded variants of words for building
// evaluation and training corpora. It is an offline tool and is not used
// when classifying requests.
package obfuscate

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode/utf8"
)

type Style string

const (
	StyleDecimal Style = "decimal"
	StyleHex     Style = "hex"
	StyleMixed   Style = "mixed"
	StyleURL     Style = "url"
	StyleUnicode Style = "unicode"
	StyleJS      Style = "js"
	StyleCSS     Style = "css"
)

// Styles lists every encoding in the order Corpus draws from.
var Styles = []Style{StyleDecimal, StyleHex, StyleMixed, StyleURL, StyleUnicode, StyleJS, StyleCSS}

func ParseStyle(name string) (Style, error) {
	for _, style := range Styles {
		if string(style) == strings.ToLower(strings.TrimSpace(name)) {
			return style, nil
		}
	}
	return "", fmt.Errorf("unknown obfuscation style %q", name)
}

// Sample is one encoded word.
type Sample struct {
	Input  string `json:"input"`
	Style  Style  `json:"style"`
	Output string `json:"output"`
}

// Generator is not safe for concurrent use.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a generator whose output is fully determined by seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Word encodes every rune of word in the given style.
func (g *Generator) Word(word string, style Style) string {
	var b strings.Builder
	for _, r := range word {
		switch style {
		case StyleDecimal:
			fmt.Fprintf(&b, "&#%d;", r)
		case StyleHex:
			fmt.Fprintf(&b, "&#x%x;", r)
		case StyleMixed:
			if g.rng.Float64() > 0.5 {
				fmt.Fprintf(&b, "&#%d;", r)
			} else {
				fmt.Fprintf(&b, "&#x%x;", r)
			}
		case StyleURL:
			var buf [utf8.UTFMax]byte
			n := utf8.EncodeRune(buf[:], r)
			for _, c := range buf[:n] {
				fmt.Fprintf(&b, "%%%02x", c)
			}
		case StyleUnicode:
			if r <= 0xFFFF {
				fmt.Fprintf(&b, `\u%04x`, r)
			} else {
				fmt.Fprintf(&b, `\U%08x`, r)
			}
		case StyleJS:
			writeJSEscape(&b, r)
		case StyleCSS:
			fmt.Fprintf(&b, `\%04x`, r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Corpus encodes each word in a randomly chosen style.
func (g *Generator) Corpus(words []string) []Sample {
	samples := make([]Sample, 0, len(words))
	for _, word := range words {
		style := Styles[g.rng.IntN(len(Styles))]
		samples = append(samples, Sample{Input: word, Style: style, Output: g.Word(word, style)})
	}
	return samples
}

// writeJSEscape writes r as one or two UTF-16 escapes.
func writeJSEscape(b *strings.Builder, r rune) {
	if r <= 0xFFFF {
		fmt.Fprintf(b, `\u%04x`, r)
		return
	}
	r -= 0x10000
	fmt.Fprintf(b, `\u%04x\u%04x`, 0xD800+(r>>10), 0xDC00+(r&0x3FF))
}
