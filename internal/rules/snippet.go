package rules

import "unicode/utf8"

const maxEvidence = 64

// snippet truncates evidence to maxEvidence bytes without splitting a rune.
func snippet(value string) string {
	if len(value) <= maxEvidence {
		return value
	}
	cut := maxEvidence
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
