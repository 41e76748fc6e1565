package groupquest

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NormalizeCode trims and uppercases a human-entered join code.
func NormalizeCode(code string) string {
	code = norm.NFKC.String(strings.TrimSpace(code))
	return cases.Upper(language.Und).String(code)
}

// NormalizeName trims a display name and truncates it to max runes.
// A max of zero or less leaves the length alone.
func NormalizeName(name string, max int) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	if max <= 0 {
		return name
	}
	runes := []rune(name)
	if len(runes) > max {
		name = strings.TrimSpace(string(runes[:max]))
	}
	return name
}
