// Package phone normalizes Brazilian phone numbers for fuzzy matching.
package phone

import "strings"

// SuffixLength is the number of trailing digits used to match a phone
// against stored contacts regardless of country or area-code prefix.
const SuffixLength = 9

// Digits strips everything except 0-9.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Suffix returns the last SuffixLength digits of raw, or all of them when
// the number is shorter.
func Suffix(raw string) string {
	d := Digits(raw)
	if len(d) <= SuffixLength {
		return d
	}
	return d[len(d)-SuffixLength:]
}

// Normalize returns raw in E.164 form, assuming Brazil (+55) when no
// country code is present.
func Normalize(raw string) string {
	d := Digits(raw)
	if d == "" {
		return ""
	}
	if !strings.HasPrefix(d, "55") || len(d) <= 11 {
		d = "55" + strings.TrimLeft(d, "0")
	}
	return "+" + d
}
