// Package speech turns transcribed caller speech into the digit strings used by
// identity checks (card last four, calling phone number).
package speech

import (
	"strings"
	"unicode"
)

var spokenDigits = map[string]byte{
	"zero":  '0',
	"oh":    '0',
	"o":     '0',
	"one":   '1',
	"two":   '2',
	"three": '3',
	"four":  '4',
	"for":   '4',
	"five":  '5',
	"six":   '6',
	"seven": '7',
	"eight": '8',
	"nine":  '9',
}

// ExtractDigits scans whitespace- and hyphen-delimited tokens, keeping digit
// tokens verbatim and mapping spoken number words to digits. Anything else is
// dropped. Never fails; empty input yields "".
func ExtractDigits(text string) string {
	tokens := strings.Fields(strings.ReplaceAll(strings.ToLower(text), "-", " "))
	var b strings.Builder
	for _, tok := range tokens {
		if isAllDigits(tok) {
			b.WriteString(tok)
			continue
		}
		if d, ok := spokenDigits[tok]; ok {
			b.WriteByte(d)
		}
	}
	return b.String()
}

// DigitsOnly strips every non-digit rune.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizePhone returns the last ten digits of a raw phone string, or all of
// its digits when there are fewer than ten.
func NormalizePhone(raw string) string {
	d := DigitsOnly(raw)
	if len(d) >= 10 {
		return d[len(d)-10:]
	}
	return d
}

func isAllDigits(tok string) bool {
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if r > unicode.MaxASCII || r < '0' || r > '9' {
			return false
		}
	}
	return true
}
