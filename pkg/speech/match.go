package speech

import "strings"

// MinPhoneSuffix is the shortest trailing run of digits accepted as a phone
// match.
//
// Accepting a partial suffix tolerates noisy transcription of long numbers, at
// the cost of a wider impersonation surface: anyone who knows the last seven
// digits of the customer's number passes this step.
const MinPhoneSuffix = 7

// MatchLast4 reports whether provided contains exactly four digits equal to
// expected.
func MatchLast4(expected, provided string) bool {
	d := DigitsOnly(provided)
	return expected != "" && len(d) == 4 && d == expected
}

// MatchPhone applies the phone acceptance rules: exact match, a suffix of at
// least MinPhoneSuffix digits, or the expected number with a leading "1"
// country code.
func MatchPhone(expected, provided string) bool {
	if expected == "" || provided == "" {
		return false
	}
	switch {
	case provided == expected:
		return true
	case len(provided) >= MinPhoneSuffix && strings.HasSuffix(expected, provided):
		return true
	case provided == "1"+expected:
		return true
	}
	return false
}
