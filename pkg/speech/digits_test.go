package speech

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractDigits(t *testing.T) {
	cases := map[string]string{
		"four one five":               "415",
		"blue cedar 37":               "37",
		"":                            "",
		"Four-Two four TWO":           "4242",
		"oh o zero":                   "000",
		"it's for 1 2":                "412",
		"um nine eight seven, thanks": "98",
		"415 555 0123":                "4155550123",
		"x1y":                         "",
	}
	for in, want := range cases {
		require.Equal(t, want, ExtractDigits(in), "input %q", in)
	}
}

func TestExtractDigitsDeterministic(t *testing.T) {
	in := "one two three four five six seven eight nine zero"
	first := ExtractDigits(in)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, ExtractDigits(in))
	}
	require.Equal(t, "1234567890", first)
}

func TestNormalizePhone(t *testing.T) {
	require.Equal(t, "4155550123", NormalizePhone("+1 (415) 555-0123"))
	require.Equal(t, "5550123", NormalizePhone("555-0123"))
	require.Equal(t, "", NormalizePhone("n/a"))
}

func TestMatchPhone(t *testing.T) {
	expected := "4155550123"
	require.True(t, MatchPhone(expected, "4155550123"))
	require.True(t, MatchPhone(expected, "5550123"))
	require.True(t, MatchPhone(expected, "14155550123"))
	require.False(t, MatchPhone(expected, "9999999"))
	require.False(t, MatchPhone(expected, "550123"))
	require.False(t, MatchPhone(expected, ""))
	require.False(t, MatchPhone("", "4155550123"))
}

func TestMatchLast4(t *testing.T) {
	require.True(t, MatchLast4("4242", "4242"))
	require.True(t, MatchLast4("4242", "42-42"))
	require.False(t, MatchLast4("4242", "1111"))
	require.False(t, MatchLast4("4242", "42424"))
	require.False(t, MatchLast4("", ""))
}
