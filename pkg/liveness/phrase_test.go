package liveness

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPhraseShape(t *testing.T) {
	g := NewSeededGenerator(7)
	for i := 0; i < 200; i++ {
		parts := strings.Fields(g.Phrase())
		require.Len(t, parts, 3)
		require.Contains(t, colors, parts[0])
		require.Contains(t, nouns, parts[1])
		n, err := strconv.Atoi(parts[2])
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, 10)
		require.LessOrEqual(t, n, 99)
	}
}

func TestPhraseVaries(t *testing.T) {
	g := NewSeededGenerator(42)
	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		seen[g.Phrase()] = struct{}{}
	}
	require.Greater(t, len(seen), 10)
}

func TestMatches(t *testing.T) {
	require.True(t, Matches("silver harbor 42", "Silver Harbor 42"))
	require.True(t, Matches("silver harbor 42", "um okay, 42 harbor SILVER please"))
	require.False(t, Matches("silver harbor 42", "silver harbor"))
	require.False(t, Matches("silver harbor 42", ""))
	require.False(t, Matches("", "anything"))
}
