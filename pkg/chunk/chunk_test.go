package chunk

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{name: "empty", text: "", max: 10, want: nil},
		{name: "fits", text: "a\nb", max: 10, want: []string{"a\nb"}},
		{name: "exact fit", text: "abcd", max: 4, want: []string{"abcd"}},
		{name: "newline at limit", text: "aaaa\nbbbb\ncccc", max: 9, want: []string{"aaaa\nbbbb", "cccc"}},
		{name: "newline before limit", text: "aa\nbbbbbb", max: 5, want: []string{"aa", "bbbbbb"[:5], "b"}},
		{name: "hard cut", text: "abcdefghij", max: 3, want: []string{"abc", "def", "ghi", "j"}},
		{name: "leading newline hard cut", text: "\nabcdef", max: 3, want: []string{"\nab", "cde", "f"}},
		{name: "zero max", text: "abc", max: 0, want: []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Split(tt.text, tt.max))
		})
	}
}

func TestSplitHardCutCount(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("x", 4001)
	chunks := Split(text, 2000)
	require.Len(t, chunks, 3)
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplitKeepsRunesIntact(t *testing.T) {
	t.Parallel()
	chunks := Split("héllo wörld", 2)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c), "chunk %q is not valid UTF-8", c)
		assert.LessOrEqual(t, len(c), 2)
	}
	assert.Equal(t, "héllo wörld", strings.Join(chunks, ""))
}

func TestSplitRuneWiderThanLimitTerminates(t *testing.T) {
	t.Parallel()
	chunks := Split("日本", 1)
	assert.Len(t, chunks, 6)
}

func TestSplitRoundTripAtLineBoundaries(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		maxLen := 1 + rng.Intn(40)
		var lines []string
		for i := 0; i < 1+rng.Intn(30); i++ {
			n := 1 + rng.Intn(maxLen)
			lines = append(lines, strings.Repeat(string(rune('a'+rng.Intn(26))), n))
		}
		text := strings.Join(lines, "\n")

		chunks := Split(text, maxLen)
		for _, c := range chunks {
			require.LessOrEqual(t, len(c), maxLen)
		}
		require.Equal(t, text, strings.Join(chunks, "\n"), "max=%d", maxLen)
	}
}
