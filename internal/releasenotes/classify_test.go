package releasenotes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyDefaults(t *testing.T) {
	t.Parallel()
	c := NewClassifier(nil, AllMatches)
	s := c.Classify([]string{
		"FEATURE: Spell: Chain bolt",
		"FEATURE: New perk: Something",
		"FEATURE: Perk rebalanced",
		"BUGFIX: Fixed a crash on exit",
		"MODDING: new hook",
		"  Fixed a crash  ",
		"*2023 changelog*",
		"*****",
		"Jun 6 2023",
		"",
		" \t ",
	})

	assert.Equal(t, []string{General, "SPELLS", "PERKS", "BUG FIXES", "MODDING"}, s.Categories())
	assert.Equal(t, []string{"Fixed a crash"}, s.Lines(General))
	assert.Equal(t, []string{"FEATURE: Spell: Chain bolt"}, s.Lines("SPELLS"))
	assert.Equal(t, []string{"FEATURE: New perk: Something", "FEATURE: Perk rebalanced"}, s.Lines("PERKS"))
	assert.Equal(t, []string{"BUGFIX: Fixed a crash on exit"}, s.Lines("BUG FIXES"))
	assert.Equal(t, []string{"MODDING: new hook"}, s.Lines("MODDING"))
	assert.False(t, s.Empty())
}

func TestClassifyMultiMatch(t *testing.T) {
	t.Parallel()
	rules := append([]Rule{{Prefix: "FEATURE:", Category: "FEATURES"}}, DefaultRules...)
	line := "FEATURE: New perk: Something"

	all := NewClassifier(rules, AllMatches).Classify([]string{line})
	assert.Equal(t, []string{line}, all.Lines("FEATURES"))
	assert.Equal(t, []string{line}, all.Lines("PERKS"))

	first := NewClassifier(rules, FirstMatch).Classify([]string{line})
	assert.Equal(t, []string{line}, first.Lines("FEATURES"))
	assert.Empty(t, first.Lines("PERKS"))
}

func TestClassifyRuleMatchedLinesAreNotFiltered(t *testing.T) {
	t.Parallel()
	s := NewClassifier(nil, AllMatches).Classify([]string{"BUGFIX: date shown as 2024 "})
	assert.Equal(t, []string{"BUGFIX: date shown as 2024 "}, s.Lines("BUG FIXES"))
}

func TestClassifyEmptyKeepsFullCategorySet(t *testing.T) {
	t.Parallel()
	s := NewClassifier(nil, AllMatches).Classify(nil)
	assert.True(t, s.Empty())
	assert.Len(t, s.Categories(), 5)
}

func TestParseMatchPolicy(t *testing.T) {
	t.Parallel()
	p, err := ParseMatchPolicy("")
	require.NoError(t, err)
	assert.Equal(t, AllMatches, p)

	p, err = ParseMatchPolicy("First_Match")
	require.NoError(t, err)
	assert.Equal(t, FirstMatch, p)
	assert.Equal(t, "first_match", p.String())

	_, err = ParseMatchPolicy("random")
	assert.Error(t, err)
}
