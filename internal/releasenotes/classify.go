package releasenotes

import (
	"fmt"
	"regexp"
	"strings"
)

// General receives lines that match no rule.
const General = "GENERAL"

// Rule assigns lines starting with Prefix to Category.
type Rule struct {
	Prefix   string
	Category string
}

// DefaultRules mirrors the tags used in the tracked game's release notes.
var DefaultRules = []Rule{
	{Prefix: "FEATURE: Spell", Category: "SPELLS"},
	{Prefix: "FEATURE: New perk", Category: "PERKS"},
	{Prefix: "FEATURE: Perk", Category: "PERKS"},
	{Prefix: "BUGFIX:", Category: "BUG FIXES"},
	{Prefix: "MODDING:", Category: "MODDING"},
}

// MatchPolicy controls what happens when several rules match one line.
type MatchPolicy int

const (
	// AllMatches appends the line once per matching rule.
	AllMatches MatchPolicy = iota
	// FirstMatch stops at the first matching rule.
	FirstMatch
)

// ParseMatchPolicy accepts "all_matches" (or empty) and "first_match".
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "all_matches":
		return AllMatches, nil
	case "first", "first_match":
		return FirstMatch, nil
	default:
		return AllMatches, fmt.Errorf("unknown match policy %q", s)
	}
}

func (p MatchPolicy) String() string {
	if p == FirstMatch {
		return "first_match"
	}
	return "all_matches"
}

// Stray date stamps such as "Jun 6 2023" or "*2023 changelog*".
var yearPattern = regexp.MustCompile(`202[0-9]`)

// Classifier partitions added lines into categories.
// It is immutable and safe for concurrent use.
type Classifier struct {
	rules  []Rule
	order  []string
	policy MatchPolicy
}

// NewClassifier builds a classifier. GENERAL always comes first in the
// category order, followed by rule categories in first-seen order. A nil
// rules slice selects DefaultRules.
func NewClassifier(rules []Rule, policy MatchPolicy) *Classifier {
	if rules == nil {
		rules = DefaultRules
	}
	c := &Classifier{
		rules:  append([]Rule(nil), rules...),
		order:  []string{General},
		policy: policy,
	}
	known := map[string]bool{General: true}
	for _, r := range c.rules {
		if !known[r.Category] {
			known[r.Category] = true
			c.order = append(c.order, r.Category)
		}
	}
	return c
}

// Categories returns the declared category order.
func (c *Classifier) Categories() []string {
	return append([]string(nil), c.order...)
}

// Policy returns the configured match policy.
func (c *Classifier) Policy() MatchPolicy { return c.policy }

// Classify assigns each line to its categories in encounter order. Lines no
// rule matches are trimmed and go to GENERAL, except noise: lines wrapped in
// asterisks, lines mentioning a 202x year, and lines left empty after
// trimming.
func (c *Classifier) Classify(lines []string) *Sections {
	s := newSections(c.order)
	for _, line := range lines {
		matched := false
		for _, r := range c.rules {
			if !strings.HasPrefix(line, r.Prefix) {
				continue
			}
			s.add(r.Category, line)
			matched = true
			if c.policy == FirstMatch {
				break
			}
		}
		if matched {
			continue
		}

		line = strings.TrimSpace(line)
		if isNoise(line) {
			continue
		}
		s.add(General, line)
	}
	return s
}

func isNoise(trimmed string) bool {
	if trimmed == "" {
		return true
	}
	if strings.HasPrefix(trimmed, "*") && strings.HasSuffix(trimmed, "*") {
		return true
	}
	return yearPattern.MatchString(trimmed)
}

// Sections holds classified lines for the full category set.
type Sections struct {
	order []string
	lines map[string][]string
}

func newSections(order []string) *Sections {
	s := &Sections{order: order, lines: make(map[string][]string, len(order))}
	for _, cat := range order {
		s.lines[cat] = nil
	}
	return s
}

func (s *Sections) add(cat, line string) {
	s.lines[cat] = append(s.lines[cat], line)
}

// Categories returns every category, including empty ones, in declared order.
func (s *Sections) Categories() []string {
	return append([]string(nil), s.order...)
}

// Lines returns the lines assigned to cat.
func (s *Sections) Lines(cat string) []string {
	return s.lines[cat]
}

// Empty reports whether no category holds any line.
func (s *Sections) Empty() bool {
	for _, l := range s.lines {
		if len(l) > 0 {
			return false
		}
	}
	return true
}
