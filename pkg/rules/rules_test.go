package rules_test

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d-bohls/gmail-filters-curator/pkg/rules"
)

// TestAssertionEval exercises every operator against present, empty,
// and missing values.
// Invariant: the operator set is closed; nothing outside it evaluates.
func TestAssertionEval(t *testing.T) {
	cases := []struct {
		name      string
		assertion rules.Assertion
		value     string
		present   bool
		want      bool
	}{
		{"non-empty holds", rules.Assertion{Op: rules.OpNonEmpty}, "Receipts", true, true},
		{"non-empty rejects empty", rules.Assertion{Op: rules.OpNonEmpty}, "", true, false},
		{"non-empty rejects missing", rules.Assertion{Op: rules.OpNonEmpty}, "", false, false},
		{"equals holds", rules.Assertion{Op: rules.OpEquals, Value: "Mail Filter"}, "Mail Filter", true, true},
		{"equals rejects other", rules.Assertion{Op: rules.OpEquals, Value: "Mail Filter"}, "Mail Filters", true, false},
		{"equals rejects missing", rules.Assertion{Op: rules.OpEquals, Value: "Mail Filter"}, "", false, false},
		{"absent holds", rules.Assertion{Op: rules.OpAbsent}, "", false, true},
		{"absent rejects present", rules.Assertion{Op: rules.OpAbsent}, "anything", true, false},
		{"one-of holds", rules.Assertion{Op: rules.OpOneOf, Values: []string{"true", "false"}}, "false", true, true},
		{"one-of rejects other", rules.Assertion{Op: rules.OpOneOf, Values: []string{"true", "false"}}, "maybe", true, false},
		{"one-of rejects missing", rules.Assertion{Op: rules.OpOneOf, Values: []string{"true", "false"}}, "", false, false},
		{"unknown op never holds", rules.Assertion{Op: "matches-regex"}, "x", true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.assertion.Eval(tc.value, tc.present))
		})
	}
}

func TestAssertionString(t *testing.T) {
	assert.Equal(t, "must be non-empty", rules.Assertion{Op: rules.OpNonEmpty}.String())
	assert.Equal(t, `must equal "Mail Filter"`, rules.Assertion{Op: rules.OpEquals, Value: "Mail Filter"}.String())
	assert.Equal(t, "must be absent", rules.Assertion{Op: rules.OpAbsent}.String())
	assert.Equal(t, `must be one of "true", "false"`,
		rules.Assertion{Op: rules.OpOneOf, Values: []string{"true", "false"}}.String())
}

// TestNewSet_RejectsIllFormed verifies that compilation refuses every
// shape outside the rule language.
func TestNewSet_RejectsIllFormed(t *testing.T) {
	title := xml.Name{Space: "http://www.w3.org/2005/Atom", Local: "title"}

	cases := []struct {
		name string
		rule rules.ElementRule
	}{
		{"unknown op", rules.ElementRule{Text: &rules.Assertion{Op: "regex"}}},
		{"equals without value", rules.ElementRule{Text: &rules.Assertion{Op: rules.OpEquals}}},
		{"one-of without values", rules.ElementRule{Properties: map[string]rules.Assertion{
			"shouldArchive": {Op: rules.OpOneOf},
		}}},
		{"non-empty with operand", rules.ElementRule{Text: &rules.Assertion{Op: rules.OpNonEmpty, Value: "x"}}},
		{"absent with list", rules.ElementRule{Text: &rules.Assertion{Op: rules.OpAbsent, Values: []string{"x"}}}},
		{"neither text nor properties", rules.ElementRule{}},
		{"both text and properties", rules.ElementRule{
			Text:       &rules.Assertion{Op: rules.OpNonEmpty},
			Properties: map[string]rules.Assertion{"label": {Op: rules.OpNonEmpty}},
		}},
		{"empty property name", rules.ElementRule{Properties: map[string]rules.Assertion{
			"": {Op: rules.OpNonEmpty},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := rules.NewSet("1.0.0", map[xml.Name]rules.ElementRule{title: tc.rule}, nil)
			require.ErrorIs(t, err, rules.ErrInvalidRule)
		})
	}

	_, err := rules.NewSet("1.0.0", nil, nil)
	require.ErrorIs(t, err, rules.ErrInvalidRule, "empty set must not compile")

	_, err = rules.NewSet("1.0.0",
		map[xml.Name]rules.ElementRule{title: {Text: &rules.Assertion{Op: rules.OpNonEmpty}}},
		[]string{""})
	require.ErrorIs(t, err, rules.ErrInvalidRule, "empty ignored label must not compile")
}

func TestSetAccessors(t *testing.T) {
	atom := "http://www.w3.org/2005/Atom"
	apps := "http://schemas.google.com/apps/2006"
	title := xml.Name{Space: atom, Local: "title"}
	content := xml.Name{Space: atom, Local: "content"}
	property := xml.Name{Space: apps, Local: "property"}

	set, err := rules.NewSet("1.0.0", map[xml.Name]rules.ElementRule{
		title:   {Text: &rules.Assertion{Op: rules.OpEquals, Value: "Mail Filter"}},
		content: {Text: &rules.Assertion{Op: rules.OpAbsent}},
		property: {Properties: map[string]rules.Assertion{
			"label": {Op: rules.OpNonEmpty},
			"from":  {Op: rules.OpNonEmpty},
		}},
	}, []string{"Trash", "Archive/Unsorted"})
	require.NoError(t, err)

	rule, ok := set.RuleFor(title)
	require.True(t, ok)
	assert.Equal(t, rules.OpEquals, rule.Text.Op)

	_, ok = set.RuleFor(xml.Name{Space: atom, Local: "updated"})
	assert.False(t, ok, "undeclared kind must have no rule")

	propRule, ok := set.RuleFor(property)
	require.True(t, ok)
	assert.Equal(t, []string{"from", "label"}, propRule.PropertyNames())

	assert.True(t, set.Ignored("Archive/Unsorted"))
	assert.False(t, set.Ignored("Receipts"))
	assert.Equal(t, []string{"Archive/Unsorted", "Trash"}, set.IgnoredLabels())

	// Kinds sort by Clark notation; schemas.google.com precedes www.w3.org.
	kinds := set.Kinds()
	require.Len(t, kinds, 3)
	assert.Equal(t, property, kinds[0])
	assert.Equal(t, content, kinds[1])
	assert.Equal(t, title, kinds[2])
}
