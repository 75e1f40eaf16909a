// Package rules defines the rule language that drives filter validation.
//
// A rule set is loaded from a JSON or YAML file, checked against an
// embedded JSON Schema, and compiled into per-element assertions drawn
// from a closed set of operators. Rule files carry data only, never
// code; an unknown operator is a load error, not a runtime dispatch.
package rules

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"github.com/d-bohls/gmail-filters-curator/pkg/xmltree"
)

// Op is a predicate operator applied to an element's text or to one of
// its property values.
type Op string

const (
	// OpNonEmpty requires the value to be present and not the empty string.
	OpNonEmpty Op = "non-empty"
	// OpEquals requires the value to be present and equal to Assertion.Value.
	OpEquals Op = "equals"
	// OpAbsent requires the value to be missing.
	OpAbsent Op = "absent"
	// OpOneOf requires the value to be present and listed in Assertion.Values.
	OpOneOf Op = "one-of"
)

// Assertion is one compiled predicate. Value is set for equals, Values
// for one-of; the other operators take no operand.
type Assertion struct {
	Op     Op       `json:"op"`
	Value  string   `json:"value,omitempty"`
	Values []string `json:"values,omitempty"`
}

// Eval applies the assertion to a value. present reports whether the
// value exists at all: a missing attribute, or element text that is
// empty or whitespace-only.
func (a Assertion) Eval(value string, present bool) bool {
	switch a.Op {
	case OpNonEmpty:
		return present && value != ""
	case OpEquals:
		return present && value == a.Value
	case OpAbsent:
		return !present
	case OpOneOf:
		if !present {
			return false
		}
		for _, v := range a.Values {
			if v == value {
				return true
			}
		}
		return false
	}
	return false
}

// String renders the assertion as a requirement, for violation reports.
func (a Assertion) String() string {
	switch a.Op {
	case OpNonEmpty:
		return "must be non-empty"
	case OpEquals:
		return fmt.Sprintf("must equal %q", a.Value)
	case OpAbsent:
		return "must be absent"
	case OpOneOf:
		quoted := make([]string, len(a.Values))
		for i, v := range a.Values {
			quoted[i] = fmt.Sprintf("%q", v)
		}
		return "must be one of " + strings.Join(quoted, ", ")
	}
	return fmt.Sprintf("unknown op %q", string(a.Op))
}

// validate rejects assertions outside the closed operator set and
// operands that do not belong to their operator.
func (a Assertion) validate() error {
	switch a.Op {
	case OpNonEmpty, OpAbsent:
		if a.Value != "" || len(a.Values) > 0 {
			return fmt.Errorf("op %q takes no operand", a.Op)
		}
	case OpEquals:
		if a.Value == "" {
			return fmt.Errorf("op %q requires a value", a.Op)
		}
		if len(a.Values) > 0 {
			return fmt.Errorf("op %q takes a single value, not a list", a.Op)
		}
	case OpOneOf:
		if len(a.Values) == 0 {
			return fmt.Errorf("op %q requires a list of values", a.Op)
		}
		if a.Value != "" {
			return fmt.Errorf("op %q takes a list of values, not a single value", a.Op)
		}
	default:
		return fmt.Errorf("unknown op %q", a.Op)
	}
	return nil
}

// ElementRule declares what a single element kind must look like.
// Exactly one of Text or Properties is set: Text constrains the
// element's character data, Properties constrains the value attributes
// of same-kind elements keyed by their name attribute.
type ElementRule struct {
	Text       *Assertion           `json:"text,omitempty"`
	Properties map[string]Assertion `json:"properties,omitempty"`
}

// PropertyNames returns the declared property names in sorted order.
func (r ElementRule) PropertyNames() []string {
	names := make([]string, 0, len(r.Properties))
	for name := range r.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r ElementRule) validate() error {
	if (r.Text == nil) == (len(r.Properties) == 0) {
		return fmt.Errorf("rule must have exactly one of text or properties")
	}
	if r.Text != nil {
		if err := r.Text.validate(); err != nil {
			return fmt.Errorf("text: %w", err)
		}
	}
	for name, a := range r.Properties {
		if name == "" {
			return fmt.Errorf("property name must not be empty")
		}
		if err := a.validate(); err != nil {
			return fmt.Errorf("property %q: %w", name, err)
		}
	}
	return nil
}

// Set is a compiled rule set: the declared element kinds inside an
// entry, plus labels exempt from validation. The declared kinds are
// closed in both directions: an entry may contain no element kind
// outside the set, and must contain every kind in it.
type Set struct {
	// Version is the rule file's declared format version.
	Version string
	// Checksum is the hex SHA-256 of the raw rule file, when loaded
	// from one. Sets built with NewSet have no checksum.
	Checksum string

	rules   map[xml.Name]ElementRule
	ignored map[string]struct{}
}

// NewSet compiles a rule set from already-parsed parts. Load is the
// usual entry point; NewSet serves construction without a file.
func NewSet(version string, byKind map[xml.Name]ElementRule, ignoredLabels []string) (*Set, error) {
	if len(byKind) == 0 {
		return nil, fmt.Errorf("rules: %w: no element rules declared", ErrInvalidRule)
	}
	set := &Set{
		Version: version,
		rules:   make(map[xml.Name]ElementRule, len(byKind)),
		ignored: make(map[string]struct{}, len(ignoredLabels)),
	}
	for name, rule := range byKind {
		if err := rule.validate(); err != nil {
			return nil, fmt.Errorf("rules: %w: %s: %v", ErrInvalidRule, xmltree.Clark(name), err)
		}
		set.rules[name] = rule
	}
	for _, label := range ignoredLabels {
		if label == "" {
			return nil, fmt.Errorf("rules: %w: ignored label must not be empty", ErrInvalidRule)
		}
		set.ignored[label] = struct{}{}
	}
	return set, nil
}

// RuleFor returns the rule declared for an element kind.
func (s *Set) RuleFor(name xml.Name) (ElementRule, bool) {
	rule, ok := s.rules[name]
	return rule, ok
}

// Ignored reports whether a label is exempt from validation.
func (s *Set) Ignored(label string) bool {
	_, ok := s.ignored[label]
	return ok
}

// Kinds returns every declared element kind, sorted by Clark notation.
func (s *Set) Kinds() []xml.Name {
	kinds := make([]xml.Name, 0, len(s.rules))
	for name := range s.rules {
		kinds = append(kinds, name)
	}
	sort.Slice(kinds, func(i, j int) bool {
		return xmltree.Clark(kinds[i]) < xmltree.Clark(kinds[j])
	})
	return kinds
}

// IgnoredLabels returns the exempt labels in sorted order.
func (s *Set) IgnoredLabels() []string {
	labels := make([]string, 0, len(s.ignored))
	for label := range s.ignored {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
