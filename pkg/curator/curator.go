// Package curator validates a parsed Gmail filter export against a
// compiled rule set and aggregates the findings into a run report.
//
// The declared element kinds form a closed world: every child of an
// entry must be declared, every declared kind must appear, and the same
// holds for declared property names. Entries whose label is on the
// ignore list are skipped entirely but still counted.
package curator

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/d-bohls/gmail-filters-curator/pkg/filter"
	"github.com/d-bohls/gmail-filters-curator/pkg/rules"
	"github.com/d-bohls/gmail-filters-curator/pkg/xmltree"
)

// ErrValidation reports a run in which at least one checked entry
// violated the rule set.
var ErrValidation = errors.New("validation failed")

// ViolationKind classifies a single finding.
type ViolationKind string

const (
	// KindUnknownElement flags an entry child whose kind is not declared.
	KindUnknownElement ViolationKind = "unknown-element"
	// KindUnknownProperty flags a property name that is not declared,
	// or a property element with no name attribute.
	KindUnknownProperty ViolationKind = "unknown-property"
	// KindMissingElement flags a declared kind absent from the entry.
	KindMissingElement ViolationKind = "missing-element"
	// KindMissingProperty flags a declared property name absent from
	// the entry's property elements.
	KindMissingProperty ViolationKind = "missing-property"
	// KindAssertionFailed flags a present value that fails its assertion.
	KindAssertionFailed ViolationKind = "assertion-failed"
)

// Violation is one finding against one entry.
type Violation struct {
	Kind      ViolationKind `json:"kind"`
	Element   string        `json:"element"`             // element kind, Clark notation
	Property  string        `json:"property,omitempty"`  // property name, when applicable
	Assertion string        `json:"assertion,omitempty"` // requirement that failed
	Value     string        `json:"value,omitempty"`     // offending value, when present
	Detail    string        `json:"detail"`
}

// EntryResult is the outcome for a single entry.
type EntryResult struct {
	Label      string      `json:"label"`
	Skipped    bool        `json:"skipped,omitempty"`
	Violations []Violation `json:"violations,omitempty"`
}

// Valid reports whether the entry passed every check.
func (r EntryResult) Valid() bool {
	return len(r.Violations) == 0
}

// Report is the structured output of one validation run.
type Report struct {
	RunID      string        `json:"run_id"`
	Timestamp  time.Time     `json:"timestamp"`
	Entries    []EntryResult `json:"entries"`
	Checked    int           `json:"checked"`
	Ignored    int           `json:"ignored"`
	Violations int           `json:"violations"`
	Valid      bool          `json:"valid"`
	Summary    string        `json:"summary"`
}

// Pipeline runs validation over a document.
type Pipeline struct {
	Rules *rules.Set

	// CollectAll keeps checking after the first failing entry so the
	// report covers the whole document. The run still fails. Off, the
	// pipeline stops at the first failing entry.
	CollectAll bool

	Logger *slog.Logger
}

// Run validates every entry of the feed in document order. The report
// is returned alongside ErrValidation when any checked entry failed,
// so callers can render findings and still branch on the error.
func (p *Pipeline) Run(doc *xmltree.Document) (*Report, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := filter.Entries(doc)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Entries:   make([]EntryResult, 0, len(entries)),
		Valid:     true,
	}

	firstFailed := ""
	failedEntries := 0
	for i, entry := range entries {
		result := ValidateEntry(entry, p.Rules)
		report.Entries = append(report.Entries, result)

		if result.Skipped {
			report.Ignored++
			logger.Debug("ignoring entry", "label", result.Label)
			continue
		}

		report.Checked++
		report.Violations += len(result.Violations)
		logger.Debug("checked entry", "label", result.Label, "violations", len(result.Violations))

		if !result.Valid() {
			report.Valid = false
			failedEntries++
			if firstFailed == "" {
				firstFailed = result.Label
				if firstFailed == "" {
					firstFailed = fmt.Sprintf("#%d", i+1)
				}
			}
			if !p.CollectAll {
				break
			}
		}
	}

	if report.Valid {
		report.Summary = fmt.Sprintf("PASS: %d entries checked, %d ignored", report.Checked, report.Ignored)
		return report, nil
	}

	if p.CollectAll {
		report.Summary = fmt.Sprintf("FAIL: %d violations in %d of %d entries",
			report.Violations, failedEntries, report.Checked)
	} else {
		report.Summary = fmt.Sprintf("FAIL: %d violations in entry %q", report.Violations, firstFailed)
	}
	return report, fmt.Errorf("curator: %w: entry %q", ErrValidation, firstFailed)
}

// ValidateEntry checks one entry against the rule set. An entry whose
// label is on the ignore list is returned as skipped with no findings.
// A missing or empty label is not itself a finding here: when the rule
// set declares the label property, the closed-world checks below
// surface it.
func ValidateEntry(entry *xmltree.Node, set *rules.Set) EntryResult {
	label, err := filter.Label(entry)
	if err != nil {
		label = ""
	}

	if label != "" && set.Ignored(label) {
		return EntryResult{Label: label, Skipped: true}
	}

	result := EntryResult{Label: label}

	// Element kinds and property names encountered in this entry.
	seenKinds := make(map[string]bool)
	seenProps := make(map[string]map[string]bool)

	for _, child := range entry.Children {
		kind := xmltree.Clark(child.Name)
		rule, ok := set.RuleFor(child.Name)
		if !ok {
			result.Violations = append(result.Violations, Violation{
				Kind:    KindUnknownElement,
				Element: kind,
				Detail:  fmt.Sprintf("element %s is not declared in the rule set", kind),
			})
			continue
		}
		seenKinds[kind] = true

		if rule.Text != nil {
			text, present := child.Text()
			if !rule.Text.Eval(text, present) {
				result.Violations = append(result.Violations, textViolation(kind, *rule.Text, text, present))
			}
			continue
		}

		// Property rule: the child carries a name/value attribute pair.
		name, ok := child.Attr(filter.NameAttr)
		if !ok {
			result.Violations = append(result.Violations, Violation{
				Kind:    KindUnknownProperty,
				Element: kind,
				Detail:  fmt.Sprintf("%s element has no name attribute", kind),
			})
			continue
		}
		assertion, declared := rule.Properties[name]
		if !declared {
			result.Violations = append(result.Violations, Violation{
				Kind:     KindUnknownProperty,
				Element:  kind,
				Property: name,
				Detail:   fmt.Sprintf("property %q is not declared in the rule set", name),
			})
			continue
		}
		if seenProps[kind] == nil {
			seenProps[kind] = make(map[string]bool)
		}
		seenProps[kind][name] = true

		value, present := child.Attr(filter.ValueAttr)
		if !assertion.Eval(value, present) {
			result.Violations = append(result.Violations, propertyViolation(kind, name, assertion, value, present))
		}
	}

	// Closed-world comparison: every declared kind, and every declared
	// property name, must have appeared.
	for _, kindName := range set.Kinds() {
		kind := xmltree.Clark(kindName)
		rule, _ := set.RuleFor(kindName)

		if !seenKinds[kind] {
			result.Violations = append(result.Violations, Violation{
				Kind:    KindMissingElement,
				Element: kind,
				Detail:  fmt.Sprintf("required element %s is missing", kind),
			})
		}
		for _, name := range rule.PropertyNames() {
			if !seenProps[kind][name] {
				result.Violations = append(result.Violations, Violation{
					Kind:     KindMissingProperty,
					Element:  kind,
					Property: name,
					Detail:   fmt.Sprintf("required property %q is missing", name),
				})
			}
		}
	}

	return result
}

func textViolation(kind string, a rules.Assertion, text string, present bool) Violation {
	v := Violation{
		Kind:      KindAssertionFailed,
		Element:   kind,
		Assertion: a.String(),
	}
	if present {
		v.Value = text
		v.Detail = fmt.Sprintf("text of %s %s, got %q", kind, a, text)
	} else {
		v.Detail = fmt.Sprintf("text of %s %s, but it is empty", kind, a)
	}
	return v
}

func propertyViolation(kind, name string, a rules.Assertion, value string, present bool) Violation {
	v := Violation{
		Kind:      KindAssertionFailed,
		Element:   kind,
		Property:  name,
		Assertion: a.String(),
	}
	if present {
		v.Value = value
		v.Detail = fmt.Sprintf("property %q %s, got %q", name, a, value)
	} else {
		v.Detail = fmt.Sprintf("property %q %s, but it has no value", name, a)
	}
	return v
}
