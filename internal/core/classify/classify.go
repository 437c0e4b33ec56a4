// Package classify maps free-text packet labels onto a fixed set of kinds.
package classify

import (
	"fmt"
	"strings"

	"github.com/agenthands/hvaudit/internal/config"
)

type Kind string

const (
	Tamper          Kind = "TAMPER"
	PositiveControl Kind = "POSITIVE_CONTROL"
	Baseline        Kind = "BASELINE"
)

// Short returns the tag used in rule strings ("TAMPER", "PC", "BASELINE").
func (k Kind) Short() string {
	if k == PositiveControl {
		return "PC"
	}
	return string(k)
}

// Rule assigns Kind to any label containing every substring of at least one
// entry in AnyOf. Substrings are stored uppercased.
type Rule struct {
	Name  string
	Kind  Kind
	AnyOf [][]string
}

func (r Rule) matches(upper string) bool {
	for _, set := range r.AnyOf {
		all := true
		for _, sub := range set {
			if !strings.Contains(upper, sub) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// Classifier evaluates its rules in order. The first match wins; a label no
// rule matches is Baseline.
type Classifier struct {
	Rules []Rule
}

// NewClassifier builds a classifier from configured rules, keeping their order.
func NewClassifier(rules []config.Rule) (*Classifier, error) {
	c := &Classifier{}
	for i, r := range rules {
		kind := Kind(r.Kind)
		if kind != Tamper && kind != PositiveControl {
			return nil, fmt.Errorf("rule %d (%s): unknown kind %q", i, r.Name, r.Kind)
		}
		rule := Rule{Name: r.Name, Kind: kind}
		for _, set := range r.AnyOf {
			if len(set) == 0 {
				return nil, fmt.Errorf("rule %d (%s): empty substring set", i, r.Name)
			}
			up := make([]string, len(set))
			for j, s := range set {
				up[j] = strings.ToUpper(s)
			}
			rule.AnyOf = append(rule.AnyOf, up)
		}
		c.Rules = append(c.Rules, rule)
	}
	return c, nil
}

// Default is the classifier for the built-in rule list.
func Default() *Classifier {
	c, err := NewClassifier(config.Default().Classifier.Rules)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the kind of label. It never fails.
func (c *Classifier) Classify(label string) Kind {
	kind, _ := c.Explain(label)
	return kind
}

// Explain is Classify plus the name of the rule that fired ("" for Baseline).
func (c *Classifier) Explain(label string) (Kind, string) {
	upper := strings.ToUpper(label)
	for _, r := range c.Rules {
		if r.matches(upper) {
			return r.Kind, r.Name
		}
	}
	return Baseline, ""
}

// Is reports whether label matches any rule of the given kind, ignoring
// priority. The resolver needs this to tell "looks tamper" apart from
// "classifies as tamper".
func (c *Classifier) Is(label string, kind Kind) bool {
	upper := strings.ToUpper(label)
	for _, r := range c.Rules {
		if r.Kind == kind && r.matches(upper) {
			return true
		}
	}
	return false
}
