package serializer

import (
	"fmt"
	"strings"
)

// path is a rule split on dots, relative to the node that declared it.
type path []string

// Ruleset holds the compiled exclusion rules of every record kind.
type Ruleset struct {
	rules map[Kind][]path
}

// NewRuleset compiles per-kind rules such as "-reviews.customer".
// The leading "-" is optional; every rule is an exclusion.
func NewRuleset(rules map[Kind][]string) (*Ruleset, error) {
	rs := &Ruleset{rules: make(map[Kind][]path, len(rules))}
	for kind, raw := range rules {
		compiled, err := parseRules(raw)
		if err != nil {
			return nil, fmt.Errorf("kind %s: %w", kind, err)
		}
		rs.rules[kind] = compiled
	}
	return rs, nil
}

// Rules returns the rules declared for kind, in their canonical "-a.b" form.
func (rs *Ruleset) Rules(kind Kind) []string {
	if rs == nil {
		return nil
	}
	out := make([]string, 0, len(rs.rules[kind]))
	for _, p := range rs.rules[kind] {
		out = append(out, "-"+strings.Join(p, "."))
	}
	return out
}

func (rs *Ruleset) forKind(kind Kind) []path {
	if rs == nil {
		return nil
	}
	return rs.rules[kind]
}

func parseRules(raw []string) ([]path, error) {
	out := make([]path, 0, len(raw))
	for _, r := range raw {
		p, err := parseRule(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func parseRule(rule string) (path, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(rule), "-")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRule, rule)
	}

	segments := strings.Split(trimmed, ".")
	for _, s := range segments {
		if s == "" {
			return nil, fmt.Errorf("%w: %q has an empty segment", ErrInvalidRule, rule)
		}
	}
	return path(segments), nil
}

// excludes reports whether key is cut at this level and returns the rules
// that continue below it.
func excludes(rules []path, key string) (bool, []path) {
	var below []path
	for _, p := range rules {
		if p[0] != key {
			continue
		}
		if len(p) == 1 {
			return true, nil
		}
		below = append(below, p[1:])
	}
	return false, below
}
