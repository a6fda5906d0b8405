// Package serializer turns related records into nested, acyclic mappings.
//
// A traversal starts at a root record and follows every edge unless an
// exclusion rule cuts it. Rules are declared per record kind and are relative
// to the node that declares them, so each nested kind can cut the edge that
// points back to where the traversal came from.
package serializer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRule is returned when a rule cannot be parsed
	ErrInvalidRule = errors.New("invalid serialization rule")

	// ErrUnresolvedRelation is returned when a to-one edge that must be
	// serialized was not loaded
	ErrUnresolvedRelation = errors.New("unresolved relationship")

	// ErrSerializationCycle is returned when the rules leave a cycle open and
	// the same record is reached twice on one branch
	ErrSerializationCycle = errors.New("serialization cycle")

	// ErrNilRecord is returned when Serialize is called without a record
	ErrNilRecord = errors.New("nil record")
)

// Kind tags a record type.
type Kind string

// Attribute is a plain named value of a record.
type Attribute struct {
	Name  string
	Value any
}

// Edge is a relationship from a record to one or many records.
type Edge struct {
	Name string
	Many bool

	// Loaded is false when a to-one target is absent or was never fetched.
	Loaded bool
	Target Record

	Targets []Record
}

// One builds a to-one edge. A nil target leaves the edge unresolved.
func One(name string, target Record) Edge {
	return Edge{Name: name, Loaded: target != nil, Target: target}
}

// Many builds a to-many edge.
func Many(name string, targets []Record) Edge {
	return Edge{Name: name, Many: true, Loaded: true, Targets: targets}
}

// Record is implemented by every serializable entity.
// Identity must return a comparable value.
type Record interface {
	Kind() Kind
	Identity() any
	Attributes() []Attribute
	Edges() []Edge
}

// Serializer applies a Ruleset to records.
type Serializer struct {
	rules *Ruleset
}

// New creates a serializer. A nil ruleset means no exclusions.
func New(rules *Ruleset) *Serializer {
	return &Serializer{rules: rules}
}

// Ruleset returns the rules the serializer was built with.
func (s *Serializer) Ruleset() *Ruleset {
	return s.rules
}

type visit struct {
	kind Kind
	id   any
}

// Serialize returns the mapping of rec. Extra rules are relative to rec and
// are applied on top of the declared ones.
func (s *Serializer) Serialize(rec Record, extra ...string) (map[string]any, error) {
	if rec == nil {
		return nil, ErrNilRecord
	}

	extraRules, err := parseRules(extra)
	if err != nil {
		return nil, err
	}

	return s.serialize(rec, extraRules, string(rec.Kind()), map[visit]bool{})
}

func (s *Serializer) serialize(rec Record, inherited []path, at string, branch map[visit]bool) (map[string]any, error) {
	key := visit{kind: rec.Kind(), id: rec.Identity()}
	if branch[key] {
		return nil, fmt.Errorf("%w: %s reached again at %s", ErrSerializationCycle, rec.Kind(), at)
	}
	branch[key] = true
	defer delete(branch, key)

	rules := append(append([]path{}, inherited...), s.rules.forKind(rec.Kind())...)

	out := make(map[string]any)
	for _, attr := range rec.Attributes() {
		if cut, _ := excludes(rules, attr.Name); cut {
			continue
		}
		out[attr.Name] = attr.Value
	}

	for _, edge := range rec.Edges() {
		cut, below := excludes(rules, edge.Name)
		if cut {
			continue
		}
		edgeAt := at + "." + edge.Name

		if !edge.Many {
			if !edge.Loaded || edge.Target == nil {
				return nil, fmt.Errorf("%w: %s", ErrUnresolvedRelation, edgeAt)
			}
			nested, err := s.serialize(edge.Target, below, edgeAt, branch)
			if err != nil {
				return nil, err
			}
			out[edge.Name] = nested
			continue
		}

		list := make([]map[string]any, 0, len(edge.Targets))
		for i, target := range edge.Targets {
			itemAt := fmt.Sprintf("%s[%d]", edgeAt, i)
			if target == nil {
				return nil, fmt.Errorf("%w: %s", ErrUnresolvedRelation, itemAt)
			}
			nested, err := s.serialize(target, below, itemAt, branch)
			if err != nil {
				return nil, err
			}
			list = append(list, nested)
		}
		out[edge.Name] = list
	}

	return out, nil
}
