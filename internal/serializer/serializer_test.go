package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// node is a minimal Record for exercising the traversal
type node struct {
	kind  Kind
	id    int
	attrs []Attribute
	edges []Edge
}

func (n *node) Kind() Kind              { return n.kind }
func (n *node) Identity() any           { return n.id }
func (n *node) Attributes() []Attribute { return n.attrs }
func (n *node) Edges() []Edge           { return n.edges }

func TestNewRulesetRejectsMalformedRules(t *testing.T) {
	for _, rule := range []string{"", "-", "-a..b", ".a", "a."} {
		_, err := NewRuleset(map[Kind][]string{"x": {rule}})
		assert.ErrorIs(t, err, ErrInvalidRule, "rule %q", rule)
	}

	rs, err := NewRuleset(map[Kind][]string{"x": {"-a.b", "c"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"-a.b", "-c"}, rs.Rules("x"))
	assert.Empty(t, rs.Rules("y"))
}

func TestSerializerWithoutRuleset(t *testing.T) {
	s := New(nil)
	assert.Nil(t, s.Ruleset())
	assert.Empty(t, s.Ruleset().Rules("x"))

	out, err := s.Serialize(&node{kind: "x", id: 1, attrs: []Attribute{{Name: "id", Value: 1}}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": 1}, out)
}

func TestSerializeWithoutRulesDetectsCycle(t *testing.T) {
	parent := &node{kind: "parent", id: 1, attrs: []Attribute{{Name: "id", Value: 1}}}
	child := &node{kind: "child", id: 1, attrs: []Attribute{{Name: "id", Value: 1}}}
	parent.edges = []Edge{Many("children", []Record{child})}
	child.edges = []Edge{One("parent", parent)}

	_, err := New(nil).Serialize(parent)
	require.ErrorIs(t, err, ErrSerializationCycle)
	assert.Contains(t, err.Error(), "parent.children[0].parent")
}

func TestSerializeRulesAreRelativeToDeclaringNode(t *testing.T) {
	parent := &node{kind: "parent", id: 1, attrs: []Attribute{{Name: "id", Value: 1}}}
	child := &node{kind: "child", id: 2, attrs: []Attribute{{Name: "id", Value: 2}, {Name: "secret", Value: "x"}}}
	parent.edges = []Edge{Many("children", []Record{child})}
	child.edges = []Edge{One("parent", parent)}

	rs, err := NewRuleset(map[Kind][]string{
		"parent": {"-children.parent"},
		"child":  {"-parent.children"},
	})
	require.NoError(t, err)
	s := New(rs)

	out, err := s.Serialize(parent)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id": 1,
		"children": []map[string]any{
			{"id": 2, "secret": "x"},
		},
	}, out)

	out, err = s.Serialize(child)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":     2,
		"secret": "x",
		"parent": map[string]any{"id": 1},
	}, out)

	// Extra rules apply from the root
	out, err = s.Serialize(parent, "-children.secret")
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"id": 2}}, out["children"])

	_, err = s.Serialize(parent, "-children..x")
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestSerializeUnresolvedToOneEdge(t *testing.T) {
	orphan := &node{kind: "child", id: 3, edges: []Edge{One("parent", nil)}}

	_, err := New(nil).Serialize(orphan)
	require.ErrorIs(t, err, ErrUnresolvedRelation)
	assert.Contains(t, err.Error(), "child.parent")

	// Cutting the edge makes it irrelevant
	out, err := New(nil).Serialize(orphan, "-parent")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSerializeNilTargetsInList(t *testing.T) {
	parent := &node{kind: "parent", id: 1, edges: []Edge{Many("children", []Record{nil})}}

	_, err := New(nil).Serialize(parent)
	assert.ErrorIs(t, err, ErrUnresolvedRelation)
}

func TestSerializeEmptyListAndNilRoot(t *testing.T) {
	parent := &node{kind: "parent", id: 1, edges: []Edge{Many("children", nil)}}

	out, err := New(nil).Serialize(parent)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{}, out["children"])

	_, err = New(nil).Serialize(nil)
	assert.ErrorIs(t, err, ErrNilRecord)
}

func TestSameRecordOnSiblingBranchesIsNotACycle(t *testing.T) {
	shared := &node{kind: "leaf", id: 9, attrs: []Attribute{{Name: "id", Value: 9}}}
	a := &node{kind: "mid", id: 1, edges: []Edge{One("leaf", shared)}}
	b := &node{kind: "mid", id: 2, edges: []Edge{One("leaf", shared)}}
	root := &node{kind: "root", id: 1, edges: []Edge{Many("mids", []Record{a, b})}}

	out, err := New(nil).Serialize(root)
	require.NoError(t, err)
	assert.Len(t, out["mids"], 2)
}
