package service

import (
	"sort"
	"testing"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/Harshitk-cp/atomspace/internal/store"
	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSpace() *store.AtomSpace {
	return store.NewAtomSpace(domain.DefaultTypeRegistry(), zap.NewNop())
}

func put(t *testing.T, s domain.AtomStore, a *domain.Atom) domain.ID {
	t.Helper()
	res, err := s.Insert(a)
	require.NoError(t, err)
	return res.ID
}

func concept(t *testing.T, s domain.AtomStore, name string) domain.ID {
	t.Helper()
	return put(t, s, domain.NewNode(domain.ConceptNode, name))
}

func inherit(t *testing.T, s domain.AtomStore, a, b domain.ID, sv, cv float64) domain.ID {
	t.Helper()
	return put(t, s, domain.NewLink(domain.InheritanceLink, a, b).WithTV(sv, cv))
}

func boundIDs(t *testing.T, seq func(func(domain.Binding) bool), v string) []domain.ID {
	t.Helper()
	var out []domain.ID
	for b := range seq {
		id, ok := b.Get(v)
		require.True(t, ok, "variable $%s unbound", v)
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sorted(ids ...domain.ID) []domain.ID {
	out := append([]domain.ID(nil), ids...)
	sortIDs(out)
	return out
}

func TestMatch_FindsEveryBinding(t *testing.T) {
	s := newSpace()
	cat, dog, animal := concept(t, s, "cat"), concept(t, s, "dog"), concept(t, s, "animal")
	rock := concept(t, s, "rock")
	inherit(t, s, cat, animal, 0.9, 0.9)
	inherit(t, s, dog, animal, 0.9, 0.9)
	inherit(t, s, rock, cat, 0.1, 0.9)

	m := NewMatcher(s, zap.NewNop())
	seq, err := m.Match(domain.L(domain.InheritanceLink, domain.V("X"), domain.N(domain.ConceptNode, "animal")))
	require.NoError(t, err)

	got := boundIDs(t, seq, "X")
	if diff := cmp.Diff(sorted(cat, dog), got); diff != "" {
		t.Errorf("bindings mismatch (-want +got):\n%s", diff)
	}
}

func TestMatch_BindingsAreSound(t *testing.T) {
	s := newSpace()
	cat, mammal, animal := concept(t, s, "cat"), concept(t, s, "mammal"), concept(t, s, "animal")
	inherit(t, s, cat, mammal, 0.9, 0.9)
	inherit(t, s, mammal, animal, 0.9, 0.9)

	tmpl := domain.L(domain.InheritanceLink, domain.V("A"), domain.V("B"))
	m := NewMatcher(s, zap.NewNop())
	seq, err := m.Match(tmpl)
	require.NoError(t, err)

	n := 0
	for b := range seq {
		n++
		ground := tmpl.Substitute(b)
		require.True(t, ground.IsGround())
		a, _ := b.Get("A")
		bb, _ := b.Get("B")
		_, ok := s.Lookup(domain.NewLink(domain.InheritanceLink, a, bb))
		assert.True(t, ok, "binding %s does not name a stored atom", ground)
	}
	assert.Equal(t, 2, n)
}

func TestMatch_RepeatedVariableMustAgree(t *testing.T) {
	s := newSpace()
	cat, dog := concept(t, s, "cat"), concept(t, s, "dog")
	put(t, s, domain.NewLink(domain.ListLink, cat, cat))
	put(t, s, domain.NewLink(domain.ListLink, cat, dog))

	m := NewMatcher(s, zap.NewNop())
	seq, err := m.Match(domain.L(domain.ListLink, domain.V("X"), domain.V("X")))
	require.NoError(t, err)
	assert.Equal(t, []domain.ID{cat}, boundIDs(t, seq, "X"))
}

func TestMatch_UnorderedLinks(t *testing.T) {
	s := newSpace()
	cat, dog := concept(t, s, "cat"), concept(t, s, "dog")
	put(t, s, domain.NewLink(domain.SetLink, dog, cat))

	m := NewMatcher(s, zap.NewNop())
	for _, tmpl := range []*domain.Pattern{
		domain.L(domain.SetLink, domain.V("X"), domain.N(domain.ConceptNode, "dog")),
		domain.L(domain.SetLink, domain.N(domain.ConceptNode, "dog"), domain.V("X")),
	} {
		seq, err := m.Match(tmpl)
		require.NoError(t, err)
		assert.Equal(t, []domain.ID{cat}, boundIDs(t, seq, "X"), tmpl.String())
	}
}

func TestMatch_TypedVariable(t *testing.T) {
	s := newSpace()
	cat := concept(t, s, "cat")
	furry := put(t, s, domain.NewNode(domain.PredicateNode, "furry"))
	put(t, s, domain.NewLink(domain.ListLink, cat))
	put(t, s, domain.NewLink(domain.ListLink, furry))

	m := NewMatcher(s, zap.NewNop())
	seq, err := m.Match(domain.L(domain.ListLink, domain.VT("P", domain.PredicateNode)))
	require.NoError(t, err)
	assert.Equal(t, []domain.ID{furry}, boundIDs(t, seq, "P"))
}

func TestMatch_Focus(t *testing.T) {
	s := newSpace()
	cat, dog, animal := concept(t, s, "cat"), concept(t, s, "dog"), concept(t, s, "animal")
	put(t, s, domain.NewLink(domain.InheritanceLink, cat, animal).WithTV(0.9, 0.9).WithAV(0.8, 0))
	put(t, s, domain.NewLink(domain.InheritanceLink, dog, animal).WithTV(0.9, 0.9).WithAV(0.2, 0))

	m := NewMatcher(s, zap.NewNop())
	seq, err := m.Match(domain.L(domain.InheritanceLink, domain.V("X"), domain.V("Y")), WithFocus(0.5))
	require.NoError(t, err)
	assert.Equal(t, []domain.ID{cat}, boundIDs(t, seq, "X"))
}

func TestMatch_SeedPrebindsVariables(t *testing.T) {
	s := newSpace()
	cat, dog, animal := concept(t, s, "cat"), concept(t, s, "dog"), concept(t, s, "animal")
	inherit(t, s, cat, animal, 0.9, 0.9)
	inherit(t, s, dog, animal, 0.9, 0.9)

	seed := domain.Binding{}
	seed.Set("X", dog)
	m := NewMatcher(s, zap.NewNop())
	seq, err := m.Match(domain.L(domain.InheritanceLink, domain.V("X"), domain.V("Y")), WithSeed(seed))
	require.NoError(t, err)
	assert.Equal(t, []domain.ID{animal}, boundIDs(t, seq, "Y"))
}

func TestMatch_SequenceRestartsAgainstCurrentStore(t *testing.T) {
	s := newSpace()
	cat, animal := concept(t, s, "cat"), concept(t, s, "animal")
	inherit(t, s, cat, animal, 0.9, 0.9)

	m := NewMatcher(s, zap.NewNop())
	seq, err := m.Match(domain.L(domain.InheritanceLink, domain.V("X"), domain.Ref(animal)))
	require.NoError(t, err)
	assert.Len(t, boundIDs(t, seq, "X"), 1)

	bird := concept(t, s, "bird")
	inherit(t, s, bird, animal, 0.9, 0.9)
	assert.Equal(t, sorted(cat, bird), boundIDs(t, seq, "X"))
}

func TestMatch_EarlyStop(t *testing.T) {
	s := newSpace()
	animal := concept(t, s, "animal")
	for _, name := range []string{"a", "b", "c", "d"} {
		inherit(t, s, concept(t, s, name), animal, 0.9, 0.9)
	}

	m := NewMatcher(s, zap.NewNop())
	seq, err := m.Match(domain.L(domain.InheritanceLink, domain.V("X"), domain.Ref(animal)))
	require.NoError(t, err)

	n := 0
	for range seq {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestMatch_InvalidTemplate(t *testing.T) {
	m := NewMatcher(newSpace(), zap.NewNop())

	tests := []struct {
		name string
		tmpl *domain.Pattern
	}{
		{"nil", nil},
		{"unknown subtype", domain.L("TeleportLink", domain.V("X"))},
		{"arity", domain.L(domain.InheritanceLink, domain.V("X"))},
		{"unnamed node", &domain.Pattern{Subtype: domain.ConceptNode}},
		{"typed with unknown subtype", domain.VT("X", "GhostNode")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Match(tt.tmpl)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrQuery))
		})
	}
}

func TestMatchAll_Joins(t *testing.T) {
	s := newSpace()
	cat, mammal, animal := concept(t, s, "cat"), concept(t, s, "mammal"), concept(t, s, "animal")
	ab := inherit(t, s, cat, mammal, 0.9, 0.9)
	bc := inherit(t, s, mammal, animal, 0.9, 0.9)

	m := NewMatcher(s, zap.NewNop())
	seq, err := m.MatchAll([]*domain.Pattern{
		domain.L(domain.InheritanceLink, domain.V("A"), domain.V("B")),
		domain.L(domain.InheritanceLink, domain.V("B"), domain.V("C")),
	})
	require.NoError(t, err)

	var results [][]domain.ID
	for ids, b := range seq {
		results = append(results, ids)
		a, _ := b.Get("A")
		c, _ := b.Get("C")
		assert.Equal(t, cat, a)
		assert.Equal(t, animal, c)
	}
	assert.Equal(t, [][]domain.ID{{ab, bc}}, results)
}

func TestJoinOrder_BareVariablesLast(t *testing.T) {
	order := joinOrder([]*domain.Pattern{
		domain.V("A"),
		domain.L(domain.ImplicationLink, domain.V("A"), domain.V("B")),
	})
	assert.Equal(t, []int{1, 0}, order)
}
