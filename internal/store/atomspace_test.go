package store

import (
	"sync"
	"testing"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSpace(opts ...Option) *AtomSpace {
	return NewAtomSpace(domain.DefaultTypeRegistry(), zap.NewNop(), opts...)
}

func mustInsert(t *testing.T, s *AtomSpace, a *domain.Atom) domain.ID {
	t.Helper()
	res, err := s.Insert(a)
	require.NoError(t, err)
	return res.ID
}

func TestInsert_Idempotent(t *testing.T) {
	s := newTestSpace()

	first, err := s.Insert(domain.NewNode(domain.ConceptNode, "cat"))
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := s.Insert(domain.NewNode(domain.ConceptNode, "cat"))
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.ID, second.ID)
	assert.Nil(t, second.Revision, "unknown truth value adds no evidence")
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, domain.NodeID(domain.ConceptNode, "cat"), first.ID)
}

func TestInsert_RevisesOnCollision(t *testing.T) {
	s := newTestSpace()

	id := mustInsert(t, s, domain.NewNode(domain.ConceptNode, "cat").WithTV(0.9, 0.6))
	res, err := s.Insert(domain.NewNode(domain.ConceptNode, "cat").WithTV(0.8, 0.9))
	require.NoError(t, err)
	require.NotNil(t, res.Revision)

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.InDelta(t, 0.96, got.TV.C, 1e-9)

	step := res.Revision
	assert.Equal(t, domain.RuleRevision, step.Rule)
	require.NotNil(t, step.TVIn)
	assert.Equal(t, domain.NewTV(0.9, 0.6), *step.TVIn)
	assert.Equal(t, got.TV, step.TVOut)
	assert.Contains(t, step.Notes, "merged on insert")

	assert.Len(t, s.Steps(domain.StepFilter{Conclusion: id}), 1)
}

func TestInsert_ConcurrentSameAtom(t *testing.T) {
	s := newTestSpace()
	const n = 32

	var wg sync.WaitGroup
	results := make([]domain.InsertResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Insert(domain.NewNode(domain.ConceptNode, "cat").WithTV(0.8, 0.05))
		}(i)
	}
	wg.Wait()

	created := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].Created {
			created++
		}
	}
	assert.Equal(t, 1, created, "exactly one insertion creates the atom")
	assert.Equal(t, 1, s.Len())
	assert.Len(t, s.Steps(domain.StepFilter{Rule: domain.RuleRevision}), n-1)
}

func TestInsert_MergesAttentionByMax(t *testing.T) {
	s := newTestSpace()
	id := mustInsert(t, s, domain.NewNode(domain.ConceptNode, "cat").WithAV(0.2, 0.9))
	mustInsert(t, s, domain.NewNode(domain.ConceptNode, "cat").WithAV(0.7, 0.1))

	got, err := s.Get(id)
	require.NoError(t, err)
	require.NotNil(t, got.AV)
	assert.Equal(t, domain.NewAV(0.7, 0.9), *got.AV)
}

func TestInsert_StructuralErrors(t *testing.T) {
	s := newTestSpace()
	cat := mustInsert(t, s, domain.NewNode(domain.ConceptNode, "cat"))

	tests := []struct {
		name string
		atom *domain.Atom
	}{
		{"unregistered subtype", domain.NewNode("GhostNode", "x")},
		{"node without name", domain.NewNode(domain.ConceptNode, "")},
		{"arity too small", domain.NewLink(domain.InheritanceLink, cat)},
		{"arity too large", domain.NewLink(domain.InheritanceLink, cat, cat, cat)},
		{"missing outgoing atom", domain.NewLink(domain.InheritanceLink, cat, "n:missing")},
		{"kind mismatch", &domain.Atom{Kind: domain.KindLink, Subtype: domain.ConceptNode}},
		{"non numeric number node", domain.NewNode(domain.NumberNode, "seven")},
		{"empty and link", domain.NewLink(domain.AndLink)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Insert(tt.atom)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrStructural), "got %v", err)
			assert.Equal(t, 1, s.Len(), "nothing may be applied")
		})
	}
}

func TestInsert_UnorderedLinksShareIdentity(t *testing.T) {
	s := newTestSpace()
	a := mustInsert(t, s, domain.NewNode(domain.ConceptNode, "a"))
	b := mustInsert(t, s, domain.NewNode(domain.ConceptNode, "b"))

	ab := mustInsert(t, s, domain.NewLink(domain.SimilarityLink, a, b))
	ba := mustInsert(t, s, domain.NewLink(domain.SimilarityLink, b, a))
	assert.Equal(t, ab, ba)

	lab := mustInsert(t, s, domain.NewLink(domain.ListLink, a, b))
	lba := mustInsert(t, s, domain.NewLink(domain.ListLink, b, a))
	assert.NotEqual(t, lab, lba)
}

func TestInsert_BucketCollisionsResolvedStructurally(t *testing.T) {
	s := newTestSpace(WithHasher(func([]byte) uint64 { return 42 }))

	cat := mustInsert(t, s, domain.NewNode(domain.ConceptNode, "cat"))
	dog := mustInsert(t, s, domain.NewNode(domain.ConceptNode, "dog"))
	assert.NotEqual(t, cat, dog)
	assert.Equal(t, cat, mustInsert(t, s, domain.NewNode(domain.ConceptNode, "cat")))
	assert.Equal(t, 2, s.Len())

	_, err := s.Remove(cat, false)
	require.NoError(t, err)
	id, ok := s.Lookup(domain.NewNode(domain.ConceptNode, "dog"))
	assert.True(t, ok)
	assert.Equal(t, dog, id)
}

func TestFindAndIncoming(t *testing.T) {
	s := newTestSpace()
	cat := mustInsert(t, s, domain.NewNode(domain.ConceptNode, "cat"))
	animal := mustInsert(t, s, domain.NewNode(domain.ConceptNode, "animal"))
	mustInsert(t, s, domain.NewNode(domain.PredicateNode, "cat"))
	inh := mustInsert(t, s, domain.NewLink(domain.InheritanceLink, cat, animal))

	assert.Len(t, s.Find(domain.Filter{Name: "cat"}), 2)
	assert.Len(t, s.Find(domain.Filter{Subtype: domain.ConceptNode}), 2)
	assert.Len(t, s.Find(domain.Filter{Kind: domain.KindNode}), 3)
	assert.Len(t, s.Find(domain.Filter{Kind: domain.KindLink}), 1)
	assert.Len(t, s.Find(domain.Filter{}), 4)

	concepts := s.Find(domain.Filter{Subtype: domain.ConceptNode, Name: "cat"})
	require.Len(t, concepts, 1)
	assert.Equal(t, cat, concepts[0].ID)

	in := s.Incoming(cat)
	require.Len(t, in, 1)
	assert.Equal(t, inh, in[0].ID)
	assert.Empty(t, s.Incoming(inh))

	assert.Equal(t, []domain.ID{cat, animal}, s.Candidates(domain.ConceptNode))
}

func TestGet_NotFound(t *testing.T) {
	s := newTestSpace()
	_, err := s.Get("n:nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRemove_ReferencedWithoutCascade(t *testing.T) {
	s := newTestSpace()
	cat := mustInsert(t, s, domain.NewNode(domain.ConceptNode, "cat"))
	animal := mustInsert(t, s, domain.NewNode(domain.ConceptNode, "animal"))
	inh := mustInsert(t, s, domain.NewLink(domain.InheritanceLink, cat, animal))
	before := s.Snapshot()

	_, err := s.Remove(cat, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDanglingReference))

	var dre *domain.DanglingReferenceError
	require.True(t, errors.As(err, &dre))
	assert.Equal(t, []domain.ID{inh}, dre.ReferencedBy)

	after := s.Snapshot()
	assert.Equal(t, before.Atoms, after.Atoms)
	assert.Len(t, s.Incoming(cat), 1)
}

func TestRemove_Cascade(t *testing.T) {
	s := newTestSpace()
	cat := mustInsert(t, s, domain.NewNode(domain.ConceptNode, "cat"))
	animal := mustInsert(t, s, domain.NewNode(domain.ConceptNode, "animal"))
	inh := mustInsert(t, s, domain.NewLink(domain.InheritanceLink, cat, animal))
	list := mustInsert(t, s, domain.NewLink(domain.ListLink, inh))

	removed, err := s.Remove(cat, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.ID{cat, inh, list}, removed)
	assert.Equal(t, 1, s.Len())
	assert.Empty(t, s.Incoming(animal))
	assert.Empty(t, s.Find(domain.Filter{Name: "cat"}))
}

func deriveFixture(t *testing.T, s *AtomSpace) (a, ab, b domain.ID) {
	t.Helper()
	a = mustInsert(t, s, domain.NewNode(domain.ConceptNode, "rain").WithTV(0.9, 0.9))
	b = domain.NodeID(domain.ConceptNode, "wet")
	mustInsert(t, s, domain.NewNode(domain.ConceptNode, "wet"))
	ab = mustInsert(t, s, domain.NewLink(domain.ImplicationLink, a, b).WithTV(0.8, 0.9))

	// wet now carries derived evidence.
	_, err := s.Derive(domain.Derivation{
		Atom: domain.NewNode(domain.ConceptNode, "wet"),
		Step: &domain.InferenceStep{
			Rule:     domain.RuleDeduction,
			Premises: []domain.PremiseRef{{ID: ab, TV: domain.NewTV(0.8, 0.9)}, {ID: a, TV: domain.NewTV(0.9, 0.9)}},
			TVOut:    domain.NewTV(0.72, 0.99),
		},
	})
	require.NoError(t, err)
	return a, ab, b
}

func TestRemove_ProvenancePolicies(t *testing.T) {
	t.Run("reject", func(t *testing.T) {
		s := newTestSpace()
		a, _, _ := deriveFixture(t, s)
		_, err := s.Remove(a, true)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrStructural))
		assert.Equal(t, 3, s.Len())
	})

	t.Run("invalidate", func(t *testing.T) {
		s := newTestSpace(WithProvenancePolicy(domain.ProvenanceInvalidate))
		a, _, b := deriveFixture(t, s)
		_, err := s.Remove(a, true)
		require.NoError(t, err)
		_, err = s.Get(b)
		require.NoError(t, err)
		steps := s.Steps(domain.StepFilter{Conclusion: b})
		require.Len(t, steps, 1)
		assert.True(t, steps[0].Invalidated)
	})

	t.Run("cascade", func(t *testing.T) {
		s := newTestSpace(WithProvenancePolicy(domain.ProvenanceCascade))
		a, _, b := deriveFixture(t, s)
		removed, err := s.Remove(a, true)
		require.NoError(t, err)
		assert.Contains(t, removed, b)
		assert.Equal(t, 0, s.Len())
		assert.Equal(t, 1, s.Stats().InvalidatedSteps)
	})
}

func TestDerive_RevisesExisting(t *testing.T) {
	s := newTestSpace()
	a := mustInsert(t, s, domain.NewNode(domain.ConceptNode, "a").WithTV(0.9, 0.6))

	res, err := s.Derive(domain.Derivation{
		Atom: domain.NewNode(domain.ConceptNode, "a"),
		Step: &domain.InferenceStep{Rule: domain.RuleDeduction, TVOut: domain.NewTV(0.8, 0.9), RunID: "run-1"},
	})
	require.NoError(t, err)
	assert.False(t, res.Created)
	require.NotNil(t, res.Revision)
	assert.Equal(t, domain.RuleRevision, res.Revision.Rule)
	assert.Equal(t, "run-1", res.Revision.RunID)
	assert.Less(t, res.Step.Seq, res.Revision.Seq)

	got, err := s.Get(a)
	require.NoError(t, err)
	assert.Equal(t, res.Revision.TVOut, got.TV)
	assert.InDelta(t, 0.96, got.TV.C, 1e-9)

	trace := s.Trace(a)
	assert.Len(t, trace, 2)
}

func TestTrace_FollowsPremises(t *testing.T) {
	s := newTestSpace()
	_, _, b := deriveFixture(t, s)

	res, err := s.Derive(domain.Derivation{
		Atom: domain.NewNode(domain.ConceptNode, "slippery"),
		Step: &domain.InferenceStep{
			Rule:     domain.RuleDeduction,
			Premises: []domain.PremiseRef{{ID: b, TV: domain.NewTV(0.72, 0.99)}},
			TVOut:    domain.NewTV(0.5, 0.5),
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Created)

	trace := s.Trace(res.ID)
	require.Len(t, trace, 2)
	assert.Equal(t, b, trace[0].Conclusion.ID)
	assert.Equal(t, res.ID, trace[1].Conclusion.ID)
}

func TestUpdateAV(t *testing.T) {
	s := newTestSpace()
	cat := mustInsert(t, s, domain.NewNode(domain.ConceptNode, "cat"))
	mustInsert(t, s, domain.NewNode(domain.ConceptNode, "dog"))

	require.NoError(t, s.UpdateAV(cat, func(av domain.AttentionValue) domain.AttentionValue {
		av.STI += 2
		return av
	}))
	got, _ := s.Get(cat)
	require.NotNil(t, got.AV)
	assert.Equal(t, 1.0, got.AV.STI, "attention saturates at 1")

	n := s.UpdateAllAV(func(av domain.AttentionValue) domain.AttentionValue {
		av.STI /= 2
		return av
	})
	assert.Equal(t, 1, n)
	got, _ = s.Get(cat)
	assert.Equal(t, 0.5, got.AV.STI)

	assert.True(t, errors.Is(s.UpdateAV("n:none", nil), ErrNotFound))
}

func TestStats(t *testing.T) {
	s := newTestSpace()
	cat := mustInsert(t, s, domain.NewNode(domain.ConceptNode, "cat"))
	animal := mustInsert(t, s, domain.NewNode(domain.ConceptNode, "animal"))
	mustInsert(t, s, domain.NewLink(domain.InheritanceLink, cat, animal))
	mustInsert(t, s, domain.NewNode(domain.ConceptNode, "island"))

	st := s.Stats()
	assert.Equal(t, 4, st.Atoms)
	assert.Equal(t, 3, st.Nodes)
	assert.Equal(t, 1, st.Links)
	assert.Equal(t, 3, st.BySubtype[domain.ConceptNode])
	assert.Equal(t, 2, st.Components)
	assert.Equal(t, 3, st.LargestComponent)
}

func TestSnapshotRestore(t *testing.T) {
	s := newTestSpace()
	deriveFixture(t, s)
	mustInsert(t, s, domain.NewNode(domain.ConceptNode, "focus").WithAV(0.4, 0.2))
	snap := s.Snapshot()

	restored := newTestSpace()
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, snap.Atoms, restored.Snapshot().Atoms)
	assert.Equal(t, snap.Steps, restored.Snapshot().Steps)
	assert.Equal(t, s.Candidates(""), restored.Candidates(""))

	t.Run("tampered id leaves store untouched", func(t *testing.T) {
		bad := restored.Snapshot()
		bad.Atoms[0].ID = "n:forged"
		err := restored.Restore(bad)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrStructural))
		assert.Equal(t, len(snap.Atoms), restored.Len())
	})
}
