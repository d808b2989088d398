package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/Harshitk-cp/atomspace/internal/truth"
	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const SnapshotVersion = "1"

// Hasher maps canonical atom bytes to an arena bucket.
type Hasher func([]byte) uint64

type Option func(*AtomSpace)

// WithHasher replaces the arena hash. Tests use it to force bucket collisions.
func WithHasher(h Hasher) Option {
	return func(s *AtomSpace) { s.hasher = h }
}

func WithProvenancePolicy(p domain.ProvenancePolicy) Option {
	return func(s *AtomSpace) { s.policy = p }
}

func WithAlgebra(a *truth.Algebra) Option {
	return func(s *AtomSpace) { s.alg = a }
}

func WithClock(now func() time.Time) Option {
	return func(s *AtomSpace) { s.now = now }
}

// AtomSpace is the in-memory hypergraph. One readers-writer lock guards the
// arena, every index and the step ledger.
type AtomSpace struct {
	mu     sync.RWMutex
	st     *state
	reg    *domain.TypeRegistry
	alg    *truth.Algebra
	policy domain.ProvenancePolicy
	hasher Hasher
	now    func() time.Time
	logger *zap.Logger
}

var _ domain.AtomStore = (*AtomSpace)(nil)

func NewAtomSpace(reg *domain.TypeRegistry, logger *zap.Logger, opts ...Option) *AtomSpace {
	s := &AtomSpace{
		st:     newState(),
		reg:    reg,
		policy: domain.ProvenanceReject,
		hasher: xxhash.Sum64,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.alg == nil {
		s.alg = truth.NewAlgebra(truth.DefaultParams())
	}
	return s
}

func (s *AtomSpace) Registry() *domain.TypeRegistry {
	return s.reg
}

func (s *AtomSpace) Policy() domain.ProvenancePolicy {
	return s.policy
}

// prepare validates and normalises a copy of the input and assigns its id.
func (s *AtomSpace) prepare(in *domain.Atom) (*domain.Atom, uint64, error) {
	if in == nil {
		return nil, 0, domain.NewStructuralError("", "nil atom")
	}
	a := in.Clone()
	if a.Kind == "" {
		if spec, ok := s.reg.Lookup(a.Subtype); ok {
			a.Kind = spec.Kind
		}
	}
	if err := s.reg.Validate(a); err != nil {
		return nil, 0, err
	}
	a.TV = a.TV.Clamp()
	if a.AV != nil {
		av := domain.NewAV(a.AV.STI, a.AV.LTI)
		a.AV = &av
	}
	a.ID = domain.ComputeID(a)
	return a, s.hasher(domain.CanonicalBytes(a)), nil
}

// resolve finds the existing entry for a prepared atom or checks that it
// can be added. Called with the write lock held.
func (st *state) resolve(a *domain.Atom, h uint64) (*entry, error) {
	if e := st.locate(a, h); e != nil {
		return e, nil
	}
	for _, out := range a.Outgoing {
		if _, ok := st.byID[out]; !ok {
			return nil, domain.NewStructuralError(a.Subtype, "outgoing atom %s does not exist", out)
		}
	}
	if other, ok := st.byID[a.ID]; ok {
		return nil, errors.WithStack(&domain.StructuralError{
			AtomID: a.ID,
			Reason: fmt.Sprintf("id collision with structurally different %s", other.atom.Subtype),
		})
	}
	return nil, nil
}

// Insert adds an atom. Inserting a structurally identical atom returns the
// existing id and revises its truth value with the incoming one.
func (s *AtomSpace) Insert(in *domain.Atom) (domain.InsertResult, error) {
	a, h, err := s.prepare(in)
	if err != nil {
		return domain.InsertResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.st.resolve(a, h)
	if err != nil {
		return domain.InsertResult{}, err
	}
	if e == nil {
		s.st.add(a, h)
		s.logger.Debug("atom inserted",
			zap.String("atom_id", string(a.ID)),
			zap.String("subtype", a.Subtype))
		return domain.InsertResult{ID: a.ID, Created: true}, nil
	}

	res := domain.InsertResult{ID: e.atom.ID}
	if !a.TV.IsUnknown() {
		old := e.atom.TV
		revised, notes, err := s.alg.Revise(old, a.TV)
		if err != nil {
			return domain.InsertResult{}, err
		}
		if revised != old {
			step := s.st.record(&domain.InferenceStep{
				Rule: domain.RuleRevision,
				Premises: []domain.PremiseRef{
					{ID: e.atom.ID, TV: old},
					{ID: e.atom.ID, TV: a.TV},
				},
				Conclusion: domain.ConclusionRef{ID: e.atom.ID},
				TVIn:       &old,
				TVOut:      revised,
				Notes:      append(notes, "merged on insert"),
				CreatedAt:  s.now(),
			})
			e.atom.TV = revised
			res.Revision = step.Clone()
			s.logger.Debug("atom revised on insert",
				zap.String("atom_id", string(e.atom.ID)),
				zap.Stringer("tv_in", old),
				zap.Stringer("tv_out", revised))
		}
	}
	mergeAV(e.atom, a.AV)
	return res, nil
}

func mergeAV(a *domain.Atom, av *domain.AttentionValue) {
	if av == nil {
		return
	}
	if a.AV == nil {
		c := *av
		a.AV = &c
		return
	}
	merged := a.AV.Merge(*av)
	a.AV = &merged
}

// Derive inserts the conclusion of an inference step and records the step.
// When the conclusion already exists with evidence, a revision step follows.
func (s *AtomSpace) Derive(d domain.Derivation) (domain.DeriveResult, error) {
	if d.Step == nil {
		return domain.DeriveResult{}, errors.New("derivation without a step")
	}
	a, h, err := s.prepare(d.Atom)
	if err != nil {
		return domain.DeriveResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.st.resolve(a, h)
	if err != nil {
		return domain.DeriveResult{}, err
	}

	step := d.Step.Clone()
	step.Seq = 0
	step.CreatedAt = s.now()
	step.TVOut = step.TVOut.Clamp()

	if e == nil {
		a.TV = step.TVOut
		s.st.add(a, h)
		step.Conclusion = domain.ConclusionRef{ID: a.ID}
		rec := s.st.record(step)
		return domain.DeriveResult{ID: a.ID, Created: true, Step: rec.Clone()}, nil
	}

	old := e.atom.TV
	step.Conclusion = domain.ConclusionRef{ID: e.atom.ID}
	step.TVIn = &old
	if old.IsUnknown() {
		rec := s.st.record(step)
		e.atom.TV = step.TVOut
		mergeAV(e.atom, a.AV)
		return domain.DeriveResult{ID: e.atom.ID, Step: rec.Clone()}, nil
	}

	revised, notes, err := s.alg.Revise(old, step.TVOut)
	if err != nil {
		return domain.DeriveResult{}, err
	}
	rec := s.st.record(step)
	rev := s.st.record(&domain.InferenceStep{
		Rule: domain.RuleRevision,
		Premises: []domain.PremiseRef{
			{ID: e.atom.ID, TV: old},
			{ID: e.atom.ID, TV: step.TVOut},
		},
		Conclusion:   domain.ConclusionRef{ID: e.atom.ID},
		TVIn:         &old,
		TVOut:        revised,
		Notes:        notes,
		RuleInstance: step.RuleInstance,
		RunID:        step.RunID,
		CreatedAt:    step.CreatedAt,
	})
	e.atom.TV = revised
	mergeAV(e.atom, a.AV)
	return domain.DeriveResult{ID: e.atom.ID, Step: rec.Clone(), Revision: rev.Clone()}, nil
}

func (s *AtomSpace) Get(id domain.ID) (*domain.Atom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.st.byID[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "get %s", id)
	}
	return e.atom.Clone(), nil
}

// Lookup returns the id of a stored atom with the same structure, if any.
func (s *AtomSpace) Lookup(in *domain.Atom) (domain.ID, bool) {
	a, h, err := s.prepare(in)
	if err != nil {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e := s.st.locate(a, h); e != nil {
		return e.atom.ID, true
	}
	return "", false
}

// Find returns matching atoms in insertion order.
func (s *AtomSpace) Find(f domain.Filter) []*domain.Atom {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []domain.ID
	switch {
	case f.Name != "":
		ids = s.st.byName[f.Name]
	case f.Subtype != "":
		ids = s.st.bySubtype[f.Subtype]
	case f.Kind != "":
		for _, sub := range s.reg.Subtypes(f.Kind) {
			ids = append(ids, s.st.bySubtype[sub]...)
		}
	default:
		ids = s.st.allIDs()
	}

	var out []*domain.Atom
	for _, id := range s.st.ordered(ids) {
		a := s.st.byID[id].atom
		if f.Kind != "" && a.Kind != f.Kind {
			continue
		}
		if f.Subtype != "" && a.Subtype != f.Subtype {
			continue
		}
		if f.Name != "" && a.Name != f.Name {
			continue
		}
		out = append(out, a.Clone())
	}
	return out
}

// Candidates lists ids of one subtype in insertion order; an empty subtype
// lists every atom.
func (s *AtomSpace) Candidates(subtype string) []domain.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if subtype == "" {
		return s.st.allIDs()
	}
	ids := s.st.bySubtype[subtype]
	out := make([]domain.ID, len(ids))
	copy(out, ids)
	return out
}

// Incoming returns the links whose outgoing set contains id.
func (s *AtomSpace) Incoming(id domain.ID) []*domain.Atom {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.st.incomingIDs(id)
	out := make([]*domain.Atom, len(ids))
	for i, l := range ids {
		out[i] = s.st.byID[l].atom.Clone()
	}
	return out
}

func (s *AtomSpace) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.st.byID)
}

// Remove deletes an atom. Without cascade, an atom that links still point at
// cannot be removed. Steps that used removed atoms are handled according to
// the provenance policy. On error nothing is changed.
func (s *AtomSpace) Remove(id domain.ID, cascade bool) ([]domain.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.byID[id]; !ok {
		return nil, errors.Wrapf(ErrNotFound, "remove %s", id)
	}

	set := make(map[domain.ID]bool)
	if err := s.st.closure(id, cascade, set); err != nil {
		return nil, err
	}

	invalidate := make(map[int]bool)
	for changed := true; changed; {
		changed = false
		for _, x := range s.st.ordered(keys(set)) {
			for _, idx := range s.st.byPremise[x] {
				step := s.st.steps[idx]
				if step.Invalidated || set[step.Conclusion.ID] {
					continue
				}
				switch s.policy {
				case domain.ProvenanceCascade:
					if err := s.st.closure(step.Conclusion.ID, true, set); err != nil {
						return nil, err
					}
					changed = true
				case domain.ProvenanceInvalidate:
					invalidate[idx] = true
				default:
					return nil, errors.WithStack(&domain.StructuralError{
						AtomID: x,
						Reason: fmt.Sprintf("premise of step %d concluding %s", step.Seq, step.Conclusion.ID),
					})
				}
			}
		}
	}
	for x := range set {
		for _, idx := range s.st.byConclusion[x] {
			invalidate[idx] = true
		}
	}

	removed := s.st.ordered(keys(set))
	for idx := range invalidate {
		s.st.steps[idx].Invalidated = true
	}
	for i := len(removed) - 1; i >= 0; i-- {
		s.st.drop(removed[i])
	}

	s.logger.Info("atoms removed",
		zap.String("atom_id", string(id)),
		zap.Int("removed", len(removed)),
		zap.Int("steps_invalidated", len(invalidate)),
		zap.String("policy", string(s.policy)))
	return removed, nil
}

// closure adds id and, when cascading, every link that transitively
// references it.
func (st *state) closure(id domain.ID, cascade bool, set map[domain.ID]bool) error {
	if set[id] {
		return nil
	}
	var refs []domain.ID
	for _, l := range st.incomingIDs(id) {
		if !set[l] {
			refs = append(refs, l)
		}
	}
	if len(refs) > 0 && !cascade {
		return errors.WithStack(&domain.DanglingReferenceError{AtomID: id, ReferencedBy: refs})
	}
	set[id] = true
	for _, l := range refs {
		if err := st.closure(l, true, set); err != nil {
			return err
		}
	}
	return nil
}

func keys(set map[domain.ID]bool) []domain.ID {
	out := make([]domain.ID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// UpdateAV applies fn to one atom's attention value.
func (s *AtomSpace) UpdateAV(id domain.ID, fn func(domain.AttentionValue) domain.AttentionValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.st.byID[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "update attention %s", id)
	}
	var cur domain.AttentionValue
	if e.atom.AV != nil {
		cur = *e.atom.AV
	}
	next := fn(cur)
	next = domain.NewAV(next.STI, next.LTI)
	e.atom.AV = &next
	return nil
}

// UpdateAllAV applies fn to every atom that has an attention value and
// returns how many were visited.
func (s *AtomSpace) UpdateAllAV(fn func(domain.AttentionValue) domain.AttentionValue) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.st.byID {
		if e.atom.AV == nil {
			continue
		}
		next := fn(*e.atom.AV)
		next = domain.NewAV(next.STI, next.LTI)
		e.atom.AV = &next
		n++
	}
	return n
}

// Steps returns ledger entries in recording order.
func (s *AtomSpace) Steps(f domain.StepFilter) []*domain.InferenceStep {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var idxs []int
	switch {
	case f.Conclusion != "":
		idxs = s.st.byConclusion[f.Conclusion]
	case f.Premise != "":
		idxs = s.st.byPremise[f.Premise]
	default:
		idxs = make([]int, len(s.st.steps))
		for i := range idxs {
			idxs[i] = i
		}
	}

	var out []*domain.InferenceStep
	for _, idx := range idxs {
		step := s.st.steps[idx]
		if f.Rule != "" && step.Rule != f.Rule {
			continue
		}
		if f.Conclusion != "" && step.Conclusion.ID != f.Conclusion {
			continue
		}
		if f.RunID != "" && step.RunID != f.RunID {
			continue
		}
		if f.Invalidated != nil && step.Invalidated != *f.Invalidated {
			continue
		}
		if f.Premise != "" && !hasPremise(step, f.Premise) {
			continue
		}
		out = append(out, step.Clone())
	}
	return out
}

func hasPremise(step *domain.InferenceStep, id domain.ID) bool {
	for _, p := range step.Premises {
		if p.ID == id {
			return true
		}
	}
	return false
}

// Trace returns every step the truth value of id depends on, transitively,
// in recording order.
func (s *AtomSpace) Trace(id domain.ID) []*domain.InferenceStep {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visited := map[domain.ID]bool{id: true}
	picked := map[int]bool{}
	queue := []domain.ID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, idx := range s.st.byConclusion[cur] {
			if picked[idx] {
				continue
			}
			picked[idx] = true
			for _, p := range s.st.steps[idx].Premises {
				if !visited[p.ID] {
					visited[p.ID] = true
					queue = append(queue, p.ID)
				}
			}
		}
	}

	idxs := make([]int, 0, len(picked))
	for idx := range picked {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)
	out := make([]*domain.InferenceStep, len(idxs))
	for i, idx := range idxs {
		out[i] = s.st.steps[idx].Clone()
	}
	return out
}

// Snapshot copies the whole store.
func (s *AtomSpace) Snapshot() *domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &domain.Snapshot{Version: SnapshotVersion, SavedAt: s.now().UTC()}
	for _, id := range s.st.allIDs() {
		snap.Atoms = append(snap.Atoms, s.st.byID[id].atom.Clone())
	}
	for _, step := range s.st.steps {
		snap.Steps = append(snap.Steps, step.Clone())
	}
	return snap
}

// Restore replaces the store contents with a snapshot. Atoms keep their
// exact truth and attention values; steps are kept verbatim.
func (s *AtomSpace) Restore(snap *domain.Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	next := newState()
	for i, in := range snap.Atoms {
		a, h, err := s.prepare(in)
		if err != nil {
			return errors.Wrapf(err, "restore atom %d", i)
		}
		if in.ID != "" && in.ID != a.ID {
			return errors.WithStack(&domain.StructuralError{
				AtomID: in.ID,
				Reason: fmt.Sprintf("stored id does not match content address %s", a.ID),
			})
		}
		e, err := next.resolve(a, h)
		if err != nil {
			return errors.Wrapf(err, "restore atom %d", i)
		}
		if e != nil {
			return errors.WithStack(&domain.StructuralError{AtomID: a.ID, Reason: "duplicate atom in snapshot"})
		}
		next.add(a, h)
	}
	var seq int64
	for _, step := range snap.Steps {
		c := step.Clone()
		if c.Seq <= seq {
			c.Seq = seq + 1
		}
		seq = c.Seq
		next.record(c)
	}

	s.mu.Lock()
	s.st = next
	s.mu.Unlock()

	s.logger.Info("store restored",
		zap.Int("atoms", len(snap.Atoms)),
		zap.Int("steps", len(snap.Steps)))
	return nil
}

// Stats summarises the store, including weakly connected components of the
// node/link graph.
func (s *AtomSpace) Stats() domain.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.Stats{
		Atoms:       len(s.st.byID),
		BySubtype:   make(map[string]int),
		Steps:       len(s.st.steps),
		StepsByRule: make(map[domain.RuleName]int),
	}
	uf := newUnionFind()
	for id, e := range s.st.byID {
		uf.add(id)
		stats.BySubtype[e.atom.Subtype]++
		if e.atom.Kind == domain.KindNode {
			stats.Nodes++
		} else {
			stats.Links++
		}
	}
	for id, e := range s.st.byID {
		for _, out := range e.atom.Outgoing {
			uf.union(id, out)
		}
	}
	stats.Components, stats.LargestComponent = uf.components()

	for _, step := range s.st.steps {
		stats.StepsByRule[step.Rule]++
		if step.Invalidated {
			stats.InvalidatedSteps++
		}
	}
	return stats
}

type unionFind struct {
	parent map[domain.ID]domain.ID
	size   map[domain.ID]int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[domain.ID]domain.ID), size: make(map[domain.ID]int)}
}

func (u *unionFind) add(id domain.ID) {
	u.parent[id] = id
	u.size[id] = 1
}

func (u *unionFind) find(id domain.ID) domain.ID {
	for u.parent[id] != id {
		u.parent[id] = u.parent[u.parent[id]]
		id = u.parent[id]
	}
	return id
}

func (u *unionFind) union(a, b domain.ID) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
}

func (u *unionFind) components() (count, largest int) {
	for id := range u.parent {
		if u.find(id) == id {
			count++
			if u.size[id] > largest {
				largest = u.size[id]
			}
		}
	}
	return count, largest
}
