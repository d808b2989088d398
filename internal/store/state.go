package store

import (
	"sort"

	"github.com/Harshitk-cp/atomspace/internal/domain"
)

type entry struct {
	atom *domain.Atom
	seq  uint64
	hash uint64
}

// state is everything guarded by the store lock. Restore builds a fresh
// state and swaps it in, so a failed restore leaves the old one untouched.
type state struct {
	nextSeq   uint64
	byID      map[domain.ID]*entry
	arena     map[uint64][]*entry
	bySubtype map[string][]domain.ID
	byName    map[string][]domain.ID
	incoming  map[domain.ID]map[domain.ID]struct{}

	steps        []*domain.InferenceStep
	byConclusion map[domain.ID][]int
	byPremise    map[domain.ID][]int
}

func newState() *state {
	return &state{
		byID:         make(map[domain.ID]*entry),
		arena:        make(map[uint64][]*entry),
		bySubtype:    make(map[string][]domain.ID),
		byName:       make(map[string][]domain.ID),
		incoming:     make(map[domain.ID]map[domain.ID]struct{}),
		byConclusion: make(map[domain.ID][]int),
		byPremise:    make(map[domain.ID][]int),
	}
}

// locate resolves an arena bucket by structural equality.
func (st *state) locate(a *domain.Atom, h uint64) *entry {
	for _, e := range st.arena[h] {
		if e.atom.SameStructure(a) {
			return e
		}
	}
	return nil
}

func (st *state) add(a *domain.Atom, h uint64) *entry {
	st.nextSeq++
	e := &entry{atom: a, seq: st.nextSeq, hash: h}
	st.byID[a.ID] = e
	st.arena[h] = append(st.arena[h], e)
	st.bySubtype[a.Subtype] = append(st.bySubtype[a.Subtype], a.ID)
	if a.Kind == domain.KindNode {
		st.byName[a.Name] = append(st.byName[a.Name], a.ID)
	}
	for _, out := range a.Outgoing {
		refs, ok := st.incoming[out]
		if !ok {
			refs = make(map[domain.ID]struct{})
			st.incoming[out] = refs
		}
		refs[a.ID] = struct{}{}
	}
	return e
}

func (st *state) drop(id domain.ID) {
	e, ok := st.byID[id]
	if !ok {
		return
	}
	a := e.atom
	delete(st.byID, id)

	bucket := st.arena[e.hash]
	for i, other := range bucket {
		if other == e {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(st.arena, e.hash)
	} else {
		st.arena[e.hash] = bucket
	}

	st.bySubtype[a.Subtype] = without(st.bySubtype[a.Subtype], id)
	if len(st.bySubtype[a.Subtype]) == 0 {
		delete(st.bySubtype, a.Subtype)
	}
	if a.Kind == domain.KindNode {
		st.byName[a.Name] = without(st.byName[a.Name], id)
		if len(st.byName[a.Name]) == 0 {
			delete(st.byName, a.Name)
		}
	}
	for _, out := range a.Outgoing {
		if refs, ok := st.incoming[out]; ok {
			delete(refs, id)
			if len(refs) == 0 {
				delete(st.incoming, out)
			}
		}
	}
	delete(st.incoming, id)
}

func without(ids []domain.ID, id domain.ID) []domain.ID {
	for i, x := range ids {
		if x == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

// record appends a step to the ledger and indexes it.
func (st *state) record(step *domain.InferenceStep) *domain.InferenceStep {
	idx := len(st.steps)
	if step.Seq == 0 {
		step.Seq = int64(idx + 1)
	}
	st.steps = append(st.steps, step)
	st.byConclusion[step.Conclusion.ID] = append(st.byConclusion[step.Conclusion.ID], idx)
	seen := make(map[domain.ID]bool, len(step.Premises))
	for _, p := range step.Premises {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		st.byPremise[p.ID] = append(st.byPremise[p.ID], idx)
	}
	return step
}

// ordered sorts ids by insertion sequence, skipping any that are gone.
func (st *state) ordered(ids []domain.ID) []domain.ID {
	out := make([]domain.ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := st.byID[id]; ok {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return st.byID[out[i]].seq < st.byID[out[j]].seq })
	return out
}

func (st *state) allIDs() []domain.ID {
	ids := make([]domain.ID, 0, len(st.byID))
	for id := range st.byID {
		ids = append(ids, id)
	}
	return st.ordered(ids)
}

func (st *state) incomingIDs(id domain.ID) []domain.ID {
	refs := st.incoming[id]
	ids := make([]domain.ID, 0, len(refs))
	for l := range refs {
		ids = append(ids, l)
	}
	return st.ordered(ids)
}
