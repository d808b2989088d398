package service

import (
	"iter"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"go.uber.org/zap"
)

// Matcher binds template variables against stored atoms. It only reads the
// store, so any number of matches may run at once.
type Matcher struct {
	store  domain.AtomStore
	logger *zap.Logger
}

func NewMatcher(store domain.AtomStore, logger *zap.Logger) *Matcher {
	return &Matcher{store: store, logger: logger}
}

type matchConfig struct {
	seed  domain.Binding
	focus *float64
}

type MatchOption func(*matchConfig)

// WithSeed pre-binds variables.
func WithSeed(b domain.Binding) MatchOption {
	return func(c *matchConfig) { c.seed = b }
}

// WithFocus restricts root candidates to atoms whose sti is at least threshold.
func WithFocus(threshold float64) MatchOption {
	return func(c *matchConfig) { c.focus = &threshold }
}

func newMatchConfig(opts []MatchOption) matchConfig {
	var c matchConfig
	for _, opt := range opts {
		opt(&c)
	}
	if c.seed == nil {
		c.seed = domain.Binding{}
	}
	return c
}

// Match validates the template and returns a lazy sequence of distinct
// bindings. Every range over the sequence restarts the search against the
// store's current contents.
func (m *Matcher) Match(tmpl *domain.Pattern, opts ...MatchOption) (iter.Seq[domain.Binding], error) {
	roots, err := m.MatchRoots(tmpl, opts...)
	if err != nil {
		return nil, err
	}
	return func(yield func(domain.Binding) bool) {
		seen := make(map[string]bool)
		for _, b := range roots {
			key := b.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			if !yield(b) {
				return
			}
		}
	}, nil
}

// MatchRoots is Match that also yields the id of the atom the template root
// matched.
func (m *Matcher) MatchRoots(tmpl *domain.Pattern, opts ...MatchOption) (iter.Seq2[domain.ID, domain.Binding], error) {
	if err := tmpl.Validate(m.store.Registry()); err != nil {
		return nil, err
	}
	cfg := newMatchConfig(opts)
	return func(yield func(domain.ID, domain.Binding) bool) {
		seen := make(map[string]bool)
		for _, id := range m.rootCandidates(tmpl, cfg) {
			stop := false
			m.unify(tmpl, id, cfg.seed, func(b domain.Binding) bool {
				key := string(id) + "|" + b.Key()
				if seen[key] {
					return true
				}
				seen[key] = true
				if !yield(id, b) {
					stop = true
					return false
				}
				return true
			})
			if stop {
				return
			}
		}
	}, nil
}

// MatchAll joins several templates left to right and yields bindings that
// satisfy all of them, together with the atoms each template matched.
func (m *Matcher) MatchAll(tmpls []*domain.Pattern, opts ...MatchOption) (iter.Seq2[[]domain.ID, domain.Binding], error) {
	for _, t := range tmpls {
		if err := t.Validate(m.store.Registry()); err != nil {
			return nil, err
		}
	}
	cfg := newMatchConfig(opts)
	order := joinOrder(tmpls)
	return func(yield func([]domain.ID, domain.Binding) bool) {
		seen := make(map[string]bool)
		matched := make([]domain.ID, len(tmpls))
		var join func(i int, b domain.Binding) bool
		join = func(i int, b domain.Binding) bool {
			if i == len(order) {
				key := b.Key()
				for _, id := range matched {
					key += "|" + string(id)
				}
				if seen[key] {
					return true
				}
				seen[key] = true
				return yield(append([]domain.ID(nil), matched...), b)
			}
			t := tmpls[order[i]]
			step := matchConfig{seed: b, focus: cfg.focus}
			for _, id := range m.rootCandidates(t, step) {
				ok := m.unify(t, id, b, func(next domain.Binding) bool {
					matched[order[i]] = id
					return join(i+1, next)
				})
				if !ok {
					return false
				}
			}
			return true
		}
		join(0, cfg.seed)
	}, nil
}

// joinOrder puts structured templates before bare variables so that the
// variables are usually bound by the time they are reached.
func joinOrder(tmpls []*domain.Pattern) []int {
	order := make([]int, 0, len(tmpls))
	for i, t := range tmpls {
		if !t.IsVar() {
			order = append(order, i)
		}
	}
	for i, t := range tmpls {
		if t.IsVar() {
			order = append(order, i)
		}
	}
	return order
}

func (m *Matcher) rootCandidates(tmpl *domain.Pattern, cfg matchConfig) []domain.ID {
	var ids []domain.ID
	switch {
	case tmpl.IsVar():
		if id, ok := cfg.seed.Get(tmpl.Var); ok {
			return []domain.ID{id}
		}
		ids = m.store.Candidates(tmpl.VarType)
	case tmpl.ID != "":
		return []domain.ID{tmpl.ID}
	case len(tmpl.Outgoing) == 0 && tmpl.Name != "":
		id, ok := m.store.Lookup(domain.NewNode(tmpl.Subtype, tmpl.Name))
		if !ok {
			return nil
		}
		ids = []domain.ID{id}
	default:
		ids = m.store.Candidates(tmpl.Subtype)
	}
	if cfg.focus == nil {
		return ids
	}
	out := ids[:0:0]
	for _, id := range ids {
		a, err := m.store.Get(id)
		if err != nil {
			continue
		}
		if a.AV != nil && a.AV.STI >= *cfg.focus {
			out = append(out, id)
		}
	}
	return out
}

// unify matches one template against one stored atom and calls emit for
// each consistent extension of b. It returns false once emit asks to stop.
func (m *Matcher) unify(p *domain.Pattern, id domain.ID, b domain.Binding, emit func(domain.Binding) bool) bool {
	if p.IsVar() {
		if bound, ok := b.Get(p.Var); ok {
			if bound != id {
				return true
			}
			return emit(b)
		}
		if p.VarType != "" {
			a, err := m.store.Get(id)
			if err != nil || a.Subtype != p.VarType {
				return true
			}
		}
		next := b.Clone()
		next.Set(p.Var, id)
		return emit(next)
	}
	if p.ID != "" {
		if p.ID != id {
			return true
		}
		return emit(b)
	}

	a, err := m.store.Get(id)
	if err != nil || a.Subtype != p.Subtype {
		return true
	}
	if a.Kind == domain.KindNode {
		if a.Name != p.Name {
			return true
		}
		return emit(b)
	}
	if len(a.Outgoing) != len(p.Outgoing) {
		return true
	}
	spec, _ := m.store.Registry().Lookup(a.Subtype)
	if spec.Unordered {
		used := make([]bool, len(a.Outgoing))
		return m.unifyUnordered(p.Outgoing, a.Outgoing, used, 0, b, emit)
	}
	return m.unifyOrdered(p.Outgoing, a.Outgoing, 0, b, emit)
}

func (m *Matcher) unifyOrdered(ps []*domain.Pattern, ids []domain.ID, i int, b domain.Binding, emit func(domain.Binding) bool) bool {
	if i == len(ps) {
		return emit(b)
	}
	return m.unify(ps[i], ids[i], b, func(next domain.Binding) bool {
		return m.unifyOrdered(ps, ids, i+1, next, emit)
	})
}

// unifyUnordered tries every assignment of template children to outgoing atoms.
func (m *Matcher) unifyUnordered(ps []*domain.Pattern, ids []domain.ID, used []bool, i int, b domain.Binding, emit func(domain.Binding) bool) bool {
	if i == len(ps) {
		return emit(b)
	}
	for j, id := range ids {
		if used[j] {
			continue
		}
		used[j] = true
		ok := m.unify(ps[i], id, b, func(next domain.Binding) bool {
			return m.unifyUnordered(ps, ids, used, i+1, next, emit)
		})
		used[j] = false
		if !ok {
			return false
		}
	}
	return true
}
