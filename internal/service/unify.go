package service

import (
	"github.com/Harshitk-cp/atomspace/internal/domain"
)

// subst maps variable names to templates during template-template
// unification (backward chaining only; matching against atoms uses Binding).
type subst map[string]*domain.Pattern

func (s subst) clone() subst {
	c := make(subst, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// walk follows variable chains to their current value.
func (s subst) walk(p *domain.Pattern) *domain.Pattern {
	for p.IsVar() {
		next, ok := s[p.Var]
		if !ok {
			return p
		}
		p = next
	}
	return p
}

// apply rewrites p with every substitution resolved.
func (s subst) apply(p *domain.Pattern) *domain.Pattern {
	p = s.walk(p)
	if p.IsVar() || p.ID != "" || len(p.Outgoing) == 0 {
		return p
	}
	q := &domain.Pattern{Kind: p.Kind, Subtype: p.Subtype, Name: p.Name}
	for _, c := range p.Outgoing {
		q.Outgoing = append(q.Outgoing, s.apply(c))
	}
	return q
}

type unifier struct {
	store domain.AtomStore
}

// expand turns a reference into a structural template one level deep.
func (u unifier) expand(p *domain.Pattern) (*domain.Pattern, bool) {
	if p.ID == "" || p.IsVar() {
		return p, true
	}
	a, err := u.store.Get(p.ID)
	if err != nil {
		return nil, false
	}
	if a.IsNode() {
		return domain.N(a.Subtype, a.Name), true
	}
	q := domain.L(a.Subtype)
	for _, id := range a.Outgoing {
		q.Outgoing = append(q.Outgoing, domain.Ref(id))
	}
	return q, true
}

func (u unifier) subtypeOf(p *domain.Pattern) string {
	if p.ID != "" {
		if a, err := u.store.Get(p.ID); err == nil {
			return a.Subtype
		}
		return ""
	}
	return p.Subtype
}

// unify returns every substitution extending s under which p and q denote
// the same atom. Unordered links may unify several ways.
func (u unifier) unify(p, q *domain.Pattern, s subst) []subst {
	p, q = s.walk(p), s.walk(q)

	switch {
	case p.IsVar() && q.IsVar():
		if p.Var == q.Var {
			return []subst{s}
		}
		if p.VarType != "" && q.VarType != "" && p.VarType != q.VarType {
			return nil
		}
		next := s.clone()
		if p.VarType == "" {
			next[p.Var] = q
		} else {
			next[q.Var] = p
		}
		return []subst{next}
	case p.IsVar():
		return u.bind(p, q, s)
	case q.IsVar():
		return u.bind(q, p, s)
	case p.ID != "" && q.ID != "":
		if p.ID == q.ID {
			return []subst{s}
		}
		return nil
	}

	p, ok := u.expand(p)
	if !ok {
		return nil
	}
	q, ok = u.expand(q)
	if !ok {
		return nil
	}
	if p.Subtype != q.Subtype || p.Name != q.Name || len(p.Outgoing) != len(q.Outgoing) {
		return nil
	}
	if len(p.Outgoing) == 0 {
		return []subst{s}
	}

	spec, _ := u.store.Registry().Lookup(p.Subtype)
	if !spec.Unordered {
		current := []subst{s}
		for i := range p.Outgoing {
			var next []subst
			for _, cs := range current {
				next = append(next, u.unify(p.Outgoing[i], q.Outgoing[i], cs)...)
			}
			if len(next) == 0 {
				return nil
			}
			current = next
		}
		return current
	}

	var out []subst
	used := make([]bool, len(q.Outgoing))
	var perm func(i int, cs subst)
	perm = func(i int, cs subst) {
		if i == len(p.Outgoing) {
			out = append(out, cs)
			return
		}
		for j := range q.Outgoing {
			if used[j] {
				continue
			}
			used[j] = true
			for _, ns := range u.unify(p.Outgoing[i], q.Outgoing[j], cs) {
				perm(i+1, ns)
			}
			used[j] = false
		}
	}
	perm(0, s)
	return out
}

func (u unifier) bind(v, t *domain.Pattern, s subst) []subst {
	if occurs(v.Var, t, s) {
		return nil
	}
	if v.VarType != "" && u.subtypeOf(t) != v.VarType {
		return nil
	}
	next := s.clone()
	next[v.Var] = t
	return []subst{next}
}

func occurs(name string, p *domain.Pattern, s subst) bool {
	p = s.walk(p)
	if p.IsVar() {
		return p.Var == name
	}
	for _, c := range p.Outgoing {
		if occurs(name, c, s) {
			return true
		}
	}
	return false
}
