package truth

import (
	"sort"
	"sync"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/cockroachdb/errors"
)

// Evidence is everything a formula may consume. Positive and Total are only
// meaningful for aggregating rules such as induction.
type Evidence struct {
	Premises []domain.TruthValue
	Positive int
	Total    int
}

type Formula func(Evidence) (domain.TruthValue, error)

// Strategy is one row of the strategy table. Default marks a formula that is
// a placeholder and expected to be replaced; its Note is copied into every
// step it produces.
type Strategy struct {
	Rule    domain.RuleName
	Formula Formula
	Default bool
	Note    string
}

// Algebra is the strategy table keyed by rule name.
type Algebra struct {
	mu         sync.RWMutex
	params     Params
	strategies map[domain.RuleName]Strategy
}

// NewAlgebra returns a table holding the canonical deduction and revision
// formulas plus default induction and abduction.
func NewAlgebra(p Params) *Algebra {
	a := &Algebra{params: p, strategies: make(map[domain.RuleName]Strategy)}
	a.strategies[domain.RuleDeduction] = Strategy{
		Rule: domain.RuleDeduction,
		Formula: func(ev Evidence) (domain.TruthValue, error) {
			if err := needPremises(domain.RuleDeduction, ev, 2); err != nil {
				return domain.TruthValue{}, err
			}
			return Deduction(ev.Premises[0], ev.Premises[1]), nil
		},
	}
	a.strategies[domain.RuleRevision] = Strategy{
		Rule: domain.RuleRevision,
		Formula: func(ev Evidence) (domain.TruthValue, error) {
			if err := needPremises(domain.RuleRevision, ev, 2); err != nil {
				return domain.TruthValue{}, err
			}
			return Revision(ev.Premises[0], ev.Premises[1], p), nil
		},
	}
	a.strategies[domain.RuleInduction] = Strategy{
		Rule:    domain.RuleInduction,
		Default: true,
		Note:    "induction: simulated default formula (replaceable)",
		Formula: func(ev Evidence) (domain.TruthValue, error) {
			if ev.Total <= 0 {
				return domain.TruthValue{}, errors.Newf("induction needs at least one observation")
			}
			return Induction(ev.Positive, ev.Total, p), nil
		},
	}
	a.strategies[domain.RuleAbduction] = Strategy{
		Rule:    domain.RuleAbduction,
		Default: true,
		Note:    "abduction: simulated default formula (replaceable)",
		Formula: func(ev Evidence) (domain.TruthValue, error) {
			if err := needPremises(domain.RuleAbduction, ev, 2); err != nil {
				return domain.TruthValue{}, err
			}
			return Abduction(ev.Premises[0], ev.Premises[1], p), nil
		},
	}
	return a
}

func needPremises(rule domain.RuleName, ev Evidence, n int) error {
	if len(ev.Premises) != n {
		return errors.Newf("%s expects %d premises, got %d", rule, n, len(ev.Premises))
	}
	return nil
}

func (a *Algebra) Params() Params {
	return a.params
}

// Register installs or replaces the formula for a rule.
func (a *Algebra) Register(s Strategy) error {
	if s.Rule == "" {
		return errors.New("strategy rule name is required")
	}
	if s.Formula == nil {
		return errors.Newf("strategy %s has no formula", s.Rule)
	}
	if s.Default && s.Note == "" {
		s.Note = string(s.Rule) + ": default formula (replaceable)"
	}
	a.mu.Lock()
	a.strategies[s.Rule] = s
	a.mu.Unlock()
	return nil
}

// Unregister removes a rule. Later lookups fail with UnknownRuleError.
func (a *Algebra) Unregister(rule domain.RuleName) {
	a.mu.Lock()
	delete(a.strategies, rule)
	a.mu.Unlock()
}

func (a *Algebra) Lookup(rule domain.RuleName) (Strategy, error) {
	a.mu.RLock()
	s, ok := a.strategies[rule]
	a.mu.RUnlock()
	if !ok {
		return Strategy{}, errors.WithStack(&domain.UnknownRuleError{Rule: string(rule)})
	}
	return s, nil
}

// Apply runs the formula for rule and returns the step notes it implies.
func (a *Algebra) Apply(rule domain.RuleName, ev Evidence) (domain.TruthValue, []string, error) {
	s, err := a.Lookup(rule)
	if err != nil {
		return domain.TruthValue{}, nil, err
	}
	tv, err := s.Formula(ev)
	if err != nil {
		return domain.TruthValue{}, nil, errors.Wrapf(err, "apply %s", rule)
	}
	var notes []string
	if s.Default {
		notes = append(notes, s.Note)
	}
	return tv.Clamp(), notes, nil
}

func (a *Algebra) Rules() []domain.RuleName {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.RuleName, 0, len(a.strategies))
	for r := range a.strategies {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Revise is shorthand for applying the revision strategy to two values.
func (a *Algebra) Revise(existing, incoming domain.TruthValue) (domain.TruthValue, []string, error) {
	return a.Apply(domain.RuleRevision, Evidence{Premises: []domain.TruthValue{existing, incoming}})
}
