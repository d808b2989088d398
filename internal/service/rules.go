package service

import (
	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/cockroachdb/errors"
)

const (
	RuleModusPonens          = "modus-ponens"
	RuleInheritanceDeduction = "inheritance-deduction"
	RuleAbduction            = "abduction"
	RuleInheritanceInduction = "inheritance-induction"
)

// Rule is a pattern rule: when every premise matches, the conclusion is
// derived with the truth value computed by Formula. Premises are listed in
// the order the formula consumes them.
type Rule struct {
	Name       string            `yaml:"name" json:"name"`
	Formula    domain.RuleName   `yaml:"formula" json:"formula"`
	Premises   []*domain.Pattern `yaml:"premises" json:"premises"`
	Conclusion *domain.Pattern   `yaml:"conclusion" json:"conclusion"`
	// Distinct lists variable pairs that must bind different atoms.
	Distinct [][2]string `yaml:"distinct,omitempty" json:"distinct,omitempty"`
	// Aggregate rules pool every binding that yields the same conclusion
	// into one application.
	Aggregate bool `yaml:"aggregate,omitempty" json:"aggregate,omitempty"`
}

func (r Rule) Validate(reg *domain.TypeRegistry) error {
	if r.Name == "" {
		return domain.NewQueryError("rule without a name")
	}
	if len(r.Premises) == 0 {
		return domain.NewQueryError("rule %s has no premises", r.Name)
	}
	bound := map[string]bool{}
	for i, p := range r.Premises {
		if err := p.Validate(reg); err != nil {
			return errors.Wrapf(err, "rule %s premise %d", r.Name, i)
		}
		for _, v := range p.Vars() {
			bound[v] = true
		}
	}
	if err := r.Conclusion.Validate(reg); err != nil {
		return errors.Wrapf(err, "rule %s conclusion", r.Name)
	}
	for _, v := range r.Conclusion.Vars() {
		if !bound[v] {
			return domain.NewQueryError("rule %s: conclusion variable $%s is not bound by any premise", r.Name, v)
		}
	}
	for _, pair := range r.Distinct {
		if !bound[pair[0]] || !bound[pair[1]] {
			return domain.NewQueryError("rule %s: distinct constraint on unknown variable", r.Name)
		}
	}
	return nil
}

// admitsWith reports whether a binding satisfies the distinct constraints.
// resolve, when set, supplies variables the binding does not carry.
func (r Rule) admitsWith(b domain.Binding, resolve func(domain.Binding, string) (domain.ID, bool)) bool {
	get := func(name string) (domain.ID, bool) {
		if id, ok := b.Get(name); ok {
			return id, true
		}
		if resolve != nil {
			return resolve(b, name)
		}
		return "", false
	}
	for _, pair := range r.Distinct {
		x, okx := get(pair[0])
		y, oky := get(pair[1])
		if okx && oky && x == y {
			return false
		}
	}
	return true
}

// rename returns a copy of the rule with every variable suffixed.
func (r Rule) rename(suffix string) Rule {
	c := r
	c.Premises = make([]*domain.Pattern, len(r.Premises))
	for i, p := range r.Premises {
		c.Premises[i] = p.Rename(suffix)
	}
	c.Conclusion = r.Conclusion.Rename(suffix)
	c.Distinct = make([][2]string, len(r.Distinct))
	for i, pair := range r.Distinct {
		c.Distinct[i] = [2]string{pair[0] + suffix, pair[1] + suffix}
	}
	return c
}

// DefaultRules is the built-in rule library.
func DefaultRules() []Rule {
	a, b, c, x := domain.V("A"), domain.V("B"), domain.V("C"), domain.V("X")
	return []Rule{
		{
			Name:       RuleModusPonens,
			Formula:    domain.RuleDeduction,
			Premises:   []*domain.Pattern{domain.L(domain.ImplicationLink, a, b), a},
			Conclusion: b,
		},
		{
			Name:    RuleInheritanceDeduction,
			Formula: domain.RuleDeduction,
			Premises: []*domain.Pattern{
				domain.L(domain.InheritanceLink, a, b),
				domain.L(domain.InheritanceLink, b, c),
			},
			Conclusion: domain.L(domain.InheritanceLink, a, c),
			Distinct:   [][2]string{{"A", "C"}, {"A", "B"}, {"B", "C"}},
		},
		{
			Name:       RuleAbduction,
			Formula:    domain.RuleAbduction,
			Premises:   []*domain.Pattern{b, domain.L(domain.ImplicationLink, a, b)},
			Conclusion: a,
		},
		{
			Name:    RuleInheritanceInduction,
			Formula: domain.RuleInduction,
			Premises: []*domain.Pattern{
				domain.L(domain.InheritanceLink, x, a),
				domain.L(domain.InheritanceLink, x, b),
			},
			Conclusion: domain.L(domain.InheritanceLink, a, b),
			Distinct:   [][2]string{{"A", "B"}},
			Aggregate:  true,
		},
	}
}

// RuleSet is an ordered, validated collection of rules.
type RuleSet struct {
	rules  []Rule
	byName map[string]int
}

func NewRuleSet(reg *domain.TypeRegistry, rules ...Rule) (*RuleSet, error) {
	rs := &RuleSet{byName: make(map[string]int)}
	for _, r := range rules {
		if err := rs.add(reg, r); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

func (rs *RuleSet) add(reg *domain.TypeRegistry, r Rule) error {
	if err := r.Validate(reg); err != nil {
		return err
	}
	if _, dup := rs.byName[r.Name]; dup {
		return domain.NewQueryError("rule %s defined twice", r.Name)
	}
	rs.byName[r.Name] = len(rs.rules)
	rs.rules = append(rs.rules, r)
	return nil
}

func (rs *RuleSet) Names() []string {
	out := make([]string, len(rs.rules))
	for i, r := range rs.rules {
		out[i] = r.Name
	}
	return out
}

func (rs *RuleSet) Get(name string) (Rule, bool) {
	i, ok := rs.byName[name]
	if !ok {
		return Rule{}, false
	}
	return rs.rules[i], true
}

// Select returns the named rules in set order; no names selects all.
func (rs *RuleSet) Select(names []string) ([]Rule, error) {
	if len(names) == 0 {
		return append([]Rule(nil), rs.rules...), nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := rs.byName[n]; !ok {
			return nil, domain.NewQueryError("unknown rule %q", n)
		}
		want[n] = true
	}
	var out []Rule
	for _, r := range rs.rules {
		if want[r.Name] {
			out = append(out, r)
		}
	}
	return out, nil
}
