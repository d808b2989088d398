package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Pattern is a query template: an atom tree whose leaves may be variables
// or references to stored atoms. Exactly one of Var, ID or Subtype is set.
type Pattern struct {
	Kind     Kind       `json:"kind,omitempty" yaml:"kind,omitempty"`
	Subtype  string     `json:"subtype,omitempty" yaml:"subtype,omitempty"`
	Name     string     `json:"name,omitempty" yaml:"name,omitempty"`
	Var      string     `json:"var,omitempty" yaml:"var,omitempty"`
	VarType  string     `json:"var_type,omitempty" yaml:"var_type,omitempty"`
	ID       ID         `json:"id,omitempty" yaml:"id,omitempty"`
	Outgoing []*Pattern `json:"outgoing,omitempty" yaml:"outgoing,omitempty"`
}

// V is a variable that binds to any atom.
func V(name string) *Pattern { return &Pattern{Var: name} }

// VT is a variable restricted to one subtype.
func VT(name, subtype string) *Pattern { return &Pattern{Var: name, VarType: subtype} }

// N is a literal node.
func N(subtype, name string) *Pattern {
	return &Pattern{Kind: KindNode, Subtype: subtype, Name: name}
}

// L is a link template.
func L(subtype string, outgoing ...*Pattern) *Pattern {
	return &Pattern{Kind: KindLink, Subtype: subtype, Outgoing: outgoing}
}

// Ref matches exactly the atom with the given id.
func Ref(id ID) *Pattern { return &Pattern{ID: id} }

func (p *Pattern) IsVar() bool { return p.Var != "" }

func (p *Pattern) IsRef() bool { return p.Var == "" && p.ID != "" }

// Vars returns variable names in order of first appearance.
func (p *Pattern) Vars() []string {
	var out []string
	seen := map[string]bool{}
	p.walk(func(q *Pattern) {
		if q.IsVar() && !seen[q.Var] {
			seen[q.Var] = true
			out = append(out, q.Var)
		}
	})
	return out
}

func (p *Pattern) IsGround() bool { return len(p.Vars()) == 0 }

func (p *Pattern) walk(fn func(*Pattern)) {
	fn(p)
	for _, c := range p.Outgoing {
		c.walk(fn)
	}
}

// Validate rejects malformed templates before any matching happens.
func (p *Pattern) Validate(reg *TypeRegistry) error {
	if p == nil {
		return NewQueryError("empty template")
	}
	switch {
	case p.IsVar():
		if len(p.Outgoing) > 0 || p.Name != "" || p.Subtype != "" || p.ID != "" {
			return NewQueryError("variable $%s cannot carry structure", p.Var)
		}
		if p.VarType != "" {
			if _, ok := reg.Lookup(p.VarType); !ok {
				return NewQueryError("variable $%s restricted to unknown subtype %s", p.Var, p.VarType)
			}
		}
		return nil
	case p.ID != "":
		if len(p.Outgoing) > 0 || p.Name != "" || p.Subtype != "" {
			return NewQueryError("reference %s cannot carry structure", p.ID)
		}
		return nil
	}

	spec, ok := reg.Lookup(p.Subtype)
	if !ok {
		return NewQueryError("unknown subtype %q", p.Subtype)
	}
	if p.Kind != "" && p.Kind != spec.Kind {
		return NewQueryError("subtype %s is a %s, not a %s", p.Subtype, spec.Kind, p.Kind)
	}
	if spec.Kind == KindNode {
		if p.Name == "" {
			return NewQueryError("node template %s requires a name", p.Subtype)
		}
		if len(p.Outgoing) > 0 {
			return NewQueryError("node template %s cannot have outgoing", p.Subtype)
		}
		return nil
	}
	if p.Name != "" {
		return NewQueryError("link template %s cannot carry a name", p.Subtype)
	}
	if err := spec.CheckArity(len(p.Outgoing)); err != nil {
		return NewQueryError("%s", err.Error())
	}
	for _, c := range p.Outgoing {
		if err := c.Validate(reg); err != nil {
			return err
		}
	}
	return nil
}

// Substitute replaces bound variables with references. Unbound ones stay.
func (p *Pattern) Substitute(b Binding) *Pattern {
	if p.IsVar() {
		if id, ok := b.Get(p.Var); ok {
			return Ref(id)
		}
		return &Pattern{Var: p.Var, VarType: p.VarType}
	}
	q := &Pattern{Kind: p.Kind, Subtype: p.Subtype, Name: p.Name, ID: p.ID}
	for _, c := range p.Outgoing {
		q.Outgoing = append(q.Outgoing, c.Substitute(b))
	}
	return q
}

// Rename appends suffix to every variable name.
func (p *Pattern) Rename(suffix string) *Pattern {
	if p.IsVar() {
		return &Pattern{Var: p.Var + suffix, VarType: p.VarType}
	}
	q := &Pattern{Kind: p.Kind, Subtype: p.Subtype, Name: p.Name, ID: p.ID}
	for _, c := range p.Outgoing {
		q.Outgoing = append(q.Outgoing, c.Rename(suffix))
	}
	return q
}

// Key renders the template with variables numbered by first appearance, so
// alpha-equivalent goals share a key.
func (p *Pattern) Key() string {
	names := map[string]int{}
	var sb strings.Builder
	p.render(&sb, func(v string) string {
		n, ok := names[v]
		if !ok {
			n = len(names)
			names[v] = n
		}
		return fmt.Sprintf("?%d", n)
	})
	return sb.String()
}

func (p *Pattern) String() string {
	var sb strings.Builder
	p.render(&sb, func(v string) string { return "$" + v })
	return sb.String()
}

func (p *Pattern) render(sb *strings.Builder, varName func(string) string) {
	switch {
	case p.IsVar():
		sb.WriteString(varName(p.Var))
		if p.VarType != "" {
			sb.WriteString(":" + p.VarType)
		}
	case p.ID != "":
		sb.WriteString("#" + string(p.ID))
	case len(p.Outgoing) == 0 && p.Name != "":
		fmt.Fprintf(sb, "%s(%q)", p.Subtype, p.Name)
	default:
		sb.WriteString(p.Subtype + "(")
		for i, c := range p.Outgoing {
			if i > 0 {
				sb.WriteString(", ")
			}
			c.render(sb, varName)
		}
		sb.WriteString(")")
	}
}

// Binding maps variable ids (see VarID) to atom ids.
type Binding map[ID]ID

func (b Binding) Get(name string) (ID, bool) {
	id, ok := b[VarID(name)]
	return id, ok
}

func (b Binding) Set(name string, id ID) {
	b[VarID(name)] = id
}

func (b Binding) Clone() Binding {
	c := make(Binding, len(b))
	for k, v := range b {
		c[k] = v
	}
	return c
}

// Key is a stable rendering used to deduplicate result sets.
func (b Binding) Key() string {
	pairs := make([]string, 0, len(b))
	for k, v := range b {
		pairs = append(pairs, string(k)+"="+string(v))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ";")
}

// Restrict keeps only the given variables.
func (b Binding) Restrict(names []string) Binding {
	out := make(Binding, len(names))
	for _, n := range names {
		if id, ok := b.Get(n); ok {
			out.Set(n, id)
		}
	}
	return out
}
