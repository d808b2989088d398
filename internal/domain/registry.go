package domain

import (
	"sort"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
)

const (
	ConceptNode   = "ConceptNode"
	PredicateNode = "PredicateNode"
	NumberNode    = "NumberNode"
	VariableNode  = "VariableNode"
	SchemaNode    = "SchemaNode"

	InheritanceLink = "InheritanceLink"
	ImplicationLink = "ImplicationLink"
	EvaluationLink  = "EvaluationLink"
	ListLink        = "ListLink"
	SetLink         = "SetLink"
	AndLink         = "AndLink"
	MemberLink      = "MemberLink"
	SimilarityLink  = "SimilarityLink"
)

// Variadic marks a subtype without an upper arity bound.
const Variadic = -1

// SubtypeSpec is one row of the type table. Adding a subtype is a data
// registration; nothing dispatches on Go types.
type SubtypeSpec struct {
	Name      string
	Kind      Kind
	MinArity  int
	MaxArity  int
	Unordered bool
	// ValidateName checks a node payload, e.g. numeric nodes.
	ValidateName func(name string) error
}

func (s SubtypeSpec) Variadic() bool { return s.MaxArity == Variadic }

// TypeRegistry is the closed-but-extensible set of atom subtypes.
type TypeRegistry struct {
	mu    sync.RWMutex
	specs map[string]SubtypeSpec
	order []string
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{specs: make(map[string]SubtypeSpec)}
}

// DefaultTypeRegistry returns a registry loaded with the built-in subtypes.
func DefaultTypeRegistry() *TypeRegistry {
	r := NewTypeRegistry()
	for _, s := range defaultSubtypes() {
		_ = r.Register(s)
	}
	return r
}

func defaultSubtypes() []SubtypeSpec {
	return []SubtypeSpec{
		{Name: ConceptNode, Kind: KindNode},
		{Name: PredicateNode, Kind: KindNode},
		{Name: NumberNode, Kind: KindNode, ValidateName: func(name string) error {
			if _, err := strconv.ParseFloat(name, 64); err != nil {
				return errors.Newf("%q is not a number", name)
			}
			return nil
		}},
		{Name: VariableNode, Kind: KindNode},
		{Name: SchemaNode, Kind: KindNode},
		{Name: InheritanceLink, Kind: KindLink, MinArity: 2, MaxArity: 2},
		{Name: ImplicationLink, Kind: KindLink, MinArity: 2, MaxArity: 2},
		{Name: EvaluationLink, Kind: KindLink, MinArity: 2, MaxArity: 2},
		{Name: MemberLink, Kind: KindLink, MinArity: 2, MaxArity: 2},
		{Name: SimilarityLink, Kind: KindLink, MinArity: 2, MaxArity: 2, Unordered: true},
		{Name: ListLink, Kind: KindLink, MinArity: 0, MaxArity: Variadic},
		{Name: SetLink, Kind: KindLink, MinArity: 0, MaxArity: Variadic, Unordered: true},
		{Name: AndLink, Kind: KindLink, MinArity: 1, MaxArity: Variadic, Unordered: true},
	}
}

func (r *TypeRegistry) Register(spec SubtypeSpec) error {
	if spec.Name == "" {
		return errors.New("subtype name is required")
	}
	if !ValidKind(string(spec.Kind)) {
		return errors.Newf("subtype %s: invalid kind %q", spec.Name, spec.Kind)
	}
	if spec.Kind == KindNode && (spec.MinArity != 0 || spec.MaxArity != 0) {
		return errors.Newf("subtype %s: nodes have no arity", spec.Name)
	}
	if spec.Kind == KindLink {
		if spec.MinArity < 0 {
			return errors.Newf("subtype %s: negative minimum arity", spec.Name)
		}
		if spec.MaxArity != Variadic && spec.MaxArity < spec.MinArity {
			return errors.Newf("subtype %s: max arity %d below min arity %d", spec.Name, spec.MaxArity, spec.MinArity)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.Name]; exists {
		return errors.Newf("subtype %s already registered", spec.Name)
	}
	r.specs[spec.Name] = spec
	r.order = append(r.order, spec.Name)
	return nil
}

func (r *TypeRegistry) Lookup(name string) (SubtypeSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[name]
	return s, ok
}

// Subtypes lists registered subtypes of a kind in registration order.
// An empty kind lists all of them.
func (r *TypeRegistry) Subtypes(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, name := range r.order {
		if kind == "" || r.specs[name].Kind == kind {
			out = append(out, name)
		}
	}
	return out
}

// CheckArity validates an outgoing-set length against the subtype rule.
func (s SubtypeSpec) CheckArity(n int) error {
	if n < s.MinArity {
		return NewStructuralError(s.Name, "arity %d below minimum %d", n, s.MinArity)
	}
	if s.MaxArity != Variadic && n > s.MaxArity {
		return NewStructuralError(s.Name, "arity %d above maximum %d", n, s.MaxArity)
	}
	return nil
}

// Validate checks the identity-bearing fields of an atom and, for unordered
// subtypes, sorts its outgoing set in place.
func (r *TypeRegistry) Validate(a *Atom) error {
	spec, ok := r.Lookup(a.Subtype)
	if !ok {
		return NewStructuralError(a.Subtype, "subtype is not registered")
	}
	if a.Kind != spec.Kind {
		return NewStructuralError(a.Subtype, "kind %s does not match registered kind %s", a.Kind, spec.Kind)
	}

	switch a.Kind {
	case KindNode:
		if len(a.Outgoing) > 0 {
			return NewStructuralError(a.Subtype, "nodes cannot have outgoing atoms")
		}
		if a.Name == "" {
			return NewStructuralError(a.Subtype, "nodes require a name")
		}
		if spec.ValidateName != nil {
			if err := spec.ValidateName(a.Name); err != nil {
				return NewStructuralError(a.Subtype, "%s", err.Error())
			}
		}
	case KindLink:
		if a.Name != "" {
			return NewStructuralError(a.Subtype, "links cannot carry a name")
		}
		if err := spec.CheckArity(len(a.Outgoing)); err != nil {
			return err
		}
		if spec.Unordered {
			sort.Slice(a.Outgoing, func(i, j int) bool { return a.Outgoing[i] < a.Outgoing[j] })
		}
	}
	return nil
}
