package domain

import (
	"fmt"
	"math"
)

// ID is the content address of an atom.
type ID string

type Kind string

const (
	KindNode Kind = "Node"
	KindLink Kind = "Link"
)

func ValidKind(k string) bool {
	switch Kind(k) {
	case KindNode, KindLink:
		return true
	}
	return false
}

// TruthValue is a (strength, confidence) pair, both in [0,1].
type TruthValue struct {
	S float64 `json:"s"`
	C float64 `json:"c"`
}

// UnknownTV is attached to atoms inserted without an explicit truth value.
var UnknownTV = TruthValue{S: 0.5, C: 0}

func NewTV(s, c float64) TruthValue {
	return TruthValue{S: clampUnit(s), C: clampUnit(c)}
}

// IsUnknown reports whether the value carries no evidence.
func (tv TruthValue) IsUnknown() bool {
	return tv.C == 0
}

func (tv TruthValue) Clamp() TruthValue {
	return NewTV(tv.S, tv.C)
}

func (tv TruthValue) String() string {
	return fmt.Sprintf("(s=%.3f, c=%.3f)", tv.S, tv.C)
}

// AttentionValue holds short- and long-term importance. It never affects truth.
type AttentionValue struct {
	STI float64 `json:"sti"`
	LTI float64 `json:"lti"`
}

func NewAV(sti, lti float64) AttentionValue {
	return AttentionValue{STI: clampUnit(sti), LTI: clampUnit(lti)}
}

// Merge keeps the larger importance on each axis.
func (av AttentionValue) Merge(other AttentionValue) AttentionValue {
	return NewAV(math.Max(av.STI, other.STI), math.Max(av.LTI, other.LTI))
}

// Atom is either a named node or a link over other atoms. ID, Kind, Subtype,
// Name and Outgoing never change after insertion; TV and AV may.
type Atom struct {
	ID       ID              `json:"id"`
	Kind     Kind            `json:"kind"`
	Subtype  string          `json:"subtype"`
	Name     string          `json:"name,omitempty"`
	Outgoing []ID            `json:"outgoing,omitempty"`
	TV       TruthValue      `json:"tv"`
	AV       *AttentionValue `json:"av,omitempty"`
}

func NewNode(subtype, name string) *Atom {
	return &Atom{Kind: KindNode, Subtype: subtype, Name: name, TV: UnknownTV}
}

func NewLink(subtype string, outgoing ...ID) *Atom {
	out := make([]ID, len(outgoing))
	copy(out, outgoing)
	return &Atom{Kind: KindLink, Subtype: subtype, Outgoing: out, TV: UnknownTV}
}

// WithTV sets the truth value and returns the atom for chaining.
func (a *Atom) WithTV(s, c float64) *Atom {
	a.TV = NewTV(s, c)
	return a
}

func (a *Atom) WithAV(sti, lti float64) *Atom {
	av := NewAV(sti, lti)
	a.AV = &av
	return a
}

func (a *Atom) IsNode() bool { return a.Kind == KindNode }

func (a *Atom) IsLink() bool { return a.Kind == KindLink }

// Clone returns a deep copy safe to hand out of the store.
func (a *Atom) Clone() *Atom {
	c := *a
	if a.Outgoing != nil {
		c.Outgoing = make([]ID, len(a.Outgoing))
		copy(c.Outgoing, a.Outgoing)
	}
	if a.AV != nil {
		av := *a.AV
		c.AV = &av
	}
	return &c
}

// SameStructure compares identity-bearing fields only.
func (a *Atom) SameStructure(b *Atom) bool {
	if a.Kind != b.Kind || a.Subtype != b.Subtype || a.Name != b.Name {
		return false
	}
	if len(a.Outgoing) != len(b.Outgoing) {
		return false
	}
	for i := range a.Outgoing {
		if a.Outgoing[i] != b.Outgoing[i] {
			return false
		}
	}
	return true
}

func (a *Atom) String() string {
	if a.Kind == KindNode {
		return fmt.Sprintf("%s(%q) %s", a.Subtype, a.Name, a.TV)
	}
	return fmt.Sprintf("%s%v %s", a.Subtype, a.Outgoing, a.TV)
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
