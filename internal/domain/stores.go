package domain

import (
	"context"
	"time"
)

// Filter selects atoms by kind, subtype and name. Empty fields match anything.
type Filter struct {
	Kind    Kind   `json:"kind,omitempty"`
	Subtype string `json:"subtype,omitempty"`
	Name    string `json:"name,omitempty"`
}

type StepFilter struct {
	Rule        RuleName
	Conclusion  ID
	Premise     ID
	RunID       string
	Invalidated *bool
}

// InsertResult reports what an insertion did to the store.
type InsertResult struct {
	ID      ID
	Created bool
	// Revision is set when the insertion collided with an existing atom and
	// its truth value was revised.
	Revision *InferenceStep
}

// Derivation is a conclusion together with the step that produced it.
type Derivation struct {
	Atom *Atom
	Step *InferenceStep
}

type DeriveResult struct {
	ID       ID
	Created  bool
	Step     *InferenceStep
	Revision *InferenceStep
}

// AtomStore is the hypergraph the reasoner works against.
type AtomStore interface {
	Registry() *TypeRegistry
	Insert(a *Atom) (InsertResult, error)
	Derive(d Derivation) (DeriveResult, error)
	Get(id ID) (*Atom, error)
	Lookup(a *Atom) (ID, bool)
	Find(f Filter) []*Atom
	Candidates(subtype string) []ID
	Incoming(id ID) []*Atom
	Remove(id ID, cascade bool) ([]ID, error)
	UpdateAV(id ID, fn func(AttentionValue) AttentionValue) error
	UpdateAllAV(fn func(AttentionValue) AttentionValue) int
	Steps(f StepFilter) []*InferenceStep
	Trace(id ID) []*InferenceStep
	Stats() Stats
	Snapshot() *Snapshot
	Restore(s *Snapshot) error
	Len() int
}

type Stats struct {
	Atoms            int              `json:"atoms"`
	Nodes            int              `json:"nodes"`
	Links            int              `json:"links"`
	BySubtype        map[string]int   `json:"by_subtype"`
	Steps            int              `json:"steps"`
	InvalidatedSteps int              `json:"invalidated_steps"`
	StepsByRule      map[RuleName]int `json:"steps_by_rule"`
	Components       int              `json:"components"`
	LargestComponent int              `json:"largest_component"`
}

// Snapshot is the persisted form of a store: atoms in insertion order and
// the full step ledger.
type Snapshot struct {
	Version string           `json:"version"`
	SavedAt time.Time        `json:"saved_at"`
	Atoms   []*Atom          `json:"atoms"`
	Steps   []*InferenceStep `json:"steps"`
}

type Snapshotter interface {
	Save(ctx context.Context, s *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}
