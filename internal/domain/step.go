package domain

import "time"

// RuleName keys the truth-value strategy table.
type RuleName string

const (
	RuleDeduction RuleName = "deduction"
	RuleInduction RuleName = "induction"
	RuleAbduction RuleName = "abduction"
	RuleRevision  RuleName = "revision"
)

func ValidRuleName(r string) bool {
	switch RuleName(r) {
	case RuleDeduction, RuleInduction, RuleAbduction, RuleRevision:
		return true
	}
	return false
}

// PremiseRef is a premise together with the truth value the step consumed.
type PremiseRef struct {
	ID ID         `json:"id"`
	TV TruthValue `json:"tv"`
}

type ConclusionRef struct {
	ID ID `json:"id"`
}

// InferenceStep is one auditable application of a truth-value formula.
type InferenceStep struct {
	Seq          int64         `json:"seq"`
	Rule         RuleName      `json:"rule"`
	Premises     []PremiseRef  `json:"premises"`
	Conclusion   ConclusionRef `json:"conclusion"`
	TVIn         *TruthValue   `json:"tv_in,omitempty"`
	TVOut        TruthValue    `json:"tv_out"`
	Notes        []string      `json:"notes,omitempty"`
	RuleInstance string        `json:"rule_instance,omitempty"`
	RunID        string        `json:"run_id,omitempty"`
	Invalidated  bool          `json:"invalidated,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

func (s *InferenceStep) PremiseIDs() []ID {
	ids := make([]ID, len(s.Premises))
	for i, p := range s.Premises {
		ids[i] = p.ID
	}
	return ids
}

func (s *InferenceStep) Clone() *InferenceStep {
	c := *s
	c.Premises = append([]PremiseRef(nil), s.Premises...)
	c.Notes = append([]string(nil), s.Notes...)
	if s.TVIn != nil {
		tv := *s.TVIn
		c.TVIn = &tv
	}
	return &c
}

// ProvenancePolicy decides what happens to inference steps when one of
// their premises is removed.
type ProvenancePolicy string

const (
	ProvenanceReject     ProvenancePolicy = "reject"
	ProvenanceInvalidate ProvenancePolicy = "invalidate"
	ProvenanceCascade    ProvenancePolicy = "cascade"
)

func ValidProvenancePolicy(p string) bool {
	switch ProvenancePolicy(p) {
	case ProvenanceReject, ProvenanceInvalidate, ProvenanceCascade:
		return true
	}
	return false
}
