package truth

import (
	"math"

	"github.com/Harshitk-cp/atomspace/internal/domain"
)

const (
	DefaultEpsilon          = 1e-6
	DefaultAbductionPenalty = 0.5
	DefaultInductionCap     = 0.6
	DefaultInductionK       = 10.0
)

// Params are the tunable constants of the formulas.
type Params struct {
	Epsilon          float64 `yaml:"epsilon" json:"epsilon"`
	AbductionPenalty float64 `yaml:"abduction_penalty" json:"abduction_penalty"`
	InductionCap     float64 `yaml:"induction_cap" json:"induction_cap"`
	InductionK       float64 `yaml:"induction_k" json:"induction_k"`
}

func DefaultParams() Params {
	return Params{
		Epsilon:          DefaultEpsilon,
		AbductionPenalty: DefaultAbductionPenalty,
		InductionCap:     DefaultInductionCap,
		InductionK:       DefaultInductionK,
	}
}

// Deduction chains A⇒B and B⇒C into A⇒C.
func Deduction(ab, bc domain.TruthValue) domain.TruthValue {
	return domain.NewTV(ab.S*bc.S, combineConfidence(ab.C, bc.C))
}

// Induction generalises from positive out of total observations.
func Induction(positive, total int, p Params) domain.TruthValue {
	if total <= 0 {
		return domain.UnknownTV
	}
	if positive > total {
		positive = total
	}
	n := math.Sqrt(float64(total))
	c := math.Min(p.InductionCap, n/(n+p.InductionK))
	return domain.NewTV(float64(positive)/float64(total), c)
}

// Abduction infers A from B and A⇒B, damped by the abduction penalty.
func Abduction(b, ab domain.TruthValue, p Params) domain.TruthValue {
	return domain.NewTV(b.S*ab.S*p.AbductionPenalty, combineConfidence(b.C, ab.C))
}

// Revision merges two independent estimates of the same atom, weighting
// each strength by its confidence.
func Revision(t1, t2 domain.TruthValue, p Params) domain.TruthValue {
	w1 := t1.C / (1 - t1.C + p.Epsilon)
	w2 := t2.C / (1 - t2.C + p.Epsilon)
	var s float64
	if w1+w2 == 0 {
		s = (t1.S + t2.S) / 2
	} else {
		s = (w1*t1.S + w2*t2.S) / (w1 + w2)
	}
	return domain.NewTV(s, combineConfidence(t1.C, t2.C))
}

func combineConfidence(c1, c2 float64) float64 {
	return 1 - (1-c1)*(1-c2)
}
