package truth

import (
	"math"
	"testing"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-9

func approx(a, b float64) bool { return math.Abs(a-b) < tol }

func TestDeduction(t *testing.T) {
	tests := []struct {
		name   string
		ab, bc domain.TruthValue
		wantS  float64
		wantC  float64
	}{
		{"reference values", domain.NewTV(0.9, 0.8), domain.NewTV(0.8, 0.9), 0.72, 0.98},
		{"zero confidence", domain.NewTV(1, 0), domain.NewTV(1, 0), 1, 0},
		{"certain premise", domain.NewTV(0.5, 1), domain.NewTV(0.5, 0.2), 0.25, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Deduction(tt.ab, tt.bc)
			if !approx(got.S, tt.wantS) || !approx(got.C, tt.wantC) {
				t.Errorf("Deduction(%v, %v) = %v, want (%v, %v)", tt.ab, tt.bc, got, tt.wantS, tt.wantC)
			}
		})
	}
}

func TestRevision(t *testing.T) {
	p := DefaultParams()

	got := Revision(domain.NewTV(0.9, 0.6), domain.NewTV(0.8, 0.9), p)
	assert.InDelta(t, 0.96, got.C, tol)

	w1 := 0.6 / (0.4 + p.Epsilon)
	w2 := 0.9 / (0.1 + p.Epsilon)
	assert.InDelta(t, (w1*0.9+w2*0.8)/(w1+w2), got.S, tol)

	t.Run("confidence never decreases", func(t *testing.T) {
		a, b := domain.NewTV(0.2, 0.3), domain.NewTV(0.7, 0.5)
		r := Revision(a, b, p)
		assert.GreaterOrEqual(t, r.C, math.Max(a.C, b.C))
	})

	t.Run("unknown values average strengths", func(t *testing.T) {
		r := Revision(domain.NewTV(0.2, 0), domain.NewTV(0.6, 0), p)
		assert.InDelta(t, 0.4, r.S, tol)
		assert.InDelta(t, 0, r.C, tol)
	})

	t.Run("revising against unknown keeps the evidence", func(t *testing.T) {
		r := Revision(domain.UnknownTV, domain.NewTV(0.8, 0.7), p)
		assert.InDelta(t, 0.8, r.S, tol)
		assert.InDelta(t, 0.7, r.C, tol)
	})
}

func TestInduction(t *testing.T) {
	p := DefaultParams()
	tests := []struct {
		positive, total int
		wantS, wantC    float64
	}{
		{1, 1, 1, 1.0 / 11},
		{3, 4, 0.75, 2.0 / 12},
		{50, 100, 0.5, 0.5},
		{10000, 10000, 1, 0.6},
	}
	for _, tt := range tests {
		got := Induction(tt.positive, tt.total, p)
		if !approx(got.S, tt.wantS) || !approx(got.C, tt.wantC) {
			t.Errorf("Induction(%d, %d) = %v, want (%v, %v)", tt.positive, tt.total, got, tt.wantS, tt.wantC)
		}
	}

	if got := Induction(0, 0, p); got != domain.UnknownTV {
		t.Errorf("Induction with no observations = %v, want unknown", got)
	}
}

func TestAbduction(t *testing.T) {
	p := DefaultParams()
	got := Abduction(domain.NewTV(0.8, 0.5), domain.NewTV(0.9, 0.5), p)
	assert.InDelta(t, 0.8*0.9*0.5, got.S, tol)
	assert.InDelta(t, 0.75, got.C, tol)

	p.AbductionPenalty = 1
	got = Abduction(domain.NewTV(0.8, 0.5), domain.NewTV(0.9, 0.5), p)
	assert.InDelta(t, 0.72, got.S, tol)
}

func TestAlgebra_Apply(t *testing.T) {
	alg := NewAlgebra(DefaultParams())

	tv, notes, err := alg.Apply(domain.RuleDeduction, Evidence{Premises: []domain.TruthValue{domain.NewTV(0.9, 0.8), domain.NewTV(0.8, 0.9)}})
	require.NoError(t, err)
	assert.InDelta(t, 0.72, tv.S, tol)
	assert.Empty(t, notes, "canonical formulas carry no notes")

	_, notes, err = alg.Apply(domain.RuleInduction, Evidence{Positive: 2, Total: 3})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "default")

	_, _, err = alg.Apply(domain.RuleDeduction, Evidence{Premises: []domain.TruthValue{domain.UnknownTV}})
	assert.Error(t, err)
}

func TestAlgebra_UnknownRule(t *testing.T) {
	alg := NewAlgebra(DefaultParams())
	alg.Unregister(domain.RuleAbduction)

	_, _, err := alg.Apply(domain.RuleAbduction, Evidence{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnknownRule))

	var ure *domain.UnknownRuleError
	require.True(t, errors.As(err, &ure))
	assert.Equal(t, "abduction", ure.Rule)
}

func TestAlgebra_Register(t *testing.T) {
	alg := NewAlgebra(DefaultParams())

	err := alg.Register(Strategy{
		Rule: domain.RuleInduction,
		Formula: func(ev Evidence) (domain.TruthValue, error) {
			return domain.NewTV(float64(ev.Positive)/float64(ev.Total), 0.3), nil
		},
	})
	require.NoError(t, err)

	tv, notes, err := alg.Apply(domain.RuleInduction, Evidence{Positive: 1, Total: 2})
	require.NoError(t, err)
	assert.Equal(t, domain.NewTV(0.5, 0.3), tv)
	assert.Empty(t, notes, "a replaced strategy is canonical unless marked default")

	assert.Error(t, alg.Register(Strategy{Rule: "custom"}))
	assert.Error(t, alg.Register(Strategy{Formula: func(Evidence) (domain.TruthValue, error) { return domain.UnknownTV, nil }}))
}
