package service

import (
	"testing"
	"time"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func sti(t *testing.T, s domain.AtomStore, id domain.ID) float64 {
	t.Helper()
	a, err := s.Get(id)
	require.NoError(t, err)
	if a.AV == nil {
		return 0
	}
	return a.AV.STI
}

func TestAttention_TouchSaturates(t *testing.T) {
	s := newSpace()
	cat := concept(t, s, "cat")
	a := NewAttentionAllocator(s, zap.NewNop())
	a.Increment = 0.4

	require.NoError(t, a.Touch(cat))
	assert.InDelta(t, 0.4, sti(t, s, cat), 1e-9)
	require.NoError(t, a.Touch(cat))
	require.NoError(t, a.Touch(cat))
	assert.Equal(t, 1.0, sti(t, s, cat))
}

func TestAttention_TouchMissingAtom(t *testing.T) {
	a := NewAttentionAllocator(newSpace(), zap.NewNop())
	err := a.Touch("n:missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestAttention_TouchAllIsAllOrNothing(t *testing.T) {
	s := newSpace()
	cat, dog := concept(t, s, "cat"), concept(t, s, "dog")
	a := NewAttentionAllocator(s, zap.NewNop())
	a.Increment = 0.3

	err := a.TouchAll([]domain.ID{cat, "n:missing", dog})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Zero(t, sti(t, s, cat), "no atom is touched when one id is unknown")
	assert.Zero(t, sti(t, s, dog))

	require.NoError(t, a.TouchAll([]domain.ID{cat, dog}))
	assert.InDelta(t, 0.3, sti(t, s, cat), 1e-9)
	assert.InDelta(t, 0.3, sti(t, s, dog), 1e-9)
}

func TestAttention_TouchLeavesTruthAlone(t *testing.T) {
	s := newSpace()
	id := put(t, s, domain.NewNode(domain.ConceptNode, "cat").WithTV(0.7, 0.4))
	a := NewAttentionAllocator(s, zap.NewNop())

	require.NoError(t, a.Touch(id))
	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, domain.NewTV(0.7, 0.4), got.TV)
}

func TestAttention_Decay(t *testing.T) {
	s := newSpace()
	hot := put(t, s, domain.NewNode(domain.ConceptNode, "hot").WithAV(0.8, 0.5))
	cold := concept(t, s, "cold")
	a := NewAttentionAllocator(s, zap.NewNop())

	assert.Equal(t, 1, a.Decay(0.5))
	assert.InDelta(t, 0.4, sti(t, s, hot), 1e-9)
	assert.Zero(t, sti(t, s, cold))

	got, err := s.Get(hot)
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.AV.LTI, "long-term importance is untouched")

	assert.Zero(t, a.Decay(0))
	a.Decay(5)
	assert.Zero(t, sti(t, s, hot), "rate is capped at 1")
}

func TestAttention_Focus(t *testing.T) {
	s := newSpace()
	low := put(t, s, domain.NewNode(domain.ConceptNode, "low").WithAV(0.2, 0))
	high := put(t, s, domain.NewNode(domain.ConceptNode, "high").WithAV(0.9, 0))
	mid := put(t, s, domain.NewNode(domain.ConceptNode, "mid").WithAV(0.5, 0))
	concept(t, s, "none")
	a := NewAttentionAllocator(s, zap.NewNop())

	var got []domain.ID
	for _, atom := range a.Focus(0.3) {
		got = append(got, atom.ID)
	}
	assert.Equal(t, []domain.ID{high, mid}, got)
	assert.NotContains(t, got, low)
	assert.Len(t, a.Focus(0), 3)
}

func TestAttention_WorkerStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newSpace()
	id := put(t, s, domain.NewNode(domain.ConceptNode, "cat").WithAV(1, 0))
	a := NewAttentionAllocator(s, zap.NewNop())
	a.SetInterval(5 * time.Millisecond)
	a.Rate = 0.5

	a.Start()
	require.Eventually(t, func() bool { return sti(t, s, id) < 0.5 }, time.Second, 5*time.Millisecond)
	a.Stop()
	a.Stop()
}
