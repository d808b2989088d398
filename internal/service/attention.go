package service

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	defaultDecayInterval = 1 * time.Minute

	DefaultTouchIncrement = 0.1
	DefaultDecayRate      = 0.05
)

// AttentionAllocator maintains short-term importance. It never touches
// truth values; it only changes how much of the store focused search sees.
type AttentionAllocator struct {
	store  domain.AtomStore
	logger *zap.Logger

	Increment float64
	Rate      float64

	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewAttentionAllocator(store domain.AtomStore, logger *zap.Logger) *AttentionAllocator {
	return &AttentionAllocator{
		store:     store,
		logger:    logger,
		Increment: DefaultTouchIncrement,
		Rate:      DefaultDecayRate,
		interval:  defaultDecayInterval,
		stopCh:    make(chan struct{}),
	}
}

func (a *AttentionAllocator) SetInterval(d time.Duration) {
	a.interval = d
}

// Touch raises an atom's sti by the increment, saturating at 1.
func (a *AttentionAllocator) Touch(id domain.ID) error {
	return a.store.UpdateAV(id, func(av domain.AttentionValue) domain.AttentionValue {
		av.STI = math.Min(1, av.STI+a.Increment)
		return av
	})
}

// TouchAll touches every id, or none of them when any id is unknown.
func (a *AttentionAllocator) TouchAll(ids []domain.ID) error {
	var missing []domain.ID
	for _, id := range ids {
		if _, err := a.store.Get(id); err != nil {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return errors.Wrapf(domain.ErrNotFound, "touch: unknown atoms %v", missing)
	}
	for _, id := range ids {
		if err := a.Touch(id); err != nil {
			return err
		}
	}
	return nil
}

// TouchStep touches every premise and the conclusion of a step.
func (a *AttentionAllocator) TouchStep(step *domain.InferenceStep) {
	seen := make(map[domain.ID]bool, len(step.Premises)+1)
	ids := append(step.PremiseIDs(), step.Conclusion.ID)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if err := a.Touch(id); err != nil && !errors.Is(err, domain.ErrNotFound) {
			a.logger.Warn("failed to touch atom",
				zap.String("atom_id", string(id)),
				zap.Error(err))
		}
	}
}

// Decay reduces every sti by the fraction rate and returns how many atoms
// were affected.
func (a *AttentionAllocator) Decay(rate float64) int {
	if rate <= 0 {
		return 0
	}
	if rate > 1 {
		rate = 1
	}
	n := a.store.UpdateAllAV(func(av domain.AttentionValue) domain.AttentionValue {
		av.STI = math.Max(0, av.STI*(1-rate))
		return av
	})
	attentionDecaysTotal.Inc()
	a.logger.Debug("attention decayed", zap.Float64("rate", rate), zap.Int("atoms", n))
	return n
}

// Focus lists atoms with sti of at least threshold, most important first.
func (a *AttentionAllocator) Focus(threshold float64) []*domain.Atom {
	var out []*domain.Atom
	for _, atom := range a.store.Find(domain.Filter{}) {
		if atom.AV != nil && atom.AV.STI >= threshold {
			out = append(out, atom)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AV.STI > out[j].AV.STI })
	return out
}

// Start runs Decay on a ticker until Stop is called.
func (a *AttentionAllocator) Start() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()

		a.logger.Info("attention decay worker started",
			zap.Duration("interval", a.interval),
			zap.Float64("rate", a.Rate))

		for {
			select {
			case <-ticker.C:
				a.Decay(a.Rate)
			case <-a.stopCh:
				a.logger.Info("attention decay worker stopped")
				return
			}
		}
	}()
}

func (a *AttentionAllocator) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
	a.wg.Wait()
}
