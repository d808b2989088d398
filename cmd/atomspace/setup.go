package main

import (
	"context"

	"github.com/Harshitk-cp/atomspace/internal/config"
	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/Harshitk-cp/atomspace/internal/service"
	"github.com/Harshitk-cp/atomspace/internal/store"
	"github.com/Harshitk-cp/atomspace/internal/truth"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

func newLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(config.LogLevel())
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	return cfg.Build()
}

// stack is everything a command needs: the store, its persistence and the
// reasoning stack on top.
type stack struct {
	logger      *zap.Logger
	rules       *config.Rules
	algebra     *truth.Algebra
	ruleSet     *service.RuleSet
	space       *store.AtomSpace
	snapshotter domain.Snapshotter
	close       func()
}

func setup(ctx context.Context) (*stack, error) {
	if err := config.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	logger, err := newLogger()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}

	rules, err := config.LoadRules(config.RulesFile())
	if err != nil {
		return nil, err
	}
	reg := domain.DefaultTypeRegistry()
	ruleSet, err := rules.RuleSet(reg)
	if err != nil {
		return nil, errors.Wrap(err, "build rule set")
	}
	algebra := rules.Algebra()

	space := store.NewAtomSpace(reg, logger,
		store.WithAlgebra(algebra),
		store.WithProvenancePolicy(config.ProvenancePolicy()))

	rt := &stack{
		logger:  logger,
		rules:   rules,
		algebra: algebra,
		ruleSet: ruleSet,
		space:   space,
		close:   func() {},
	}
	if err := rt.openSnapshotter(ctx); err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *stack) openSnapshotter(ctx context.Context) error {
	s, closeFn, err := store.OpenSnapshotter(ctx, config.Snapshot())
	if err != nil {
		return err
	}
	rt.snapshotter, rt.close = s, closeFn
	rt.logger.Info("snapshot backend ready", zap.String("backend", config.SnapshotBackend()))
	return nil
}

// load restores the last snapshot. A missing snapshot leaves the store empty.
func (rt *stack) load(ctx context.Context) error {
	if rt.snapshotter == nil {
		return nil
	}
	snap, err := rt.snapshotter.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		rt.logger.Info("no snapshot found, starting empty")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "load snapshot")
	}
	if err := rt.space.Restore(snap); err != nil {
		return errors.Wrap(err, "restore snapshot")
	}
	rt.logger.Info("snapshot loaded", zap.Int("atoms", len(snap.Atoms)), zap.Int("steps", len(snap.Steps)))
	return nil
}

func (rt *stack) save(ctx context.Context) error {
	if rt.snapshotter == nil {
		return nil
	}
	snap := rt.space.Snapshot()
	if err := rt.snapshotter.Save(ctx, snap); err != nil {
		return errors.Wrap(err, "save snapshot")
	}
	rt.logger.Info("snapshot saved", zap.Int("atoms", len(snap.Atoms)), zap.Int("steps", len(snap.Steps)))
	return nil
}

func (rt *stack) engine() *service.Engine {
	attention := service.NewAttentionAllocator(rt.space, rt.logger)
	attention.Increment = config.AttentionTouchIncrement()
	attention.Rate = config.AttentionDecayRate()
	return service.NewEngine(rt.space, rt.algebra, rt.ruleSet, attention, config.Engine(rt.rules), rt.logger)
}

func (rt *stack) shutdown() {
	rt.close()
	_ = rt.logger.Sync()
}
