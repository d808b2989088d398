package service

import (
	"sort"
	"strings"
	"time"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/Harshitk-cp/atomspace/internal/truth"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Status string

const (
	StatusFixpoint        Status = "Fixpoint"
	StatusBudgetExhausted Status = "BudgetExhausted"
	StatusGoalProved      Status = "GoalProved"
	StatusGoalFailed      Status = "GoalFailed"
	StatusCancelled       Status = "Cancelled"
)

const (
	DefaultConfidenceThreshold = 0.1
	DefaultMaxDepth            = 8
	DefaultMaxPasses           = 16
	DefaultMaxSteps            = 10000
	DefaultChainTimeout        = 30 * time.Second
)

// Budget bounds a chaining run. Zero fields fall back to the engine defaults.
type Budget struct {
	MaxPasses int           `json:"max_passes,omitempty"`
	MaxSteps  int           `json:"max_steps,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
}

func (b Budget) withDefaults(d Budget) Budget {
	if b.MaxPasses == 0 {
		b.MaxPasses = d.MaxPasses
	}
	if b.MaxSteps == 0 {
		b.MaxSteps = d.MaxSteps
	}
	if b.Timeout == 0 {
		b.Timeout = d.Timeout
	}
	return b
}

type EngineConfig struct {
	Workers             int
	ConfidenceThreshold float64
	MaxDepth            int
	Budget              Budget
	// DecayPerPass applies attention decay after every forward pass.
	DecayPerPass bool
	DecayRate    float64
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Workers:             4,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		MaxDepth:            DefaultMaxDepth,
		Budget: Budget{
			MaxPasses: DefaultMaxPasses,
			MaxSteps:  DefaultMaxSteps,
			Timeout:   DefaultChainTimeout,
		},
		DecayRate: DefaultDecayRate,
	}
}

// Engine runs forward and backward chaining over a store. It holds no
// per-run state, so concurrent runs are allowed.
type Engine struct {
	store     domain.AtomStore
	algebra   *truth.Algebra
	matcher   *Matcher
	rules     *RuleSet
	attention *AttentionAllocator
	cfg       EngineConfig
	logger    *zap.Logger
	hook      TransitionFunc
}

// NewEngine wires an engine. attention may be nil.
func NewEngine(store domain.AtomStore, algebra *truth.Algebra, rules *RuleSet, attention *AttentionAllocator, cfg EngineConfig, logger *zap.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Engine{
		store:     store,
		algebra:   algebra,
		matcher:   NewMatcher(store, logger),
		rules:     rules,
		attention: attention,
		cfg:       cfg,
		logger:    logger,
	}
}

// OnTransition installs a hook called on every state change of every run.
func (e *Engine) OnTransition(fn TransitionFunc) {
	e.hook = fn
}

func (e *Engine) Matcher() *Matcher { return e.matcher }

func (e *Engine) Rules() *RuleSet { return e.rules }

func (e *Engine) Config() EngineConfig { return e.cfg }

// candidate is one rule application waiting to be recorded.
type candidate struct {
	rule       Rule
	key        string
	premises   []domain.PremiseRef
	conclusion *domain.Pattern
	evidence   truth.Evidence
}

// run holds the mutable state of a single chaining run.
type run struct {
	id       string
	machine  *machine
	deadline time.Time
	budget   Budget
	applied  map[string]bool
	steps    []*domain.InferenceStep
	derived  []domain.ID
	seen     map[domain.ID]bool
	errs     []string
}

func (e *Engine) newRun(id string, budget Budget) *run {
	if id == "" {
		id = uuid.NewString()
	}
	r := &run{
		id:      id,
		machine: newMachine(id, e.hook, e.logger),
		budget:  budget,
		applied: make(map[string]bool),
		seen:    make(map[domain.ID]bool),
	}
	if budget.Timeout > 0 {
		r.deadline = time.Now().Add(budget.Timeout)
	}
	return r
}

func (r *run) timedOut() bool {
	return !r.deadline.IsZero() && time.Now().After(r.deadline)
}

func (r *run) outOfSteps() bool {
	return r.budget.MaxSteps > 0 && len(r.steps) >= r.budget.MaxSteps
}

func (r *run) appliedKeys() []string {
	keys := make([]string, 0, len(r.applied))
	for k := range r.applied {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// premiseRefs loads premise atoms and rejects the application when any
// premise lacks sufficient confidence.
func (e *Engine) premiseRefs(ids []domain.ID) ([]domain.PremiseRef, bool) {
	refs := make([]domain.PremiseRef, len(ids))
	for i, id := range ids {
		a, err := e.store.Get(id)
		if err != nil || a.TV.C <= e.cfg.ConfidenceThreshold {
			return nil, false
		}
		refs[i] = domain.PremiseRef{ID: id, TV: a.TV}
	}
	return refs, true
}

func tvs(refs []domain.PremiseRef) []domain.TruthValue {
	out := make([]domain.TruthValue, len(refs))
	for i, p := range refs {
		out[i] = p.TV
	}
	return out
}

// collect matches a rule's premises and turns the bindings into candidates.
// resolve maps variables that were substituted away (backward chaining)
// back to atoms for the distinct check.
func (e *Engine) collect(rule Rule, working map[domain.ID]bool, focus *float64, resolve func(domain.Binding, string) (domain.ID, bool)) ([]candidate, error) {
	var opts []MatchOption
	if focus != nil {
		opts = append(opts, WithFocus(*focus))
	}
	matches, err := e.matcher.MatchAll(rule.Premises, opts...)
	if err != nil {
		return nil, err
	}

	type group struct {
		cand     candidate
		seen     map[domain.ID]bool
		positive int
		total    int
	}
	var (
		out    []candidate
		groups []*group
		byKey  = map[string]*group{}
	)
	for ids, b := range matches {
		if !rule.admitsWith(b, resolve) {
			continue
		}
		if working != nil && !touchesWorkingSet(ids, working) {
			continue
		}
		refs, ok := e.premiseRefs(ids)
		if !ok {
			continue
		}
		concl := rule.Conclusion.Substitute(b)
		if concl.IsRef() && containsID(ids, concl.ID) {
			continue
		}

		if !rule.Aggregate {
			out = append(out, candidate{
				rule:       rule,
				key:        rule.Name + "|" + b.Key() + "|" + idsKey(ids),
				premises:   refs,
				conclusion: concl,
				evidence:   truth.Evidence{Premises: tvs(refs), Positive: 1, Total: 1},
			})
			continue
		}

		ckey := concl.Key()
		g, ok := byKey[ckey]
		if !ok {
			g = &group{
				cand: candidate{rule: rule, key: rule.Name + "|" + ckey, conclusion: concl},
				seen: make(map[domain.ID]bool),
			}
			byKey[ckey] = g
			groups = append(groups, g)
		}
		g.total++
		if allStrong(refs) {
			g.positive++
		}
		for _, ref := range refs {
			if !g.seen[ref.ID] {
				g.seen[ref.ID] = true
				g.cand.premises = append(g.cand.premises, ref)
			}
		}
	}
	for _, g := range groups {
		g.cand.evidence = truth.Evidence{Premises: tvs(g.cand.premises), Positive: g.positive, Total: g.total}
		out = append(out, g.cand)
	}
	return out, nil
}

// allStrong reports whether an observation counts as positive evidence.
func allStrong(refs []domain.PremiseRef) bool {
	for _, r := range refs {
		if r.TV.S <= 0.5 {
			return false
		}
	}
	return true
}

func touchesWorkingSet(ids []domain.ID, working map[domain.ID]bool) bool {
	for _, id := range ids {
		if working[id] {
			return true
		}
	}
	return false
}

func containsID(ids []domain.ID, id domain.ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func idsKey(ids []domain.ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ",")
}

// materialize builds the atom a ground conclusion template denotes,
// inserting any missing inner atoms with unknown truth values.
func (e *Engine) materialize(p *domain.Pattern) (*domain.Atom, error) {
	switch {
	case p.IsVar():
		return nil, domain.NewQueryError("conclusion variable $%s is unbound", p.Var)
	case p.ID != "":
		a, err := e.store.Get(p.ID)
		if err != nil {
			return nil, err
		}
		a.TV = domain.UnknownTV
		a.AV = nil
		return a, nil
	case len(p.Outgoing) == 0 && p.Name != "":
		return domain.NewNode(p.Subtype, p.Name), nil
	}
	ids := make([]domain.ID, len(p.Outgoing))
	for i, c := range p.Outgoing {
		if c.ID != "" {
			ids[i] = c.ID
			continue
		}
		inner, err := e.materialize(c)
		if err != nil {
			return nil, err
		}
		res, err := e.store.Insert(inner)
		if err != nil {
			return nil, err
		}
		ids[i] = res.ID
	}
	return domain.NewLink(p.Subtype, ids...), nil
}

// apply computes and records one candidate. A formula failure is logged and
// skips only this application.
func (e *Engine) apply(r *run, c candidate) (domain.ID, bool) {
	r.machine.to(StateComputingConclusion)
	tv, notes, err := e.algebra.Apply(c.rule.Formula, c.evidence)
	if err != nil {
		e.logger.Warn("rule application failed",
			zap.String("run_id", r.id),
			zap.String("rule", c.rule.Name),
			zap.Error(err))
		r.errs = append(r.errs, c.rule.Name+": "+err.Error())
		return "", false
	}
	atom, err := e.materialize(c.conclusion)
	if err != nil {
		e.logger.Warn("conclusion could not be built",
			zap.String("run_id", r.id),
			zap.String("rule", c.rule.Name),
			zap.Error(err))
		r.errs = append(r.errs, c.rule.Name+": "+err.Error())
		return "", false
	}
	if id, ok := e.store.Lookup(atom); ok {
		for _, p := range c.premises {
			if p.ID == id {
				return "", false
			}
		}
	}

	r.machine.to(StateRecording)
	res, err := e.store.Derive(domain.Derivation{
		Atom: atom,
		Step: &domain.InferenceStep{
			Rule:         c.rule.Formula,
			Premises:     c.premises,
			TVOut:        tv,
			Notes:        notes,
			RuleInstance: c.rule.Name,
			RunID:        r.id,
		},
	})
	if err != nil {
		e.logger.Warn("failed to record derivation",
			zap.String("run_id", r.id),
			zap.String("rule", c.rule.Name),
			zap.Error(err))
		r.errs = append(r.errs, c.rule.Name+": "+err.Error())
		return "", false
	}

	for _, step := range []*domain.InferenceStep{res.Step, res.Revision} {
		if step == nil {
			continue
		}
		r.steps = append(r.steps, step)
		inferenceStepsTotal.WithLabelValues(string(step.Rule)).Inc()
		if e.attention != nil {
			e.attention.TouchStep(step)
		}
	}
	if !r.seen[res.ID] {
		r.seen[res.ID] = true
		r.derived = append(r.derived, res.ID)
	}
	return res.ID, true
}

func (e *Engine) finish(r *run, direction string, status Status) {
	r.machine.to(StateTerminated)
	chainingRunsTotal.WithLabelValues(direction, string(status)).Inc()
}

// wrapCancel keeps errors.Is(err, context.Canceled) working for callers.
func wrapCancel(err error, runID string) error {
	return errors.Wrapf(err, "chaining run %s cancelled", runID)
}
