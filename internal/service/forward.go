package service

import (
	"context"
	"sort"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Continuation is everything needed to resume a forward run where its
// budget stopped it.
type Continuation struct {
	RunID      string      `json:"run_id"`
	Rules      []string    `json:"rules"`
	WorkingSet []domain.ID `json:"working_set,omitempty"`
	Pass       int         `json:"pass"`
	RuleCursor int         `json:"rule_cursor"`
	Applied    []string    `json:"applied"`
}

type ForwardRequest struct {
	// Rules names the rules to run; empty runs the whole rule set.
	Rules []string `json:"rules,omitempty"`
	// WorkingSet, when set, restricts derivations to those using at least
	// one working-set atom. Conclusions join the working set.
	WorkingSet   []domain.ID   `json:"working_set,omitempty"`
	Budget       Budget        `json:"budget"`
	Focus        *float64      `json:"focus,omitempty"`
	Continuation *Continuation `json:"continuation,omitempty"`
}

type ForwardResult struct {
	RunID        string                  `json:"run_id"`
	Status       Status                  `json:"status"`
	Passes       int                     `json:"passes"`
	Derived      []domain.ID             `json:"derived"`
	Steps        []*domain.InferenceStep `json:"steps"`
	Errors       []string                `json:"errors,omitempty"`
	Continuation *Continuation           `json:"continuation,omitempty"`
}

// ChainForward applies rules pass after pass until a full pass records no
// step (Fixpoint) or the budget runs out (BudgetExhausted, resumable through
// the returned continuation). Cancelling ctx stops the run between passes;
// the partial result is returned together with the context error.
func (e *Engine) ChainForward(ctx context.Context, req ForwardRequest) (*ForwardResult, error) {
	names := req.Rules
	if req.Continuation != nil && len(names) == 0 {
		names = req.Continuation.Rules
	}
	rules, err := e.rules.Select(names)
	if err != nil {
		return nil, err
	}
	names = make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}

	var (
		runID   string
		pass    int
		cursor  int
		working map[domain.ID]bool
	)
	seed := req.WorkingSet
	if c := req.Continuation; c != nil {
		runID, pass, cursor = c.RunID, c.Pass, c.RuleCursor
		if len(seed) == 0 {
			seed = c.WorkingSet
		}
		if cursor < 0 || cursor > len(rules) {
			cursor = 0
		}
	}
	if len(seed) > 0 {
		working = make(map[domain.ID]bool, len(seed))
		for _, id := range seed {
			working[id] = true
		}
	}

	r := e.newRun(runID, req.Budget.withDefaults(e.cfg.Budget))
	if c := req.Continuation; c != nil {
		for _, k := range c.Applied {
			r.applied[k] = true
		}
	}
	res := &ForwardResult{RunID: r.id}

	e.logger.Info("forward chaining started",
		zap.String("run_id", r.id),
		zap.Strings("rules", names),
		zap.Int("working_set", len(seed)),
		zap.Bool("resumed", req.Continuation != nil))

	suspend := func(status Status) {
		res.Status = status
		res.Continuation = &Continuation{
			RunID:      r.id,
			Rules:      names,
			WorkingSet: workingList(working),
			Pass:       pass,
			RuleCursor: cursor,
			Applied:    r.appliedKeys(),
		}
	}

loop:
	for {
		if err := ctx.Err(); err != nil {
			suspend(StatusCancelled)
			e.fill(res, r)
			e.finish(r, "forward", res.Status)
			return res, wrapCancel(err, r.id)
		}
		if res.Passes >= r.budget.MaxPasses && r.budget.MaxPasses > 0 || r.timedOut() {
			suspend(StatusBudgetExhausted)
			break loop
		}

		r.machine.to(StateSelectingRule)
		if cursor == 0 {
			pass++
		}
		res.Passes++
		chainingPassesTotal.Inc()
		fullPass := cursor == 0

		r.machine.to(StateMatchingPremises)
		batches, err := e.matchRules(rules[cursor:], working, req.Focus)
		if err != nil {
			r.machine.to(StateTerminated)
			return nil, err
		}

		recorded := 0
		for i, batch := range batches {
			for _, c := range batch {
				if r.applied[c.key] {
					continue
				}
				if r.outOfSteps() || r.timedOut() {
					cursor += i
					suspend(StatusBudgetExhausted)
					break loop
				}
				r.applied[c.key] = true
				before := len(r.steps)
				id, ok := e.apply(r, c)
				if !ok {
					continue
				}
				recorded += len(r.steps) - before
				if working != nil {
					working[id] = true
				}
			}
		}
		cursor = 0

		if e.cfg.DecayPerPass && e.attention != nil {
			e.attention.Decay(e.cfg.DecayRate)
		}

		e.logger.Info("forward pass complete",
			zap.String("run_id", r.id),
			zap.Int("pass", pass),
			zap.Int("steps", recorded),
			zap.Int("total_steps", len(r.steps)))

		if recorded == 0 && fullPass {
			res.Status = StatusFixpoint
			break loop
		}
	}

	e.fill(res, r)
	e.finish(r, "forward", res.Status)
	e.logger.Info("forward chaining finished",
		zap.String("run_id", r.id),
		zap.String("status", string(res.Status)),
		zap.Int("passes", res.Passes),
		zap.Int("steps", len(res.Steps)),
		zap.Int("derived", len(res.Derived)))
	return res, nil
}

func (e *Engine) fill(res *ForwardResult, r *run) {
	res.Steps = r.steps
	res.Derived = r.derived
	res.Errors = r.errs
}

// matchRules matches the premises of every rule concurrently. Each rule's
// match runs to completion; results come back in rule order.
func (e *Engine) matchRules(rules []Rule, working map[domain.ID]bool, focus *float64) ([][]candidate, error) {
	out := make([][]candidate, len(rules))
	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for i, rule := range rules {
		g.Go(func() error {
			cands, err := e.collect(rule, working, focus, nil)
			if err != nil {
				return err
			}
			out[i] = cands
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func workingList(working map[domain.ID]bool) []domain.ID {
	if working == nil {
		return nil
	}
	out := make([]domain.ID, 0, len(working))
	for id := range working {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

func sortIDs(ids []domain.ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
