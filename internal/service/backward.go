package service

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/Harshitk-cp/atomspace/internal/truth"
	"go.uber.org/zap"
)

type BackwardRequest struct {
	Goal  *domain.Pattern `json:"goal" validate:"required"`
	Rules []string        `json:"rules,omitempty"`
	// MaxDepth bounds subgoal nesting; zero uses the engine default.
	MaxDepth int `json:"max_depth,omitempty"`
	// MaxSolutions caps the returned solutions; zero returns all.
	MaxSolutions int    `json:"max_solutions,omitempty"`
	Budget       Budget `json:"budget"`
}

// Solution is one way the goal holds.
type Solution struct {
	Binding map[string]domain.ID `json:"binding"`
	AtomID  domain.ID            `json:"atom_id"`
	TV      domain.TruthValue    `json:"tv"`
}

// Branch is a subgoal the prover gave up on.
type Branch struct {
	Goal   string `json:"goal"`
	Depth  int    `json:"depth"`
	Reason string `json:"reason"`
}

type BackwardResult struct {
	RunID     string                  `json:"run_id"`
	Status    Status                  `json:"status"`
	Solutions []Solution              `json:"solutions"`
	Steps     []*domain.InferenceStep `json:"steps"`
	Abandoned []Branch                `json:"abandoned,omitempty"`
	Errors    []string                `json:"errors,omitempty"`
}

// ChainBackward tries to establish goal. Atoms that already match with
// enough confidence answer a subgoal directly; otherwise every rule whose
// conclusion unifies with the subgoal is tried and its premises become
// subgoals. Subgoals already on the stack and subgoals deeper than the
// depth limit are abandoned and reported, never retried in a loop.
func (e *Engine) ChainBackward(ctx context.Context, req BackwardRequest) (*BackwardResult, error) {
	if err := req.Goal.Validate(e.store.Registry()); err != nil {
		return nil, err
	}
	rules, err := e.rules.Select(req.Rules)
	if err != nil {
		return nil, err
	}
	depth := req.MaxDepth
	if depth <= 0 {
		depth = e.cfg.MaxDepth
	}

	r := e.newRun("", req.Budget.withDefaults(e.cfg.Budget))
	p := &prover{
		e:        e,
		ctx:      ctx,
		r:        r,
		rules:    rules,
		maxDepth: depth,
		stack:    make(map[string]bool),
	}

	e.logger.Info("backward chaining started",
		zap.String("run_id", r.id),
		zap.String("goal", req.Goal.String()),
		zap.Int("max_depth", depth))

	res := &BackwardResult{RunID: r.id}
	seen := make(map[string]bool)
	vars := req.Goal.Vars()
	for _, id := range p.prove(req.Goal, 0) {
		atom, err := e.store.Get(id)
		if err != nil {
			continue
		}
		e.matcher.unify(req.Goal, id, domain.Binding{}, func(b domain.Binding) bool {
			key := string(id) + "|" + b.Key()
			if seen[key] {
				return true
			}
			seen[key] = true
			sol := Solution{Binding: make(map[string]domain.ID, len(vars)), AtomID: id, TV: atom.TV}
			for _, v := range vars {
				if bound, ok := b.Get(v); ok {
					sol.Binding[v] = bound
				}
			}
			res.Solutions = append(res.Solutions, sol)
			return true
		})
		if req.MaxSolutions > 0 && len(res.Solutions) >= req.MaxSolutions {
			res.Solutions = res.Solutions[:req.MaxSolutions]
			break
		}
	}
	res.Steps = r.steps
	res.Abandoned = p.abandoned
	res.Errors = r.errs

	switch {
	case ctx.Err() != nil:
		res.Status = StatusCancelled
	case len(res.Solutions) > 0:
		res.Status = StatusGoalProved
	case p.halted:
		res.Status = StatusBudgetExhausted
	default:
		res.Status = StatusGoalFailed
	}
	e.finish(r, "backward", res.Status)

	e.logger.Info("backward chaining finished",
		zap.String("run_id", r.id),
		zap.String("status", string(res.Status)),
		zap.Int("solutions", len(res.Solutions)),
		zap.Int("steps", len(res.Steps)),
		zap.Int("abandoned", len(res.Abandoned)))

	if err := ctx.Err(); err != nil {
		return res, wrapCancel(err, r.id)
	}
	return res, nil
}

// prover is the per-run state of a backward search.
type prover struct {
	e         *Engine
	ctx       context.Context
	r         *run
	rules     []Rule
	maxDepth  int
	stack     map[string]bool
	renames   int
	halted    bool
	abandoned []Branch
}

func (p *prover) halt() bool {
	if !p.halted && (p.ctx.Err() != nil || p.r.timedOut() || p.r.outOfSteps()) {
		p.halted = true
	}
	return p.halted
}

// prove returns the atoms matching g once every applicable rule has been
// tried.
func (p *prover) prove(g *domain.Pattern, depth int) []domain.ID {
	if p.halt() {
		return nil
	}
	m := p.r.machine
	m.to(StateSelectingRule)

	key := p.goalKey(g)
	if p.stack[key] {
		p.abandon(g, depth, domain.ErrCycleDetected)
		return nil
	}
	if depth > p.maxDepth {
		p.abandon(g, depth, domain.ErrDepthExceeded)
		return nil
	}

	m.to(StateMatchingPremises)
	if ids := p.direct(g); len(ids) > 0 {
		return ids
	}

	p.stack[key] = true
	defer delete(p.stack, key)

	u := unifier{store: p.e.store}
	for _, rule := range p.rules {
		if p.halt() {
			break
		}
		p.renames++
		rr := rule.rename(fmt.Sprintf("#%d", p.renames))
		for _, s := range u.unify(g, rr.Conclusion, subst{}) {
			if p.halt() {
				break
			}
			if rr.Aggregate {
				p.aggregate(rr, s)
				continue
			}
			prems := make([]*domain.Pattern, len(rr.Premises))
			for i, prem := range rr.Premises {
				prems[i] = s.apply(prem)
			}
			m.to(StateMatchingPremises)
			p.solve(rr, s, prems, joinOrder(prems), 0, domain.Binding{}, make([]domain.ID, len(prems)), s.apply(rr.Conclusion), depth+1)
		}
	}

	m.to(StateMatchingPremises)
	return p.direct(g)
}

// solve proves the premises in order, carrying the bindings each proof
// produces into the premises after it, and applies the rule once all hold.
func (p *prover) solve(rule Rule, s subst, prems []*domain.Pattern, order []int, i int, b domain.Binding, ids []domain.ID, concl *domain.Pattern, depth int) {
	if p.halt() {
		return
	}
	if i == len(order) {
		p.r.machine.to(StateMatchingPremises)
		if !rule.admitsWith(b, p.resolver(s)) {
			return
		}
		refs, ok := p.e.premiseRefs(ids)
		if !ok {
			return
		}
		c := concl.Substitute(b)
		if !c.IsGround() || (c.IsRef() && containsID(ids, c.ID)) {
			return
		}
		key := rule.Name + "|" + c.Key() + "|" + idsKey(ids)
		if p.r.applied[key] {
			return
		}
		p.r.applied[key] = true
		p.e.apply(p.r, candidate{
			rule:       rule,
			key:        key,
			premises:   refs,
			conclusion: c,
			evidence:   truth.Evidence{Premises: tvs(refs), Positive: 1, Total: 1},
		})
		return
	}

	idx := order[i]
	sub := prems[idx].Substitute(b)
	for _, id := range p.prove(sub, depth) {
		p.e.matcher.unify(sub, id, b, func(next domain.Binding) bool {
			ids[idx] = id
			p.solve(rule, s, prems, order, i+1, next, ids, concl, depth)
			return !p.halted
		})
		if p.halted {
			return
		}
	}
}

// aggregate applies an aggregate rule against the evidence already in the
// store. Its premises are not proved recursively.
func (p *prover) aggregate(rr Rule, s subst) {
	rule := rr
	rule.Premises = make([]*domain.Pattern, len(rr.Premises))
	for i, prem := range rr.Premises {
		rule.Premises[i] = s.apply(prem)
	}
	rule.Conclusion = s.apply(rr.Conclusion)

	p.r.machine.to(StateMatchingPremises)
	cands, err := p.e.collect(rule, nil, nil, p.resolver(s))
	if err != nil {
		p.r.errs = append(p.r.errs, rule.Name+": "+err.Error())
		return
	}
	for _, c := range cands {
		if p.halt() {
			return
		}
		if p.r.applied[c.key] {
			continue
		}
		p.r.applied[c.key] = true
		p.e.apply(p.r, c)
		p.r.machine.to(StateMatchingPremises)
	}
}

// resolver maps a rule variable that unification replaced with goal
// structure back to the atom it denotes under b.
func (p *prover) resolver(s subst) func(domain.Binding, string) (domain.ID, bool) {
	return func(b domain.Binding, name string) (domain.ID, bool) {
		return p.e.resolveGround(s.apply(domain.V(name)).Substitute(b))
	}
}

// direct lists atoms matching g whose confidence clears the threshold.
func (p *prover) direct(g *domain.Pattern) []domain.ID {
	roots, err := p.e.matcher.MatchRoots(g)
	if err != nil {
		return nil
	}
	var out []domain.ID
	seen := make(map[domain.ID]bool)
	for id := range roots {
		if seen[id] {
			continue
		}
		seen[id] = true
		a, err := p.e.store.Get(id)
		if err != nil || a.TV.C <= p.e.cfg.ConfidenceThreshold {
			continue
		}
		out = append(out, id)
	}
	return out
}

// goalKey identifies a subgoal on the stack. Ground goals key by the atom
// they denote so a literal and a reference to the same atom collide.
func (p *prover) goalKey(g *domain.Pattern) string {
	if id, ok := p.e.resolveGround(g); ok {
		return "#" + string(id)
	}
	return g.Key()
}

func (p *prover) abandon(g *domain.Pattern, depth int, kind error) {
	err := &domain.BranchError{Goal: g.String(), Depth: depth, Kind: kind}
	p.abandoned = append(p.abandoned, Branch{Goal: err.Goal, Depth: depth, Reason: kind.Error()})
	abandonedBranchesTotal.WithLabelValues(kind.Error()).Inc()
	p.e.logger.Debug("branch abandoned",
		zap.String("run_id", p.r.id),
		zap.Error(err))
}

// resolveGround finds the stored atom a ground template denotes.
func (e *Engine) resolveGround(p *domain.Pattern) (domain.ID, bool) {
	switch {
	case p.IsVar():
		return "", false
	case p.ID != "":
		return p.ID, true
	case len(p.Outgoing) == 0 && p.Name != "":
		return e.store.Lookup(domain.NewNode(p.Subtype, p.Name))
	}
	ids := make([]domain.ID, len(p.Outgoing))
	for i, c := range p.Outgoing {
		id, ok := e.resolveGround(c)
		if !ok {
			return "", false
		}
		ids[i] = id
	}
	return e.store.Lookup(domain.NewLink(p.Subtype, ids...))
}
