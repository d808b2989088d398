package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Harshitk-cp/atomspace/internal/domain"
	"github.com/Harshitk-cp/atomspace/internal/service"
	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query <pattern-json> [pattern-json...]",
	Short: "Match patterns against the stored snapshot",
	Long: `Match one or more JSON patterns against the stored snapshot. Several
patterns are joined: bindings must satisfy all of them.

Example:
  atomspace query '{"subtype":"InheritanceLink","outgoing":[{"var":"X"},{"subtype":"ConceptNode","name":"animal"}]}'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Run forward chaining over the stored snapshot",
	RunE:  runChain,
}

var proveCmd = &cobra.Command{
	Use:   "prove <goal-json>",
	Short: "Run backward chaining for a goal pattern",
	Args:  cobra.ExactArgs(1),
	RunE:  runProve,
}

func init() {
	queryCmd.Flags().Float64("focus", -1, "Only match atoms with sti at or above this value")
	queryCmd.Flags().Int("limit", 100, "Maximum number of matches to print")

	chainCmd.Flags().StringSlice("rules", nil, "Rules to apply (default all enabled)")
	chainCmd.Flags().Int("max-passes", 0, "Pass budget (0 uses CHAIN_MAX_PASSES)")
	chainCmd.Flags().Int("max-steps", 0, "Step budget (0 uses CHAIN_MAX_STEPS)")
	chainCmd.Flags().Duration("timeout", 0, "Wall-clock budget (0 uses CHAIN_TIMEOUT)")
	chainCmd.Flags().Bool("dry-run", false, "Do not save derived atoms")

	proveCmd.Flags().StringSlice("rules", nil, "Rules to use (default all enabled)")
	proveCmd.Flags().Int("max-depth", 0, "Depth limit (0 uses CHAIN_MAX_DEPTH)")
	proveCmd.Flags().Int("max-solutions", 0, "Stop after this many solutions (0 for all)")
	proveCmd.Flags().Duration("timeout", 0, "Wall-clock budget (0 uses CHAIN_TIMEOUT)")
}

func parsePattern(s string) (*domain.Pattern, error) {
	var p domain.Pattern
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, errors.Wrapf(err, "parse pattern %q", s)
	}
	return &p, nil
}

func (rt *stack) describe(id domain.ID) string {
	a, err := rt.space.Get(id)
	if err != nil {
		return string(id)
	}
	return a.String()
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.shutdown()
	if err := rt.load(ctx); err != nil {
		return err
	}

	templates := make([]*domain.Pattern, len(args))
	for i, a := range args {
		if templates[i], err = parsePattern(a); err != nil {
			return err
		}
	}
	focus, _ := cmd.Flags().GetFloat64("focus")
	limit, _ := cmd.Flags().GetInt("limit")

	var opts []service.MatchOption
	if focus >= 0 {
		opts = append(opts, service.WithFocus(focus))
	}
	seq, err := service.NewMatcher(rt.space, rt.logger).MatchAll(templates, opts...)
	if err != nil {
		return err
	}

	var vars []string
	seen := map[string]bool{}
	for _, t := range templates {
		for _, v := range t.Vars() {
			if !seen[v] {
				seen[v] = true
				vars = append(vars, v)
			}
		}
	}

	header := make([]string, len(vars))
	for i, v := range vars {
		header[i] = "$" + v
	}
	if len(header) == 0 {
		header = []string{"match"}
	}
	data := pterm.TableData{header}
	for ids, b := range seq {
		if len(data)-1 == limit {
			pterm.Warning.Printf("Output truncated at %d matches\n", limit)
			break
		}
		row := make([]string, len(header))
		if len(vars) == 0 {
			row[0] = rt.describe(ids[0])
		}
		for i, v := range vars {
			if id, ok := b.Get(v); ok {
				row[i] = rt.describe(id)
			}
		}
		data = append(data, row)
	}

	if len(data) == 1 {
		pterm.Info.Println("No matches")
		return nil
	}
	pterm.Success.Printf("%d match(es)\n", len(data)-1)
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func printSteps(rt *stack, steps []*domain.InferenceStep) error {
	if len(steps) == 0 {
		return nil
	}
	data := pterm.TableData{{"Seq", "Rule", "Conclusion", "TV"}}
	for _, st := range steps {
		rule := string(st.Rule)
		if st.RuleInstance != "" {
			rule = st.RuleInstance
		}
		data = append(data, []string{
			strconv.FormatInt(st.Seq, 10),
			rule,
			rt.describe(st.Conclusion.ID),
			st.TVOut.String(),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runChain(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.shutdown()
	if err := rt.load(ctx); err != nil {
		return err
	}

	rules, _ := cmd.Flags().GetStringSlice("rules")
	maxPasses, _ := cmd.Flags().GetInt("max-passes")
	maxSteps, _ := cmd.Flags().GetInt("max-steps")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	start := time.Now()
	res, err := rt.engine().ChainForward(ctx, service.ForwardRequest{
		Rules:  rules,
		Budget: service.Budget{MaxPasses: maxPasses, MaxSteps: maxSteps, Timeout: timeout},
	})
	if res == nil {
		return err
	}
	if err != nil {
		pterm.Warning.Printf("Run interrupted: %v\n", err)
	}

	pterm.DefaultSection.Printf("Forward chaining %s", res.RunID)
	pterm.Info.Printf("Status %s after %d pass(es) in %s: %d step(s), %d new atom(s)\n",
		res.Status, res.Passes, time.Since(start).Round(time.Millisecond), len(res.Steps), len(res.Derived))
	for _, e := range res.Errors {
		pterm.Warning.Println(e)
	}
	if err := printSteps(rt, res.Steps); err != nil {
		return err
	}
	if res.Status == service.StatusBudgetExhausted {
		pterm.Info.Println("Budget exhausted; run again to continue from the saved store")
	}

	if dryRun {
		return nil
	}
	return rt.save(ctx)
}

func runProve(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.shutdown()
	if err := rt.load(ctx); err != nil {
		return err
	}

	goal, err := parsePattern(args[0])
	if err != nil {
		return err
	}
	rules, _ := cmd.Flags().GetStringSlice("rules")
	maxDepth, _ := cmd.Flags().GetInt("max-depth")
	maxSolutions, _ := cmd.Flags().GetInt("max-solutions")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	res, err := rt.engine().ChainBackward(ctx, service.BackwardRequest{
		Goal:         goal,
		Rules:        rules,
		MaxDepth:     maxDepth,
		MaxSolutions: maxSolutions,
		Budget:       service.Budget{Timeout: timeout},
	})
	if res == nil {
		return err
	}
	if err != nil {
		pterm.Warning.Printf("Run interrupted: %v\n", err)
	}

	pterm.DefaultSection.Printf("Goal %s", goal)
	switch res.Status {
	case service.StatusGoalProved:
		pterm.Success.Printf("Proved with %d solution(s)\n", len(res.Solutions))
	default:
		pterm.Warning.Printf("Status %s\n", res.Status)
	}

	if len(res.Solutions) > 0 {
		data := pterm.TableData{{"Atom", "TV", "Binding"}}
		for _, s := range res.Solutions {
			binding := ""
			for v, id := range s.Binding {
				if binding != "" {
					binding += ", "
				}
				binding += fmt.Sprintf("$%s=%s", v, rt.describe(id))
			}
			data = append(data, []string{rt.describe(s.AtomID), s.TV.String(), binding})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return err
		}
	}
	for _, b := range res.Abandoned {
		pterm.Info.Printf("Abandoned %s at depth %d: %s\n", b.Goal, b.Depth, b.Reason)
	}
	if err := printSteps(rt, res.Steps); err != nil {
		return err
	}
	return rt.save(ctx)
}
