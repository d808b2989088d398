package main

import (
	"context"
	"sort"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show statistics for the stored snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		rt, err := setup(ctx)
		if err != nil {
			return err
		}
		defer rt.shutdown()
		if err := rt.load(ctx); err != nil {
			return err
		}

		st := rt.space.Stats()
		pterm.DefaultSection.Println("AtomSpace")
		if err := pterm.DefaultTable.WithData(pterm.TableData{
			{"Atoms", strconv.Itoa(st.Atoms)},
			{"Nodes", strconv.Itoa(st.Nodes)},
			{"Links", strconv.Itoa(st.Links)},
			{"Steps", strconv.Itoa(st.Steps)},
			{"Invalidated steps", strconv.Itoa(st.InvalidatedSteps)},
			{"Components", strconv.Itoa(st.Components)},
			{"Largest component", strconv.Itoa(st.LargestComponent)},
		}).Render(); err != nil {
			return err
		}

		if len(st.BySubtype) > 0 {
			pterm.DefaultSection.Println("Subtypes")
			subtypes := make([]string, 0, len(st.BySubtype))
			for s := range st.BySubtype {
				subtypes = append(subtypes, s)
			}
			sort.Strings(subtypes)
			data := pterm.TableData{{"Subtype", "Count"}}
			for _, s := range subtypes {
				data = append(data, []string{s, strconv.Itoa(st.BySubtype[s])})
			}
			if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
				return err
			}
		}

		if len(st.StepsByRule) > 0 {
			pterm.DefaultSection.Println("Steps by rule")
			data := pterm.TableData{{"Rule", "Steps"}}
			for r, n := range st.StepsByRule {
				data = append(data, []string{string(r), strconv.Itoa(n)})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		}
		return nil
	},
}
