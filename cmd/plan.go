package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/arsredo/brf-coach/internal/model"
	"github.com/arsredo/brf-coach/internal/orchestrator"
	"github.com/arsredo/brf-coach/internal/store"
)

var planCmd = &cobra.Command{
	Use:   "plan <sections.json>",
	Short: "Plan agent execution from sectionizer output",
	Long:  "Reads an agent-to-sections mapping, enriches it with pages, zones, priorities, expected fields, and stored learning hints, and prints the batched execution plan.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "cmd: read %s", args[0])
		}
		var raw map[string][]model.Section
		if err := json.Unmarshal(data, &raw); err != nil {
			return eris.Wrapf(err, "cmd: parse %s", args[0])
		}

		var st store.Store
		if withHints, _ := cmd.Flags().GetBool("hints"); withHints {
			st, err = initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return err
			}
		}

		p := orchestrator.NewPlanner(st, cfg.Orchestrator.MaxParallel)
		assignments := p.EnhanceAssignments(ctx, raw)
		batches := p.ExecutionPlan(assignments)

		out := struct {
			Assignments map[string]model.Assignment `json:"assignments"`
			Batches     [][]string                  `json:"execution_batches"`
		}{assignments, batches}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "%d agents in %d batches\n", len(assignments), len(batches))
		return nil
	},
}

func init() {
	planCmd.Flags().Bool("hints", false, "attach stored learning hints to assignments")
	rootCmd.AddCommand(planCmd)
}
