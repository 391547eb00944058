package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/arsredo/brf-coach/internal/model"
	"github.com/arsredo/brf-coach/internal/orchestrator"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate agent outputs",
	Long:  "Checks one or more agent outputs against expected fields and accounting rules, and cross-checks shared fields between agents.",
}

// -- validate output --

var validateOutputCmd = &cobra.Command{
	Use:   "output <agent-id>",
	Short: "Validate a single agent's output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		agentID := args[0]

		path, _ := cmd.Flags().GetString("file")
		output, err := readExtraction(path)
		if err != nil {
			return err
		}

		learn, _ := cmd.Flags().GetBool("learn")

		v := orchestrator.NewValidator()
		ok, issues := v.Validate(agentID, output, orchestrator.ExpectedFields(agentID))

		if ok {
			fmt.Println("OK")
			return nil
		}

		for _, issue := range issues {
			fmt.Fprintln(os.Stderr, issue)
		}
		fmt.Fprint(os.Stderr, "\n"+orchestrator.GenerateCoachingFeedback(agentID, issues))

		if learn {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return err
			}
			if _, err := orchestrator.NewLearner(st).LearnFromFailure(ctx, agentID, issues, ""); err != nil {
				return err
			}
		}

		return eris.Errorf("validate: %s output failed validation", agentID)
	},
}

// -- validate cross --

var validateCrossCmd = &cobra.Command{
	Use:   "cross <results.json>",
	Short: "Cross-check shared fields between agents",
	Long:  "Reads a JSON object keyed by agent ID and reports disagreements on fields two agents both extract.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "cmd: read %s", args[0])
		}
		var results map[string]model.Extraction
		if err := json.Unmarshal(data, &results); err != nil {
			return eris.Wrapf(err, "cmd: parse %s", args[0])
		}

		mismatches := orchestrator.NewValidator().CrossValidate(results)
		if len(mismatches) == 0 {
			fmt.Println("No mismatches.")
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(mismatches)
	},
}

func init() {
	validateOutputCmd.Flags().String("file", "", "path to the agent output JSON (- for stdin)")
	validateOutputCmd.Flags().Bool("learn", false, "store a learning hint when validation fails")
	_ = validateOutputCmd.MarkFlagRequired("file")

	validateCmd.AddCommand(validateOutputCmd)
	validateCmd.AddCommand(validateCrossCmd)
	rootCmd.AddCommand(validateCmd)
}
