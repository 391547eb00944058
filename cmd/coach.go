package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/arsredo/brf-coach/internal/coach"
	"github.com/arsredo/brf-coach/internal/model"
	"github.com/arsredo/brf-coach/internal/resilience"
	"github.com/arsredo/brf-coach/pkg/advisor"
)

var coachCmd = &cobra.Command{
	Use:   "coach <doc-id> <agent-id>",
	Short: "Run one coaching session for an extraction",
	Long:  "Scores the extraction (against ground truth when provided), asks the advisory model for a strategy, applies it round by round within the phase budget, and records the session.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		docID, agentID := args[0], args[1]

		extractionPath, _ := cmd.Flags().GetString("extraction")
		truthPath, _ := cmd.Flags().GetString("ground-truth")

		extraction, err := readExtraction(extractionPath)
		if err != nil {
			return err
		}
		var groundTruth model.Extraction
		if truthPath != "" {
			groundTruth, err = readExtraction(truthPath)
			if err != nil {
				return err
			}
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		client, err := advisor.NewClient(cfg.Advisor.Key,
			advisor.WithModel(cfg.Advisor.Model),
			advisor.WithMaxTokens(cfg.Advisor.MaxTokens),
			advisor.WithTemperature(cfg.Advisor.Temperature),
			advisor.WithRateLimit(cfg.Advisor.RatePerMinute),
		)
		if err != nil {
			return err
		}

		engine, err := coach.NewEngine(client, resilience.DefaultRetryConfig())
		if err != nil {
			return err
		}
		c, err := coach.New(st, engine, coach.NewAnalyzer(cfg.Coach.SelfEvalDiscount), cfg.Coach, nil)
		if err != nil {
			return err
		}

		result, err := c.Run(ctx, docID, agentID, extraction, groundTruth)
		if err != nil {
			return eris.Wrap(err, "coach")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// readExtraction loads a JSON object from a file, or stdin when path is "-".
func readExtraction(path string) (model.Extraction, error) {
	if path == "" {
		return nil, eris.New("cmd: extraction file required")
	}
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cmd: read %s", path)
	}
	var ex model.Extraction
	if err := json.Unmarshal(data, &ex); err != nil {
		return nil, eris.Wrapf(err, "cmd: parse %s", path)
	}
	return ex, nil
}

func init() {
	coachCmd.Flags().String("extraction", "", "path to the extraction JSON (- for stdin)")
	coachCmd.Flags().String("ground-truth", "", "path to the ground-truth JSON (omit for self-evaluation)")
	_ = coachCmd.MarkFlagRequired("extraction")

	rootCmd.AddCommand(coachCmd)
}
