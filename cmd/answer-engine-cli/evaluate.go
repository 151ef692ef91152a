package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/evaluation"
)

// newEvaluateCmd creates the evaluate subcommand group.
func newEvaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score answers against ground truth",
	}

	cmd.AddCommand(newEvaluateAnswerCmd())
	cmd.AddCommand(newEvaluateBatchCmd())

	return cmd
}

func newEvaluateAnswerCmd() *cobra.Command {
	var (
		tenant string
		answer string
	)

	cmd := &cobra.Command{
		Use:   "answer",
		Short: "Evaluate a single answer",
		Long: `Evaluate answer scores one generated answer against its question's
ground-truth answer with BLEU, ROUGE, and embedding similarity. Without a
ground truth, metrics come back null.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			answerID, err := uuid.Parse(answer)
			if err != nil {
				return fmt.Errorf("invalid answer id: %w", err)
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			metrics, err := a.Evaluator.EvaluateAnswer(ctx, tenantID, answerID)
			if err != nil {
				return fmt.Errorf("evaluate answer: %w", err)
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(metrics)
			}
			ui := NewUI(outputJSON)
			defer ui.Close()
			printMetrics(ui, metrics)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&answer, "answer", "", "answer id (required)")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("answer")

	return cmd
}

func newEvaluateBatchCmd() *cobra.Command {
	var (
		tenant  string
		project string
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Evaluate every answered question in a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			projectID, err := uuid.Parse(project)
			if err != nil {
				return fmt.Errorf("invalid project id: %w", err)
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			ui := NewUI(outputJSON)
			defer ui.Close()

			var bar *mpb.Bar
			summary, err := a.Evaluator.EvaluateProject(ctx, tenantID, projectID, func(done, total int) {
				if bar == nil {
					bar = ui.ProgressBar("evaluating", int64(total))
				}
				if bar != nil {
					bar.SetCurrent(int64(done))
				}
			})
			if err != nil {
				return fmt.Errorf("evaluate project: %w", err)
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(summary)
			}

			ui.Success("Evaluated %d answers (%d skipped, %d failed)",
				summary.Evaluated, summary.Skipped, summary.Failed)
			ui.KeyValue("Mean overall", formatScore(summary.MeanOverall))
			ui.KeyValue("Mean BLEU", formatScore(summary.MeanBLEU))
			ui.KeyValue("Mean ROUGE-L", formatScore(summary.MeanRougeL))
			ui.KeyValue("Mean semantic", formatScore(summary.MeanSemantic))
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&project, "project", "", "project id (required)")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("project")

	return cmd
}

func printMetrics(ui *UI, metrics *evaluation.Metrics) {
	if !metrics.HasGroundTruth {
		ui.Warning("No ground truth recorded for this question; metrics are null")
		return
	}
	if metrics.Cached {
		ui.Info("Served from evaluation cache")
	}
	ui.KeyValue("Overall", formatScore(metrics.Overall))
	ui.KeyValue("BLEU", formatScore(metrics.BLEU))
	ui.KeyValue("ROUGE-1", formatScore(metrics.Rouge1F1))
	ui.KeyValue("ROUGE-2", formatScore(metrics.Rouge2F1))
	ui.KeyValue("ROUGE-L", formatScore(metrics.RougeLF1))
	ui.KeyValue("Semantic", formatScore(metrics.SemanticSimilarity))
}

func formatScore(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *v)
}
