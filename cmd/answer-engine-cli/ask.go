package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/generation"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/secrets"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

// newAskCmd creates the ask subcommand.
func newAskCmd() *cobra.Command {
	var (
		tenant   string
		project  string
		question string
		text     string
	)

	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Generate a grounded answer for a question",
		Long: `Ask generates an answer from the project corpus with inline citations
and a confidence score. Pass --question to answer an existing question, or
--project together with --text to create an ad-hoc question and answer it
in one step. Re-running replaces the earlier answer.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Secrets == nil {
				return errStoreDisabled
			}
			if _, err := a.Secrets.Resolve(ctx, tenantID, generation.Provider); err != nil {
				if errors.Is(err, secrets.ErrNotConfigured) {
					return errors.New("no provider credential: run `credentials set` first")
				}
				return err
			}

			var questionID uuid.UUID
			switch {
			case question != "":
				questionID, err = uuid.Parse(question)
				if err != nil {
					return fmt.Errorf("invalid question id: %w", err)
				}
			case text != "":
				if project == "" {
					return errors.New("--project is required with --text")
				}
				projectID, err := uuid.Parse(project)
				if err != nil {
					return fmt.Errorf("invalid project id: %w", err)
				}
				q := &storage.Question{
					TenantID:  tenantID,
					ProjectID: projectID,
					Text:      text,
					Status:    storage.QuestionStatusPending,
				}
				if err := a.Repos.Questions.Create(ctx, q); err != nil {
					return fmt.Errorf("create question: %w", err)
				}
				questionID = q.ID
			default:
				return errors.New("either --question or --text is required")
			}

			var spin *WaitSpinner
			if !outputJSON && IsTerminal() {
				spin = NewWaitSpinner("Generating answer...")
				spin.Start()
			}
			result, err := a.Generation.Generate(ctx, tenantID, questionID, func(progress float64, stage string) {
				if spin != nil {
					spin.UpdateMessage(fmt.Sprintf("Generating answer... %s", stage))
				}
			})
			if spin != nil {
				spin.Stop()
			}
			if err != nil {
				return fmt.Errorf("generate answer: %w", err)
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(result)
			}

			ui := NewUI(outputJSON)
			defer ui.Close()
			printAnswer(ui, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&project, "project", "", "project id (required with --text)")
	cmd.Flags().StringVar(&question, "question", "", "existing question id")
	cmd.Flags().StringVar(&text, "text", "", "ad-hoc question text")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

func printAnswer(ui *UI, result *generation.GeneratedAnswer) {
	ui.Section("Answer")
	fmt.Println(result.Answer.Text)
	ui.Newline()

	ui.KeyValue("Answer ID", result.Answer.ID)
	ui.KeyValue("Version", result.Answer.Version)
	ui.KeyValue("Confidence", fmt.Sprintf("%.2f", result.Confidence.Overall))
	if result.Confidence.Degraded {
		ui.Warning("Confidence scoring degraded to neutral LLM sub-scores")
	}

	if len(result.Citations) > 0 {
		ui.Section("Citations")
		rows := make([][]string, 0, len(result.Citations))
		for _, c := range result.Citations {
			excerpt := c.Excerpt
			if len(excerpt) > 70 {
				excerpt = excerpt[:67] + "..."
			}
			rows = append(rows, []string{
				fmt.Sprintf("[%d]", c.Marker),
				fmt.Sprintf("%.3f", c.Similarity),
				excerpt,
			})
		}
		ui.Table([]string{"Marker", "Similarity", "Excerpt"}, rows)
	}
}
