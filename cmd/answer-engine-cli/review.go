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

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

// newReviewCmd creates the review subcommand group.
func newReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review generated answers",
	}

	cmd.AddCommand(newReviewActionCmd("approve", "Approve an answer"))
	cmd.AddCommand(newReviewActionCmd("reject", "Reject an answer"))
	cmd.AddCommand(newReviewEditCmd())
	cmd.AddCommand(newReviewVersionsCmd())

	return cmd
}

func newReviewActionCmd(action, short string) *cobra.Command {
	var (
		tenant   string
		answer   string
		reviewer string
		notes    string
	)

	cmd := &cobra.Command{
		Use:   action,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
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

			var updated *storage.Answer
			if action == "approve" {
				updated, err = a.Review.Approve(ctx, tenantID, answerID, reviewer, notes)
			} else {
				updated, err = a.Review.Reject(ctx, tenantID, answerID, reviewer, notes)
			}
			if err != nil {
				return fmt.Errorf("%s answer: %w", action, err)
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(updated)
			}
			ui := NewUI(outputJSON)
			defer ui.Close()
			ui.Success("Answer %s", string(updated.Status))
			ui.KeyValue("Status", string(updated.Status))
			ui.KeyValue("Version", updated.Version)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&answer, "answer", "", "answer id (required)")
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "reviewer name (required)")
	cmd.Flags().StringVar(&notes, "notes", "", "review notes")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("answer")
	cmd.MarkFlagRequired("reviewer")

	return cmd
}

func newReviewEditCmd() *cobra.Command {
	var (
		tenant string
		answer string
		editor string
		text   string
		file   string
		reason string
	)

	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Replace an answer's text with an edited version",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			answerID, err := uuid.Parse(answer)
			if err != nil {
				return fmt.Errorf("invalid answer id: %w", err)
			}

			newText := text
			if newText == "" && file != "" {
				content, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read edited text: %w", err)
				}
				newText = string(content)
			}
			if newText == "" {
				return errors.New("either --text or --file is required")
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			updated, err := a.Review.Edit(ctx, tenantID, answerID, newText, editor, reason)
			if err != nil {
				return fmt.Errorf("edit answer: %w", err)
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(updated)
			}
			ui := NewUI(outputJSON)
			defer ui.Close()
			ui.Success("Answer edited")
			ui.KeyValue("Status", string(updated.Status))
			ui.KeyValue("Version", updated.Version)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&answer, "answer", "", "answer id (required)")
	cmd.Flags().StringVar(&editor, "editor", "", "editor name (required)")
	cmd.Flags().StringVar(&text, "text", "", "replacement answer text")
	cmd.Flags().StringVar(&file, "file", "", "file holding the replacement text")
	cmd.Flags().StringVar(&reason, "reason", "", "why the answer was edited")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("answer")
	cmd.MarkFlagRequired("editor")

	return cmd
}

func newReviewVersionsCmd() *cobra.Command {
	var (
		tenant string
		answer string
	)

	cmd := &cobra.Command{
		Use:   "versions",
		Short: "Show an answer's version history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
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

			versions, err := a.Review.History(ctx, tenantID, answerID)
			if err != nil {
				return fmt.Errorf("load version history: %w", err)
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(versions)
			}
			ui := NewUI(outputJSON)
			defer ui.Close()
			if len(versions) == 0 {
				ui.Info("No versions recorded")
				return nil
			}
			rows := make([][]string, 0, len(versions))
			for _, v := range versions {
				by := ""
				if v.ChangedBy != nil {
					by = *v.ChangedBy
				}
				rows = append(rows, []string{
					fmt.Sprintf("%d", v.VersionNumber),
					string(v.ChangeType),
					string(v.Status),
					by,
					v.CreatedAt.Format(time.RFC3339),
				})
			}
			ui.Table([]string{"Version", "Change", "Status", "By", "At"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&answer, "answer", "", "answer id (required)")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("answer")

	return cmd
}
