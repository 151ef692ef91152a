package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

// newQuestionsCmd creates the questions subcommand group.
func newQuestionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Manage questionnaire questions",
	}

	cmd.AddCommand(newQuestionsCreateCmd())
	cmd.AddCommand(newQuestionsImportCmd())
	cmd.AddCommand(newQuestionsListCmd())
	cmd.AddCommand(newQuestionsDeleteCmd())

	return cmd
}

func newQuestionsCreateCmd() *cobra.Command {
	var (
		tenant      string
		project     string
		text        string
		category    string
		number      int
		groundTruth string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add a single question to a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
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

			q := &storage.Question{
				TenantID:  tenantID,
				ProjectID: projectID,
				Text:      text,
				Number:    number,
				Status:    storage.QuestionStatusPending,
			}
			if category != "" {
				q.Category = &category
			}
			if groundTruth != "" {
				q.GroundTruth = &groundTruth
			}
			if err := a.Repos.Questions.Create(ctx, q); err != nil {
				return fmt.Errorf("create question: %w", err)
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(q)
			}
			ui := NewUI(outputJSON)
			defer ui.Close()
			ui.Success("Question created")
			ui.KeyValue("ID", q.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&project, "project", "", "project id (required)")
	cmd.Flags().StringVar(&text, "text", "", "question text (required)")
	cmd.Flags().StringVar(&category, "category", "", "question category")
	cmd.Flags().IntVar(&number, "number", 0, "position in the questionnaire")
	cmd.Flags().StringVar(&groundTruth, "ground-truth", "", "reference answer for evaluation")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("text")

	return cmd
}

// questionImport is one row of a JSON import file.
type questionImport struct {
	Number      int     `json:"number"`
	Text        string  `json:"text"`
	Category    *string `json:"category,omitempty"`
	GroundTruth *string `json:"groundTruth,omitempty"`
}

func newQuestionsImportCmd() *cobra.Command {
	var (
		tenant  string
		project string
		file    string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk import questions from a CSV or JSON file",
		Long: `Import reads a questionnaire file and creates every question in it.
CSV files need a header row with at least a "text" column; "number",
"category", and "ground_truth" columns are optional. JSON files hold an
array of objects with the same fields. Rows without an explicit number
are numbered by position.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			projectID, err := uuid.Parse(project)
			if err != nil {
				return fmt.Errorf("invalid project id: %w", err)
			}

			items, err := loadQuestionFile(file)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return fmt.Errorf("no questions found in %s", file)
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.Repos.Projects.GetByID(ctx, tenantID, projectID); err != nil {
				return fmt.Errorf("load project: %w", err)
			}

			ui := NewUI(outputJSON)
			defer ui.Close()

			bar := ui.ProgressBar("importing", int64(len(items)))
			created := make([]*storage.Question, 0, len(items))
			for i, item := range items {
				q := &storage.Question{
					TenantID:    tenantID,
					ProjectID:   projectID,
					Text:        item.Text,
					Category:    item.Category,
					Number:      item.Number,
					GroundTruth: item.GroundTruth,
					Status:      storage.QuestionStatusPending,
				}
				if q.Number == 0 {
					q.Number = i + 1
				}
				if err := a.Repos.Questions.Create(ctx, q); err != nil {
					return fmt.Errorf("create question %d: %w", i+1, err)
				}
				created = append(created, q)
				if bar != nil {
					bar.Increment()
				}
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(created)
			}
			ui.Success("Imported %d questions", len(created))
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&project, "project", "", "project id (required)")
	cmd.Flags().StringVar(&file, "file", "", "path to a .csv or .json questionnaire (required)")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("file")

	return cmd
}

// loadQuestionFile parses a CSV or JSON questionnaire by file extension.
func loadQuestionFile(path string) ([]questionImport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open questionnaire: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var items []questionImport
		if err := json.NewDecoder(f).Decode(&items); err != nil {
			return nil, fmt.Errorf("parse JSON questionnaire: %w", err)
		}
		return items, nil
	case ".csv":
		return parseQuestionCSV(f)
	default:
		return nil, fmt.Errorf("unsupported questionnaire format %q (want .csv or .json)", filepath.Ext(path))
	}
}

func parseQuestionCSV(r io.Reader) ([]questionImport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	textCol, ok := cols["text"]
	if !ok {
		return nil, fmt.Errorf("CSV header missing required %q column", "text")
	}

	field := func(record []string, col int, ok bool) string {
		if !ok || col >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[col])
	}

	numberCol, hasNumber := cols["number"]
	categoryCol, hasCategory := cols["category"]
	truthCol, hasTruth := cols["ground_truth"]

	var items []questionImport
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read CSV line %d: %w", line, err)
		}
		text := field(record, textCol, true)
		if text == "" {
			continue
		}
		item := questionImport{Text: text}
		if raw := field(record, numberCol, hasNumber); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("CSV line %d: invalid number %q", line, raw)
			}
			item.Number = n
		}
		if v := field(record, categoryCol, hasCategory); v != "" {
			item.Category = &v
		}
		if v := field(record, truthCol, hasTruth); v != "" {
			item.GroundTruth = &v
		}
		items = append(items, item)
	}
	return items, nil
}

func newQuestionsListCmd() *cobra.Command {
	var (
		tenant  string
		project string
		status  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a project's questions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
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

			questions, err := a.Repos.Questions.ListByProject(ctx, tenantID, projectID, storage.QuestionStatus(status))
			if err != nil {
				return fmt.Errorf("list questions: %w", err)
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(questions)
			}
			ui := NewUI(outputJSON)
			defer ui.Close()
			if len(questions) == 0 {
				ui.Info("No questions found")
				return nil
			}
			rows := make([][]string, 0, len(questions))
			for _, q := range questions {
				text := q.Text
				if len(text) > 60 {
					text = text[:57] + "..."
				}
				rows = append(rows, []string{
					strconv.Itoa(q.Number),
					q.ID.String(),
					text,
					string(q.Status),
				})
			}
			ui.Table([]string{"#", "ID", "Text", "Status"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&project, "project", "", "project id (required)")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, answered, approved, rejected)")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("project")

	return cmd
}

func newQuestionsDeleteCmd() *cobra.Command {
	var (
		tenant   string
		question string
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a question and its answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			questionID, err := uuid.Parse(question)
			if err != nil {
				return fmt.Errorf("invalid question id: %w", err)
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Repos.Questions.Delete(ctx, tenantID, questionID); err != nil {
				return fmt.Errorf("delete question: %w", err)
			}

			ui := NewUI(outputJSON)
			defer ui.Close()
			ui.Success("Question deleted")
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&question, "question", "", "question id (required)")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("question")

	return cmd
}
