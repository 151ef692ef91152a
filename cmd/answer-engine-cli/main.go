// Package main provides the Answer Engine CLI entrypoint.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/app"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/config"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/observability"
)

var (
	// Global flags
	cfgFile    string
	outputJSON bool
	verbose    bool

	// Configuration and logger
	cfg    *config.Config
	logger *observability.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "answer-engine-cli",
	Short: "Answer Engine CLI for indexing, answering, review, and evaluation",
	Long: `Answer Engine CLI manages due-diligence questionnaire answering.

Use this tool to:
- Index company documents into a project corpus
- Create and import questionnaire items
- Generate grounded, cited answers
- Approve, reject, or edit answers with version history
- Evaluate answers against ground truth (BLEU/ROUGE/semantic)

All commands support --json for automation.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logFormat := "console"
		logLevel := cfg.Observability.LogLevel
		if outputJSON {
			logFormat = "json"
		}
		if !verbose {
			logLevel = "warn"
		}

		logger = observability.NewLogger(observability.LogConfig{
			Level:       logLevel,
			Format:      logFormat,
			ServiceName: "answer-engine-cli",
		})

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newTenantCmd())
	rootCmd.AddCommand(newProjectCmd())
	rootCmd.AddCommand(newCredentialsCmd())
	rootCmd.AddCommand(newIndexCmd())
	rootCmd.AddCommand(newQuestionsCmd())
	rootCmd.AddCommand(newAskCmd())
	rootCmd.AddCommand(newReviewCmd())
	rootCmd.AddCommand(newEvaluateCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openApp wires the full service graph. Callers must Close it.
func openApp(ctx context.Context) (*app.App, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize services: %w", err)
	}
	a.Start(ctx)
	return a, nil
}

// newVersionCmd reports build information.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("answer-engine-cli v1.0.0")
		},
	}
}
