package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/generation"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/ingest"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/secrets"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

// newIndexCmd creates the index subcommand.
func newIndexCmd() *cobra.Command {
	var (
		tenant      string
		project     string
		file        string
		contentType string
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index a document into a project corpus",
		Long: `Index reads a text or markdown file, splits it into chunks, embeds
them with the tenant's provider key, and makes them retrievable. Re-indexing
identical content is rejected unless the earlier attempt failed.`,
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

			content, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.Repos.Projects.GetByID(ctx, tenantID, projectID); err != nil {
				return fmt.Errorf("load project: %w", err)
			}
			if a.Secrets == nil {
				return errStoreDisabled
			}
			apiKey, err := a.Secrets.Resolve(ctx, tenantID, generation.Provider)
			if err != nil {
				if errors.Is(err, secrets.ErrNotConfigured) {
					return errors.New("no provider credential: run `credentials set` first")
				}
				return err
			}
			embedder, err := a.NewEmbedder(apiKey)
			if err != nil {
				return fmt.Errorf("build embedding client: %w", err)
			}

			doc := &storage.Document{
				TenantID:    tenantID,
				ProjectID:   projectID,
				Filename:    filepath.Base(file),
				ContentType: contentType,
				SizeBytes:   int64(len(content)),
				ContentHash: ingest.ContentHash(content),
			}
			if err := a.Repos.Documents.Create(ctx, doc); err != nil {
				if errors.Is(err, storage.ErrDuplicateDocument) {
					return errors.New("identical content already indexed in this project")
				}
				return fmt.Errorf("register document: %w", err)
			}

			var bar *StageBar
			if !outputJSON && IsTerminal() {
				bar = NewStageBar("indexing")
			}
			result, err := a.Pipeline.Index(ctx, ingest.IndexRequest{
				TenantID:  tenantID,
				ProjectID: projectID,
				Document:  doc,
				Content:   content,
				Embedder:  embedder,
				Progress: func(progress float64, stage string) {
					if bar != nil {
						bar.Update(progress, stage)
					}
				},
			})
			if bar != nil {
				bar.Finish()
			}
			if err != nil {
				return fmt.Errorf("index document: %w", err)
			}

			if err := a.Audit.LogDocumentIndexed(ctx, tenantID, projectID, doc.ID, "cli", result.ChunkCount); err != nil {
				logger.Warn().Err(err).Msg("Failed to record indexing audit event")
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(result)
			}
			ui := NewUI(outputJSON)
			defer ui.Close()
			ui.Success("Indexed %s", doc.Filename)
			ui.KeyValue("Document", doc.ID)
			ui.KeyValue("Chunks", result.ChunkCount)
			ui.KeyValue("Duration", FormatDuration(result.Duration))
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&project, "project", "", "project id (required)")
	cmd.Flags().StringVar(&file, "file", "", "path to a .txt or .md document (required)")
	cmd.Flags().StringVar(&contentType, "content-type", "text/plain", "document content type")
	cmd.MarkFlagRequired("tenant")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("file")

	return cmd
}
