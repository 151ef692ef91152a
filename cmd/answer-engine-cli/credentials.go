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
)

var errStoreDisabled = errors.New("credential store is disabled: set the master key environment variable")

// newCredentialsCmd creates the credentials subcommand.
func newCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage per-tenant provider API keys",
	}

	var tenant, provider, apiKey string
	var validateKey bool
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store a provider API key for a tenant",
		Long: `Store a provider API key for a tenant. The key is sealed with the
master key before it touches the database. If --api-key is omitted the
OPENAI_API_KEY environment variable is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			if apiKey == "" {
				apiKey = os.Getenv("OPENAI_API_KEY")
			}
			if apiKey == "" {
				return errors.New("no API key given: pass --api-key or set OPENAI_API_KEY")
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Secrets == nil {
				return errStoreDisabled
			}

			if validateKey {
				if err := a.ValidateKey(ctx, apiKey); err != nil {
					return err
				}
			}

			if err := a.Secrets.Save(ctx, tenantID, provider, apiKey); err != nil {
				return fmt.Errorf("save credential: %w", err)
			}

			ui := NewUI(outputJSON)
			defer ui.Close()
			ui.Success("Credential stored for provider %s", provider)
			return nil
		},
	}
	setCmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	setCmd.Flags().StringVar(&provider, "provider", "openai", "provider name")
	setCmd.Flags().StringVar(&apiKey, "api-key", "", "provider API key")
	setCmd.Flags().BoolVar(&validateKey, "validate", false, "check the key against the provider before storing")
	setCmd.MarkFlagRequired("tenant")

	var listTenant string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored credentials (hints only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			tenantID, err := uuid.Parse(listTenant)
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

			creds, err := a.Secrets.List(ctx, tenantID)
			if err != nil {
				return fmt.Errorf("list credentials: %w", err)
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(creds)
			}
			ui := NewUI(outputJSON)
			defer ui.Close()
			rows := make([][]string, 0, len(creds))
			for _, c := range creds {
				rows = append(rows, []string{c.Provider, c.KeyHint, c.UpdatedAt.Format("2006-01-02 15:04")})
			}
			ui.Table([]string{"Provider", "Key", "Updated"}, rows)
			return nil
		},
	}
	listCmd.Flags().StringVar(&listTenant, "tenant", "", "tenant id (required)")
	listCmd.MarkFlagRequired("tenant")

	var delTenant, delProvider string
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove a stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			tenantID, err := uuid.Parse(delTenant)
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

			if err := a.Secrets.Delete(ctx, tenantID, delProvider); err != nil {
				return fmt.Errorf("delete credential: %w", err)
			}

			ui := NewUI(outputJSON)
			defer ui.Close()
			ui.Success("Credential removed for provider %s", delProvider)
			return nil
		},
	}
	deleteCmd.Flags().StringVar(&delTenant, "tenant", "", "tenant id (required)")
	deleteCmd.Flags().StringVar(&delProvider, "provider", "openai", "provider name")
	deleteCmd.MarkFlagRequired("tenant")

	cmd.AddCommand(setCmd)
	cmd.AddCommand(listCmd)
	cmd.AddCommand(deleteCmd)
	return cmd
}
