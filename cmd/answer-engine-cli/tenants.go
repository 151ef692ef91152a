package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/veridia-ai/veridia/libs/answer-engine/internal/storage"
)

// newTenantCmd creates the tenant subcommand.
func newTenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	var name, slug, plan string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			tenant := &storage.Tenant{
				Name:     name,
				Slug:     slug,
				PlanTier: storage.PlanTier(plan),
			}
			if err := a.Repos.Tenants.Create(ctx, tenant); err != nil {
				return fmt.Errorf("create tenant: %w", err)
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(tenant)
			}
			ui := NewUI(outputJSON)
			defer ui.Close()
			ui.Success("Tenant created")
			ui.KeyValue("ID", tenant.ID)
			ui.KeyValue("Slug", tenant.Slug)
			return nil
		},
	}
	createCmd.Flags().StringVar(&name, "name", "", "tenant name (required)")
	createCmd.Flags().StringVar(&slug, "slug", "", "tenant slug (required)")
	createCmd.Flags().StringVar(&plan, "plan", "sandbox", "plan tier (sandbox, pro, enterprise)")
	createCmd.MarkFlagRequired("name")
	createCmd.MarkFlagRequired("slug")

	cmd.AddCommand(createCmd)
	return cmd
}

// newProjectCmd creates the project subcommand.
func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	var tenant, name, description string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
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

			project := &storage.Project{
				TenantID: tenantID,
				Name:     name,
			}
			if description != "" {
				project.Description = &description
			}
			if err := a.Repos.Projects.Create(ctx, project); err != nil {
				return fmt.Errorf("create project: %w", err)
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(project)
			}
			ui := NewUI(outputJSON)
			defer ui.Close()
			ui.Success("Project created")
			ui.KeyValue("ID", project.ID)
			return nil
		},
	}
	createCmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	createCmd.Flags().StringVar(&name, "name", "", "project name (required)")
	createCmd.Flags().StringVar(&description, "description", "", "project description")
	createCmd.MarkFlagRequired("tenant")
	createCmd.MarkFlagRequired("name")

	var listTenant string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List projects for a tenant",
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

			projects, err := a.Repos.Projects.ListByTenant(ctx, tenantID)
			if err != nil {
				return fmt.Errorf("list projects: %w", err)
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(projects)
			}
			ui := NewUI(outputJSON)
			defer ui.Close()
			rows := make([][]string, 0, len(projects))
			for _, p := range projects {
				rows = append(rows, []string{p.ID.String(), p.Name, p.CreatedAt.Format("2006-01-02")})
			}
			ui.Table([]string{"ID", "Name", "Created"}, rows)
			return nil
		},
	}
	listCmd.Flags().StringVar(&listTenant, "tenant", "", "tenant id (required)")
	listCmd.MarkFlagRequired("tenant")

	cmd.AddCommand(createCmd)
	cmd.AddCommand(listCmd)
	return cmd
}
