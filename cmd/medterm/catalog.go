package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medterm/medterm/internal/config"
	"github.com/medterm/medterm/internal/domain/terminology"
	"github.com/medterm/medterm/internal/platform/db"
)

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Validate and manage rule catalogs",
	}
	cmd.AddCommand(catalogValidateCmd())
	cmd.AddCommand(catalogPublishCmd())
	cmd.AddCommand(catalogActivateCmd())
	cmd.AddCommand(catalogVersionsCmd())
	return cmd
}

func catalogValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Compile a catalog and print its summary",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := cmd.Flags().Set("catalog", args[0]); err != nil {
					return err
				}
			}
			catalog, err := loadCatalog(cmd)
			if err != nil {
				return err
			}
			printCatalogInfo(cmd, catalog.Info())
			return nil
		},
	}
	addCatalogFlags(cmd)
	return cmd
}

func printCatalogInfo(cmd *cobra.Command, info *terminology.CatalogInfo) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "version: %s\n", info.Version)
	if info.Description != "" {
		fmt.Fprintf(out, "description: %s\n", info.Description)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, cs := range info.Categories {
		fmt.Fprintf(tw, "  %s\t%d\n", cs.Category, cs.Rules)
	}
	tw.Flush()
	fmt.Fprintf(out, "total rules: %d\n", info.TotalRules)
	fmt.Fprintf(out, "forbidden expressions: %d\n", info.Forbidden)
	fmt.Fprintf(out, "abbreviations: %d\n", info.Abbreviations)
	for _, w := range info.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}
}

// openStore connects to the configured database and returns a service backed
// by the stored catalog versions.
func openStore(ctx context.Context, strict bool) (*pgxpool.Pool, *terminology.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	versions := terminology.NewCatalogVersionRepoPG(pool)
	logger := newLogger(cfg.Env)
	registry := terminology.NewRegistry(terminology.DatabaseSource{Repo: versions}, terminology.LoadOptions{Strict: strict}, zerolog.Nop())
	svc := terminology.NewService(registry, terminology.ServiceConfig{},
		terminology.WithVersionRepository(versions),
		terminology.WithAuditRepository(terminology.NewAuditRepoPG(pool)),
		terminology.WithLogger(logger),
	)
	return pool, svc, nil
}

func catalogPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish <file>",
		Short: "Store a catalog document as a new version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			activate, _ := cmd.Flags().GetBool("activate")
			strict, _ := cmd.Flags().GetBool("strict")
			createdBy, _ := cmd.Flags().GetString("created-by")

			doc, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read catalog: %w", err)
			}

			ctx := cmd.Context()
			pool, svc, err := openStore(ctx, strict)
			if err != nil {
				return err
			}
			defer pool.Close()

			v, err := svc.PublishCatalog(ctx, terminology.PublishRequest{
				Document:  doc,
				Format:    terminology.FormatFromPath(args[0]),
				Activate:  activate,
				CreatedBy: createdBy,
			})
			if err != nil {
				return err
			}
			state := "stored"
			if v.Active {
				state = "stored and activated"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d rules, %s)\n", state, v.Version, v.RuleCount, v.Checksum)
			return nil
		},
	}
	cmd.Flags().Bool("activate", false, "Make the stored version active")
	cmd.Flags().Bool("strict", false, "Reject unknown catalog keys")
	cmd.Flags().String("created-by", os.Getenv("USER"), "Author recorded with the version")
	return cmd
}

func catalogActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <version>",
		Short: "Make a stored catalog version active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, svc, err := openStore(ctx, false)
			if err != nil {
				return err
			}
			defer pool.Close()

			v, err := svc.ActivateCatalogVersion(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "activated %s\n", v.Version)
			return nil
		},
	}
}

func catalogVersionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List stored catalog versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			ctx := cmd.Context()
			pool, svc, err := openStore(ctx, false)
			if err != nil {
				return err
			}
			defer pool.Close()

			items, total, err := svc.ListCatalogVersions(ctx, limit, 0)
			if err != nil {
				return err
			}
			printVersions(cmd, items, total)
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum number of versions to list")
	return cmd
}

func printVersions(cmd *cobra.Command, items []*terminology.CatalogVersion, total int) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tACTIVE\tRULES\tCHECKSUM\tCREATED AT\tCREATED BY")
	for _, v := range items {
		active := ""
		if v.Active {
			active = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", v.Version, active, v.RuleCount, v.Checksum, v.CreatedAt.Format("2006-01-02 15:04:05"), v.CreatedBy)
	}
	tw.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d version(s)\n", len(items), total)
}
