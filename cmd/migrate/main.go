package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aitoolflow/engine/internal/repository"
	"github.com/aitoolflow/engine/internal/seed"
	"github.com/aitoolflow/engine/pkg/config"
	"github.com/aitoolflow/engine/pkg/database"
	"github.com/aitoolflow/engine/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the toolflow database schema and catalog",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newUpCmd(), newSeedCmd())
	return root
}

func newUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			if err := repository.Migrate(db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			logger.L().Info("migrations completed")
			fmt.Fprintln(cmd.OutOrStdout(), "migrations completed")
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert tools, predefined workflows and node suggestions from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := seed.LoadFile(file)
			if err != nil {
				return err
			}
			db, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			if err := repository.Migrate(db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			res, err := seed.Apply(cmd.Context(), db, catalog)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d tools, %d templates, %d suggestions\n", res.Tools, res.Templates, res.Suggestions)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "catalog.yaml", "path to the catalog YAML file")
	return cmd
}

func connect(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if _, err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, cfg.DBDriver, cfg.DatabaseURL, database.Options{})
	if err != nil {
		logger.L().Error("failed to connect to database", zap.Error(err))
		return nil, err
	}
	return db, nil
}
