package main

import (
	"errors"
	"fmt"

	"github.com/prperemyshlev/user-auth-service/internal/app"
	"github.com/prperemyshlev/user-auth-service/internal/config"
	"github.com/prperemyshlev/user-auth-service/migrations"
	"github.com/prperemyshlev/user-auth-service/pkg/database"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "user-auth-service",
		Short:         "User authentication service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE:  runServe,
		},
		newMigrateCmd(),
		&cobra.Command{
			Use:   "purge",
			Short: "Delete expired refresh and password reset tokens once",
			RunE:  runPurge,
		},
	)

	return root
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	infra, err := app.NewInfrastructure(ctx, *cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize infrastructure: %w", err)
	}

	application, err := app.NewApp(infra, cfg)
	if err != nil {
		_ = infra.Shutdown(ctx)
		return err
	}

	if err := application.Run(ctx); err != nil {
		infra.Logger().Error("Application failed", zap.Error(err))
		return err
	}
	return nil
}

func runPurge(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.Redis.Enabled = false

	infra, err := app.NewInfrastructure(ctx, *cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize infrastructure: %w", err)
	}
	defer func() { _ = infra.Shutdown(ctx) }()

	application, err := app.NewApp(infra, cfg)
	if err != nil {
		return err
	}

	n, err := application.AuthService().PurgeExpired(ctx)
	if err != nil {
		return err
	}
	infra.Logger().Info("Purged expired tokens", zap.Int64("deleted", n))
	return nil
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: withMigrator(func(cmd *cobra.Command, m *database.Migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("migrations applied")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert all migrations",
			RunE: withMigrator(func(cmd *cobra.Command, m *database.Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("migrations reverted")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: withMigrator(func(cmd *cobra.Command, m *database.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				cmd.Printf("version %d (dirty: %t)\n", version, dirty)
				return nil
			}),
		},
	)

	return cmd
}

func withMigrator(fn func(*cobra.Command, *database.Migrator) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if cfg.Store != config.StoreKindPostgres {
			return errors.New("migrations require STORE=postgres")
		}

		pg, err := database.NewPostgres(ctx, cfg.Postgres.DSN(), database.PoolConfig{MaxOpenConns: 1})
		if err != nil {
			return err
		}
		defer pg.Close()

		m, err := database.NewMigrator(ctx, pg, migrations.FS)
		if err != nil {
			return err
		}
		defer func() { _ = m.Close() }()

		return fn(cmd, m)
	}
}
