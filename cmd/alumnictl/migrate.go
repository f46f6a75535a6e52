package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"go.uber.org/zap"

	dbmigrations "github.com/noah-isme/alumni-network-api/db"
	"github.com/noah-isme/alumni-network-api/pkg/config"
	"github.com/noah-isme/alumni-network-api/pkg/database"
)

// schemaMigrator is implemented by database.Migrator.
type schemaMigrator interface {
	Up() error
	Down(steps int) error
	Version() (uint, bool, error)
	Close() error
}

func openEmbeddedMigrator(cfg config.DatabaseConfig, logger *zap.Logger) (schemaMigrator, error) {
	m, err := database.NewMigrator(cfg, dbmigrations.Migrations, dbmigrations.MigrationsDir, logger)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(opts, func(m schemaMigrator) error {
				return m.Up()
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(opts, func(m schemaMigrator) error {
				return m.Down(steps)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(opts, func(m schemaMigrator) error {
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", v, dirty)
				return nil
			})
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func withMigrator(opts *rootOptions, fn func(schemaMigrator) error) error {
	m, err := opts.openMigrator(opts.cfg.Database, opts.logger)
	if err != nil {
		return err
	}
	defer m.Close() //nolint:errcheck
	return fn(m)
}
