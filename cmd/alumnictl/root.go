package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/alumni-network-api/pkg/config"
	"github.com/noah-isme/alumni-network-api/pkg/logger"
)

// rootOptions carries state shared by every subcommand.
type rootOptions struct {
	loadConfig   func() (*config.Config, error)
	openMigrator func(cfg config.DatabaseConfig, logger *zap.Logger) (schemaMigrator, error)
	cfg          *config.Config
	logger       *zap.Logger
}

func newRootCommand() *cobra.Command {
	return newRootCommandWith(config.Load)
}

func newRootCommandWith(load func() (*config.Config, error)) *cobra.Command {
	return newRootCommandFrom(&rootOptions{loadConfig: load, openMigrator: openEmbeddedMigrator})
}

func newRootCommandFrom(opts *rootOptions) *cobra.Command {

	cmd := &cobra.Command{
		Use:           "alumnictl",
		Short:         "Operations tooling for the alumni network workflow API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logr, err := logger.New(cfg)
			if err != nil {
				return err
			}
			opts.cfg, opts.logger = cfg, logr
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.AddCommand(newMigrateCommand(opts), newTokenCommand(opts))
	return cmd
}
