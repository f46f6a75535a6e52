package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/alumni-network-api/internal/service"
)

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		email    string
		fullName string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <actor-id>",
		Short: "Issue a bearer token for an actor",
		Long: `Issue an HS256 bearer token signed with JWT_SECRET.

Tokens for real users come from the identity provider; this command exists for
local development and smoke tests.

Example:
  alumnictl token 6f1c1a1e-3b52-4b8e-9d5e-2a9f6f0c0001 --ttl 1h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ttl <= 0 {
				ttl = opts.cfg.JWT.Expiration
			}
			identity := service.NewIdentityService(service.IdentityConfig{
				Secret:   opts.cfg.JWT.Secret,
				Issuer:   opts.cfg.JWT.Issuer,
				TokenTTL: ttl,
			}, opts.logger)
			token, expiresAt, err := identity.IssueToken(args[0], email, fullName)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&fullName, "name", "", "full name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to JWT_EXPIRATION)")
	return cmd
}
