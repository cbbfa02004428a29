package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"quiz-match-service/internal/auth"
	"quiz-match-service/internal/config"
)

// NewTokenCmd mints a JOIN_MATCH or admin token for local testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var admin bool
	cmd := &cobra.Command{
		Use:   "token <userId>",
		Short: "Print a signed player or admin token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ttl := config.TTLDuration(cfg.Auth.TokenTTL, time.Hour)
			tokens := auth.NewManager(cfg.Auth.Secret, ttl)
			issue := tokens.Issue
			if admin {
				issue = tokens.IssueAdmin
			}
			token, err := issue(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "issue a token for the match-control API")
	return cmd
}
