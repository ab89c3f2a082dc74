package cli

import (
	"fmt"

	"github.com/rhythmcheck/backend/internal/auth"
	"github.com/rhythmcheck/backend/internal/config"
	"github.com/rhythmcheck/backend/internal/models"
	"github.com/spf13/cobra"
)

// newIssueTokenCmd signs a bearer token with the configured secret. Account
// management lives outside this service, so operators mint tokens here.
func newIssueTokenCmd(configPath *string) *cobra.Command {
	var (
		learnerID int64
		role      string
	)
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Print a signed bearer token for a learner or staff member",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			token, err := issueToken(cfg, learnerID, models.Role(role))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().Int64Var(&learnerID, "learner", 0, "learner id to embed in the token")
	cmd.Flags().StringVar(&role, "role", string(models.RoleLearner), "learner, staff or admin")
	_ = cmd.MarkFlagRequired("learner")
	return cmd
}

func issueToken(cfg *config.Config, learnerID int64, role models.Role) (string, error) {
	if learnerID <= 0 {
		return "", fmt.Errorf("learner id must be positive")
	}
	switch role {
	case models.RoleLearner, models.RoleStaff, models.RoleAdmin:
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}
	return auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).IssueToken(learnerID, role)
}
