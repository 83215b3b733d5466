package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"whatsapp-agent/backend/pkg/config"
	"whatsapp-agent/backend/pkg/jwt"
)

func newTokenCommand(cfg *config.Config) *cobra.Command {
	token := &cobra.Command{
		Use:   "token",
		Short: "Issue admin API tokens",
	}

	var subject, role string
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Sign a token with JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, ok := jwt.ParseRole(role)
			if !ok {
				return fmt.Errorf("unknown role %q", role)
			}
			svc := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Expiry)
			signed, err := svc.GenerateToken(subject, r)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	issue.Flags().StringVar(&subject, "subject", "", "token subject")
	issue.Flags().StringVar(&role, "role", string(jwt.RoleReviewer), "admin, reviewer or viewer")
	_ = issue.MarkFlagRequired("subject")
	token.AddCommand(issue)

	return token
}
