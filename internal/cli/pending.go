package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"whatsapp-agent/backend/internal/repository"
	"whatsapp-agent/backend/internal/service"
	"whatsapp-agent/backend/pkg/config"
	"whatsapp-agent/backend/pkg/logger"
)

func newPendingCommand(cfg *config.Config, log *logger.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List approval requests waiting for review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DatabaseMode() != config.DatabasePostgres {
				return errors.New("pending needs DATABASE_URL to name a postgres database")
			}
			db, err := config.NewDB(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			approvals := service.NewApprovalService(repository.NewGormStore(db), cfg.Approval.TTL, log)
			pending, err := approvals.ListPending(cmd.Context())
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no pending approvals")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTARGET\tEXPIRES\tDRAFT")
			for _, req := range pending {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", req.ID, req.TargetGroup, req.ExpiresAt.Format("2006-01-02 15:04"), preview(req.DraftMessage, 60))
			}
			return w.Flush()
		},
	}
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
