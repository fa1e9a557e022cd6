package main

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/txn2/sam/pkg/interaction"
	interactionpostgres "github.com/txn2/sam/pkg/interaction/postgres"
)

func newHistoryCmd(a *app) *cobra.Command {
	var filter interaction.QueryFilter
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List logged turns",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if err := requireDatabase(cfg, "history"); err != nil {
				return err
			}
			if !cfg.Interactions.Enabled {
				return errors.New("history requires interactions.enabled")
			}
			return withDatabase(cfg, func(db *sql.DB) error {
				store := interactionpostgres.New(db, interactionpostgres.Config{
					RetentionDays: cfg.Interactions.RetentionDays,
				})
				records, err := store.Query(cmd.Context(), filter)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, r := range records {
					_, _ = fmt.Fprintf(out, "%s  %-8s %-14s %-18s %q -> %q\n",
						r.Timestamp.Format(time.RFC3339), r.Platform, r.Status, r.FinalAction, r.Utterance, r.Reply)
				}
				_, err = fmt.Fprintf(out, "%d turns\n", len(records))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&filter.SessionID, "session", "", "session id")
	cmd.Flags().StringVarP(&filter.AccountID, "account", "a", "", "account id")
	cmd.Flags().StringVarP(&filter.Platform, "platform", "p", "", "streaming platform")
	cmd.Flags().StringVar(&filter.Status, "status", "", "turn status")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 20, "maximum number of turns")
	return cmd
}
