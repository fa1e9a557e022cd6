package main

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/txn2/sam/pkg/credential"
	credpostgres "github.com/txn2/sam/pkg/credential/postgres"
	"github.com/txn2/sam/pkg/platform"
)

type accountOptions struct {
	platform     string
	account      string
	refreshToken string
	accessToken  string
	expiresIn    time.Duration
}

func newAccountCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage linked platform accounts",
	}
	cmd.AddCommand(newAccountLinkCmd(a), newAccountShowCmd(a), newAccountUnlinkCmd(a))
	return cmd
}

func newAccountLinkCmd(a *app) *cobra.Command {
	var opts accountOptions
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Store the tokens of a linked account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.refreshToken == "" {
				return errors.New("--refresh-token is required")
			}
			cred := &credential.Credential{
				Platform:     opts.platform,
				AccountID:    opts.account,
				AccessToken:  opts.accessToken,
				RefreshToken: opts.refreshToken,
				UpdatedAt:    time.Now().UTC(),
			}
			if opts.accessToken != "" && opts.expiresIn > 0 {
				exp := cred.UpdatedAt.Add(opts.expiresIn)
				cred.ExpiresAt = &exp
			}
			return a.withAccounts(cmd, "account link", func(repo credential.Repository) error {
				if err := repo.Put(cmd.Context(), cred); err != nil {
					return fmt.Errorf("linking account: %w", err)
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "linked %s account %s\n", opts.platform, opts.account)
				return err
			})
		},
	}
	accountFlags(cmd, &opts)
	cmd.Flags().StringVar(&opts.refreshToken, "refresh-token", "", "OAuth refresh token")
	cmd.Flags().StringVar(&opts.accessToken, "access-token", "", "current access token, if any")
	cmd.Flags().DurationVar(&opts.expiresIn, "expires-in", time.Hour, "lifetime of --access-token")
	return cmd
}

func newAccountShowCmd(a *app) *cobra.Command {
	var opts accountOptions
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the token state of a linked account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withAccounts(cmd, "account show", func(repo credential.Repository) error {
				cred, err := repo.Get(cmd.Context(), opts.platform, opts.account)
				if err != nil {
					return fmt.Errorf("loading account: %w", err)
				}
				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "platform: %s\naccount:  %s\n", cred.Platform, cred.AccountID)
				_, _ = fmt.Fprintf(out, "state:    %s\n", cred.State(time.Now(), credential.DefaultRefreshBuffer))
				if cred.ExpiresAt != nil {
					_, _ = fmt.Fprintf(out, "expires:  %s\n", cred.ExpiresAt.Format(time.RFC3339))
				}
				_, err = fmt.Fprintf(out, "updated:  %s\n", cred.UpdatedAt.Format(time.RFC3339))
				return err
			})
		},
	}
	accountFlags(cmd, &opts)
	return cmd
}

func newAccountUnlinkCmd(a *app) *cobra.Command {
	var opts accountOptions
	cmd := &cobra.Command{
		Use:   "unlink",
		Short: "Delete a linked account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withAccounts(cmd, "account unlink", func(repo credential.Repository) error {
				if err := repo.Delete(cmd.Context(), opts.platform, opts.account); err != nil {
					return fmt.Errorf("unlinking account: %w", err)
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "unlinked %s account %s\n", opts.platform, opts.account)
				return err
			})
		},
	}
	accountFlags(cmd, &opts)
	return cmd
}

func accountFlags(cmd *cobra.Command, opts *accountOptions) {
	cmd.Flags().StringVarP(&opts.platform, "platform", "p", "spotify", "streaming platform")
	cmd.Flags().StringVarP(&opts.account, "account", "a", "", "account id")
	_ = cmd.MarkFlagRequired("account")
}

// withAccounts opens the configured database and runs fn against the
// persistent account repository.
func (a *app) withAccounts(cmd *cobra.Command, command string, fn func(credential.Repository) error) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if err := requireDatabase(cfg, command); err != nil {
		return err
	}
	sealer, err := platform.NewSealer(cfg.Credentials)
	if err != nil {
		return err
	}
	return withDatabase(cfg, func(db *sql.DB) error {
		return fn(credpostgres.New(db, sealer))
	})
}

func withDatabase(cfg *platform.Config, fn func(*sql.DB) error) error {
	db, err := platform.OpenDB(cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return fn(db)
}
