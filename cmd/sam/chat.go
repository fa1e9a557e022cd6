package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/txn2/sam/pkg/credential"
	"github.com/txn2/sam/pkg/dialog"
	"github.com/txn2/sam/pkg/platform"
)

type chatOptions struct {
	platform     string
	account      string
	session      string
	refreshToken string
}

func newChatCmd(a *app) *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to Sam from the terminal",
		Long: "Reads one utterance per line from stdin and prints the reply, the turn status, " +
			"per-action results and any client command. A failed turn is reported on stderr " +
			"and the session continues. Type exit or quit to leave.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			p, stop, err := a.startPlatform(cmd, cfg)
			if err != nil {
				return err
			}
			defer stop()

			if opts.session == "" {
				opts.session = uuid.NewString()
			}
			if opts.refreshToken != "" {
				if err := seedAccount(cmd, p, opts); err != nil {
					return err
				}
			}
			return chatLoop(cmd, p, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.platform, "platform", "p", "spotify", "streaming platform")
	cmd.Flags().StringVarP(&opts.account, "account", "a", "", "linked account id")
	cmd.Flags().StringVar(&opts.session, "session", "", "session id (default: random)")
	cmd.Flags().StringVar(&opts.refreshToken, "refresh-token", "", "link the account with this refresh token before chatting")
	return cmd
}

func seedAccount(cmd *cobra.Command, p *platform.Platform, opts chatOptions) error {
	err := p.Accounts().Put(cmd.Context(), &credential.Credential{
		Platform:     opts.platform,
		AccountID:    opts.account,
		RefreshToken: opts.refreshToken,
		UpdatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("linking account: %w", err)
	}
	return nil
}

func chatLoop(cmd *cobra.Command, p *platform.Platform, opts chatOptions) error {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "session %s on %s. Type exit to quit.\n", opts.session, opts.platform)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		_, _ = fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		resp, err := p.ProcessTurn(cmd.Context(), dialog.TurnRequest{
			SessionID: opts.session,
			Platform:  opts.platform,
			AccountID: opts.account,
			Utterance: line,
		})
		if err != nil {
			if ctxErr := cmd.Context().Err(); ctxErr != nil {
				return ctxErr
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			continue
		}
		printTurn(out, resp)
	}
}

func printTurn(w io.Writer, resp *dialog.TurnResponse) {
	_, _ = fmt.Fprintf(w, "sam: %s\n", resp.Reply)
	_, _ = fmt.Fprintf(w, "  status: %s\n", resp.Status)
	for _, r := range resp.Actions {
		line := fmt.Sprintf("  action: %s %s", r.Action, r.Outcome)
		if len(r.Missing) > 0 {
			line += " missing=" + strings.Join(r.Missing, ",")
		}
		if r.Message != "" {
			line += fmt.Sprintf(" (%s)", r.Message)
		}
		_, _ = fmt.Fprintln(w, line)
	}
	if len(resp.Discarded) > 0 {
		_, _ = fmt.Fprintf(w, "  discarded: %s\n", strings.Join(resp.Discarded, ", "))
	}
	if resp.Command != nil {
		raw, err := json.Marshal(resp.Command)
		if err == nil {
			_, _ = fmt.Fprintf(w, "  command: %s\n", raw)
		}
	}
	if len(resp.Audio) > 0 {
		_, _ = fmt.Fprintf(w, "  audio: %d bytes\n", len(resp.Audio))
	}
	if resp.ReauthRequired {
		_, _ = fmt.Fprintln(w, "  re-link this account with: sam account link")
	}
}
