// Package main provides the sam command line: an interactive chat loop over
// the turn engine plus database, account and history maintenance commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/txn2/sam/internal/server"
	"github.com/txn2/sam/pkg/platform"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app carries state shared by subcommands.
type app struct {
	configPath string

	// opts override platform components; tests use them to stub backends.
	opts []platform.Option
}

func newRootCmd(opts ...platform.Option) *cobra.Command {
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:          "sam",
		Short:        "Sam: conversational music assistant",
		Long:         "sam turns spoken or typed requests into music actions on linked streaming platforms.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "sam.yaml", "path to the configuration file")

	root.AddCommand(
		newVersionCmd(),
		newChatCmd(a),
		newMigrateCmd(a),
		newAccountCmd(a),
		newHistoryCmd(a),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "sam version %s\n", server.Version)
			return err
		},
	}
}

func (a *app) loadConfig() (*platform.Config, error) {
	return server.LoadConfig(a.configPath)
}

// startPlatform builds and starts the engine. The caller must call the
// returned stop function.
func (a *app) startPlatform(cmd *cobra.Command, cfg *platform.Config) (*platform.Platform, func(), error) {
	p, err := server.NewWithConfig(cfg, cmd.ErrOrStderr(), a.opts...)
	if err != nil {
		return nil, nil, err
	}
	stop := func() {
		if err := p.Stop(context.WithoutCancel(cmd.Context())); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "shutdown: %v\n", err)
		}
	}
	if err := p.Start(cmd.Context()); err != nil {
		stop()
		return nil, nil, fmt.Errorf("starting platform: %w", err)
	}
	return p, stop, nil
}

func requireDatabase(cfg *platform.Config, command string) error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("%s requires database.dsn", command)
	}
	return nil
}
