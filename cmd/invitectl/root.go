package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/narvanalabs/inviteonly/internal/app"
	"github.com/narvanalabs/inviteonly/pkg/config"
	"github.com/narvanalabs/inviteonly/pkg/logger"
)

// env supplies configuration and the wired service graph to commands.
type env struct {
	loadConfig func() (*config.Config, error)
	newApp     func(cfg *config.Config, log *logger.Logger) (*app.App, error)
}

func defaultEnv() env {
	return env{loadConfig: config.Load, newApp: app.New}
}

// open loads configuration and builds the app. Logs go to stderr so command
// output stays clean.
func (e env) open(stderr io.Writer) (*app.App, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	return e.newApp(cfg, logger.NewWithWriter(stderr, logger.ParseLevel(cfg.LogLevel), false))
}

func newRootCommand(e env) *cobra.Command {
	root := &cobra.Command{
		Use:   "invitectl",
		Short: "Operate the invitation service",
		Long: `invitectl runs maintenance tasks against the invitation store.

Configuration is read from the same environment variables as the API server.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newMigrateCommand(e),
		newSendRemindersCommand(e),
		newMarkExpiredCommand(e),
		newForgetActorCommand(e),
		newTokenCommand(e),
	)
	return root
}
