// Command fuelmig upgrades and downgrades the Fuel control plane database and
// renders deployment network documents.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/root-talis/fuelmig"
	"github.com/root-talis/fuelmig/internal/config"
)

// app carries what every command needs once the config is loaded.
type app struct {
	configFile string
	cfg        *config.Config
	logger     *logrus.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{logger: logrus.New()}

	root := &cobra.Command{
		Use:   "fuelmig",
		Short: "Fuel database migrations",
		Long: `Runs the versioned schema chain of the Fuel control plane database.

Settings come from a YAML file and FUELMIG_* environment variables, e.g.
FUELMIG_DATABASE_DSN overrides database.dsn.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default ./fuelmig.yaml)")

	root.AddCommand(
		newUpgradeCommand(a),
		newDowngradeCommand(a),
		newStatusCommand(a),
		newHistoryCommand(a),
		newPlanCommand(a),
		newProjectCommand(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	a.logger.SetLevel(level)
	a.logger.SetOutput(cmd.ErrOrStderr())
	if cfg.Log.Format == config.FormatJSON {
		a.logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		a.logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.File != "" {
		a.logger.WithField("file", cfg.File).Debug("loaded config")
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		var stepErr *fuelmig.StepError
		if errors.As(err, &stepErr) {
			fmt.Fprintf(os.Stderr, "Error: revision %s failed, database is at %s\n", stepErr.Revision, stepErr.Reached)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
