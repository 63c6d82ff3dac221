package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/root-talis/fuelmig"
	"github.com/root-talis/fuelmig/driver"
	"github.com/root-talis/fuelmig/driver/mysql"
	"github.com/root-talis/fuelmig/driver/postgres"
	"github.com/root-talis/fuelmig/internal/config"
	"github.com/root-talis/fuelmig/migration"
	"github.com/root-talis/fuelmig/revisions"
	"github.com/root-talis/fuelmig/source"
	"github.com/root-talis/fuelmig/source/files"
)

func newUpgradeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade [revision]",
		Short: "Upgrade the database to a revision, head by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := targetArg(args, migration.Head)
			return a.withMigrator(cmd.Context(), func(m fuelmig.Migrator, _ driver.Driver) error {
				if err := m.Upgrade(cmd.Context(), target); err != nil {
					return err
				}
				return printCurrent(cmd, m)
			})
		},
	}
}

func newDowngradeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "downgrade [revision]",
		Short: "Downgrade the database to a revision, base by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := targetArg(args, migration.Base)
			return a.withMigrator(cmd.Context(), func(m fuelmig.Migrator, _ driver.Driver) error {
				if err := m.Downgrade(cmd.Context(), target); err != nil {
					return err
				}
				return printCurrent(cmd, m)
			})
		},
	}
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show every known revision and whether it is applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withMigrator(cmd.Context(), func(m fuelmig.Migrator, _ driver.Driver) error {
				result, err := m.Validate(cmd.Context())
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "REVISION\tNAME\tSTATUS\tAPPLIED AT\tREVERSIBLE")
				for _, state := range result.Migrations {
					appliedAt := ""
					if !state.AppliedAt.IsZero() {
						appliedAt = state.AppliedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						state.Revision, state.Name, state.Status, appliedAt, reversibility(state.Description))
				}
				if err := w.Flush(); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "\n%d applied, %d pending, %d missing\n",
					result.AppliedCount, result.PendingCount, result.MissingCount)
				return nil
			})
		},
	}
}

func newHistoryCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show the migrations log, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withMigrator(cmd.Context(), func(_ fuelmig.Migrator, drv driver.Driver) error {
				logs, err := drv.ListMigrationsLog(cmd.Context())
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "APPLIED AT\tDIRECTION\tREVISION\tNAME\tRUN")
				for _, entry := range *logs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						entry.AppliedAt.Format(time.RFC3339), entry.Direction, entry.Revision, entry.Name, entry.RunID)
				}
				return w.Flush()
			})
		},
	}
}

// newPlanCommand works on the chain alone and needs no database.
func newPlanCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <from> <to>",
		Short: "List the steps between two revisions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := a.chain()
			if err != nil {
				return err
			}
			plan, err := chain.Plan(migration.Revision(args[0]), migration.Revision(args[1]))
			if err != nil {
				return err
			}
			printPlan(cmd, plan)
			return nil
		},
	}
}

// ---

func targetArg(args []string, def migration.Revision) migration.Revision {
	if len(args) == 0 {
		return def
	}
	return migration.Revision(args[0])
}

func reversibility(d migration.Description) string {
	switch {
	case !d.CanUndo:
		return "no"
	case d.LossyDowngrade:
		return "lossy"
	default:
		return "yes"
	}
}

func printCurrent(cmd *cobra.Command, m fuelmig.Migrator) error {
	current, err := m.Current(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "database is at %s\n", current)
	return nil
}

func printPlan(cmd *cobra.Command, plan *fuelmig.Plan) {
	out := cmd.OutOrStdout()
	if plan.Empty() {
		fmt.Fprintf(out, "nothing to do, %s is %s\n", plan.From, plan.To)
		return
	}

	fmt.Fprintf(out, "%s from %s to %s:\n", plan.Direction, plan.From, plan.To)
	for _, step := range plan.Steps {
		note := ""
		if plan.Direction == migration.Down && step.LossyDowngrade {
			note = " (discards data)"
		}
		fmt.Fprintf(out, "  %s %s%s\n", step.Revision, step.Name, note)
	}
}

// ---

// chain is the Fuel chain followed by the SQL scripts of database.scripts_dir.
func (a *app) chain() (*fuelmig.Chain, error) {
	if a.cfg.Database.ScriptsDir == "" {
		return revisions.Chain()
	}

	src, err := files.NewFilesSource(os.DirFS(a.cfg.Database.ScriptsDir), ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read scripts from %s: %w", a.cfg.Database.ScriptsDir, err)
	}
	steps, err := source.Steps(src, revisions.Fuel90)
	if err != nil {
		return nil, err
	}
	return revisions.Chain(steps...)
}

func (a *app) openDriver(ctx context.Context) (driver.Driver, error) {
	db := a.cfg.Database
	if db.DSN == "" {
		return nil, fmt.Errorf("%w: database.dsn is not set", config.ErrInvalidConfig)
	}

	switch db.Driver {
	case config.DriverMySQL:
		return mysql.Open(db.DSN, mysql.DriverConfig{
			DatabaseName:        db.Name,
			MigrationsTableName: db.MigrationsTable,
		})
	default:
		return postgres.Open(ctx, db.DSN, postgres.DriverConfig{
			SchemaName:          db.Name,
			MigrationsTableName: db.MigrationsTable,
		})
	}
}

func (a *app) withMigrator(ctx context.Context, fn func(fuelmig.Migrator, driver.Driver) error) error {
	chain, err := a.chain()
	if err != nil {
		return err
	}

	drv, err := a.openDriver(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := drv.Close(); err != nil {
			a.logger.WithError(err).Warn("failed to close database connection")
		}
	}()

	m := fuelmig.New(chain, drv, fuelmig.WithLogger(a.logger.WithField("driver", a.cfg.Database.Driver)))
	return fn(m, drv)
}
