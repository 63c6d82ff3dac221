// Package fuelmig runs a linear chain of schema revisions against a store,
// one transaction per step, and keeps the applied history in the store's log.
package fuelmig

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/root-talis/fuelmig/driver"
	"github.com/root-talis/fuelmig/migration"
)

// ---

type Migrator interface {
	Validate(ctx context.Context) (*ValidationResult, error)
	Current(ctx context.Context) (migration.Revision, error)
	Plan(ctx context.Context, target migration.Revision) (*Plan, error)
	Upgrade(ctx context.Context, target migration.Revision) error
	Downgrade(ctx context.Context, target migration.Revision) error
	Run(ctx context.Context, plan *Plan) error
}

type ValidationResult struct {
	Migrations   []migration.State
	AppliedCount uint
	PendingCount uint
	MissingCount uint
}

// ---

type Option func(*migratorImpl)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(m *migratorImpl) {
		m.logger = logger
	}
}

// WithRunID sets the generator of the id stamped on every log row of a run.
func WithRunID(next func() string) Option {
	return func(m *migratorImpl) {
		m.runID = next
	}
}

type migratorImpl struct {
	chain  *Chain
	driver driver.Driver
	logger logrus.FieldLogger
	runID  func() string
}

// ---

func New(chain *Chain, driver driver.Driver, opts ...Option) Migrator {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	m := &migratorImpl{
		chain:  chain,
		driver: driver,
		logger: discard,
		runID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ---

func (m *migratorImpl) Validate(ctx context.Context) (*ValidationResult, error) {
	availableMigrations, err := m.chain.GetAvailableMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to get the list of available migrations: %w", err)
	}

	appliedMigrations, order, err := m.loadMigrationsFromDB(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get the list of applied migrations: %w", err)
	}

	result := ValidationResult{
		Migrations: make([]migration.State, 0, len(*availableMigrations)),
	}
	for _, availableMigration := range *availableMigrations {
		entry, ok := appliedMigrations[availableMigration.Revision]

		status := migration.Pending
		if ok {
			status = entry.Status
		}

		if status == migration.Pending {
			result.PendingCount++
		} else {
			result.AppliedCount++
		}

		result.Migrations = append(result.Migrations, migration.State{
			Description: availableMigration,
			Status:      status,
			AppliedAt:   entry.AppliedAt,
		})
	}

	for _, revision := range order {
		if _, found := m.chain.Step(revision); found {
			continue
		}

		applied := appliedMigrations[revision]
		if applied.Status != migration.Applied {
			continue
		}

		applied.Description.CanUndo = false
		result.Migrations = append(result.Migrations, migration.State{
			Description: applied.Description,
			Status:      migration.Missing,
			AppliedAt:   applied.AppliedAt,
		})
		result.MissingCount++
	}

	return &result, nil
}

// Current returns the revision the store stands at. Applied revisions must
// form a prefix of the chain.
func (m *migratorImpl) Current(ctx context.Context) (migration.Revision, error) {
	result, err := m.Validate(ctx)
	if err != nil {
		return "", err
	}

	if result.MissingCount > 0 {
		for _, state := range result.Migrations {
			if state.Status == migration.Missing {
				return "", fmt.Errorf("%w: applied revision %s is not part of the chain", ErrOutOfSync, state.Revision)
			}
		}
	}

	current := migration.Base
	for i, state := range result.Migrations {
		if state.Status != migration.Applied {
			continue
		}
		if uint(i) >= result.AppliedCount {
			return "", fmt.Errorf("%w: %s is applied but an earlier revision is pending", ErrOutOfSync, state.Revision)
		}
		current = state.Revision
	}
	return current, nil
}

func (m *migratorImpl) Plan(ctx context.Context, target migration.Revision) (*Plan, error) {
	current, err := m.Current(ctx)
	if err != nil {
		return nil, err
	}
	return m.chain.Plan(current, target)
}

func (m *migratorImpl) Upgrade(ctx context.Context, target migration.Revision) error {
	if target == "" {
		target = migration.Head
	}

	plan, err := m.Plan(ctx, target)
	if err != nil {
		return err
	}
	if plan.Direction != migration.Up {
		return fmt.Errorf("%w: cannot upgrade from %s to %s, it is behind", ErrNoPath, plan.From, plan.To)
	}
	return m.Run(ctx, plan)
}

func (m *migratorImpl) Downgrade(ctx context.Context, target migration.Revision) error {
	if target == "" {
		target = migration.Base
	}

	plan, err := m.Plan(ctx, target)
	if err != nil {
		return err
	}
	if plan.Direction != migration.Down && !plan.Empty() {
		return fmt.Errorf("%w: cannot downgrade from %s to %s, it is ahead", ErrNoPath, plan.From, plan.To)
	}
	return m.Run(ctx, plan)
}

// Run applies plan one step at a time. Cancellation of ctx is honoured
// between steps only: a step that has started runs to its commit or rollback.
func (m *migratorImpl) Run(ctx context.Context, plan *Plan) error {
	current, err := m.Current(ctx)
	if err != nil {
		return err
	}
	if current != plan.From {
		return fmt.Errorf("%w: plan starts at %s, store is at %s", ErrOutOfSync, plan.From, current)
	}

	runID := m.runID()
	logger := m.logger.WithFields(logrus.Fields{"run_id": runID, "direction": plan.Direction.String()})

	if plan.Empty() {
		logger.WithField("revision", current).Info("nothing to do")
		return nil
	}

	reached := current
	for _, step := range plan.Steps {
		stepLogger := logger.WithField("revision", step.Revision)

		if err := ctx.Err(); err != nil {
			stepLogger.WithError(err).Warn("run cancelled before step")
			return &StepError{Revision: step.Revision, Direction: plan.Direction, Reached: reached, Err: err}
		}

		if plan.Direction == migration.Down && step.LossyDowngrade {
			stepLogger.Warn("downgrade of this revision discards data")
		}

		if err := m.runStep(context.WithoutCancel(ctx), step, plan.Direction, runID); err != nil {
			stepLogger.WithError(err).Error("step failed, rolled back")
			return &StepError{Revision: step.Revision, Direction: plan.Direction, Reached: reached, Err: err}
		}

		if plan.Direction == migration.Up {
			reached = step.Revision
		} else {
			reached = step.below()
		}
		stepLogger.WithField("name", step.Name).Info("step applied")
	}

	return nil
}

func (m *migratorImpl) runStep(ctx context.Context, step Step, direction migration.Direction, runID string) (err error) {
	transition := step.Upgrade
	if direction == migration.Down {
		transition = step.Downgrade
	}
	if transition == nil {
		return fmt.Errorf("%w: %s", ErrIrreversible, step.Revision)
	}

	tx, err := m.driver.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				m.logger.WithError(rbErr).WithField("revision", step.Revision).Error("failed to roll back")
			}
		}
	}()

	if err = transition(ctx, tx); err != nil {
		return err
	}

	err = tx.AppendLog(ctx, migration.Log{
		Migration: migration.Migration{Revision: step.Revision, Name: step.Name},
		Direction: direction,
		RunID:     runID,
	})
	if err != nil {
		return fmt.Errorf("failed to append to migrations log: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// ---

func (m *migratorImpl) loadMigrationsFromDB(ctx context.Context) (map[migration.Revision]migration.State, []migration.Revision, error) {
	migrations, err := m.driver.ListMigrationsLog(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load migrations from db: %w", err)
	}

	result := make(map[migration.Revision]migration.State, len(*migrations))
	var order []migration.Revision

	for _, mig := range *migrations {
		var status migration.Status
		var appliedAt time.Time

		switch mig.Direction {
		case migration.Up:
			status = migration.Applied
			appliedAt = mig.AppliedAt
		case migration.Down:
			status = migration.Pending
		}

		if _, seen := result[mig.Revision]; !seen {
			order = append(order, mig.Revision)
		}

		result[mig.Revision] = migration.State{
			Description: migration.Description{
				Migration: mig.Migration,
				CanUndo:   false,
			},
			Status:    status,
			AppliedAt: appliedAt,
		}
	}

	return result, order, nil
}
