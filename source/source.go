package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/root-talis/fuelmig"
	"github.com/root-talis/fuelmig/driver"
	"github.com/root-talis/fuelmig/migration"
)

type Source interface {
	GetAvailableMigrations() (*[]migration.Description, error)
	ReadMigration(migration migration.Migration, direction migration.Direction) (io.Reader, error)
}

var (
	ErrMigrationDuplicated = errors.New("migration version already exists with different name")
	ErrMigrationNotFound   = errors.New("migration is not available in source")
)

// Steps chains the migrations of src in version order below parent. The SQL
// of every migration is read up front; each transition runs it through the
// step's transaction. A migration without a down script is irreversible.
func Steps(src Source, parent migration.Revision) ([]fuelmig.Step, error) {
	descriptions, err := src.GetAvailableMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}

	steps := make([]fuelmig.Step, 0, len(*descriptions))
	for _, d := range *descriptions {
		up, err := readStatement(src, d.Migration, migration.Up)
		if err != nil {
			return nil, err
		}

		step := fuelmig.Step{
			Revision: d.Revision,
			Parent:   parent,
			Name:     d.Name,
			Upgrade:  execTransition(up),
		}
		if d.CanUndo {
			down, err := readStatement(src, d.Migration, migration.Down)
			if err != nil {
				return nil, err
			}
			step.Downgrade = execTransition(down)
		}

		steps = append(steps, step)
		parent = d.Revision
	}

	return steps, nil
}

func readStatement(src Source, m migration.Migration, direction migration.Direction) (string, error) {
	r, err := src.ReadMigration(m, direction)
	if err != nil {
		return "", fmt.Errorf("failed to read %s script of %s: %w", direction, m.Revision, err)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read %s script of %s: %w", direction, m.Revision, err)
	}
	return string(body), nil
}

func execTransition(statement string) fuelmig.Transition {
	return func(ctx context.Context, tx driver.Tx) error {
		return tx.Exec(ctx, statement)
	}
}
