// Package revisions holds the Fuel schema chain: the 8.0 base the chain
// starts from and the 9.0 revision on top of it. Every transition goes
// through the schema and backfill packages, so the chain runs on any driver.
package revisions

import (
	"context"
	"fmt"

	"github.com/root-talis/fuelmig"
	"github.com/root-talis/fuelmig/driver"
	"github.com/root-talis/fuelmig/migration"
	"github.com/root-talis/fuelmig/schema"
)

const (
	Fuel80 migration.Revision = "43b2cb64dae6"
	Fuel90 migration.Revision = "11a9adc6d36a"
)

// Steps returns the Fuel steps from root to head.
func Steps() []fuelmig.Step {
	return []fuelmig.Step{
		{
			Revision:  Fuel80,
			Name:      "fuel_8_0",
			Upgrade:   apply(fuel80Schema()...),
			Downgrade: apply(dropFuel80Schema()...),
		},
		{
			Revision:       Fuel90,
			Parent:         Fuel80,
			Name:           "fuel_9_0",
			Upgrade:        upgradeAll(fuel90Changes()),
			Downgrade:      downgradeAll(fuel90Changes()),
			LossyDowngrade: true,
		},
	}
}

// Chain builds the validated Fuel chain. Extra steps, such as SQL scripts,
// are appended after the head.
func Chain(extra ...fuelmig.Step) (*fuelmig.Chain, error) {
	builder := fuelmig.NewBuilder()
	if err := builder.RegisterAll(Steps()...); err != nil {
		return nil, err
	}
	if err := builder.RegisterAll(extra...); err != nil {
		return nil, err
	}
	return builder.Build()
}

// ---

// change is one self-contained part of a revision.
type change struct {
	name      string
	upgrade   fuelmig.Transition
	downgrade fuelmig.Transition
}

func upgradeAll(changes []change) fuelmig.Transition {
	return func(ctx context.Context, tx driver.Tx) error {
		for _, c := range changes {
			if err := c.upgrade(ctx, tx); err != nil {
				return fmt.Errorf("%s: %w", c.name, err)
			}
		}
		return nil
	}
}

func downgradeAll(changes []change) fuelmig.Transition {
	return func(ctx context.Context, tx driver.Tx) error {
		for i := len(changes) - 1; i >= 0; i-- {
			c := changes[i]
			if c.downgrade == nil {
				continue
			}
			if err := c.downgrade(ctx, tx); err != nil {
				return fmt.Errorf("%s: %w", c.name, err)
			}
		}
		return nil
	}
}

func apply(ops ...schema.Op) fuelmig.Transition {
	return func(ctx context.Context, tx driver.Tx) error {
		return schema.Apply(ctx, tx, ops...)
	}
}

type transform interface {
	fmt.Stringer
	Run(ctx context.Context, store schema.Store) (int, error)
}

func run(transforms ...transform) fuelmig.Transition {
	return func(ctx context.Context, tx driver.Tx) error {
		for _, t := range transforms {
			if _, err := t.Run(ctx, tx); err != nil {
				return fmt.Errorf("%s: %w", t, err)
			}
		}
		return nil
	}
}

func then(transitions ...fuelmig.Transition) fuelmig.Transition {
	return func(ctx context.Context, tx driver.Tx) error {
		for _, transition := range transitions {
			if err := transition(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	}
}

func enumChange(change schema.EnumChange) fuelmig.Transition {
	return func(ctx context.Context, tx driver.Tx) error {
		return schema.ChangeEnum(ctx, tx, change)
	}
}

// ---

func intColumn(name string, nullable bool) schema.Column {
	return schema.Column{Name: name, Type: schema.IntegerType(), Nullable: nullable}
}

func idColumn() schema.Column {
	return schema.Column{Name: "id", Type: schema.IntegerType(), AutoIncrement: true}
}

func jsonColumn(name string, nullable bool, def string) schema.Column {
	col := schema.Column{Name: name, Type: schema.JSONType(), Nullable: nullable}
	if def != "" {
		col.Default = schema.Default(def)
	}
	return col
}

func stringColumn(name string, length int, nullable bool) schema.Column {
	return schema.Column{Name: name, Type: schema.StringType(length), Nullable: nullable}
}

func foreignKey(name, column, refTable string, policy schema.DeletePolicy) schema.ForeignKey {
	return schema.ForeignKey{
		Name:       name,
		Columns:    []string{column},
		RefTable:   refTable,
		RefColumns: []string{"id"},
		OnDelete:   policy,
	}
}
