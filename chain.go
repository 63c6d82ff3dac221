package fuelmig

import (
	"context"
	"fmt"

	"github.com/root-talis/fuelmig/driver"
	"github.com/root-talis/fuelmig/migration"
)

// Transition moves the store across one revision. It runs inside the step's
// transaction and must not commit it.
type Transition func(ctx context.Context, tx driver.Tx) error

// Step is a single revision of the chain. An empty Parent marks the root.
// A nil Downgrade makes the step irreversible.
type Step struct {
	Revision       migration.Revision
	Parent         migration.Revision
	Name           string
	Upgrade        Transition
	Downgrade      Transition
	LossyDowngrade bool
}

func (s Step) Description() migration.Description {
	return migration.Description{
		Migration:      migration.Migration{Revision: s.Revision, Name: s.Name},
		Parent:         s.Parent,
		CanUndo:        s.Downgrade != nil,
		LossyDowngrade: s.LossyDowngrade,
	}
}

// below is the revision the store stands at once the step is reverted.
func (s Step) below() migration.Revision {
	if s.Parent == "" {
		return migration.Base
	}
	return s.Parent
}

// ---

type Builder struct {
	steps map[migration.Revision]Step
	order []migration.Revision
}

func NewBuilder() *Builder {
	return &Builder{
		steps: make(map[migration.Revision]Step),
	}
}

func (b *Builder) Register(step Step) error {
	switch {
	case step.Revision == "":
		return fmt.Errorf("%w: empty revision id", ErrInvalidRevision)
	case step.Revision == migration.Base || step.Revision == migration.Head:
		return fmt.Errorf("%w: %q is reserved", ErrInvalidRevision, step.Revision)
	case step.Upgrade == nil:
		return fmt.Errorf("%w: %s has no upgrade", ErrInvalidRevision, step.Revision)
	}

	if _, exists := b.steps[step.Revision]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRevision, step.Revision)
	}

	b.steps[step.Revision] = step
	b.order = append(b.order, step.Revision)
	return nil
}

func (b *Builder) RegisterAll(steps ...Step) error {
	for _, step := range steps {
		if err := b.Register(step); err != nil {
			return err
		}
	}
	return nil
}

// Build checks that the registered steps form one path from a single root
// and freezes them into a chain.
func (b *Builder) Build() (*Chain, error) {
	if len(b.steps) == 0 {
		return &Chain{index: map[migration.Revision]int{}}, nil
	}

	var roots []migration.Revision
	children := make(map[migration.Revision][]migration.Revision, len(b.steps))

	for _, rev := range b.order {
		step := b.steps[rev]
		if step.Parent == "" {
			roots = append(roots, rev)
			continue
		}
		if _, ok := b.steps[step.Parent]; !ok {
			return nil, fmt.Errorf("%w: %s has parent %s", ErrOrphanRevision, rev, step.Parent)
		}
		children[step.Parent] = append(children[step.Parent], rev)
	}

	if len(roots) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one root, found %d %v", ErrBrokenChain, len(roots), roots)
	}

	chain := &Chain{index: make(map[migration.Revision]int, len(b.steps))}
	for rev := roots[0]; ; {
		chain.index[rev] = len(chain.steps)
		chain.steps = append(chain.steps, b.steps[rev])

		next := children[rev]
		if len(next) == 0 {
			break
		}
		if len(next) > 1 {
			return nil, fmt.Errorf("%w: %s has several children %v", ErrBrokenChain, rev, next)
		}
		rev = next[0]
	}

	if len(chain.steps) != len(b.steps) {
		var unreachable []migration.Revision
		for _, rev := range b.order {
			if _, ok := chain.index[rev]; !ok {
				unreachable = append(unreachable, rev)
			}
		}
		return nil, fmt.Errorf("%w: %v cannot be reached from root %s", ErrBrokenChain, unreachable, roots[0])
	}

	return chain, nil
}

// ---

// Chain is an immutable, validated sequence of steps from root to head.
type Chain struct {
	steps []Step
	index map[migration.Revision]int
}

func (c *Chain) Len() int {
	return len(c.steps)
}

// Head is the last revision, or Base for an empty chain.
func (c *Chain) Head() migration.Revision {
	return c.revisionAt(len(c.steps) - 1)
}

func (c *Chain) Step(rev migration.Revision) (Step, bool) {
	i, ok := c.index[rev]
	if !ok {
		return Step{}, false
	}
	return c.steps[i], true
}

func (c *Chain) Steps() []Step {
	return append([]Step(nil), c.steps...)
}

func (c *Chain) GetAvailableMigrations() (*[]migration.Description, error) {
	result := make([]migration.Description, 0, len(c.steps))
	for _, step := range c.steps {
		result = append(result, step.Description())
	}
	return &result, nil
}

// Resolve maps base, head or a revision id to its position in the chain.
// Base is -1.
func (c *Chain) Resolve(rev migration.Revision) (int, error) {
	switch rev {
	case migration.Base:
		return -1, nil
	case migration.Head:
		return len(c.steps) - 1, nil
	}
	i, ok := c.index[rev]
	if !ok {
		return 0, fmt.Errorf("%w: unknown revision %s", ErrNoPath, rev)
	}
	return i, nil
}

func (c *Chain) revisionAt(i int) migration.Revision {
	if i < 0 {
		return migration.Base
	}
	return c.steps[i].Revision
}

// ---

type Plan struct {
	Direction migration.Direction
	From      migration.Revision
	To        migration.Revision
	Steps     []Step
}

func (p *Plan) Empty() bool {
	return len(p.Steps) == 0
}

// Plan lists the steps leading from one revision to another. Upgrades apply
// the steps after from through to. Downgrades revert the steps from from down
// to, but not including, to.
func (c *Chain) Plan(from, to migration.Revision) (*Plan, error) {
	fi, err := c.Resolve(from)
	if err != nil {
		return nil, err
	}
	ti, err := c.Resolve(to)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Direction: migration.Up, From: c.revisionAt(fi), To: c.revisionAt(ti)}

	switch {
	case ti > fi:
		plan.Steps = append(plan.Steps, c.steps[fi+1:ti+1]...)
	case ti < fi:
		plan.Direction = migration.Down
		for i := fi; i > ti; i-- {
			if c.steps[i].Downgrade == nil {
				return nil, fmt.Errorf("%w: %s", ErrIrreversible, c.steps[i].Revision)
			}
			plan.Steps = append(plan.Steps, c.steps[i])
		}
	}

	return plan, nil
}
