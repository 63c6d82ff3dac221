package fuelmig

import (
	"errors"
	"fmt"

	"github.com/root-talis/fuelmig/migration"
)

var (
	ErrInvalidRevision   = errors.New("revision is not valid")
	ErrDuplicateRevision = errors.New("revision is already registered")
	ErrOrphanRevision    = errors.New("revision refers to an unknown parent")
	ErrBrokenChain       = errors.New("revisions do not form a single linear chain")
	ErrNoPath            = errors.New("no path between revisions")
	ErrIrreversible      = errors.New("revision cannot be downgraded")
	ErrOutOfSync         = errors.New("store is not at the expected revision")
)

// StepError is returned by a run that stopped before the end of its plan.
// Reached is the revision the store stands at after the failure.
type StepError struct {
	Revision  migration.Revision
	Direction migration.Direction
	Reached   migration.Revision
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("failed to %s %s, store is at %s: %v", e.Direction, e.Revision, e.Reached, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
