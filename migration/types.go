package migration

import "time"

type Direction rune

const (
	Down Direction = 'd'
	Up   Direction = 'u'
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "upgrade"
	case Down:
		return "downgrade"
	default:
		return "unknown"
	}
}

// ---

// Revision is an opaque schema version identifier.
type Revision string

const (
	// Base is the state before the root revision is applied.
	Base Revision = "base"
	// Head is the last revision of a chain.
	Head Revision = "head"
)

type Migration struct {
	Revision Revision
	Name     string
}

// ---

type Status uint

const (
	Pending Status = iota
	Applied
	Missing
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Applied:
		return "applied"
	case Missing:
		return "missing"
	default:
		return "unknown"
	}
}

// ---

type Log struct {
	Migration
	Direction
	RunID     string
	AppliedAt time.Time
}

// ---

type Description struct {
	Migration
	Parent  Revision
	CanUndo bool
	// LossyDowngrade marks steps whose downgrade discards data on purpose.
	LossyDowngrade bool
}

type State struct {
	Description
	Status    Status
	AppliedAt time.Time
}
