package fuelmig_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/root-talis/fuelmig"
	"github.com/root-talis/fuelmig/migration"
)

func step(rev, parent migration.Revision) fuelmig.Step {
	return fuelmig.Step{Revision: rev, Parent: parent, Name: string(rev), Upgrade: noop, Downgrade: noop}
}

func irreversible(s fuelmig.Step) fuelmig.Step {
	s.Downgrade = nil
	return s
}

var buildTestsTable = []struct { // nolint:gochecknoglobals
	name          string
	steps         []fuelmig.Step
	expectedOrder []migration.Revision
	expectedError error
}{
	// -- success cases: ---
	/* s0 */ {
		name:          "test s0: should build an empty chain",
		steps:         nil,
		expectedOrder: []migration.Revision{},
	},
	/* s1 */ {
		name:          "test s1: should order steps from root to head",
		steps:         []fuelmig.Step{step("c", "b"), step("a", ""), step("b", "a")},
		expectedOrder: []migration.Revision{"a", "b", "c"},
	},

	// -- error cases: -----
	/* e0 */ {
		name:          "test e0: should reject an unknown parent",
		steps:         []fuelmig.Step{step("a", ""), step("b", "x")},
		expectedError: fuelmig.ErrOrphanRevision,
	},
	/* e1 */ {
		name:          "test e1: should reject two roots",
		steps:         []fuelmig.Step{step("a", ""), step("b", "")},
		expectedError: fuelmig.ErrBrokenChain,
	},
	/* e2 */ {
		name:          "test e2: should reject a branch",
		steps:         []fuelmig.Step{step("a", ""), step("b", "a"), step("c", "a")},
		expectedError: fuelmig.ErrBrokenChain,
	},
	/* e3 */ {
		name:          "test e3: should reject a cycle detached from the root",
		steps:         []fuelmig.Step{step("a", ""), step("b", "c"), step("c", "b")},
		expectedError: fuelmig.ErrBrokenChain,
	},
	/* e4 */ {
		name:          "test e4: should reject a chain without root",
		steps:         []fuelmig.Step{step("b", "c"), step("c", "b")},
		expectedError: fuelmig.ErrBrokenChain,
	},
}

func TestBuild(t *testing.T) {
	t.Parallel()

	for _, test := range buildTestsTable {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			builder := fuelmig.NewBuilder()
			require.NoError(t, builder.RegisterAll(test.steps...))

			chain, err := builder.Build()
			if test.expectedError != nil {
				assert.ErrorIs(t, err, test.expectedError)
				return
			}

			require.NoError(t, err)
			order := make([]migration.Revision, 0, chain.Len())
			for _, s := range chain.Steps() {
				order = append(order, s.Revision)
			}
			assert.Equal(t, test.expectedOrder, order)
		})
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()

	builder := fuelmig.NewBuilder()
	require.NoError(t, builder.Register(step("a", "")))

	assert.ErrorIs(t, builder.Register(step("a", "")), fuelmig.ErrDuplicateRevision)
	assert.ErrorIs(t, builder.Register(step("", "a")), fuelmig.ErrInvalidRevision)
	assert.ErrorIs(t, builder.Register(step(migration.Head, "a")), fuelmig.ErrInvalidRevision)
	assert.ErrorIs(t, builder.Register(fuelmig.Step{Revision: "b", Parent: "a"}), fuelmig.ErrInvalidRevision)
}

// ---

var planTestsTable = []struct { // nolint:gochecknoglobals
	name              string
	from              migration.Revision
	to                migration.Revision
	expectedDirection migration.Direction
	expectedSteps     []migration.Revision
	expectedError     error
}{
	// -- success cases: ---
	/* s0 */ {
		name: "test s0: should plan a full upgrade", from: migration.Base, to: migration.Head,
		expectedDirection: migration.Up, expectedSteps: []migration.Revision{"a", "b", "c", "d"},
	},
	/* s1 */ {
		name: "test s1: should plan a partial upgrade", from: "a", to: "c",
		expectedDirection: migration.Up, expectedSteps: []migration.Revision{"b", "c"},
	},
	/* s2 */ {
		name: "test s2: should plan a downgrade excluding the target", from: "d", to: "b",
		expectedDirection: migration.Down, expectedSteps: []migration.Revision{"d", "c"},
	},
	/* s3 */ {
		name: "test s3: should plan an empty path", from: "c", to: "c",
		expectedDirection: migration.Up, expectedSteps: nil,
	},
	/* s4 */ {
		name: "test s4: should stop above an irreversible step", from: migration.Head, to: "a",
		expectedDirection: migration.Down, expectedSteps: []migration.Revision{"d", "c", "b"},
	},

	// -- error cases: -----
	/* e0 */ {
		name: "test e0: should fail on an unknown target", from: "a", to: "zz",
		expectedError: fuelmig.ErrNoPath,
	},
	/* e1 */ {
		name: "test e1: should fail on an unknown origin", from: "zz", to: migration.Head,
		expectedError: fuelmig.ErrNoPath,
	},
	/* e2 */ {
		name: "test e2: should fail to downgrade through an irreversible step", from: migration.Head, to: migration.Base,
		expectedError: fuelmig.ErrIrreversible,
	},
}

func TestPlan(t *testing.T) {
	t.Parallel()

	builder := fuelmig.NewBuilder()
	require.NoError(t, builder.RegisterAll(
		irreversible(step("a", "")),
		step("b", "a"),
		step("c", "b"),
		step("d", "c"),
	))
	chain, err := builder.Build()
	require.NoError(t, err)
	assert.Equal(t, migration.Revision("d"), chain.Head())

	for _, test := range planTestsTable {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			plan, err := chain.Plan(test.from, test.to)
			if test.expectedError != nil {
				assert.ErrorIs(t, err, test.expectedError)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expectedDirection, plan.Direction)

			var revisions []migration.Revision
			for _, s := range plan.Steps {
				revisions = append(revisions, s.Revision)
			}
			assert.Equal(t, test.expectedSteps, revisions)
		})
	}
}
