package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildProject returns a project pre-populated with one inert item per name,
// in the given order.
func buildProject(t *testing.T, names ...string) *Project {
	t.Helper()
	p := NewProject("test-project")
	for _, n := range names {
		require.NoError(t, p.AddItem(&Item{Name: n, Type: "delay"}))
	}
	return p
}

func connect(t *testing.T, p *Project, pairs ...[2]string) {
	t.Helper()
	for _, pair := range pairs {
		require.NoError(t, p.AddConnection(pair[0], pair[1], nil))
	}
}

func TestAddItem_InsertionOrderPreserved(t *testing.T) {
	p := buildProject(t, "charlie", "alpha", "bravo")

	require.Equal(t, []string{"charlie", "alpha", "bravo"}, p.ItemNames())

	items := p.Items()
	require.Len(t, items, 3)
	require.Equal(t, "charlie", items[0].Name)
	require.Equal(t, "bravo", items[2].Name)
}

func TestAddItem_DuplicateNameRejected(t *testing.T) {
	p := buildProject(t, "alpha")

	err := p.AddItem(&Item{Name: "alpha", Type: "emit"})
	require.ErrorIs(t, err, ErrDuplicateName)

	// The original registration survives the rejected insert.
	it, getErr := p.Item("alpha")
	require.NoError(t, getErr)
	require.Equal(t, "delay", it.Type)
}

func TestAddItem_EmptyNameRejected(t *testing.T) {
	p := NewProject("test-project")

	require.ErrorIs(t, p.AddItem(&Item{Type: "delay"}), ErrInvalidDefinition)
	require.ErrorIs(t, p.AddItem(nil), ErrInvalidDefinition)
	require.Empty(t, p.ItemNames())
}

func TestAddConnection_UnknownEndpointRejected(t *testing.T) {
	p := buildProject(t, "alpha")

	require.ErrorIs(t, p.AddConnection("ghost", "alpha", nil), ErrNotFound)
	require.ErrorIs(t, p.AddConnection("alpha", "ghost", nil), ErrNotFound)
	require.Empty(t, p.Connections())
}

func TestAddConnection_SelfLoopRejected(t *testing.T) {
	p := buildProject(t, "alpha")

	require.ErrorIs(t, p.AddConnection("alpha", "alpha", nil), ErrSelfLoop)
}

func TestAddConnection_DuplicateEdgeRejected(t *testing.T) {
	p := buildProject(t, "alpha", "bravo")
	connect(t, p, [2]string{"alpha", "bravo"})

	require.ErrorIs(t, p.AddConnection("alpha", "bravo", nil), ErrDuplicateEdge)
	require.Len(t, p.Connections(), 1)
}

func TestCycleDetection_TwoNodeCycleRejected(t *testing.T) {
	p := buildProject(t, "alpha", "bravo")
	connect(t, p, [2]string{"alpha", "bravo"})

	err := p.AddConnection("bravo", "alpha", nil)
	require.ErrorIs(t, err, ErrCycle)

	// The offending edge is rolled back; the prior edge is untouched.
	_, getErr := p.Connection("bravo", "alpha")
	require.ErrorIs(t, getErr, ErrNotFound)
	_, getErr = p.Connection("alpha", "bravo")
	require.NoError(t, getErr)
}

func TestCycleDetection_LongCycleReturnsWitnessPath(t *testing.T) {
	p := buildProject(t, "a", "b", "c", "d")
	connect(t, p,
		[2]string{"a", "b"},
		[2]string{"b", "c"},
		[2]string{"c", "d"},
	)

	err := p.AddConnection("d", "a", nil)
	require.ErrorIs(t, err, ErrCycle)

	var ge *GraphError
	require.ErrorAs(t, err, &ge)
	require.Contains(t, ge.Msg, "a -> b -> c -> d -> a")
}

func TestCycleDetection_DiamondAccepted(t *testing.T) {
	p := buildProject(t, "a", "b", "c", "d")

	connect(t, p,
		[2]string{"a", "b"},
		[2]string{"a", "c"},
		[2]string{"b", "d"},
		[2]string{"c", "d"},
	)
	require.Len(t, p.Connections(), 4)
}

func TestBackwardJump_ClosesLoopWithoutCycleError(t *testing.T) {
	p := buildProject(t, "a", "b", "c")
	connect(t, p, [2]string{"a", "b"}, [2]string{"b", "c"})

	require.NoError(t, p.AddBackwardJump("c", "a", &BackwardJump{
		Condition: ConditionMaxIterations(2),
	}))

	j, err := p.BackwardJump("c", "a")
	require.NoError(t, err)
	require.Equal(t, "c", j.Source)
	require.Equal(t, "a", j.Target)
}

func TestBackwardJump_SharesEdgeRules(t *testing.T) {
	p := buildProject(t, "a", "b")
	connect(t, p, [2]string{"a", "b"})
	require.NoError(t, p.AddBackwardJump("b", "a", nil))

	require.ErrorIs(t, p.AddBackwardJump("b", "a", nil), ErrDuplicateEdge)
	require.ErrorIs(t, p.AddBackwardJump("b", "b", nil), ErrSelfLoop)
	require.ErrorIs(t, p.AddBackwardJump("b", "ghost", nil), ErrNotFound)
}

func TestRenameItem_RekeysIncidentEdges(t *testing.T) {
	p := buildProject(t, "a", "b", "c")
	connect(t, p, [2]string{"a", "b"}, [2]string{"b", "c"})
	require.NoError(t, p.AddBackwardJump("c", "b", nil))

	require.NoError(t, p.RenameItem("b", "mid"))

	_, err := p.Item("b")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = p.Connection("a", "mid")
	require.NoError(t, err)
	_, err = p.Connection("mid", "c")
	require.NoError(t, err)
	_, err = p.Connection("a", "b")
	require.ErrorIs(t, err, ErrNotFound)

	j, err := p.BackwardJump("c", "mid")
	require.NoError(t, err)
	require.Equal(t, "mid", j.Target)

	// Insertion order follows the rename.
	require.Equal(t, []string{"a", "mid", "c"}, p.ItemNames())
}

func TestRenameItem_Conflicts(t *testing.T) {
	p := buildProject(t, "a", "b")

	require.ErrorIs(t, p.RenameItem("ghost", "x"), ErrNotFound)
	require.ErrorIs(t, p.RenameItem("a", "b"), ErrDuplicateName)
	require.ErrorIs(t, p.RenameItem("a", ""), ErrInvalidDefinition)
	require.NoError(t, p.RenameItem("a", "a"))
	require.Equal(t, []string{"a", "b"}, p.ItemNames())
}

func TestRemoveItem_DropsIncidentEdges(t *testing.T) {
	p := buildProject(t, "a", "b", "c")
	connect(t, p, [2]string{"a", "b"}, [2]string{"b", "c"})
	require.NoError(t, p.AddBackwardJump("c", "b", nil))

	require.NoError(t, p.RemoveItem("b"))

	require.Equal(t, []string{"a", "c"}, p.ItemNames())
	require.Empty(t, p.Connections())
	require.Empty(t, p.BackwardJumps())

	require.ErrorIs(t, p.RemoveItem("b"), ErrNotFound)
}

func TestRemoveConnection_MissingEdgeRejected(t *testing.T) {
	p := buildProject(t, "a", "b")
	connect(t, p, [2]string{"a", "b"})

	require.NoError(t, p.RemoveConnection("a", "b"))
	require.ErrorIs(t, p.RemoveConnection("a", "b"), ErrNotFound)

	// Removing the edge reopens the reverse direction.
	require.NoError(t, p.AddConnection("b", "a", nil))
}

func TestItemSpecification_KeyedByTypeAndName(t *testing.T) {
	p := NewProject("test-project")

	require.NoError(t, p.AddItemSpecification(&Specification{
		ItemType: "delay", Name: "short", Settings: map[string]any{"duration": "5ms"},
	}))
	// The same name under a different item type is a distinct key.
	require.NoError(t, p.AddItemSpecification(&Specification{
		ItemType: "emit", Name: "short",
	}))

	require.ErrorIs(t, p.AddItemSpecification(&Specification{
		ItemType: "delay", Name: "short",
	}), ErrDuplicateName)

	s, err := p.ItemSpecification("delay", "short")
	require.NoError(t, err)
	require.Equal(t, "5ms", s.Settings["duration"])

	_, err = p.ItemSpecification("delay", "long")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, p.RemoveItemSpecification("emit", "short"))
	require.ErrorIs(t, p.RemoveItemSpecification("emit", "short"), ErrNotFound)
}

func TestItemSpecification_RequiresKey(t *testing.T) {
	p := NewProject("test-project")

	require.ErrorIs(t, p.AddItemSpecification(nil), ErrInvalidDefinition)
	require.ErrorIs(t, p.AddItemSpecification(&Specification{Name: "short"}), ErrInvalidDefinition)
	require.ErrorIs(t, p.AddItemSpecification(&Specification{ItemType: "delay"}), ErrInvalidDefinition)
}

func TestItemsOnPath_ChainInclusive(t *testing.T) {
	p := buildProject(t, "a", "b", "c", "d")
	connect(t, p,
		[2]string{"a", "b"},
		[2]string{"b", "c"},
		[2]string{"c", "d"},
	)

	require.Equal(t, []string{"a", "b", "c", "d"}, p.ItemsOnPath("a", "d"))
	require.Equal(t, []string{"b", "c"}, p.ItemsOnPath("b", "c"))
	require.Equal(t, []string{"b"}, p.ItemsOnPath("b", "b"))
}

func TestItemsOnPath_InsertionOrderNotTopological(t *testing.T) {
	// c registered before b; both lie between a and d.
	p := buildProject(t, "a", "c", "b", "d")
	connect(t, p,
		[2]string{"a", "b"},
		[2]string{"a", "c"},
		[2]string{"b", "d"},
		[2]string{"c", "d"},
	)

	require.Equal(t, []string{"a", "c", "b", "d"}, p.ItemsOnPath("a", "d"))
}

func TestItemsOnPath_NoPathIsEmpty(t *testing.T) {
	p := buildProject(t, "a", "b", "c")
	connect(t, p, [2]string{"a", "b"})

	require.Empty(t, p.ItemsOnPath("b", "a"))
	require.Empty(t, p.ItemsOnPath("a", "c"))
}

func TestPredecessorsAndSuccessors_SortedByName(t *testing.T) {
	p := buildProject(t, "hub", "zulu", "alpha", "mike", "sink")
	connect(t, p,
		[2]string{"zulu", "hub"},
		[2]string{"alpha", "hub"},
		[2]string{"mike", "hub"},
		[2]string{"hub", "sink"},
	)

	require.Equal(t, []string{"alpha", "mike", "zulu"}, p.Predecessors("hub"))
	require.Equal(t, []string{"sink"}, p.Successors("hub"))
	require.Empty(t, p.Predecessors("alpha"))
}

func TestConnections_OrderedBySourceThenTarget(t *testing.T) {
	p := buildProject(t, "b", "a", "c")
	connect(t, p,
		[2]string{"b", "c"},
		[2]string{"a", "c"},
		[2]string{"a", "b"},
	)

	conns := p.Connections()
	require.Len(t, conns, 3)
	require.Equal(t, "a", conns[0].Source)
	require.Equal(t, "b", conns[0].Target)
	require.Equal(t, "a", conns[1].Source)
	require.Equal(t, "c", conns[1].Target)
	require.Equal(t, "b", conns[2].Source)
}

func TestJumpsFrom_FiltersBySource(t *testing.T) {
	p := buildProject(t, "a", "b", "c")
	connect(t, p, [2]string{"a", "b"}, [2]string{"b", "c"})
	require.NoError(t, p.AddBackwardJump("c", "b", nil))
	require.NoError(t, p.AddBackwardJump("c", "a", nil))
	require.NoError(t, p.AddBackwardJump("b", "a", nil))

	jumps := p.JumpsFrom("c")
	require.Len(t, jumps, 2)
	require.Equal(t, "a", jumps[0].Target)
	require.Equal(t, "b", jumps[1].Target)

	require.Empty(t, p.JumpsFrom("a"))
}

func TestGraphError_ExposesKindAndEntity(t *testing.T) {
	p := buildProject(t, "alpha")

	err := p.AddItem(&Item{Name: "alpha"})

	var ge *GraphError
	require.True(t, errors.As(err, &ge))
	require.ErrorIs(t, ge.Kind, ErrDuplicateName)
	require.Contains(t, err.Error(), `"alpha"`)
	require.Contains(t, err.Error(), "duplicate name")
}
