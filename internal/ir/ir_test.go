package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopologicalRespectsEdges(t *testing.T) {
	g := NewGraph()
	a := g.AddNode(&Primitive{Kind: OpConstant})
	b := g.AddNode(&Primitive{Kind: OpLog2})
	c := g.AddNode(&Primitive{Kind: OpExp2})
	g.AddEdge(a, b, Dependency{Kind: DepData})
	g.AddEdge(b, c, Dependency{Kind: DepData})

	order := g.Topological()
	pos := map[NodeID]int{}
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos[a], pos[b])
	assert.Less(t, pos[b], pos[c])
}

func TestTopologicalPanicsOnCycle(t *testing.T) {
	g := NewGraph()
	a := g.AddNode(&Primitive{Kind: OpAdd})
	b := g.AddNode(&Primitive{Kind: OpMul})
	g.AddEdge(a, b, Dependency{Kind: DepData})
	g.AddEdge(b, a, Dependency{Kind: DepData})

	assert.Panics(t, func() { g.Topological() })
}

func TestRewireRedirectsSource(t *testing.T) {
	g := NewGraph()
	a := g.AddNode(&Primitive{Kind: OpConstant})
	b := g.AddNode(&Primitive{Kind: OpLog2})
	c := g.AddNode(&Primitive{Kind: OpExp2})
	e := g.AddEdge(a, b, Dependency{Kind: DepData, InputOrder: 0})

	g.Rewire(e, c)

	require.Len(t, g.Successors(c), 1)
	assert.Equal(t, b, g.Successors(c)[0].To)
	assert.Empty(t, g.Successors(a))
}

func TestRemoveNodeClearsAllEdges(t *testing.T) {
	g := NewGraph()
	a := g.AddNode(&Primitive{Kind: OpConstant})
	b := g.AddNode(&Primitive{Kind: OpLog2})
	g.AddEdge(a, b, Dependency{Kind: DepData})

	g.RemoveNode(b)

	assert.Nil(t, g.Node(b))
	assert.Empty(t, g.Successors(a))
}

func TestMoveBookkeepingTransfersFlagsAndClearsSource(t *testing.T) {
	g := NewGraph()
	a := g.AddNode(&Primitive{Kind: OpConstant})
	b := g.AddNode(&Primitive{Kind: OpLog2})
	g.MarkRetrieval(a)
	g.MarkNoDelete(a)

	g.MoveBookkeeping(a, b)

	assert.False(t, g.IsRetrieval(a))
	assert.False(t, g.IsNoDelete(a))
	assert.True(t, g.IsRetrieval(b))
	assert.True(t, g.IsNoDelete(b))
}

func TestPrimitiveClassificationMatchesOnlyAbstractOps(t *testing.T) {
	g := NewGraph()
	a := g.AddNode(&Primitive{Kind: OpAdd})
	b := g.AddNode(struct{}{}) // stands in for an already-substituted device op

	kind, ok := g.Node(a).Primitive()
	require.True(t, ok)
	assert.Equal(t, OpAdd, kind)

	_, ok = g.Node(b).Primitive()
	assert.False(t, ok)
}
