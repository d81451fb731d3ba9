// Package ir implements the minimal graph IR this compiler rewrites: nodes
// carrying an op payload (an abstract primitive before substitution, a
// compiled device operator after), directed edges carrying shape/ordering
// metadata or a schedule-only marker, and the topological iteration the
// external runtime uses to drive execution.
//
// This is deliberately small. spec.md treats the graph IR as an external
// collaborator with a fixed interface; since this module has no host
// program to supply one, this package implements exactly the slice of that
// interface the compiler passes need — no scheduler, no autograd, no
// multi-device placement.
package ir

import (
	"sort"

	"github.com/orneryd/tensorgpu/internal/shape"
	"github.com/orneryd/tensorgpu/internal/symbolic"
)

// NodeID identifies a node within a Graph.
type NodeID int

// Op is the payload a Node carries: either an abstract *Primitive (before
// substitution), a *Function or *Print marker, or a compiled device
// operator (a graphop.Operator, held as a plain Op so that this package
// does not import graphop).
type Op interface{}

// PrimitiveKind enumerates the abstract, device-agnostic primitive ops the
// substitution pass recognizes.
type PrimitiveKind int

const (
	OpAdd PrimitiveKind = iota
	OpMul
	OpMod
	OpLessThan
	OpLog2
	OpExp2
	OpSin
	OpSqrt
	OpRecip
	OpContiguous
	OpSumReduce
	OpMaxReduce
	OpConstant
	OpMatMul
)

// ConstantValue is the payload of a Constant primitive: either a literal
// float or a symbolic expression evaluated against the dynamic-symbol map
// at Process time.
type ConstantValue struct {
	Literal      float64
	IsSymbolic   bool
	SymbolicExpr symbolic.Expr
}

// Primitive is the abstract payload of an unsubstituted graph node.
type Primitive struct {
	Kind PrimitiveKind
	// ReduceDim is meaningful for OpSumReduce/OpMaxReduce only.
	ReduceDim int
	// Constant is meaningful for OpConstant only.
	Constant ConstantValue
}

// Function marks a node that produces or consumes host tensors (runs on
// the host, not the device).
type Function struct{}

// Print marks a debug-print node.
type Print struct{}

// Node is one vertex of the graph.
type Node struct {
	ID  NodeID
	Op  Op
}

// Primitive returns the node's PrimitiveKind and true if its payload is
// still an abstract *Primitive (not yet substituted for a device operator).
func (n *Node) Primitive() (PrimitiveKind, bool) {
	p, ok := n.Op.(*Primitive)
	if !ok {
		return 0, false
	}
	return p.Kind, true
}

// PrimitiveOp returns the node's *Primitive payload, or nil if already
// substituted.
func (n *Node) PrimitiveOp() *Primitive {
	p, _ := n.Op.(*Primitive)
	return p
}

// IsFunction reports whether n is a host Function node.
func (n *Node) IsFunction() bool {
	_, ok := n.Op.(*Function)
	return ok
}

// IsPrint reports whether n is a debug Print node.
func (n *Node) IsPrint() bool {
	_, ok := n.Op.(*Print)
	return ok
}

// DependencyKind distinguishes data edges (carry a tensor) from schedule
// edges (pure ordering, ignored by this layer).
type DependencyKind int

const (
	DepData DependencyKind = iota
	DepSchedule
)

// Dependency is the payload an edge carries.
type Dependency struct {
	Kind DependencyKind
	// Shape is the shape tracker of the tensor flowing along a Data edge.
	Shape shape.Tracker
	// InputOrder is this edge's position among its destination's inputs.
	InputOrder int
	// OutputOrder is this edge's position among its source's outputs.
	OutputOrder int
}

// IsData reports whether d is a data (not schedule) dependency.
func (d Dependency) IsData() bool { return d.Kind == DepData }

// Edge is one directed connection between two nodes.
type Edge struct {
	From, To NodeID
	Dep      Dependency
}

// Graph is a mutable directed graph of Nodes connected by Edges, plus the
// retrieval/no-delete bookkeeping sets the compiler passes must keep
// consistent as they rewrite it. Graph itself is the "remap callback"
// spec.md's compiler passes consume: NoDelete/Retrieval expose the sets,
// MoveBookkeeping implements the id-remap half of the contract.
type Graph struct {
	nodes     map[NodeID]*Node
	out       map[NodeID][]*Edge
	in        map[NodeID][]*Edge
	nextID    NodeID
	noDelete  map[NodeID]bool
	retrieval map[NodeID]bool
}

// NewGraph creates an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:     make(map[NodeID]*Node),
		out:       make(map[NodeID][]*Edge),
		in:        make(map[NodeID][]*Edge),
		noDelete:  make(map[NodeID]bool),
		retrieval: make(map[NodeID]bool),
	}
}

// AddNode inserts a new node carrying op and returns its id.
func (g *Graph) AddNode(op Op) NodeID {
	id := g.nextID
	g.nextID++
	g.nodes[id] = &Node{ID: id, Op: op}
	return id
}

// Node returns the node for id, or nil if it doesn't exist (e.g. already
// deleted).
func (g *Graph) Node(id NodeID) *Node {
	return g.nodes[id]
}

// Nodes returns every live node id, in ascending (insertion) order.
func (g *Graph) Nodes() []NodeID {
	ids := make([]NodeID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AddEdge adds a directed edge from -> to carrying dep.
func (g *Graph) AddEdge(from, to NodeID, dep Dependency) *Edge {
	e := &Edge{From: from, To: to, Dep: dep}
	g.out[from] = append(g.out[from], e)
	g.in[to] = append(g.in[to], e)
	return e
}

// RemoveEdge removes a specific edge, if present.
func (g *Graph) RemoveEdge(e *Edge) {
	g.out[e.From] = removeEdge(g.out[e.From], e)
	g.in[e.To] = removeEdge(g.in[e.To], e)
}

func removeEdge(edges []*Edge, target *Edge) []*Edge {
	out := edges[:0]
	for _, e := range edges {
		if e != target {
			out = append(out, e)
		}
	}
	return out
}

// RemoveNode deletes a node and every edge touching it.
func (g *Graph) RemoveNode(id NodeID) {
	for _, e := range append([]*Edge{}, g.out[id]...) {
		g.RemoveEdge(e)
	}
	for _, e := range append([]*Edge{}, g.in[id]...) {
		g.RemoveEdge(e)
	}
	delete(g.nodes, id)
	delete(g.out, id)
	delete(g.in, id)
	delete(g.noDelete, id)
	delete(g.retrieval, id)
}

// Successors returns the outgoing edges of id, in insertion order.
func (g *Graph) Successors(id NodeID) []*Edge {
	return g.out[id]
}

// Predecessors returns the incoming edges of id, in insertion order.
func (g *Graph) Predecessors(id NodeID) []*Edge {
	return g.in[id]
}

// Rewire redirects an edge to originate from a new source node, preserving
// its dependency payload.
func (g *Graph) Rewire(e *Edge, newFrom NodeID) {
	g.RemoveEdge(e)
	g.AddEdge(newFrom, e.To, e.Dep)
}

// RewireTo redirects an edge to terminate at a new destination node.
func (g *Graph) RewireTo(e *Edge, newTo NodeID) {
	g.RemoveEdge(e)
	g.AddEdge(e.From, newTo, e.Dep)
}

// MarkRetrieval adds id to the retrieval set (the runtime will read this
// node's output tensor back at the end of execution).
func (g *Graph) MarkRetrieval(id NodeID) { g.retrieval[id] = true }

// IsRetrieval reports whether id is marked for retrieval.
func (g *Graph) IsRetrieval(id NodeID) bool { return g.retrieval[id] }

// MarkNoDelete adds id to the no-delete set (external references pin it;
// compiler passes must not remove it even if it becomes otherwise dead).
func (g *Graph) MarkNoDelete(id NodeID) { g.noDelete[id] = true }

// IsNoDelete reports whether id is pinned against deletion.
func (g *Graph) IsNoDelete(id NodeID) bool { return g.noDelete[id] }

// NoDelete returns the full no-delete set.
func (g *Graph) NoDelete() map[NodeID]bool { return g.noDelete }

// Retrieval returns the full retrieval set.
func (g *Graph) Retrieval() map[NodeID]bool { return g.retrieval }

// MoveBookkeeping transfers retrieval/no-delete flags from one node id to
// another, clearing them on the source. This is the id-remap half of the
// "(no_delete set, retrieval set, id remap)" contract passes consume when
// they replace one node with another.
func (g *Graph) MoveBookkeeping(from, to NodeID) {
	if g.retrieval[from] {
		g.retrieval[to] = true
		delete(g.retrieval, from)
	}
	if g.noDelete[from] {
		g.noDelete[to] = true
		delete(g.noDelete, from)
	}
}

// Topological returns node ids in a topological order consistent with every
// edge (data or schedule) in the graph — the only ordering guarantee the
// external runtime relies on. Panics if the graph contains a cycle, since a
// tensor computation graph must be a DAG by construction.
func (g *Graph) Topological() []NodeID {
	indegree := make(map[NodeID]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = len(g.in[id])
	}

	var ready []NodeID
	for _, id := range g.Nodes() {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	var order []NodeID
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, e := range g.out[id] {
			indegree[e.To]--
			if indegree[e.To] == 0 {
				ready = append(ready, e.To)
			}
		}
	}

	if len(order) != len(g.nodes) {
		panic("ir: graph contains a cycle")
	}
	return order
}
