// Package compiler implements the two graph-rewriting passes (C5, C6) that
// turn an abstract, device-agnostic ir.Graph into one wired with concrete
// graphop device operators at every node and a CopyToDevice/CopyFromDevice
// at every host/device boundary.
package compiler

import (
	"fmt"

	"github.com/orneryd/tensorgpu/internal/driver"
	"github.com/orneryd/tensorgpu/internal/dtype"
	"github.com/orneryd/tensorgpu/internal/graphop"
	"github.com/orneryd/tensorgpu/internal/ir"
	"github.com/orneryd/tensorgpu/internal/kernel"
	"github.com/orneryd/tensorgpu/internal/shape"
	"github.com/orneryd/tensorgpu/internal/symtab"
)

// Substitute rewrites g in place, stages A through D, for element type t.
// ir.Graph already is the "remap callback" spec.md describes: NoDelete,
// Retrieval and MoveBookkeeping expose exactly the (no_delete set,
// retrieval set, id remap) triple compiler passes consume.
//
// Idempotent: re-running Substitute over an already-substituted graph is a
// no-op. Stage D only matches abstract *ir.Primitive payloads
// (ir.Node.Primitive()), so a node whose payload is already a
// graphop.Operator is not touched again; stages A-C skip Function, Print and
// retrieval boundaries that already carry the copy node they would insert.
func Substitute(g *ir.Graph, dev driver.Device, cache *kernel.Cache, t dtype.Type, dyn symtab.View, opts driver.CompileOptions) error {
	stageAFunctionOutputs(g, dev, t)
	stageBRetrievalPoints(g, dev, t)
	stageCDebugPrints(g, dev, t)
	return stageDOpSubstitution(g, dev, cache, t, dyn, opts)
}

// stageAFunctionOutputs inserts a CopyToDevice after every Function node
// with at least one outgoing edge, and a CopyFromDevice before every data
// input to a Function (functions run on the host and must see host
// tensors).
func stageAFunctionOutputs(g *ir.Graph, dev driver.Device, t dtype.Type) {
	for _, id := range g.Nodes() {
		node := g.Node(id)
		if node == nil || !node.IsFunction() {
			continue
		}
		outs := append([]*ir.Edge{}, g.Successors(id)...)
		// Outputs that already all go through a CopyToDevice (an earlier run)
		// get no second copy.
		copied := len(outs) > 0
		for _, e := range outs {
			if _, ok := g.Node(e.To).Op.(*graphop.CopyToDevice); !ok {
				copied = false
			}
		}
		if len(outs) > 0 && !copied {
			copyNode := g.AddNode(graphop.NewCopyToDevice(dev, t))
			for _, e := range outs {
				g.Rewire(e, copyNode)
			}
			g.AddEdge(id, copyNode, ir.Dependency{Kind: ir.DepData})
			if g.IsRetrieval(id) {
				g.MoveBookkeeping(id, copyNode)
			}
		}

		for _, e := range append([]*ir.Edge{}, g.Predecessors(id)...) {
			if !e.Dep.IsData() {
				continue
			}
			if _, ok := g.Node(e.From).Op.(*graphop.CopyFromDevice); ok {
				continue
			}
			source, dep := e.From, e.Dep
			copyNode := g.AddNode(graphop.NewCopyFromDevice(dev, t))
			g.RemoveEdge(e)
			g.AddEdge(source, copyNode, dep)
			g.AddEdge(copyNode, id, dep)
		}
	}
}

// stageBRetrievalPoints resolves every non-Function retrieval point: if it
// is already a CopyToDevice, retrieval is elided by moving it back to that
// copy's source (the host tensor is already on the host); otherwise a
// CopyFromDevice is inserted downstream of it.
func stageBRetrievalPoints(g *ir.Graph, dev driver.Device, t dtype.Type) {
	for id := range g.Retrieval() {
		node := g.Node(id)
		if node == nil || node.IsFunction() {
			continue
		}
		// Already a download (inserted by an earlier run or earlier in this
		// loop): nothing left to insert.
		if _, ok := node.Op.(*graphop.CopyFromDevice); ok {
			continue
		}

		if _, ok := node.Op.(*graphop.CopyToDevice); ok {
			preds := g.Predecessors(id)
			if len(preds) == 0 {
				continue
			}
			source := preds[0].From
			g.MoveBookkeeping(id, source)
			continue
		}

		dataPreds := filterData(g.Predecessors(id))
		if len(dataPreds) == 0 {
			continue
		}
		// Largest physical element count wins; ties broken by the first
		// edge encountered (deterministic since Predecessors preserves
		// insertion order).
		best := dataPreds[0]
		for _, e := range dataPreds[1:] {
			if e.Dep.Shape.NumPhysicalElements() > best.Dep.Shape.NumPhysicalElements() {
				best = e
			}
		}

		copyNode := g.AddNode(graphop.NewCopyFromDevice(dev, t))
		for _, e := range append([]*ir.Edge{}, g.Successors(id)...) {
			g.Rewire(e, copyNode)
		}
		g.AddEdge(id, copyNode, best.Dep)
		g.MoveBookkeeping(id, copyNode)
	}
}

// stageCDebugPrints inserts a CopyFromDevice before every Print node's
// first non-schedule input edge.
func stageCDebugPrints(g *ir.Graph, dev driver.Device, t dtype.Type) {
	for _, id := range g.Nodes() {
		node := g.Node(id)
		if node == nil || !node.IsPrint() {
			continue
		}
		for _, e := range g.Predecessors(id) {
			if !e.Dep.IsData() {
				continue
			}
			if _, ok := g.Node(e.From).Op.(*graphop.CopyFromDevice); ok {
				break
			}
			source, dep := e.From, e.Dep
			copyNode := g.AddNode(graphop.NewCopyFromDevice(dev, t))
			g.RemoveEdge(e)
			g.AddEdge(source, copyNode, dep)
			g.AddEdge(copyNode, id, dep)
			break
		}
	}
}

// stageDOpSubstitution replaces every remaining abstract *ir.Primitive
// payload with the matching device operator, constructed from its ordered
// input shapes. All primitive kinds this package knows about have exactly
// one mapping; anything else (including already-substituted nodes) is left
// untouched.
func stageDOpSubstitution(g *ir.Graph, dev driver.Device, cache *kernel.Cache, t dtype.Type, dyn symtab.View, opts driver.CompileOptions) error {
	for _, id := range g.Nodes() {
		node := g.Node(id)
		if node == nil {
			continue
		}
		kind, ok := node.Primitive()
		if !ok {
			continue
		}
		shapes := inputShapes(g, id)
		prim := node.PrimitiveOp()

		op, err := buildOperator(kind, prim, shapes, dev, cache, t, dyn, opts)
		if err != nil {
			return fmt.Errorf("compiler: substituting node %d: %w", id, err)
		}
		if op != nil {
			node.Op = op
		}
	}
	return nil
}

func buildOperator(kind ir.PrimitiveKind, prim *ir.Primitive, shapes []shapeArg, dev driver.Device, cache *kernel.Cache, t dtype.Type, dyn symtab.View, opts driver.CompileOptions) (graphop.Operator, error) {
	// A node with fewer data inputs than its op needs is a shape-op
	// mismatch: it is skipped and keeps its abstract payload.
	need := 1
	switch kind {
	case ir.OpConstant:
		need = 0
	case ir.OpAdd, ir.OpMul, ir.OpMod, ir.OpLessThan, ir.OpMatMul:
		need = 2
	}
	if len(shapes) < need {
		return nil, nil
	}

	switch kind {
	case ir.OpLog2:
		return graphop.NewUnary(graphop.Log2, shapes[0].tracker, dev, cache, t, dyn, opts)
	case ir.OpExp2:
		return graphop.NewUnary(graphop.Exp2, shapes[0].tracker, dev, cache, t, dyn, opts)
	case ir.OpSin:
		return graphop.NewUnary(graphop.Sin, shapes[0].tracker, dev, cache, t, dyn, opts)
	case ir.OpSqrt:
		return graphop.NewUnary(graphop.Sqrt, shapes[0].tracker, dev, cache, t, dyn, opts)
	case ir.OpRecip:
		return graphop.NewUnary(graphop.Recip, shapes[0].tracker, dev, cache, t, dyn, opts)
	case ir.OpAdd:
		return graphop.NewBinary(graphop.Add, shapes[0].tracker, shapes[1].tracker, dev, cache, t, dyn, opts)
	case ir.OpMul:
		return graphop.NewBinary(graphop.Mul, shapes[0].tracker, shapes[1].tracker, dev, cache, t, dyn, opts)
	case ir.OpMod:
		return graphop.NewBinary(graphop.Mod, shapes[0].tracker, shapes[1].tracker, dev, cache, t, dyn, opts)
	case ir.OpLessThan:
		return graphop.NewBinary(graphop.LessThan, shapes[0].tracker, shapes[1].tracker, dev, cache, t, dyn, opts)
	case ir.OpContiguous:
		return graphop.NewContiguous(shapes[0].tracker, dev, cache, t, dyn, opts)
	case ir.OpSumReduce:
		return graphop.NewReduce(graphop.SumReduce, prim.ReduceDim, shapes[0].tracker, dev, cache, t, dyn, opts)
	case ir.OpMaxReduce:
		return graphop.NewReduce(graphop.MaxReduce, prim.ReduceDim, shapes[0].tracker, dev, cache, t, dyn, opts)
	case ir.OpConstant:
		return buildConstant(prim, dev, t, dyn), nil
	case ir.OpMatMul:
		m := shapes[0].tracker.Dims()[0].Size()
		k := shapes[0].tracker.Dims()[1].Size()
		n := shapes[1].tracker.Dims()[1].Size()
		return graphop.NewMatMul(m, k, n, dev, cache, t, dyn, opts)
	default:
		return nil, nil
	}
}

func buildConstant(prim *ir.Primitive, dev driver.Device, t dtype.Type, dyn symtab.View) *graphop.Constant {
	if prim.Constant.IsSymbolic {
		return graphop.NewConstant(graphop.SymbolicValue(prim.Constant.SymbolicExpr), dev, t, dyn)
	}
	return graphop.NewConstant(graphop.LiteralValue(prim.Constant.Literal), dev, t, dyn)
}

// shapeArg is one data input to a node being substituted, its shape plus the
// edge's declared input order (used to sort operands into the order the
// device operator expects).
type shapeArg struct {
	order   int
	tracker shape.Tracker
}

func inputShapes(g *ir.Graph, id ir.NodeID) []shapeArg {
	preds := filterData(g.Predecessors(id))
	out := make([]shapeArg, len(preds))
	for i, e := range preds {
		out[i] = shapeArg{order: e.Dep.InputOrder, tracker: e.Dep.Shape}
	}
	sortByOrder(out)
	return out
}

func filterData(edges []*ir.Edge) []*ir.Edge {
	var out []*ir.Edge
	for _, e := range edges {
		if e.Dep.IsData() {
			out = append(out, e)
		}
	}
	return out
}

func sortByOrder(shapes []shapeArg) {
	for i := 1; i < len(shapes); i++ {
		for j := i; j > 0 && shapes[j].order < shapes[j-1].order; j-- {
			shapes[j], shapes[j-1] = shapes[j-1], shapes[j]
		}
	}
}
