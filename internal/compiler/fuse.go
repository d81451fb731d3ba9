package compiler

import (
	"github.com/orneryd/tensorgpu/internal/graphop"
	"github.com/orneryd/tensorgpu/internal/ir"
)

// pairEdge is one candidate (first, second) inverse-copy edge found in the
// graph's state at the start of a FuseCopies call.
type pairEdge struct {
	edge *ir.Edge
}

// FuseCopies eliminates adjacent CopyToDevice -> CopyFromDevice (or the
// reverse) pairs that cancel out: the tensor never actually needed to
// cross the host/device boundary at that point, so the pair's downstream
// consumers are rewired straight to its source and both copy nodes are
// dropped.
//
// Single sweep: candidate (first, second) edges are collected once from the
// graph's state at the start of the call (mirroring Luminal's CopyCompiler
// matching pass), then each distinct first-of-pair node is processed at
// most once — but when it is processed, every one of its inverse-copy
// destinations is fused in that same pass, not just the one candidate edge
// that first surfaced it. That's what makes a CopyToDevice fanning out to N
// CopyFromDevice nodes collapse in one call instead of needing N.
func FuseCopies(g *ir.Graph) {
	var candidates []pairEdge
	for _, id := range g.Nodes() {
		first := g.Node(id)
		if first == nil || !isCopyPair(first.Op) || g.IsNoDelete(id) {
			continue
		}
		for _, e := range g.Successors(id) {
			second := g.Node(e.To)
			if second != nil && isInverseCopy(first.Op, second.Op) {
				candidates = append(candidates, pairEdge{edge: e})
			}
		}
	}

	seenFirst := make(map[ir.NodeID]bool)

	for _, c := range candidates {
		first := c.edge.From
		if seenFirst[first] {
			continue
		}
		firstNode := g.Node(first)
		if firstNode == nil {
			continue
		}
		if hasNonCopyOutput(g, first) {
			continue
		}
		seenFirst[first] = true

		preds := g.Predecessors(first)
		if len(preds) == 0 {
			continue
		}
		source := preds[0].From

		for _, dest := range append([]*ir.Edge{}, g.Successors(first)...) {
			second := g.Node(dest.To)
			if second == nil || !isInverseCopy(firstNode.Op, second.Op) {
				continue
			}
			for _, out := range append([]*ir.Edge{}, g.Successors(dest.To)...) {
				g.Rewire(out, source)
			}
			g.MoveBookkeeping(dest.To, source)
			g.RemoveNode(dest.To)
		}

		g.RemoveNode(first)
	}
}

// hasNonCopyOutput reports whether id has any outgoing edge to a node that
// is not itself a copy operator — fusing through such a node would drop
// the non-copy consumer's input, so the pair is left alone.
func hasNonCopyOutput(g *ir.Graph, id ir.NodeID) bool {
	for _, e := range g.Successors(id) {
		to := g.Node(e.To)
		if to == nil || !isCopyPair(to.Op) {
			return true
		}
	}
	return false
}

func isCopyPair(op ir.Op) bool {
	switch op.(type) {
	case *graphop.CopyToDevice, *graphop.CopyFromDevice:
		return true
	default:
		return false
	}
}

// isInverseCopy reports whether b undoes a: ToDevice followed by
// FromDevice, or FromDevice followed by ToDevice.
func isInverseCopy(a, b ir.Op) bool {
	switch a.(type) {
	case *graphop.CopyToDevice:
		_, ok := b.(*graphop.CopyFromDevice)
		return ok
	case *graphop.CopyFromDevice:
		_, ok := b.(*graphop.CopyToDevice)
		return ok
	default:
		return false
	}
}
