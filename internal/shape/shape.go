// Package shape implements ShapeTracker, the logical-view-over-a-physical-
// buffer bookkeeping object, and the C2 shape interface used by operator
// factories: extracting (index, valid) CUDA expressions and the ordered set
// of dynamic dimension symbols a kernel signature must declare.
package shape

import (
	"fmt"
	"strings"

	"github.com/orneryd/tensorgpu/internal/symbolic"
)

// Dim is one dimension size: either a compile-time literal or a single
// dynamic symbol resolved at launch time from the process-wide dynamic
// symbol map.
type Dim struct {
	lit int
	sym byte // 0 when this Dim is a literal
}

// Lit builds a literal dimension size.
func Lit(n int) Dim { return Dim{lit: n} }

// Sym builds a dynamic, symbol-valued dimension size.
func Sym(c byte) Dim { return Dim{sym: c} }

// IsSymbolic reports whether d is a dynamic dimension.
func (d Dim) IsSymbolic() bool { return d.sym != 0 }

// Size returns d's literal value, or 0 if d is symbolic. Callers that need a
// symbolic dimension's runtime value must resolve it through the
// process-wide dynamic-symbol map instead.
func (d Dim) Size() int { return d.lit }

// ToSymbols returns the (zero or one) symbols this dimension contributes to
// a kernel's dynamic-dim parameter list.
func (d Dim) ToSymbols() []byte {
	if d.sym == 0 {
		return nil
	}
	return []byte{d.sym}
}

func (d Dim) String() string {
	if d.IsSymbolic() {
		return string(d.sym)
	}
	return fmt.Sprintf("%d", d.lit)
}

// PadPair is a (before, after) padding amount for one dimension; either side
// may be symbolic.
type PadPair struct {
	Before, After Dim
}

// SlicePair is a (start, end) slice bound for one dimension; either side may
// be symbolic.
type SlicePair struct {
	Start, End Dim
}

// Tracker is a logical view onto a physical buffer: an ordered list of
// dimension sizes plus per-dimension padding and slicing, together with the
// symbolic index/valid expressions that realize that view.
//
// Tracker itself does not compute index/valid expressions from dims —
// that's the caller's (the graph builder's) job when it constructs a view;
// Tracker just carries the already-derived expressions alongside the shape
// metadata that RenderDynDims needs to enumerate symbols from.
type Tracker struct {
	dims    []Dim
	padding []PadPair
	slices  []SlicePair
	index   symbolic.Expr
	valid   symbolic.Expr
}

// New builds a Tracker from its dimension sizes and pre-derived index/valid
// expressions.
func New(dims []Dim, index, valid symbolic.Expr) Tracker {
	return Tracker{dims: dims, index: index, valid: valid}
}

// WithPadding returns a copy of t with per-dimension padding attached.
func (t Tracker) WithPadding(pad ...PadPair) Tracker {
	t.padding = pad
	return t
}

// WithSlices returns a copy of t with per-dimension slicing attached.
func (t Tracker) WithSlices(sl ...SlicePair) Tracker {
	t.slices = sl
	return t
}

func (t Tracker) Dims() []Dim           { return t.dims }
func (t Tracker) Padding() []PadPair    { return t.padding }
func (t Tracker) Slices() []SlicePair   { return t.slices }
func (t Tracker) IndexExpr() symbolic.Expr { return t.index }
func (t Tracker) ValidExpr() symbolic.Expr { return t.valid }

// NumElements returns the logical element count (product of dims, ignoring
// padding/slicing — the count a thread grid must cover).
func (t Tracker) NumElements() int {
	n := 1
	for _, d := range t.dims {
		if d.IsSymbolic() {
			// Symbolic sizes are resolved at launch time; callers needing a
			// concrete count must go through the dynamic-symbol map instead.
			continue
		}
		n *= d.lit
	}
	return n
}

// NumPhysicalElements returns the count of elements in the underlying
// physical buffer, i.e. NumElements with padding removed and slicing
// un-applied — the size of the allocation this view reads from.
func (t Tracker) NumPhysicalElements() int {
	n := 1
	for i, d := range t.dims {
		size := d.lit
		if d.IsSymbolic() {
			continue
		}
		if i < len(t.padding) {
			size -= t.padding[i].before()
			size -= t.padding[i].after()
		}
		n *= size
	}
	return n
}

func (p PadPair) before() int {
	if p.Before.IsSymbolic() {
		return 0
	}
	return p.Before.lit
}

func (p PadPair) after() int {
	if p.After.IsSymbolic() {
		return 0
	}
	return p.After.lit
}

// IdxValid lowers a Tracker's index and valid expressions into CUDA C
// scalar-expression strings. This is the entirety of the C2 shape
// interface's idx_valid operation.
func IdxValid(t Tracker) (index, valid string) {
	return t.index.Lower(), t.valid.Lower()
}

// RenderDynDims scans the dimensions, padding pairs and slice pairs of every
// given Tracker, collects every distinct dynamic-dimension symbol
// (preserving first-occurrence order across trackers), and produces both the
// ordered symbol list and the kernel-signature suffix
// ", const int s1, const int s2, ..." appended to every generated kernel.
func RenderDynDims(trackers ...Tracker) ([]byte, string) {
	seen := make(map[byte]bool)
	var syms []byte
	collect := func(d Dim) {
		for _, s := range d.ToSymbols() {
			if !seen[s] {
				seen[s] = true
				syms = append(syms, s)
			}
		}
	}
	for _, t := range trackers {
		for _, d := range t.dims {
			collect(d)
		}
		for _, p := range t.padding {
			collect(p.Before)
			collect(p.After)
		}
		for _, s := range t.slices {
			collect(s.Start)
			collect(s.End)
		}
	}

	var suffix strings.Builder
	for _, s := range syms {
		suffix.WriteString(", const int ")
		suffix.WriteByte(s)
	}
	return syms, suffix.String()
}
