package liquidation

import (
	"fmt"
	"math/big"
)

// The slice arena is a persistent balanced tree addressed by opaque integer
// handles rather than native references. Leaves carry slices, branches carry
// height and collateral aggregates, and root nodes pin a whole lot together
// with its eventual auction outcome. Leaf handles are stable across
// rebalancing, which is what keeps the younger/older thread and the burrows'
// head/tail pointers valid while the tree churns.
//
// A handle that fails to resolve, or resolves to the wrong node kind, is a
// bookkeeping corruption and panics; those conditions must never occur in
// correct code and are not recoverable errors.

type nodeKind uint8

const (
	kindLeaf nodeKind = iota + 1
	kindBranch
	kindRoot
)

type node struct {
	kind   nodeKind
	parent Ptr

	// branch bookkeeping
	left   Ptr
	right  Ptr
	height int
	tez    *big.Int

	// leaf payload
	slice Slice

	// root bookkeeping
	child   Ptr
	outcome *Outcome
}

// Storage is the arena holding every queued, open and completed slice.
type Storage struct {
	nodes map[Ptr]*node
	next  Ptr
}

// NewStorage returns an empty arena.
func NewStorage() *Storage {
	return &Storage{nodes: make(map[Ptr]*node), next: 1}
}

func (s *Storage) alloc(n *node) Ptr {
	p := s.next
	s.next++
	s.nodes[p] = n
	return p
}

func (s *Storage) mustNode(p Ptr) *node {
	n, ok := s.nodes[p]
	if !ok {
		panic(fmt.Sprintf("liquidation: dangling arena handle %d", p))
	}
	return n
}

func (s *Storage) mustLeaf(p Ptr) *node {
	n := s.mustNode(p)
	if n.kind != kindLeaf {
		panic(fmt.Sprintf("liquidation: handle %d does not address a leaf", p))
	}
	return n
}

func (s *Storage) mustBranch(p Ptr) *node {
	n := s.mustNode(p)
	if n.kind != kindBranch {
		panic(fmt.Sprintf("liquidation: handle %d does not address a branch", p))
	}
	return n
}

func (s *Storage) mustRoot(p Ptr) *node {
	n := s.mustNode(p)
	if n.kind != kindRoot {
		panic(fmt.Sprintf("liquidation: handle %d does not address a root", p))
	}
	return n
}

// Has reports whether the handle resolves at all.
func (s *Storage) Has(p Ptr) bool {
	_, ok := s.nodes[p]
	return ok
}

// IsLeaf reports whether the handle addresses a slice leaf.
func (s *Storage) IsLeaf(p Ptr) bool {
	n, ok := s.nodes[p]
	return ok && n.kind == kindLeaf
}

// NewRoot allocates an empty tree root.
func (s *Storage) NewRoot() Ptr {
	return s.alloc(&node{kind: kindRoot, child: NullPtr})
}

// DropRoot frees an empty root. Dropping a non-empty root is a bookkeeping
// violation.
func (s *Storage) DropRoot(root Ptr) {
	r := s.mustRoot(root)
	if r.child != NullPtr {
		panic("liquidation: dropping a non-empty root")
	}
	delete(s.nodes, root)
}

// SetOutcome records the auction result on a completed lot's root.
func (s *Storage) SetOutcome(root Ptr, outcome *Outcome) {
	s.mustRoot(root).outcome = outcome
}

// OutcomeOf returns the recorded outcome, or nil while the lot has not
// completed.
func (s *Storage) OutcomeOf(root Ptr) *Outcome {
	return s.mustRoot(root).outcome
}

// SliceOf returns the slice payload behind a leaf handle. The pointer aliases
// arena memory; mutations through it are visible to later reads.
func (s *Storage) SliceOf(p Ptr) *Slice {
	return &s.mustLeaf(p).slice
}

// RootOf walks parent links from any live handle to its enclosing root.
func (s *Storage) RootOf(p Ptr) Ptr {
	for {
		n := s.mustNode(p)
		if n.kind == kindRoot {
			return p
		}
		p = n.parent
	}
}

// TotalTez returns the collateral enclosed by a root.
func (s *Storage) TotalTez(root Ptr) *big.Int {
	r := s.mustRoot(root)
	return new(big.Int).Set(s.tezOf(r.child))
}

// EmptyRoot reports whether the root encloses no slices.
func (s *Storage) EmptyRoot(root Ptr) bool {
	return s.mustRoot(root).child == NullPtr
}

// Front returns the oldest (leftmost) leaf under the root.
func (s *Storage) Front(root Ptr) (Ptr, bool) {
	p := s.mustRoot(root).child
	if p == NullPtr {
		return NullPtr, false
	}
	for {
		n := s.mustNode(p)
		if n.kind == kindLeaf {
			return p, true
		}
		p = n.left
	}
}

// Push appends a slice as the youngest (rightmost) leaf under the root and
// returns its stable handle.
func (s *Storage) Push(root Ptr, slice Slice) Ptr {
	if slice.Tez == nil {
		slice.Tez = big.NewInt(0)
	}
	if slice.MinKitForUnwarranted == nil {
		slice.MinKitForUnwarranted = big.NewInt(0)
	}
	leaf := s.alloc(&node{kind: kindLeaf, slice: slice})
	s.appendLeaf(root, leaf)
	return leaf
}

// Remove detaches a leaf from its tree and frees it.
func (s *Storage) Remove(leaf Ptr) {
	s.detachLeaf(leaf)
	delete(s.nodes, leaf)
}

// MoveFront detaches the oldest leaf under `from` and re-appends the same
// node under `to`, preserving its handle. It reports false when `from` is
// empty.
func (s *Storage) MoveFront(from, to Ptr) (Ptr, bool) {
	leaf, ok := s.Front(from)
	if !ok {
		return NullPtr, false
	}
	s.detachLeaf(leaf)
	s.appendLeaf(to, leaf)
	return leaf, true
}

func (s *Storage) heightOf(p Ptr) int {
	if p == NullPtr {
		return 0
	}
	n := s.mustNode(p)
	if n.kind == kindLeaf {
		return 1
	}
	return n.height
}

func (s *Storage) tezOf(p Ptr) *big.Int {
	if p == NullPtr {
		return big.NewInt(0)
	}
	n := s.mustNode(p)
	if n.kind == kindLeaf {
		return n.slice.Tez
	}
	return n.tez
}

func (s *Storage) refresh(p Ptr) {
	n := s.mustBranch(p)
	lh, rh := s.heightOf(n.left), s.heightOf(n.right)
	if rh > lh {
		n.height = rh + 1
	} else {
		n.height = lh + 1
	}
	n.tez = new(big.Int).Add(s.tezOf(n.left), s.tezOf(n.right))
}

func (s *Storage) balanceOf(p Ptr) int {
	n := s.mustBranch(p)
	return s.heightOf(n.right) - s.heightOf(n.left)
}

// replaceChild points the parent of `old` at `new` instead, whether the
// parent is a branch or a root.
func (s *Storage) replaceChild(parent, old, repl Ptr) {
	n := s.mustNode(parent)
	switch n.kind {
	case kindRoot:
		if n.child != old {
			panic("liquidation: root child mismatch during relink")
		}
		n.child = repl
	case kindBranch:
		switch old {
		case n.left:
			n.left = repl
		case n.right:
			n.right = repl
		default:
			panic("liquidation: branch child mismatch during relink")
		}
	default:
		panic("liquidation: leaf cannot be a parent")
	}
	if repl != NullPtr {
		s.mustNode(repl).parent = parent
	}
}

func (s *Storage) rotateLeft(p Ptr) Ptr {
	x := s.mustBranch(p)
	yPtr := x.right
	y := s.mustBranch(yPtr)

	parent := x.parent
	x.right = y.left
	if x.right != NullPtr {
		s.mustNode(x.right).parent = p
	}
	y.left = p
	x.parent = yPtr
	y.parent = parent
	s.replaceChild(parent, p, yPtr)
	s.refresh(p)
	s.refresh(yPtr)
	return yPtr
}

func (s *Storage) rotateRight(p Ptr) Ptr {
	x := s.mustBranch(p)
	yPtr := x.left
	y := s.mustBranch(yPtr)

	parent := x.parent
	x.left = y.right
	if x.left != NullPtr {
		s.mustNode(x.left).parent = p
	}
	y.right = p
	x.parent = yPtr
	y.parent = parent
	s.replaceChild(parent, p, yPtr)
	s.refresh(p)
	s.refresh(yPtr)
	return yPtr
}

// settle restores the AVL property at a single branch and returns the handle
// now occupying its position.
func (s *Storage) settle(p Ptr) Ptr {
	s.refresh(p)
	switch bal := s.balanceOf(p); {
	case bal > 1:
		right := s.mustBranch(p).right
		if s.heightOf(s.mustBranch(right).left) > s.heightOf(s.mustBranch(right).right) {
			s.rotateRight(right)
		}
		return s.rotateLeft(p)
	case bal < -1:
		left := s.mustBranch(p).left
		if s.heightOf(s.mustBranch(left).right) > s.heightOf(s.mustBranch(left).left) {
			s.rotateLeft(left)
		}
		return s.rotateRight(p)
	default:
		return p
	}
}

// rebalanceUp walks from a branch toward the root, refreshing aggregates and
// fixing any AVL violation introduced below.
func (s *Storage) rebalanceUp(p Ptr) {
	for p != NullPtr {
		n := s.mustNode(p)
		if n.kind == kindRoot {
			return
		}
		p = s.mustNode(s.settle(p)).parent
	}
}

// appendLeaf hangs an existing leaf node as the rightmost leaf under root.
func (s *Storage) appendLeaf(root, leaf Ptr) {
	r := s.mustRoot(root)
	if r.child == NullPtr {
		r.child = leaf
		s.mustLeaf(leaf).parent = root
		return
	}
	// Descend the right spine to the youngest leaf.
	p := r.child
	for s.mustNode(p).kind == kindBranch {
		p = s.mustNode(p).right
	}
	oldParent := s.mustNode(p).parent
	branch := s.alloc(&node{kind: kindBranch, left: p, right: leaf, parent: oldParent})
	s.replaceChild(oldParent, p, branch)
	s.mustNode(p).parent = branch
	s.mustLeaf(leaf).parent = branch
	s.rebalanceUp(branch)
}

// detachLeaf unhooks a leaf from its tree, collapsing its parent branch, and
// leaves the node itself allocated so the handle can be reused or freed by
// the caller.
func (s *Storage) detachLeaf(leaf Ptr) {
	l := s.mustLeaf(leaf)
	parent := l.parent
	pn := s.mustNode(parent)
	if pn.kind == kindRoot {
		pn.child = NullPtr
		l.parent = NullPtr
		return
	}
	// The parent branch collapses into the sibling.
	b := s.mustBranch(parent)
	sibling := b.left
	if sibling == leaf {
		sibling = b.right
	}
	grand := b.parent
	s.replaceChild(grand, parent, sibling)
	delete(s.nodes, parent)
	l.parent = NullPtr
	if s.mustNode(grand).kind == kindBranch {
		s.rebalanceUp(grand)
	}
}
