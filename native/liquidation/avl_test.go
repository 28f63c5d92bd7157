package liquidation

import (
	"math/big"
	"testing"

	"kitchain/core/types"
)

// verify walks a subtree checking parent links, heights, balance and tez
// aggregates, returning (height, tez).
func verify(t *testing.T, s *Storage, p, parent Ptr) (int, *big.Int) {
	t.Helper()
	if p == NullPtr {
		return 0, big.NewInt(0)
	}
	n := s.mustNode(p)
	if n.parent != parent {
		t.Fatalf("node %d has parent %d, want %d", p, n.parent, parent)
	}
	switch n.kind {
	case kindLeaf:
		return 1, n.slice.Tez
	case kindBranch:
		lh, lt := verify(t, s, n.left, p)
		rh, rt := verify(t, s, n.right, p)
		if n.left == NullPtr || n.right == NullPtr {
			t.Fatalf("branch %d has a missing child", p)
		}
		bal := rh - lh
		if bal < -1 || bal > 1 {
			t.Fatalf("branch %d is unbalanced: %d", p, bal)
		}
		wantH := lh + 1
		if rh > lh {
			wantH = rh + 1
		}
		if n.height != wantH {
			t.Fatalf("branch %d height %d, want %d", p, n.height, wantH)
		}
		sum := new(big.Int).Add(lt, rt)
		if n.tez.Cmp(sum) != 0 {
			t.Fatalf("branch %d tez %s, want %s", p, n.tez, sum)
		}
		return wantH, sum
	default:
		t.Fatalf("unexpected node kind below a root")
		return 0, nil
	}
}

func verifyRoot(t *testing.T, s *Storage, root Ptr) {
	t.Helper()
	r := s.mustRoot(root)
	verify(t, s, r.child, root)
}

func leaves(s *Storage, root Ptr) []Ptr {
	var out []Ptr
	var walk func(p Ptr)
	walk = func(p Ptr) {
		if p == NullPtr {
			return
		}
		n := s.mustNode(p)
		if n.kind == kindLeaf {
			out = append(out, p)
			return
		}
		walk(n.left)
		walk(n.right)
	}
	walk(s.mustRoot(root).child)
	return out
}

func testSlice(burrow types.BurrowID, tez int64) Slice {
	return Slice{Burrow: burrow, Tez: big.NewInt(tez), MinKitForUnwarranted: big.NewInt(0)}
}

func TestPushKeepsOrderAndBalance(t *testing.T) {
	s := NewStorage()
	root := s.NewRoot()

	var handles []Ptr
	for i := int64(1); i <= 64; i++ {
		handles = append(handles, s.Push(root, testSlice(types.BurrowID(i), i)))
		verifyRoot(t, s, root)
	}

	got := leaves(s, root)
	if len(got) != len(handles) {
		t.Fatalf("leaf count %d, want %d", len(got), len(handles))
	}
	for i := range got {
		if got[i] != handles[i] {
			t.Fatalf("leaf %d out of order: got %d want %d", i, got[i], handles[i])
		}
	}

	// 1+2+...+64
	if want := big.NewInt(64 * 65 / 2); s.TotalTez(root).Cmp(want) != 0 {
		t.Fatalf("total tez %s, want %s", s.TotalTez(root), want)
	}
}

func TestRemoveRebalances(t *testing.T) {
	s := NewStorage()
	root := s.NewRoot()

	var handles []Ptr
	for i := int64(1); i <= 33; i++ {
		handles = append(handles, s.Push(root, testSlice(types.BurrowID(i), 10)))
	}

	// Remove every other leaf, then the rest.
	for i := 0; i < len(handles); i += 2 {
		s.Remove(handles[i])
		verifyRoot(t, s, root)
	}
	for i := 1; i < len(handles); i += 2 {
		s.Remove(handles[i])
		verifyRoot(t, s, root)
	}
	if !s.EmptyRoot(root) {
		t.Fatalf("root should be empty")
	}
	if s.TotalTez(root).Sign() != 0 {
		t.Fatalf("empty root should have zero tez")
	}
}

func TestLeafHandlesSurviveRebalancing(t *testing.T) {
	s := NewStorage()
	root := s.NewRoot()

	first := s.Push(root, testSlice(1, 100))
	for i := int64(2); i <= 20; i++ {
		s.Push(root, testSlice(types.BurrowID(i), i))
	}
	if got := s.SliceOf(first); got.Burrow != 1 || got.Tez.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("first handle no longer addresses its slice: %+v", got)
	}
	front, ok := s.Front(root)
	if !ok || front != first {
		t.Fatalf("front %d, want %d", front, first)
	}
}

func TestMoveFrontPreservesHandles(t *testing.T) {
	s := NewStorage()
	queue := s.NewRoot()
	lot := s.NewRoot()

	var handles []Ptr
	for i := int64(1); i <= 10; i++ {
		handles = append(handles, s.Push(queue, testSlice(types.BurrowID(i), i)))
	}

	for i := 0; i < 4; i++ {
		moved, ok := s.MoveFront(queue, lot)
		if !ok {
			t.Fatalf("move %d failed", i)
		}
		if moved != handles[i] {
			t.Fatalf("moved handle %d, want %d", moved, handles[i])
		}
		verifyRoot(t, s, queue)
		verifyRoot(t, s, lot)
	}

	if s.RootOf(handles[0]) != lot || s.RootOf(handles[4]) != queue {
		t.Fatalf("handles resolved to the wrong roots after the move")
	}
	if want := big.NewInt(1 + 2 + 3 + 4); s.TotalTez(lot).Cmp(want) != 0 {
		t.Fatalf("lot tez %s, want %s", s.TotalTez(lot), want)
	}
}

func TestRootOfWalksToEnclosingRoot(t *testing.T) {
	s := NewStorage()
	root := s.NewRoot()
	leaf := s.Push(root, testSlice(7, 70))
	if s.RootOf(leaf) != root {
		t.Fatalf("root lookup failed")
	}
}

func TestDropRootPanicsWhenNonEmpty(t *testing.T) {
	s := NewStorage()
	root := s.NewRoot()
	s.Push(root, testSlice(1, 1))
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	s.DropRoot(root)
}

func TestSliceOfNonLeafPanics(t *testing.T) {
	s := NewStorage()
	root := s.NewRoot()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	s.SliceOf(root)
}
