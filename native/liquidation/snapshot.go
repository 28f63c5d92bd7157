package liquidation

import (
	"errors"
	"math/big"
	"sort"

	"kitchain/core/types"
)

var errBadSnapshot = errors.New("liquidation: malformed auction snapshot")

// SnapshotNode is the flat wire form of one arena node. Field presence
// depends on Kind; absent handles are zero. Timestamps and heights are
// widened to uint64 so the record stays RLP-encodable.
type SnapshotNode struct {
	Ptr    uint64
	Kind   uint8
	Parent uint64

	Left   uint64
	Right  uint64
	Height uint64
	Tez    *big.Int

	Burrow   uint64
	SliceTez *big.Int
	MinKit   *big.Int
	QueuedAt uint64
	Younger  uint64
	Older    uint64

	Child      uint64
	HasOutcome bool
	Outcome    OutcomeRecord
}

// OutcomeRecord is the wire form of a lot outcome.
type OutcomeRecord struct {
	Winner     []byte
	WinningBid *big.Int
	SoldTez    *big.Int
	Claimed    bool
}

func recordOutcome(o *Outcome) OutcomeRecord {
	return OutcomeRecord{
		Winner:     o.Winner.Bytes(),
		WinningBid: o.WinningBid,
		SoldTez:    o.SoldTez,
		Claimed:    o.claimed,
	}
}

func (r OutcomeRecord) outcome() *Outcome {
	return &Outcome{
		Winner:     types.AddressFromBytes(r.Winner),
		WinningBid: r.WinningBid,
		SoldTez:    r.SoldTez,
		claimed:    r.Claimed,
	}
}

// CurrentLotRecord is the wire form of the open lot.
type CurrentLotRecord struct {
	Root       uint64
	MinimumBid *big.Int
	HasLeader  bool
	Leader     []byte
	LeadingBid *big.Int
	LastBidAt  uint64
	OpenedAt   uint64
}

// PendingWinRecord parks an unclaimed outcome of an already drained lot.
type PendingWinRecord struct {
	Lot     uint64
	Outcome OutcomeRecord
}

// Snapshot is the deterministic serialisable form of the whole auction
// subsystem: nodes sorted by handle, the queue root, the open lot, the
// completed-lot FIFO and the parked wins sorted by lot handle.
type Snapshot struct {
	Nodes      []SnapshotNode
	Next       uint64
	Queue      uint64
	HasCurrent bool
	Current    CurrentLotRecord
	Completed  []uint64
	Pending    []PendingWinRecord
}

// Snapshot flattens the subsystem into its wire form.
func (a *Auctions) Snapshot() *Snapshot {
	snap := &Snapshot{
		Next:  uint64(a.Storage.next),
		Queue: uint64(a.Queue),
	}

	ptrs := make([]Ptr, 0, len(a.Storage.nodes))
	for p := range a.Storage.nodes {
		ptrs = append(ptrs, p)
	}
	sort.Slice(ptrs, func(i, j int) bool { return ptrs[i] < ptrs[j] })
	for _, p := range ptrs {
		n := a.Storage.nodes[p]
		rec := SnapshotNode{
			Ptr:    uint64(p),
			Kind:   uint8(n.kind),
			Parent: uint64(n.parent),
			Tez:    big.NewInt(0),
		}
		switch n.kind {
		case kindBranch:
			rec.Left = uint64(n.left)
			rec.Right = uint64(n.right)
			rec.Height = uint64(n.height)
			rec.Tez = n.tez
		case kindLeaf:
			rec.Burrow = uint64(n.slice.Burrow)
			rec.SliceTez = n.slice.Tez
			rec.MinKit = n.slice.MinKitForUnwarranted
			rec.QueuedAt = uint64(n.slice.QueuedAt)
			rec.Younger = uint64(n.slice.Younger)
			rec.Older = uint64(n.slice.Older)
		case kindRoot:
			rec.Child = uint64(n.child)
			if n.outcome != nil {
				rec.HasOutcome = true
				rec.Outcome = recordOutcome(n.outcome)
			}
		}
		if rec.SliceTez == nil {
			rec.SliceTez = big.NewInt(0)
		}
		if rec.MinKit == nil {
			rec.MinKit = big.NewInt(0)
		}
		snap.Nodes = append(snap.Nodes, rec)
	}

	if a.Current != nil {
		snap.HasCurrent = true
		snap.Current = CurrentLotRecord{
			Root:       uint64(a.Current.Root),
			MinimumBid: a.Current.MinimumBid,
			Leader:     a.Current.Leader.Bytes(),
			LeadingBid: big.NewInt(0),
			LastBidAt:  uint64(a.Current.LastBidAt),
			OpenedAt:   uint64(a.Current.OpenedAt),
		}
		if a.Current.LeadingBid != nil {
			snap.Current.HasLeader = true
			snap.Current.LeadingBid = a.Current.LeadingBid
		}
	}
	for _, root := range a.Completed {
		snap.Completed = append(snap.Completed, uint64(root))
	}

	lots := make([]Ptr, 0, len(a.PendingWins))
	for lot := range a.PendingWins {
		lots = append(lots, lot)
	}
	sort.Slice(lots, func(i, j int) bool { return lots[i] < lots[j] })
	for _, lot := range lots {
		snap.Pending = append(snap.Pending, PendingWinRecord{
			Lot:     uint64(lot),
			Outcome: recordOutcome(a.PendingWins[lot]),
		})
	}
	return snap
}

// RestoreAuctions rebuilds the subsystem from its wire form.
func RestoreAuctions(snap *Snapshot) (*Auctions, error) {
	if snap == nil || snap.Queue == 0 {
		return nil, errBadSnapshot
	}
	st := &Storage{nodes: make(map[Ptr]*node, len(snap.Nodes)), next: Ptr(snap.Next)}
	for _, rec := range snap.Nodes {
		if rec.Ptr == 0 || Ptr(rec.Ptr) >= st.next {
			return nil, errBadSnapshot
		}
		n := &node{kind: nodeKind(rec.Kind), parent: Ptr(rec.Parent)}
		switch n.kind {
		case kindBranch:
			n.left = Ptr(rec.Left)
			n.right = Ptr(rec.Right)
			n.height = int(rec.Height)
			n.tez = rec.Tez
		case kindLeaf:
			n.slice = Slice{
				Burrow:               types.BurrowID(rec.Burrow),
				Tez:                  rec.SliceTez,
				MinKitForUnwarranted: rec.MinKit,
				QueuedAt:             int64(rec.QueuedAt),
				Younger:              Ptr(rec.Younger),
				Older:                Ptr(rec.Older),
			}
		case kindRoot:
			n.child = Ptr(rec.Child)
			if rec.HasOutcome {
				n.outcome = rec.Outcome.outcome()
			}
		default:
			return nil, errBadSnapshot
		}
		st.nodes[Ptr(rec.Ptr)] = n
	}
	if _, ok := st.nodes[Ptr(snap.Queue)]; !ok {
		return nil, errBadSnapshot
	}

	a := &Auctions{
		Storage:     st,
		Queue:       Ptr(snap.Queue),
		PendingWins: make(map[Ptr]*Outcome, len(snap.Pending)),
	}
	if snap.HasCurrent {
		a.Current = &CurrentLot{
			Root:       Ptr(snap.Current.Root),
			MinimumBid: snap.Current.MinimumBid,
			Leader:     types.AddressFromBytes(snap.Current.Leader),
			LastBidAt:  int64(snap.Current.LastBidAt),
			OpenedAt:   int64(snap.Current.OpenedAt),
		}
		if snap.Current.HasLeader {
			a.Current.LeadingBid = snap.Current.LeadingBid
		}
	}
	for _, root := range snap.Completed {
		a.Completed = append(a.Completed, Ptr(root))
	}
	for _, rec := range snap.Pending {
		a.PendingWins[Ptr(rec.Lot)] = rec.Outcome.outcome()
	}
	return a, nil
}
