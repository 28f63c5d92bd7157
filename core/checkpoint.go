package core

import (
	"errors"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"
	"lukechampine.com/blake3"

	"kitchain/config"
	"kitchain/core/events"
	"kitchain/core/types"
	"kitchain/native/burrow"
	"kitchain/native/cfmm"
	"kitchain/native/delegate"
	"kitchain/native/liquidation"
	"kitchain/native/params"
)

var ErrBadCheckpoint = errors.New("core: malformed checkpoint")

// The checkpoint is the protocol's single atomic state value flattened into a
// canonical RLP blob: map entries sorted by key, signed quantities split into
// sign and magnitude, timestamps widened to uint64. Identical states encode
// to identical bytes, so the blake3 digest doubles as a state identity.

type signedInt struct {
	Neg bool
	Abs *big.Int
}

func signRecord(v *big.Int) signedInt {
	return signedInt{Neg: v.Sign() < 0, Abs: new(big.Int).Abs(v)}
}

func (r signedInt) value() *big.Int {
	v := new(big.Int).Set(r.Abs)
	if r.Neg {
		v.Neg(v)
	}
	return v
}

type paramsRecord struct {
	Q               *big.Int
	Index           *big.Int
	ProtectedIndex  *big.Int
	Drift           signedInt
	DriftDerivative signedInt
	BurrowFeeIndex  *big.Int
	OutstandingKit  *big.Int
	CirculatingKit  *big.Int
	LastTouched     uint64
}

type burrowRecord struct {
	ID                  uint64
	Active              bool
	Delegate            []byte
	Collateral          *big.Int
	Outstanding         *big.Int
	CollateralAtAuction *big.Int
	PermissionVersion   uint64
	AllowAllTezDeposits bool
	AllowAllKitBurns    bool
	FeeIndexSnapshot    *big.Int
	Youngest            uint64
	Oldest              uint64
	LastTouched         uint64
}

type poolRecord struct {
	Tez            *big.Int
	Kit            *big.Int
	TotalLiquidity *big.Int
	RateTez        *big.Int
	RateKit        *big.Int
	RateLevel      uint64
}

type delegateWinnerRecord struct {
	Cycle  uint64
	Winner []byte
	Bid    *big.Int
}

type delegationRecord struct {
	Cycle      uint64
	HasLeader  bool
	Leader     []byte
	LeadingBid *big.Int
	Delegate   []byte
	Pending    []delegateWinnerRecord
}

type checkpointRecord struct {
	Params     paramsRecord
	NextBurrow uint64
	Burrows    []burrowRecord
	Cfmm       poolRecord
	Auctions   *liquidation.Snapshot
	Delegation delegationRecord
}

// Checkpoint serialises the whole state and returns the canonical bytes with
// their blake3 digest.
func (s *State) Checkpoint() ([]byte, [32]byte, error) {
	rec := checkpointRecord{
		Params: paramsRecord{
			Q:               s.Params.Q,
			Index:           s.Params.Index,
			ProtectedIndex:  s.Params.ProtectedIndex,
			Drift:           signRecord(s.Params.Drift),
			DriftDerivative: signRecord(s.Params.DriftDerivative),
			BurrowFeeIndex:  s.Params.BurrowFeeIndex,
			OutstandingKit:  s.Params.OutstandingKit,
			CirculatingKit:  s.Params.CirculatingKit,
			LastTouched:     uint64(s.Params.LastTouched),
		},
		NextBurrow: uint64(s.NextBurrow),
		Cfmm: poolRecord{
			Tez:            s.Cfmm.Tez,
			Kit:            s.Cfmm.Kit,
			TotalLiquidity: s.Cfmm.TotalLiquidity,
			RateTez:        s.Cfmm.RateTez,
			RateKit:        s.Cfmm.RateKit,
			RateLevel:      s.Cfmm.RateLevel,
		},
		Auctions: s.Auctions.Snapshot(),
	}

	ids := make([]types.BurrowID, 0, len(s.Burrows))
	for id := range s.Burrows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		b := s.Burrows[id]
		rec.Burrows = append(rec.Burrows, burrowRecord{
			ID:                  uint64(id),
			Active:              b.Active,
			Delegate:            b.Delegate.Bytes(),
			Collateral:          b.Collateral,
			Outstanding:         b.Outstanding,
			CollateralAtAuction: b.CollateralAtAuction,
			PermissionVersion:   b.PermissionVersion,
			AllowAllTezDeposits: b.AllowAllTezDeposits,
			AllowAllKitBurns:    b.AllowAllKitBurns,
			FeeIndexSnapshot:    b.FeeIndexSnapshot,
			Youngest:            uint64(b.Youngest),
			Oldest:              uint64(b.Oldest),
			LastTouched:         uint64(b.LastTouched),
		})
	}

	rec.Delegation = delegationRecord{
		Cycle:      s.Delegation.Cycle,
		Leader:     s.Delegation.Leader.Bytes(),
		LeadingBid: big.NewInt(0),
		Delegate:   s.Delegation.Delegate.Bytes(),
	}
	if s.Delegation.LeadingBid != nil {
		rec.Delegation.HasLeader = true
		rec.Delegation.LeadingBid = s.Delegation.LeadingBid
	}
	cycles := make([]uint64, 0, len(s.Delegation.Pending))
	for c := range s.Delegation.Pending {
		cycles = append(cycles, c)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i] < cycles[j] })
	for _, c := range cycles {
		w := s.Delegation.Pending[c]
		rec.Delegation.Pending = append(rec.Delegation.Pending, delegateWinnerRecord{
			Cycle:  w.Cycle,
			Winner: w.Winner.Bytes(),
			Bid:    w.Bid,
		})
	}

	encoded, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return nil, [32]byte{}, err
	}
	return encoded, blake3.Sum256(encoded), nil
}

// Restore rebuilds a state value from checkpoint bytes.
func Restore(cfg config.Config, encoded []byte, emitter events.Emitter) (*State, error) {
	var rec checkpointRecord
	if err := rlp.DecodeBytes(encoded, &rec); err != nil {
		return nil, err
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}

	auctions, err := liquidation.RestoreAuctions(rec.Auctions)
	if err != nil {
		return nil, err
	}

	s := &State{
		cfg:     cfg,
		emitter: emitter,
		Params: &params.Parameters{
			Q:               rec.Params.Q,
			Index:           rec.Params.Index,
			ProtectedIndex:  rec.Params.ProtectedIndex,
			Drift:           rec.Params.Drift.value(),
			DriftDerivative: rec.Params.DriftDerivative.value(),
			BurrowFeeIndex:  rec.Params.BurrowFeeIndex,
			OutstandingKit:  rec.Params.OutstandingKit,
			CirculatingKit:  rec.Params.CirculatingKit,
			LastTouched:     int64(rec.Params.LastTouched),
		},
		Burrows:    make(map[types.BurrowID]*burrow.Burrow, len(rec.Burrows)),
		NextBurrow: types.BurrowID(rec.NextBurrow),
		Cfmm: &cfmm.Pool{
			Tez:            rec.Cfmm.Tez,
			Kit:            rec.Cfmm.Kit,
			TotalLiquidity: rec.Cfmm.TotalLiquidity,
			RateTez:        rec.Cfmm.RateTez,
			RateKit:        rec.Cfmm.RateKit,
			RateLevel:      rec.Cfmm.RateLevel,
		},
		Auctions: auctions,
		Delegation: &delegate.Auction{
			Cycle:    rec.Delegation.Cycle,
			Leader:   types.AddressFromBytes(rec.Delegation.Leader),
			Delegate: types.AddressFromBytes(rec.Delegation.Delegate),
			Pending:  make(map[uint64]*delegate.WinnerRecord, len(rec.Delegation.Pending)),
		},
	}
	if rec.Delegation.HasLeader {
		s.Delegation.LeadingBid = rec.Delegation.LeadingBid
	}
	for _, w := range rec.Delegation.Pending {
		s.Delegation.Pending[w.Cycle] = &delegate.WinnerRecord{
			Cycle:  w.Cycle,
			Winner: types.AddressFromBytes(w.Winner),
			Bid:    w.Bid,
		}
	}

	for _, br := range rec.Burrows {
		if br.ID == 0 || br.ID >= rec.NextBurrow {
			return nil, ErrBadCheckpoint
		}
		s.Burrows[types.BurrowID(br.ID)] = &burrow.Burrow{
			Active:              br.Active,
			Delegate:            types.AddressFromBytes(br.Delegate),
			Collateral:          br.Collateral,
			Outstanding:         br.Outstanding,
			CollateralAtAuction: br.CollateralAtAuction,
			PermissionVersion:   br.PermissionVersion,
			AllowAllTezDeposits: br.AllowAllTezDeposits,
			AllowAllKitBurns:    br.AllowAllKitBurns,
			FeeIndexSnapshot:    br.FeeIndexSnapshot,
			Youngest:            liquidation.Ptr(br.Youngest),
			Oldest:              liquidation.Ptr(br.Oldest),
			LastTouched:         int64(br.LastTouched),
		}
	}
	return s, nil
}
