package core

import (
	"fmt"
	"math/big"

	"kitchain/native/liquidation"
)

// CheckInvariants walks the aggregate invariants the protocol must restore
// after every mutating call. It is meant for tests and debug builds; a
// violation means a bookkeeping bug, not a caller error.
func (s *State) CheckInvariants() error {
	outstanding := big.NewInt(0)
	for id, b := range s.Burrows {
		outstanding.Add(outstanding, b.Outstanding)

		if b.Youngest == liquidation.NullPtr {
			if b.Oldest != liquidation.NullPtr {
				return fmt.Errorf("core: burrow %d has an oldest slice but no youngest", id)
			}
			if b.CollateralAtAuction.Sign() != 0 {
				return fmt.Errorf("core: burrow %d has %s mutez at auction but no slices", id, b.CollateralAtAuction)
			}
			continue
		}

		walked := big.NewInt(0)
		last := liquidation.NullPtr
		for leaf := b.Youngest; leaf != liquidation.NullPtr; {
			if !s.Auctions.Storage.IsLeaf(leaf) {
				return fmt.Errorf("core: burrow %d slice thread reaches a non-leaf pointer %d", id, leaf)
			}
			slice := s.Auctions.Storage.SliceOf(leaf)
			if slice.Burrow != id {
				return fmt.Errorf("core: burrow %d slice thread crosses into burrow %d", id, slice.Burrow)
			}
			walked.Add(walked, slice.Tez)
			last = leaf
			leaf = slice.Older
		}
		if last != b.Oldest {
			return fmt.Errorf("core: burrow %d slice walk ends at %d, oldest pointer says %d", id, last, b.Oldest)
		}
		if walked.Cmp(b.CollateralAtAuction) != 0 {
			return fmt.Errorf("core: burrow %d collateral at auction %s, walk found %s", id, b.CollateralAtAuction, walked)
		}
	}

	if outstanding.Cmp(s.Params.OutstandingKit) != 0 {
		return fmt.Errorf("core: outstanding kit counter %s, burrows sum to %s", s.Params.OutstandingKit, outstanding)
	}
	return nil
}
