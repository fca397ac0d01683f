package strategy

import (
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/apexarb/arbengine/internal/venue/sim"
)

// cycle is a closed candidate path with its estimated terminal output.
type cycle struct {
	assets []common.Address
	out    *uint256.Int
}

// poolBook is a scan-local snapshot of reserves, keyed pool account then
// asset. The search mutates it along the current path and restores it on
// backtrack, so estimates account for the path's own price impact.
type poolBook map[common.Address]map[common.Address]*uint256.Int

// bestCycle snapshots committed reserves and returns the closed cycle with
// the highest estimated output. ok is false when no cycle produces output.
func (s *Scanner) bestCycle() (cycle, bool) {
	book := s.snapshotPools()
	if len(book) == 0 {
		return cycle{}, false
	}

	var best cycle
	path := make([]common.Address, 1, s.cfg.MaxHops+1)
	path[0] = s.cfg.BorrowAsset
	s.search(book, path, s.cfg.BorrowAmount, &best)

	if best.out == nil {
		return cycle{}, false
	}
	return best, true
}

func (s *Scanner) snapshotPools() poolBook {
	book := make(poolBook)
	for i := 0; i < len(s.cfg.Assets); i++ {
		for j := i + 1; j < len(s.cfg.Assets); j++ {
			a, b := s.cfg.Assets[i], s.cfg.Assets[j]
			ra, rb := s.venue.Reserves(s.lg, a, b)
			if ra.IsZero() || rb.IsZero() {
				continue
			}
			book[sim.PoolAccount(a, b)] = map[common.Address]*uint256.Int{a: ra, b: rb}
		}
	}
	return book
}

// search extends path one hop at a time, depth first. A hop back to the
// borrow asset closes a candidate; other assets are visited at most once.
func (s *Scanner) search(book poolBook, path []common.Address, amountIn *uint256.Int, best *cycle) {
	last := path[len(path)-1]
	for _, next := range s.cfg.Assets {
		if next == last {
			continue
		}
		pool, ok := book[sim.PoolAccount(last, next)]
		if !ok {
			continue
		}
		reserveIn, reserveOut := pool[last], pool[next]
		out, err := sim.AmountOut(amountIn, reserveIn, reserveOut)
		if err != nil || out.IsZero() || !out.Lt(reserveOut) {
			continue
		}
		if next == s.cfg.BorrowAsset {
			if best.out == nil || out.Gt(best.out) {
				best.assets = append(append([]common.Address(nil), path...), next)
				best.out = out
			}
			continue
		}
		if len(path) >= s.cfg.MaxHops || slices.Contains(path, next) {
			continue
		}
		pool[last] = new(uint256.Int).Add(reserveIn, amountIn)
		pool[next] = new(uint256.Int).Sub(reserveOut, out)
		s.search(book, append(path, next), out, best)
		pool[last] = reserveIn
		pool[next] = reserveOut
	}
}
