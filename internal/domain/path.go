package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// SwapHop is a single asset-to-asset exchange step.
type SwapHop struct {
	From common.Address
	To   common.Address
}

// SwapPath is an ordered, non-empty chain of hops where each hop's output
// asset is the next hop's input asset. A path whose final output asset equals
// its initial input asset is closed; closure is required whenever the path
// must return the borrowed asset.
type SwapPath struct {
	Hops []SwapHop
}

// NewPath builds a path from the asset sequence it visits. At least two
// assets are required and adjacent assets must differ.
func NewPath(assets ...common.Address) (SwapPath, error) {
	if len(assets) < 2 {
		return SwapPath{}, fmt.Errorf("domain: path needs at least 2 assets, got %d: %w", len(assets), ErrInvalidPath)
	}
	hops := make([]SwapHop, 0, len(assets)-1)
	for i := 0; i < len(assets)-1; i++ {
		hops = append(hops, SwapHop{From: assets[i], To: assets[i+1]})
	}
	p := SwapPath{Hops: hops}
	if err := p.Validate(); err != nil {
		return SwapPath{}, err
	}
	return p, nil
}

// Validate checks the structural invariants: non-empty, no self-hop, and
// hop[i].To == hop[i+1].From for every i.
func (p SwapPath) Validate() error {
	if len(p.Hops) == 0 {
		return fmt.Errorf("domain: empty path: %w", ErrInvalidPath)
	}
	for i, h := range p.Hops {
		if h.From == h.To {
			return fmt.Errorf("domain: hop %d swaps %s into itself: %w", i, h.From.Hex(), ErrInvalidPath)
		}
		if i > 0 && p.Hops[i-1].To != h.From {
			return fmt.Errorf("domain: hop %d input %s does not follow hop %d output %s: %w",
				i, h.From.Hex(), i-1, p.Hops[i-1].To.Hex(), ErrInvalidPath)
		}
	}
	return nil
}

// Closed reports whether the path returns to its input asset.
func (p SwapPath) Closed() bool {
	return len(p.Hops) > 0 && p.Hops[0].From == p.Hops[len(p.Hops)-1].To
}

// RequireClosed validates the path and additionally requires closure.
func (p SwapPath) RequireClosed() error {
	if err := p.Validate(); err != nil {
		return err
	}
	if !p.Closed() {
		return fmt.Errorf("domain: path from %s ends at %s, not closed: %w",
			p.Input().Hex(), p.Output().Hex(), ErrInvalidPath)
	}
	return nil
}

// Input returns the first hop's input asset.
func (p SwapPath) Input() common.Address {
	return p.Hops[0].From
}

// Output returns the last hop's output asset.
func (p SwapPath) Output() common.Address {
	return p.Hops[len(p.Hops)-1].To
}

// Assets returns the asset sequence the path visits, input first.
func (p SwapPath) Assets() []common.Address {
	out := make([]common.Address, 0, len(p.Hops)+1)
	out = append(out, p.Hops[0].From)
	for _, h := range p.Hops {
		out = append(out, h.To)
	}
	return out
}

// String renders the path as a chain of shortened addresses for logging.
func (p SwapPath) String() string {
	if len(p.Hops) == 0 {
		return "(empty)"
	}
	var b strings.Builder
	for i, a := range p.Assets() {
		if i > 0 {
			b.WriteString("->")
		}
		hex := a.Hex()
		b.WriteString(hex[:6] + ".." + hex[len(hex)-4:])
	}
	return b.String()
}
