package domain

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	usdc = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	weth = common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619")
	dai  = common.HexToAddress("0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063")
)

func TestNewPath(t *testing.T) {
	p, err := NewPath(usdc, weth, usdc)
	require.NoError(t, err)
	require.Len(t, p.Hops, 2)
	require.Equal(t, usdc, p.Input())
	require.Equal(t, usdc, p.Output())
	require.True(t, p.Closed())
	require.Equal(t, []common.Address{usdc, weth, usdc}, p.Assets())
}

func TestNewPathRejectsDegenerate(t *testing.T) {
	_, err := NewPath(usdc)
	require.True(t, errors.Is(err, ErrInvalidPath))

	_, err = NewPath()
	require.True(t, errors.Is(err, ErrInvalidPath))

	// Self-hop.
	_, err = NewPath(usdc, usdc)
	require.True(t, errors.Is(err, ErrInvalidPath))
}

func TestValidateContiguity(t *testing.T) {
	// Hand-built path with a broken link between hops.
	p := SwapPath{Hops: []SwapHop{
		{From: usdc, To: weth},
		{From: dai, To: usdc},
	}}
	err := p.Validate()
	require.True(t, errors.Is(err, ErrInvalidPath))

	require.True(t, errors.Is(SwapPath{}.Validate(), ErrInvalidPath))
}

func TestRequireClosed(t *testing.T) {
	open, err := NewPath(usdc, weth, dai)
	require.NoError(t, err)
	require.False(t, open.Closed())
	require.True(t, errors.Is(open.RequireClosed(), ErrInvalidPath))

	closed, err := NewPath(usdc, weth, dai, usdc)
	require.NoError(t, err)
	require.NoError(t, closed.RequireClosed())
}
