package domain

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestAddAmountOverflow(t *testing.T) {
	max := new(uint256.Int).SetAllOne()

	_, err := AddAmount(max, uint256.NewInt(1))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrArithmeticOverflow))

	sum, err := AddAmount(uint256.NewInt(10_000), uint256.NewInt(9))
	require.NoError(t, err)
	require.Equal(t, uint64(10_009), sum.Uint64())
}

func TestSubAmountUnderflow(t *testing.T) {
	_, err := SubAmount(uint256.NewInt(5), uint256.NewInt(6))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrArithmeticOverflow))

	d, err := SubAmount(uint256.NewInt(10_050), uint256.NewInt(10_009))
	require.NoError(t, err)
	require.Equal(t, uint64(41), d.Uint64())
}

func TestPremiumOn(t *testing.T) {
	// 0.09% of 10,000 is 9.
	p, err := PremiumOn(uint256.NewInt(10_000), 9)
	require.NoError(t, err)
	require.Equal(t, uint64(9), p.Uint64())

	// Truncating division: 0.09% of 999 rounds down to 0.
	p, err = PremiumOn(uint256.NewInt(999), 9)
	require.NoError(t, err)
	require.True(t, p.IsZero())

	_, err = PremiumOn(new(uint256.Int).SetAllOne(), 9)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrArithmeticOverflow))
}

func TestNativeSentinel(t *testing.T) {
	require.True(t, IsNative(NativeAsset))
	require.Equal(t, "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE", NativeAsset.Hex())
}
