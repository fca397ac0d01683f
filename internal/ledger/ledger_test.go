package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/apexarb/arbengine/internal/domain"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	usdc  = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func amt(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestTransferAndCommit(t *testing.T) {
	lg := New(testLogger())
	require.NoError(t, lg.SeedBalance(alice, usdc, amt(1000)))

	u, err := lg.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, u.Transfer(alice, bob, usdc, amt(300)))

	// Staged view inside the unit, committed view outside.
	require.Equal(t, uint64(700), u.Balance(alice, usdc).Uint64())
	require.Equal(t, uint64(1000), lg.BalanceOf(alice, usdc).Uint64())

	require.NoError(t, u.Commit())
	require.Equal(t, uint64(700), lg.BalanceOf(alice, usdc).Uint64())
	require.Equal(t, uint64(300), lg.BalanceOf(bob, usdc).Uint64())
}

func TestDiscardRestoresExactPreState(t *testing.T) {
	lg := New(testLogger())
	require.NoError(t, lg.SeedBalance(alice, usdc, amt(1000)))

	u, err := lg.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, u.Transfer(alice, bob, usdc, amt(999)))
	require.NoError(t, u.Approve(alice, carol, usdc, amt(50)))
	require.NoError(t, u.MarkNonceUsed(alice, 7))
	require.NoError(t, u.SetNonceCounter(bob, 3))
	u.Emit(domain.HopSwappedEvent{From: usdc, To: usdc, AmountIn: "1", AmountOut: "1"})
	u.Discard()

	require.Equal(t, uint64(1000), lg.BalanceOf(alice, usdc).Uint64())
	require.True(t, lg.BalanceOf(bob, usdc).IsZero())
	require.Empty(t, lg.UsedNonces(alice))
	require.Equal(t, uint64(0), lg.NonceCounter(bob))
	require.Empty(t, u.Events())

	// Allowance never applied.
	u2, err := lg.Begin(context.Background())
	require.NoError(t, err)
	defer u2.Discard()
	require.True(t, u2.Allowance(alice, carol, usdc).IsZero())
}

func TestDebitInsufficientBalance(t *testing.T) {
	lg := New(testLogger())
	u, err := lg.Begin(context.Background())
	require.NoError(t, err)
	defer u.Discard()

	err = u.Debit(alice, usdc, amt(1))
	require.True(t, errors.Is(err, domain.ErrInsufficientBalance))
}

func TestTransferFromSpendsAllowance(t *testing.T) {
	lg := New(testLogger())
	require.NoError(t, lg.SeedBalance(alice, usdc, amt(500)))

	u, err := lg.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, u.Approve(alice, bob, usdc, amt(200)))

	require.NoError(t, u.TransferFrom(bob, alice, carol, usdc, amt(150)))
	require.Equal(t, uint64(50), u.Allowance(alice, bob, usdc).Uint64())

	err = u.TransferFrom(bob, alice, carol, usdc, amt(100))
	require.True(t, errors.Is(err, domain.ErrInsufficientAllowance))

	require.NoError(t, u.Commit())
	require.Equal(t, uint64(150), lg.BalanceOf(carol, usdc).Uint64())
}

func TestNonceStaging(t *testing.T) {
	lg := New(testLogger())
	u, err := lg.Begin(context.Background())
	require.NoError(t, err)

	require.False(t, u.NonceUsed(alice, 0))
	require.NoError(t, u.MarkNonceUsed(alice, 0))
	require.True(t, u.NonceUsed(alice, 0))

	require.Equal(t, uint64(0), u.NonceCounter(bob))
	require.NoError(t, u.SetNonceCounter(bob, 1))
	require.Equal(t, uint64(1), u.NonceCounter(bob))

	require.NoError(t, u.Commit())
	require.True(t, lg.UsedNonces(alice)[0])
	require.Equal(t, uint64(1), lg.NonceCounter(bob))
}

func TestSeedNonces(t *testing.T) {
	lg := New(testLogger())
	lg.SeedNonces(domain.NonceSnapshot{
		Counters: map[common.Address]uint64{alice: 4},
		Used:     map[common.Address][]uint64{bob: {0, 1, 3}},
	})
	require.Equal(t, uint64(4), lg.NonceCounter(alice))
	used := lg.UsedNonces(bob)
	require.True(t, used[0] && used[1] && used[3])
	require.False(t, used[2])
}

func TestClosedUnitRefusesWrites(t *testing.T) {
	lg := New(testLogger())
	u, err := lg.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, u.Commit())

	require.True(t, errors.Is(u.Credit(alice, usdc, amt(1)), domain.ErrUnitClosed))
	require.True(t, errors.Is(u.Commit(), domain.ErrUnitClosed))
	u.Discard() // no-op
}

func TestBeginSerializesUnits(t *testing.T) {
	lg := New(testLogger())
	u1, err := lg.Begin(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = lg.Begin(ctx)
	require.Error(t, err)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		u2, err := lg.Begin(context.Background())
		if err == nil {
			u2.Discard()
		}
		done <- err
	}()
	<-started
	u1.Discard()
	require.NoError(t, <-done)
}

func TestSeedBalanceRefusedWhileUnitOpen(t *testing.T) {
	lg := New(testLogger())
	u, err := lg.Begin(context.Background())
	require.NoError(t, err)
	defer u.Discard()

	err = lg.SeedBalance(alice, usdc, amt(1))
	require.True(t, errors.Is(err, domain.ErrReentrantCall))
}
