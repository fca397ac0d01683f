package custody

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/apexarb/arbengine/internal/domain"
	"github.com/apexarb/arbengine/internal/engine"
	"github.com/apexarb/arbengine/internal/ledger"
)

var (
	acct   = common.HexToAddress("0x00000000000000000000000000000000000000E1")
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000E2")
	router = common.HexToAddress("0x00000000000000000000000000000000000000F2")
	user   = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	usdc   = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	weth   = common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedRouter pays a fixed output per swap, pulling the approved input.
type scriptedRouter struct {
	outs  []*uint256.Int
	calls int
}

func (r *scriptedRouter) Account() common.Address { return router }

func (r *scriptedRouter) SwapExactInput(ctx context.Context, unit *ledger.Unit, amountIn, minOut *uint256.Int, path []common.Address, recipient common.Address, deadline time.Time) ([]*uint256.Int, error) {
	if r.calls >= len(r.outs) {
		return nil, fmt.Errorf("scripted router: unscripted swap %d", r.calls)
	}
	out := r.outs[r.calls]
	r.calls++
	if err := unit.TransferFrom(router, recipient, router, path[0], amountIn); err != nil {
		return nil, err
	}
	if err := unit.Mint(recipient, path[len(path)-1], out); err != nil {
		return nil, err
	}
	return []*uint256.Int{new(uint256.Int).Set(amountIn), new(uint256.Int).Set(out)}, nil
}

func newCustodian(t *testing.T, outs ...uint64) (*Custodian, *ledger.Ledger, domain.Capability) {
	t.Helper()
	lg := ledger.New(testLogger())
	scripted := make([]*uint256.Int, len(outs))
	for i, v := range outs {
		scripted[i] = uint256.NewInt(v)
	}
	exec := engine.NewPathExecutor(&scriptedRouter{outs: scripted}, acct, testLogger())
	cap := domain.NewCapability()
	c := New(Config{Account: acct, Owner: owner, OwnerCap: cap}, lg, exec, nil, testLogger())
	return c, lg, cap
}

func TestOwnerWithdrawAmount(t *testing.T) {
	c, lg, cap := newCustodian(t)
	require.NoError(t, lg.SeedBalance(acct, usdc, uint256.NewInt(500)))

	got, err := c.OwnerWithdraw(context.Background(), cap, domain.WithdrawSpec{
		Asset:  usdc,
		Amount: uint256.NewInt(200),
	})
	require.NoError(t, err)
	require.True(t, got.Eq(uint256.NewInt(200)))
	require.True(t, lg.BalanceOf(acct, usdc).Eq(uint256.NewInt(300)))
	require.True(t, lg.BalanceOf(owner, usdc).Eq(uint256.NewInt(200)))
}

func TestOwnerWithdrawAll(t *testing.T) {
	c, lg, cap := newCustodian(t)
	require.NoError(t, lg.SeedBalance(acct, usdc, uint256.NewInt(500)))

	got, err := c.OwnerWithdraw(context.Background(), cap, domain.WithdrawSpec{Asset: usdc, All: true})
	require.NoError(t, err)
	require.True(t, got.Eq(uint256.NewInt(500)))
	require.True(t, lg.BalanceOf(acct, usdc).IsZero())
	require.True(t, lg.BalanceOf(owner, usdc).Eq(uint256.NewInt(500)))
}

func TestOwnerWithdrawNative(t *testing.T) {
	c, lg, cap := newCustodian(t)
	require.NoError(t, lg.SeedBalance(acct, domain.NativeAsset, uint256.NewInt(90)))

	got, err := c.OwnerWithdraw(context.Background(), cap, domain.WithdrawSpec{Asset: domain.NativeAsset, All: true})
	require.NoError(t, err)
	require.True(t, got.Eq(uint256.NewInt(90)))
	require.True(t, lg.BalanceOf(owner, domain.NativeAsset).Eq(uint256.NewInt(90)))
}

func TestOwnerWithdrawEmptyAllIsNoop(t *testing.T) {
	c, lg, cap := newCustodian(t)

	got, err := c.OwnerWithdraw(context.Background(), cap, domain.WithdrawSpec{Asset: usdc, All: true})
	require.NoError(t, err)
	require.True(t, got.IsZero())
	require.True(t, lg.BalanceOf(owner, usdc).IsZero())
}

func TestOwnerWithdrawOverdraw(t *testing.T) {
	c, lg, cap := newCustodian(t)
	require.NoError(t, lg.SeedBalance(acct, usdc, uint256.NewInt(10)))

	_, err := c.OwnerWithdraw(context.Background(), cap, domain.WithdrawSpec{
		Asset:  usdc,
		Amount: uint256.NewInt(11),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	require.True(t, lg.BalanceOf(acct, usdc).Eq(uint256.NewInt(10)))
}

func TestOwnerWithdrawForgedCap(t *testing.T) {
	c, lg, _ := newCustodian(t)
	require.NoError(t, lg.SeedBalance(acct, usdc, uint256.NewInt(10)))

	_, err := c.OwnerWithdraw(context.Background(), domain.NewCapability(), domain.WithdrawSpec{Asset: usdc, All: true})
	require.ErrorIs(t, err, domain.ErrUnauthorizedCaller)

	_, err = c.OwnerWithdraw(context.Background(), domain.Capability{}, domain.WithdrawSpec{Asset: usdc, All: true})
	require.ErrorIs(t, err, domain.ErrUnauthorizedCaller)
}

func TestUserSwapReturnsOutputToSigner(t *testing.T) {
	c, lg, _ := newCustodian(t, 5, 480)
	require.NoError(t, lg.SeedBalance(user, usdc, uint256.NewInt(500)))

	unit, err := lg.Begin(context.Background())
	require.NoError(t, err)
	defer unit.Discard()

	path, err := domain.NewPath(usdc, weth, usdc)
	require.NoError(t, err)

	out, err := c.UserSwap(context.Background(), unit, user, &domain.SwapOperation{
		Path:     path,
		AmountIn: uint256.NewInt(500),
		MinOut:   uint256.NewInt(450),
		Deadline: time.Now().Add(time.Minute),
	})
	require.NoError(t, err)
	require.True(t, out.Eq(uint256.NewInt(480)))

	// Principal went through the execution account and back out; the
	// account itself ends flat.
	require.True(t, unit.Balance(user, usdc).Eq(uint256.NewInt(480)))
	require.True(t, unit.Balance(acct, usdc).IsZero())
	require.True(t, unit.Balance(acct, weth).IsZero())
}

func TestUserSwapFloorAbortLeavesPrincipal(t *testing.T) {
	c, lg, _ := newCustodian(t, 5, 440)
	require.NoError(t, lg.SeedBalance(user, usdc, uint256.NewInt(500)))

	unit, err := lg.Begin(context.Background())
	require.NoError(t, err)

	path, err := domain.NewPath(usdc, weth, usdc)
	require.NoError(t, err)

	_, err = c.UserSwap(context.Background(), unit, user, &domain.SwapOperation{
		Path:     path,
		AmountIn: uint256.NewInt(500),
		MinOut:   uint256.NewInt(450),
		Deadline: time.Now().Add(time.Minute),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientOutput)

	unit.Discard()
	require.True(t, lg.BalanceOf(user, usdc).Eq(uint256.NewInt(500)))
}

func TestUserSwapExpiredDeadline(t *testing.T) {
	c, lg, _ := newCustodian(t, 5)
	require.NoError(t, lg.SeedBalance(user, usdc, uint256.NewInt(500)))

	unit, err := lg.Begin(context.Background())
	require.NoError(t, err)
	defer unit.Discard()

	path, err := domain.NewPath(usdc, weth)
	require.NoError(t, err)

	_, err = c.UserSwap(context.Background(), unit, user, &domain.SwapOperation{
		Path:     path,
		AmountIn: uint256.NewInt(500),
		Deadline: time.Now().Add(-time.Second),
	})
	require.ErrorIs(t, err, domain.ErrDeadlineExpired)
	require.True(t, unit.Balance(user, usdc).Eq(uint256.NewInt(500)))
}

func TestUserSwapWithoutPrincipal(t *testing.T) {
	c, lg, _ := newCustodian(t, 5)

	unit, err := lg.Begin(context.Background())
	require.NoError(t, err)
	defer unit.Discard()

	path, err := domain.NewPath(usdc, weth)
	require.NoError(t, err)

	_, err = c.UserSwap(context.Background(), unit, user, &domain.SwapOperation{
		Path:     path,
		AmountIn: uint256.NewInt(500),
		Deadline: time.Now().Add(time.Minute),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestUserTransfer(t *testing.T) {
	c, lg, _ := newCustodian(t)
	require.NoError(t, lg.SeedBalance(user, usdc, uint256.NewInt(100)))
	dest := common.HexToAddress("0x00000000000000000000000000000000000000B7")

	unit, err := lg.Begin(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.UserTransfer(context.Background(), unit, user, &domain.TransferOperation{
		Asset:  usdc,
		To:     dest,
		Amount: uint256.NewInt(40),
	}))
	require.NoError(t, unit.Commit())

	require.True(t, lg.BalanceOf(user, usdc).Eq(uint256.NewInt(60)))
	require.True(t, lg.BalanceOf(dest, usdc).Eq(uint256.NewInt(40)))
}

func TestUserWithdrawFullBalance(t *testing.T) {
	c, lg, _ := newCustodian(t)
	require.NoError(t, lg.SeedBalance(user, usdc, uint256.NewInt(130)))

	unit, err := lg.Begin(context.Background())
	require.NoError(t, err)

	got, err := c.UserWithdraw(context.Background(), unit, user, &domain.WithdrawOperation{Asset: usdc})
	require.NoError(t, err)
	require.True(t, got.Eq(uint256.NewInt(130)))

	events := unit.Events()
	require.NoError(t, unit.Commit())
	require.True(t, lg.BalanceOf(user, usdc).IsZero())

	require.Len(t, events, 1)
	wd, ok := events[0].(domain.WithdrawalEvent)
	require.True(t, ok)
	require.Equal(t, user, wd.To)
	require.Equal(t, "130", wd.Amount)
}

func TestUserWithdrawPartial(t *testing.T) {
	c, lg, _ := newCustodian(t)
	require.NoError(t, lg.SeedBalance(user, usdc, uint256.NewInt(130)))

	unit, err := lg.Begin(context.Background())
	require.NoError(t, err)

	got, err := c.UserWithdraw(context.Background(), unit, user, &domain.WithdrawOperation{
		Asset:  usdc,
		Amount: uint256.NewInt(30),
	})
	require.NoError(t, err)
	require.True(t, got.Eq(uint256.NewInt(30)))
	require.NoError(t, unit.Commit())
	require.True(t, lg.BalanceOf(user, usdc).Eq(uint256.NewInt(100)))
}
