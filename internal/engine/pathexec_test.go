package engine

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/apexarb/arbengine/internal/domain"
	"github.com/apexarb/arbengine/internal/ledger"
)

func TestPathExecutorChainsHops(t *testing.T) {
	lg := ledger.New(testLogger())
	require.NoError(t, lg.SeedBalance(engineAcct, usdc, uint256.NewInt(10_000)))

	router := &stubRouter{account: routerAcct, outs: []*uint256.Int{
		uint256.NewInt(5), uint256.NewInt(10_050),
	}}
	exec := NewPathExecutor(router, engineAcct, testLogger())

	unit, err := lg.Begin(context.Background())
	require.NoError(t, err)
	defer unit.Discard()

	path, err := domain.NewPath(usdc, weth, usdc)
	require.NoError(t, err)

	final, records, err := exec.Run(context.Background(), unit, path, uint256.NewInt(10_000), nil, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.True(t, final.Eq(uint256.NewInt(10_050)))

	require.Len(t, records, 2)
	require.Equal(t, usdc, records[0].From)
	require.Equal(t, weth, records[0].To)
	require.True(t, records[0].AmountIn.Eq(uint256.NewInt(10_000)))
	require.True(t, records[0].AmountOut.Eq(uint256.NewInt(5)))
	require.True(t, records[1].AmountIn.Eq(uint256.NewInt(5)))
	require.True(t, records[1].AmountOut.Eq(uint256.NewInt(10_050)))

	// Each hop's input was fully consumed through the exact approval.
	require.True(t, unit.Balance(engineAcct, usdc).Eq(uint256.NewInt(10_050)))
	require.True(t, unit.Balance(engineAcct, weth).IsZero())
	require.True(t, unit.Allowance(engineAcct, routerAcct, usdc).IsZero())
	require.True(t, unit.Allowance(engineAcct, routerAcct, weth).IsZero())

	require.Len(t, unit.Events(), 2)
}

func TestPathExecutorRejectsZeroInput(t *testing.T) {
	lg := ledger.New(testLogger())
	exec := NewPathExecutor(&stubRouter{account: routerAcct}, engineAcct, testLogger())

	unit, err := lg.Begin(context.Background())
	require.NoError(t, err)
	defer unit.Discard()

	path, err := domain.NewPath(usdc, weth)
	require.NoError(t, err)

	_, _, err = exec.Run(context.Background(), unit, path, uint256.NewInt(0), nil, time.Now())
	require.ErrorIs(t, err, domain.ErrInvalidPath)

	_, _, err = exec.Run(context.Background(), unit, path, nil, nil, time.Now())
	require.ErrorIs(t, err, domain.ErrInvalidPath)
}

func TestPathExecutorEmptyPathRejected(t *testing.T) {
	lg := ledger.New(testLogger())
	exec := NewPathExecutor(&stubRouter{account: routerAcct}, engineAcct, testLogger())

	unit, err := lg.Begin(context.Background())
	require.NoError(t, err)
	defer unit.Discard()

	_, _, err = exec.Run(context.Background(), unit, domain.SwapPath{}, uint256.NewInt(1), nil, time.Now())
	require.ErrorIs(t, err, domain.ErrInvalidPath)
}

// reentrantRouter re-enters the executor from inside a swap to prove the
// guard refuses nested runs.
type reentrantRouter struct {
	inner *stubRouter
	exec  *PathExecutor
	unit  *ledger.Unit
	got   error
}

func (r *reentrantRouter) Account() common.Address { return r.inner.Account() }

func (r *reentrantRouter) SwapExactInput(ctx context.Context, unit *ledger.Unit, amountIn, minOut *uint256.Int, path []common.Address, recipient common.Address, deadline time.Time) ([]*uint256.Int, error) {
	if r.got == nil {
		nested, err := domain.NewPath(path[0], path[len(path)-1])
		if err != nil {
			return nil, err
		}
		_, _, r.got = r.exec.Run(ctx, r.unit, nested, uint256.NewInt(1), nil, deadline)
	}
	return r.inner.SwapExactInput(ctx, unit, amountIn, minOut, path, recipient, deadline)
}

func TestPathExecutorRefusesReentry(t *testing.T) {
	lg := ledger.New(testLogger())
	require.NoError(t, lg.SeedBalance(engineAcct, usdc, uint256.NewInt(100)))

	router := &reentrantRouter{
		inner: &stubRouter{account: routerAcct, outs: []*uint256.Int{uint256.NewInt(7)}},
	}
	exec := NewPathExecutor(router, engineAcct, testLogger())
	router.exec = exec

	unit, err := lg.Begin(context.Background())
	require.NoError(t, err)
	defer unit.Discard()
	router.unit = unit

	path, err := domain.NewPath(usdc, weth)
	require.NoError(t, err)

	final, _, err := exec.Run(context.Background(), unit, path, uint256.NewInt(100), nil, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.True(t, final.Eq(uint256.NewInt(7)))
	require.ErrorIs(t, router.got, domain.ErrReentrantCall)
}
