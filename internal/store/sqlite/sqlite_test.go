package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/apexarb/arbengine/internal/domain"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "arbd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestNonceStateRoundTrip(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	alice := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob := common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")

	require.NoError(t, st.SetCounter(ctx, alice, 3))
	require.NoError(t, st.SetCounter(ctx, alice, 4)) // overwrite
	require.NoError(t, st.MarkUsed(ctx, bob, 7))
	require.NoError(t, st.MarkUsed(ctx, bob, 2))
	require.NoError(t, st.MarkUsed(ctx, bob, 7)) // duplicate ignored

	snap, err := st.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(4), snap.Counters[alice])
	require.Equal(t, []uint64{2, 7}, snap.Used[bob])
	require.NotContains(t, snap.Counters, bob)
}

func TestNonceStateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbd.db")
	ctx := context.Background()
	alice := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	st, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st.SetCounter(ctx, alice, 9))
	require.NoError(t, st.Close())

	st, err = Open(path)
	require.NoError(t, err)
	defer st.Close()

	snap, err := st.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(9), snap.Counters[alice])
}

func TestJournalAppendListArchive(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	unit := uuid.New()
	base := time.Now().Add(-time.Hour)

	recs := []domain.JournalRecord{
		{UnitID: unit, Seq: 0, Kind: "loan_executed", Payload: []byte(`{"profit":"41"}`), At: base},
		{UnitID: unit, Seq: 1, Kind: "hop_swapped", Payload: []byte(`{"hop":0}`), At: base.Add(time.Second)},
		{UnitID: unit, Seq: 2, Kind: "withdrawal", Payload: []byte(`{}`), At: time.Now().Add(time.Hour)},
	}
	require.NoError(t, st.Append(ctx, recs))

	// The future-dated record sits past the cutoff.
	got, err := st.ListUnarchived(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "loan_executed", got[0].Kind)
	require.Equal(t, unit, got[0].UnitID)
	require.JSONEq(t, `{"profit":"41"}`, string(got[0].Payload))
	require.WithinDuration(t, base, got[0].At, time.Millisecond)

	// Archive the first record; it drops out of subsequent listings.
	require.NoError(t, st.MarkArchived(ctx, []int64{got[0].ID}))
	got, err = st.ListUnarchived(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "hop_swapped", got[0].Kind)

	// Limit applies after filtering.
	got, err = st.ListUnarchived(ctx, time.Now().Add(2*time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestAppendEmptyIsNoop(t *testing.T) {
	st := openStore(t)
	require.NoError(t, st.Append(context.Background(), nil))
}

func TestSecondOpenIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbd.db")
	st, err := Open(path)
	require.NoError(t, err)
	defer st.Close()

	_, err = Open(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "locked by another process")
}
