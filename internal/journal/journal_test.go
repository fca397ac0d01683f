package journal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/apexarb/arbengine/internal/domain"
)

type memStore struct {
	recs []domain.JournalRecord
	fail error
}

func (s *memStore) Append(ctx context.Context, recs []domain.JournalRecord) error {
	if s.fail != nil {
		return s.fail
	}
	s.recs = append(s.recs, recs...)
	return nil
}

func (s *memStore) ListUnarchived(ctx context.Context, before time.Time, limit int) ([]domain.JournalRecord, error) {
	return nil, nil
}

func (s *memStore) MarkArchived(ctx context.Context, ids []int64) error { return nil }

type memBus struct {
	payloads [][]byte
	channel  string
}

func (b *memBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.channel = channel
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *memBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, nil
}

type memNotifier struct{ kinds []string }

func (n *memNotifier) NotifyEvent(ctx context.Context, ev domain.Event) {
	n.kinds = append(n.kinds, ev.EventKind())
}

type memObserver struct{ kinds []string }

func (o *memObserver) ObserveEvent(kind string) { o.kinds = append(o.kinds, kind) }

func TestRecordFansOut(t *testing.T) {
	st := &memStore{}
	bus := &memBus{}
	notif := &memNotifier{}
	obs := &memObserver{}

	j := New(slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithStore(st), WithBus(bus, "arbd:events"), WithNotifier(notif), WithObserver(obs))

	unitID := uuid.New()
	asset := common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	j.Record(context.Background(), unitID, []domain.Event{
		domain.HopSwappedEvent{From: asset, To: asset, AmountIn: "1", AmountOut: "2"},
		domain.LoanExecutedEvent{Asset: asset, Amount: "10000", Profit: "41"},
	})

	require.Len(t, st.recs, 2)
	require.Equal(t, unitID, st.recs[0].UnitID)
	require.Equal(t, 0, st.recs[0].Seq)
	require.Equal(t, 1, st.recs[1].Seq)
	require.Equal(t, domain.EventLoanExecuted, st.recs[1].Kind)

	require.Equal(t, "arbd:events", bus.channel)
	require.Len(t, bus.payloads, 2)
	var env Envelope
	require.NoError(t, json.Unmarshal(bus.payloads[1], &env))
	require.Equal(t, domain.EventLoanExecuted, env.Kind)
	require.Equal(t, unitID.String(), env.UnitID)

	var body map[string]any
	require.NoError(t, json.Unmarshal(env.Event, &body))
	require.Equal(t, "41", body["profit"])

	require.Equal(t, []string{domain.EventHopSwapped, domain.EventLoanExecuted}, notif.kinds)
	require.Equal(t, []string{domain.EventHopSwapped, domain.EventLoanExecuted}, obs.kinds)
}

func TestRecordSurvivesStoreFailure(t *testing.T) {
	st := &memStore{fail: errors.New("down")}
	j := New(slog.New(slog.NewTextHandler(io.Discard, nil)), WithStore(st))

	j.Record(context.Background(), uuid.New(), []domain.Event{
		domain.ArbitrageFailedEvent{Reason: "shortfall"},
	})
	require.Empty(t, st.recs)
}

func TestRecordSkipsEmpty(t *testing.T) {
	st := &memStore{}
	j := New(slog.New(slog.NewTextHandler(io.Discard, nil)), WithStore(st))
	j.Record(context.Background(), uuid.New(), nil)
	require.Empty(t, st.recs)
}
