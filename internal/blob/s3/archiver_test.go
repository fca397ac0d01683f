package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/apexarb/arbengine/internal/domain"
	"github.com/apexarb/arbengine/internal/store/memory"
)

// fakeWriter records Put calls in memory.
type fakeWriter struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (f *fakeWriter) Put(_ context.Context, key string, body []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.objects[key] = append([]byte(nil), body...)
	f.types[key] = contentType
	return nil
}

func (f *fakeWriter) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.objects))
	for k := range f.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedJournal(t *testing.T, store *memory.Store, n int, at time.Time) []domain.JournalRecord {
	t.Helper()
	recs := make([]domain.JournalRecord, n)
	for i := range recs {
		recs[i] = domain.JournalRecord{
			UnitID:  uuid.New(),
			Seq:     i,
			Kind:    "loan_executed",
			Payload: []byte(fmt.Sprintf(`{"seq":%d}`, i)),
			At:      at.Add(time.Duration(i) * time.Second),
		}
	}
	require.NoError(t, store.Append(context.Background(), recs))
	return recs
}

func TestArchiverDrainsInBatches(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	writer := newFakeWriter()

	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	seedJournal(t, store, 5, at)

	arch := NewArchiver(writer, store, "journal", 2, testLogger())

	total, err := arch.RunOnce(ctx, at.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 5, total)

	// Batches of 2, 2, 1 with ids 1..5 and the day partition of the oldest
	// record in each batch.
	require.Equal(t, []string{
		"journal/2026/03/14/000000000001-000000000002.jsonl",
		"journal/2026/03/14/000000000003-000000000004.jsonl",
		"journal/2026/03/14/000000000005-000000000005.jsonl",
	}, writer.keys())

	for _, key := range writer.keys() {
		require.Equal(t, "application/x-ndjson", writer.types[key])
	}

	// Everything was marked archived.
	left, err := store.ListUnarchived(ctx, at.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Empty(t, left)

	// A second run finds nothing.
	total, err = arch.RunOnce(ctx, at.Add(time.Hour))
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestArchiverSegmentContent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	writer := newFakeWriter()

	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	recs := seedJournal(t, store, 2, at)

	arch := NewArchiver(writer, store, "journal/", 10, testLogger())

	_, err := arch.RunOnce(ctx, at.Add(time.Hour))
	require.NoError(t, err)

	keys := writer.keys()
	require.Len(t, keys, 1)

	lines := bytes.Split(bytes.TrimRight(writer.objects[keys[0]], "\n"), []byte("\n"))
	require.Len(t, lines, 2)

	var line segmentLine
	require.NoError(t, json.Unmarshal(lines[0], &line))
	require.Equal(t, int64(1), line.ID)
	require.Equal(t, recs[0].UnitID, line.UnitID)
	require.Equal(t, "loan_executed", line.Kind)
	require.JSONEq(t, `{"seq":0}`, string(line.Payload))
	require.True(t, line.At.Equal(at))
}

func TestArchiverHonorsCutoff(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	writer := newFakeWriter()

	old := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	seedJournal(t, store, 1, old)
	seedJournal(t, store, 1, old.Add(48*time.Hour))

	arch := NewArchiver(writer, store, "journal", 10, testLogger())

	total, err := arch.RunOnce(ctx, old.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, total)

	// The future record is still waiting.
	left, err := store.ListUnarchived(ctx, old.Add(72*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	require.Equal(t, int64(2), left[0].ID)
}

func TestArchiverUploadFailureKeepsRecords(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	writer := newFakeWriter()
	writer.err = errors.New("bucket gone")

	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	seedJournal(t, store, 3, at)

	arch := NewArchiver(writer, store, "journal", 10, testLogger())

	total, err := arch.RunOnce(ctx, at.Add(time.Hour))
	require.Error(t, err)
	require.Zero(t, total)

	// Nothing was marked archived, so a later run can retry.
	left, err := store.ListUnarchived(ctx, at.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, left, 3)
}
