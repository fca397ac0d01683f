package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/apexarb/arbengine/internal/domain"
)

// defaultBatchSize bounds how many journal records go into one segment when
// the configured batch size is unset.
const defaultBatchSize = 256

// segmentLine is the JSONL shape of one archived journal record. Payload is
// embedded as raw JSON rather than re-encoded.
type segmentLine struct {
	ID      int64           `json:"id"`
	UnitID  uuid.UUID       `json:"unit_id"`
	Seq     int             `json:"seq"`
	Kind    string          `json:"kind"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

// Archiver moves committed journal records from the primary store to object
// storage as newline-delimited JSON segments, then marks them archived.
//
// The upload happens before MarkArchived. A crash between the two re-uploads
// an identical segment to the same key on the next run, so the sequence is
// safe to retry.
type Archiver struct {
	writer    domain.BlobWriter
	journal   domain.JournalStore
	prefix    string
	batchSize int
	logger    *slog.Logger
}

// NewArchiver creates an Archiver writing segments under the given key
// prefix. A batchSize below 1 falls back to the default.
func NewArchiver(writer domain.BlobWriter, journal domain.JournalStore, prefix string, batchSize int, logger *slog.Logger) *Archiver {
	if batchSize < 1 {
		batchSize = defaultBatchSize
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Archiver{
		writer:    writer,
		journal:   journal,
		prefix:    prefix,
		batchSize: batchSize,
		logger:    logger,
	}
}

// RunOnce drains every unarchived journal record older than the cutoff,
// uploading one segment per batch. It returns the total number of records
// archived.
func (a *Archiver) RunOnce(ctx context.Context, before time.Time) (int, error) {
	total := 0
	for {
		recs, err := a.journal.ListUnarchived(ctx, before, a.batchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: list unarchived: %w", err)
		}
		if len(recs) == 0 {
			return total, nil
		}

		key := a.segmentKey(recs)
		buf, err := marshalSegment(recs)
		if err != nil {
			return total, fmt.Errorf("s3blob: marshal segment %s: %w", key, err)
		}

		if err := a.writer.Put(ctx, key, buf, "application/x-ndjson"); err != nil {
			return total, fmt.Errorf("s3blob: upload segment %s: %w", key, err)
		}

		ids := make([]int64, len(recs))
		for i, rec := range recs {
			ids[i] = rec.ID
		}
		if err := a.journal.MarkArchived(ctx, ids); err != nil {
			return total, fmt.Errorf("s3blob: mark archived %s: %w", key, err)
		}

		total += len(recs)
		a.logger.Info("archived journal segment",
			slog.String("key", key),
			slog.Int("records", len(recs)),
		)

		if len(recs) < a.batchSize {
			return total, nil
		}
	}
}

// segmentKey builds the object key for a batch, partitioned by the day of
// the oldest record and made unique by the id range:
//
//	journal/2026/03/14/000000000017-000000000140.jsonl
func (a *Archiver) segmentKey(recs []domain.JournalRecord) string {
	first := recs[0]
	last := recs[len(recs)-1]
	return fmt.Sprintf("%s%s/%012d-%012d.jsonl",
		a.prefix,
		first.At.UTC().Format("2006/01/02"),
		first.ID,
		last.ID,
	)
}

// marshalSegment serialises records as newline-delimited JSON, one compact
// line per record.
func marshalSegment(recs []domain.JournalRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range recs {
		line := segmentLine{
			ID:      rec.ID,
			UnitID:  rec.UnitID,
			Seq:     rec.Seq,
			Kind:    rec.Kind,
			At:      rec.At.UTC(),
			Payload: json.RawMessage(rec.Payload),
		}
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
