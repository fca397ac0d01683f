package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"

	"github.com/apexarb/arbengine/internal/domain"
)

// defaultReceiptTTL bounds how long a dispatched receipt stays queryable.
const defaultReceiptTTL = 24 * time.Hour

// receiptJSON is the cached wire form of a dispatch receipt. The output is a
// decimal string to survive JSON number precision limits.
type receiptJSON struct {
	UnitID string `json:"unit_id"`
	Signer string `json:"signer"`
	Op     uint8  `json:"op"`
	Nonce  uint64 `json:"nonce"`
	Output string `json:"output,omitempty"`
	Digest string `json:"digest"`
}

// ReceiptCache stores dispatch receipts by payload digest so API clients can
// poll the outcome of a relayed intent after the synchronous response is
// gone.
type ReceiptCache struct {
	client *Client
	rdb    *redis.Client
	ttl    time.Duration
}

// NewReceiptCache creates a ReceiptCache backed by the given Client. A zero
// ttl uses the default of 24 hours.
func NewReceiptCache(c *Client, ttl time.Duration) *ReceiptCache {
	if ttl <= 0 {
		ttl = defaultReceiptTTL
	}
	return &ReceiptCache{client: c, rdb: c.Underlying(), ttl: ttl}
}

func (rc *ReceiptCache) receiptKey(digest string) string {
	return rc.client.Prefixed("receipt:" + digest)
}

// Put stores a receipt under its payload digest.
func (rc *ReceiptCache) Put(ctx context.Context, receipt domain.DispatchReceipt) error {
	rec := receiptJSON{
		UnitID: receipt.UnitID.String(),
		Signer: receipt.Signer.Hex(),
		Op:     uint8(receipt.Operation),
		Nonce:  receipt.Nonce,
		Digest: receipt.Digest,
	}
	if receipt.Output != nil {
		rec.Output = receipt.Output.Dec()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis: marshal receipt %s: %w", receipt.Digest, err)
	}
	if err := rc.rdb.Set(ctx, rc.receiptKey(receipt.Digest), data, rc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: put receipt %s: %w", receipt.Digest, err)
	}
	return nil
}

// Get retrieves the receipt stored under digest. It returns domain.ErrNotFound
// when no receipt exists or it has expired.
func (rc *ReceiptCache) Get(ctx context.Context, digest string) (domain.DispatchReceipt, error) {
	data, err := rc.rdb.Get(ctx, rc.receiptKey(digest)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.DispatchReceipt{}, domain.ErrNotFound
		}
		return domain.DispatchReceipt{}, fmt.Errorf("redis: get receipt %s: %w", digest, err)
	}

	var rec receiptJSON
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.DispatchReceipt{}, fmt.Errorf("redis: unmarshal receipt %s: %w", digest, err)
	}

	unitID, err := uuid.Parse(rec.UnitID)
	if err != nil {
		return domain.DispatchReceipt{}, fmt.Errorf("redis: parse receipt unit id: %w", err)
	}

	out := domain.DispatchReceipt{
		UnitID:    unitID,
		Signer:    common.HexToAddress(rec.Signer),
		Operation: domain.OpKind(rec.Op),
		Nonce:     rec.Nonce,
		Digest:    rec.Digest,
	}
	if rec.Output != "" {
		v, err := uint256.FromDecimal(rec.Output)
		if err != nil {
			return domain.DispatchReceipt{}, fmt.Errorf("redis: parse receipt output: %w", err)
		}
		out.Output = v
	}

	return out, nil
}
