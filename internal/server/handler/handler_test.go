package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/apexarb/arbengine/internal/domain"
	"github.com/apexarb/arbengine/internal/engine"
	"github.com/apexarb/arbengine/internal/token"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEngine stands in for the runner across all submission handlers.
type fakeEngine struct {
	receipt   domain.DispatchReceipt
	outcome   domain.ExecutionOutcome
	withdrawn *uint256.Int
	err       error

	gotIntent    domain.AuthorizedIntent
	gotSubmitter string
	gotLoan      domain.LoanRequest
	gotPlan      engine.TradePlan
	gotSpec      domain.WithdrawSpec
}

func (f *fakeEngine) SubmitIntent(ctx context.Context, intent domain.AuthorizedIntent, submitter string) (domain.DispatchReceipt, error) {
	f.gotIntent = intent
	f.gotSubmitter = submitter
	return f.receipt, f.err
}

func (f *fakeEngine) SubmitPlan(ctx context.Context, cap domain.Capability, req domain.LoanRequest, plan engine.TradePlan) (domain.ExecutionOutcome, error) {
	f.gotLoan = req
	f.gotPlan = plan
	return f.outcome, f.err
}

func (f *fakeEngine) SubmitWithdraw(ctx context.Context, cap domain.Capability, spec domain.WithdrawSpec) (*uint256.Int, error) {
	f.gotSpec = spec
	return f.withdrawn, f.err
}

type fakeReceipts struct {
	stored map[string]domain.DispatchReceipt
	putErr error
}

func newFakeReceipts() *fakeReceipts {
	return &fakeReceipts{stored: make(map[string]domain.DispatchReceipt)}
}

func (f *fakeReceipts) Put(ctx context.Context, receipt domain.DispatchReceipt) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.stored[receipt.Digest] = receipt
	return nil
}

func (f *fakeReceipts) Get(ctx context.Context, digest string) (domain.DispatchReceipt, error) {
	rc, ok := f.stored[digest]
	if !ok {
		return domain.DispatchReceipt{}, domain.ErrNotFound
	}
	return rc, nil
}

type rejectionRecorder struct {
	reasons []string
}

func (r *rejectionRecorder) ObserveRejection(reason string) {
	r.reasons = append(r.reasons, reason)
}

func postJSON(t *testing.T, h http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func mustSymbol(t *testing.T, reg *token.Registry, symbol string) common.Address {
	t.Helper()
	info, ok := reg.BySymbol(symbol)
	require.True(t, ok, "symbol %s not registered", symbol)
	return info.Address
}

func TestHealthCheckReportsComponents(t *testing.T) {
	h := NewHealthHandler(testLogger()).
		AddCheck("redis", func(ctx context.Context) error { return nil }).
		AddCheck("blob", func(ctx context.Context) error { return errors.New("bucket unreachable") })

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "degraded", body.Status)
	require.Equal(t, "ok", body.Components["redis"])
	require.Contains(t, body.Components["blob"], "bucket unreachable")
}

func TestHealthCheckAllPassing(t *testing.T) {
	h := NewHealthHandler(testLogger()).
		AddCheck("redis", func(ctx context.Context) error { return nil })

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestStatusReportsRuntime(t *testing.T) {
	h := NewStatusHandler(StatusInfo{
		Mode:         "serve",
		SettlePolicy: "lenient",
		NoncePolicy:  "counter",
		Owner:        "0x0000000000000000000000000000000000000001",
		StoreBackend: "sqlite",
	})

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "serve", body["mode"])
	require.Equal(t, "lenient", body["settle_policy"])
	require.Equal(t, "counter", body["nonce_policy"])
	require.Equal(t, "sqlite", body["store_backend"])
	require.GreaterOrEqual(t, body["uptime_seconds"].(float64), float64(0))
}

func intentBody(signer, target common.Address) map[string]any {
	return map[string]any{
		"signer":    signer.Hex(),
		"target":    target.Hex(),
		"payload":   "0x01020304",
		"nonce":     7,
		"signature": "0x" + strings.Repeat("ab", 65),
	}
}

func TestSubmitIntentDispatchesAndCaches(t *testing.T) {
	signer := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	target := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	eng := &fakeEngine{receipt: domain.DispatchReceipt{
		UnitID:    uuid.New(),
		Signer:    signer,
		Operation: domain.OpSwap,
		Nonce:     7,
		Output:    uint256.NewInt(42),
		Digest:    "0xdeadbeef",
	}}
	receipts := newFakeReceipts()
	h := NewIntentHandler(eng, testLogger()).WithReceiptCache(receipts)

	rec := postJSON(t, h.SubmitIntent, "/api/intents", intentBody(signer, target))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp receiptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, signer.Hex(), resp.Signer)
	require.Equal(t, "swap", resp.Operation)
	require.Equal(t, uint64(7), resp.Nonce)
	require.Equal(t, "42", resp.Output)
	require.Equal(t, "0xdeadbeef", resp.Digest)

	require.Equal(t, signer, eng.gotIntent.Signer)
	require.Equal(t, target, eng.gotIntent.Target)
	require.Equal(t, []byte{1, 2, 3, 4}, eng.gotIntent.Payload)
	require.Len(t, eng.gotIntent.Sig, 65)
	require.Equal(t, "api", eng.gotSubmitter)

	require.Contains(t, receipts.stored, "0xdeadbeef")
}

func TestSubmitIntentCustomSubmitter(t *testing.T) {
	signer := common.HexToAddress("0xaa")
	target := common.HexToAddress("0xbb")
	eng := &fakeEngine{}
	h := NewIntentHandler(eng, testLogger())

	body := intentBody(signer, target)
	body["submitter"] = "relayer-3"
	rec := postJSON(t, h.SubmitIntent, "/api/intents", body)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "relayer-3", eng.gotSubmitter)
}

func TestSubmitIntentRejectsBadRequest(t *testing.T) {
	h := NewIntentHandler(&fakeEngine{}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/intents", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.SubmitIntent(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := intentBody(common.HexToAddress("0xaa"), common.HexToAddress("0xbb"))
	body["signer"] = "not-an-address"
	rec = postJSON(t, h.SubmitIntent, "/api/intents", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid signer address")

	body = intentBody(common.HexToAddress("0xaa"), common.HexToAddress("0xbb"))
	body["payload"] = ""
	rec = postJSON(t, h.SubmitIntent, "/api/intents", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "missing payload")
}

func TestSubmitIntentClassifiesRejections(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		reason string
	}{
		{"nonce", domain.ErrNonceRejected, http.StatusConflict, "nonce"},
		{"signature", domain.ErrInvalidSignature, http.StatusUnauthorized, "signature"},
		{"unauthorized", domain.ErrUnauthorizedCaller, http.StatusUnauthorized, "unauthorized"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rej := &rejectionRecorder{}
			h := NewIntentHandler(&fakeEngine{err: tc.err}, testLogger()).WithRejectionObserver(rej)

			rec := postJSON(t, h.SubmitIntent, "/api/intents",
				intentBody(common.HexToAddress("0xaa"), common.HexToAddress("0xbb")))

			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, []string{tc.reason}, rej.reasons)
		})
	}
}

func TestSubmitIntentHidesInternalErrors(t *testing.T) {
	h := NewIntentHandler(&fakeEngine{err: errors.New("pgx: connection refused")}, testLogger())

	rec := postJSON(t, h.SubmitIntent, "/api/intents",
		intentBody(common.HexToAddress("0xaa"), common.HexToAddress("0xbb")))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "intent dispatch failed")
	require.NotContains(t, rec.Body.String(), "pgx")
}

func TestSubmitAttemptExecutesPlan(t *testing.T) {
	reg := token.Polygon()
	usdc := mustSymbol(t, reg, "USDC")
	weth := mustSymbol(t, reg, "WETH")
	dai := mustSymbol(t, reg, "DAI")

	unitID := uuid.New()
	eng := &fakeEngine{outcome: domain.ExecutionOutcome{
		UnitID:    unitID,
		Asset:     usdc,
		Borrowed:  uint256.NewInt(2_500_000_000),
		Profit:    uint256.NewInt(12_000_000),
		Succeeded: true,
		Hops: []domain.HopRecord{
			{From: usdc, To: weth, AmountIn: uint256.NewInt(2_500_000_000), AmountOut: uint256.NewInt(1_000)},
		},
		At: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC),
	}}
	h := NewAttemptHandler(eng, domain.NewCapability(), reg, testLogger())

	rec := postJSON(t, h.SubmitAttempt, "/api/attempts", map[string]any{
		"asset":            "USDC",
		"amount":           "2500000000",
		"path":             []string{"USDC", "WETH", dai.Hex(), "USDC"},
		"per_hop_min_out":  "100",
		"deadline_seconds": 45,
		"settle_policy":    "lenient",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, eng.gotLoan.Legs, 1)
	require.Equal(t, usdc, eng.gotLoan.Legs[0].Asset)
	require.Equal(t, "2500000000", eng.gotLoan.Legs[0].Amount.Dec())
	require.Equal(t, []common.Address{usdc, weth, dai, usdc}, eng.gotPlan.Path.Assets())
	require.Equal(t, "100", eng.gotPlan.PerHopMinOut.Dec())
	require.Equal(t, engine.SettleLenient, eng.gotPlan.Policy)
	require.WithinDuration(t, time.Now().Add(45*time.Second), eng.gotPlan.Deadline, 2*time.Second)

	var resp outcomeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, unitID.String(), resp.UnitID)
	require.Equal(t, "USDC", resp.Symbol)
	require.Equal(t, "2500000000", resp.Borrowed)
	require.Equal(t, "12000000", resp.Profit)
	require.Empty(t, resp.Deficit)
	require.True(t, resp.Succeeded)
	require.Len(t, resp.Hops, 1)
	require.Equal(t, "USDC", resp.Hops[0].From)
	require.Equal(t, "WETH", resp.Hops[0].To)
}

func TestSubmitAttemptDefaults(t *testing.T) {
	reg := token.Polygon()
	eng := &fakeEngine{outcome: domain.ExecutionOutcome{
		Asset: mustSymbol(t, reg, "USDC"), Borrowed: uint256.NewInt(1), Succeeded: true,
	}}
	h := NewAttemptHandler(eng, domain.NewCapability(), reg, testLogger())

	rec := postJSON(t, h.SubmitAttempt, "/api/attempts", map[string]any{
		"asset":  "USDC",
		"amount": "1000",
		"path":   []string{"USDC", "WETH", "USDC"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, eng.gotPlan.PerHopMinOut.IsZero())
	require.Equal(t, engine.SettleStrict, eng.gotPlan.Policy)
	require.WithinDuration(t, time.Now().Add(defaultAttemptDeadline), eng.gotPlan.Deadline, 2*time.Second)
}

func TestSubmitAttemptValidation(t *testing.T) {
	reg := token.Polygon()
	h := NewAttemptHandler(&fakeEngine{}, domain.NewCapability(), reg, testLogger())

	rec := postJSON(t, h.SubmitAttempt, "/api/attempts", map[string]any{
		"asset": "DOGE", "amount": "1", "path": []string{"USDC", "WETH"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "unknown asset")

	rec = postJSON(t, h.SubmitAttempt, "/api/attempts", map[string]any{
		"asset": "USDC", "amount": "ten", "path": []string{"USDC", "WETH"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid amount")

	rec = postJSON(t, h.SubmitAttempt, "/api/attempts", map[string]any{
		"asset": "USDC", "amount": "1", "path": []string{"USDC"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitAttemptBusinessFailure(t *testing.T) {
	reg := token.Polygon()
	h := NewAttemptHandler(&fakeEngine{err: domain.ErrInsufficientRepayment}, domain.NewCapability(), reg, testLogger())

	rec := postJSON(t, h.SubmitAttempt, "/api/attempts", map[string]any{
		"asset": "USDC", "amount": "1000", "path": []string{"USDC", "WETH", "USDC"},
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "insufficient repayment")
}

type fakeNonces struct {
	next   uint64
	policy string
	got    common.Address
}

func (f *fakeNonces) NextNonce(signer common.Address) uint64 {
	f.got = signer
	return f.next
}

func (f *fakeNonces) PolicyName() string { return f.policy }

func TestGetNonce(t *testing.T) {
	nonces := &fakeNonces{next: 12, policy: "counter"}
	h := NewNonceHandler(nonces)

	signer := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	req := httptest.NewRequest(http.MethodGet, "/api/nonce/"+signer.Hex(), nil)
	req.SetPathValue("signer", signer.Hex())
	rec := httptest.NewRecorder()
	h.GetNonce(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, signer.Hex(), body["signer"])
	require.Equal(t, float64(12), body["next_nonce"])
	require.Equal(t, "counter", body["policy"])
	require.Equal(t, signer, nonces.got)
}

func TestGetNonceRejectsBadSigner(t *testing.T) {
	h := NewNonceHandler(&fakeNonces{})

	req := httptest.NewRequest(http.MethodGet, "/api/nonce/xyz", nil)
	req.SetPathValue("signer", "xyz")
	rec := httptest.NewRecorder()
	h.GetNonce(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetReceipt(t *testing.T) {
	receipts := newFakeReceipts()
	stored := domain.DispatchReceipt{
		UnitID:    uuid.New(),
		Signer:    common.HexToAddress("0xaa"),
		Operation: domain.OpWithdraw,
		Nonce:     3,
		Output:    uint256.NewInt(99),
		Digest:    "0xfeed",
	}
	require.NoError(t, receipts.Put(context.Background(), stored))

	h := NewReceiptHandler(receipts, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/receipts/0xfeed", nil)
	req.SetPathValue("digest", "0xfeed")
	rec := httptest.NewRecorder()
	h.GetReceipt(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp receiptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "withdraw", resp.Operation)
	require.Equal(t, "99", resp.Output)

	req = httptest.NewRequest(http.MethodGet, "/api/receipts/0xmissing", nil)
	req.SetPathValue("digest", "0xmissing")
	rec = httptest.NewRecorder()
	h.GetReceipt(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitWithdraw(t *testing.T) {
	reg := token.Polygon()
	usdc := mustSymbol(t, reg, "USDC")
	eng := &fakeEngine{withdrawn: uint256.NewInt(5_000_000)}
	h := NewWithdrawHandler(eng, domain.NewCapability(), reg, testLogger())

	rec := postJSON(t, h.SubmitWithdraw, "/api/withdrawals", map[string]any{
		"asset": "USDC", "amount": "5000000",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, usdc, eng.gotSpec.Asset)
	require.False(t, eng.gotSpec.All)
	require.Equal(t, "5000000", eng.gotSpec.Amount.Dec())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "USDC", body["symbol"])
	require.Equal(t, "5000000", body["amount"])
}

func TestSubmitWithdrawAll(t *testing.T) {
	reg := token.Polygon()
	eng := &fakeEngine{withdrawn: uint256.NewInt(123)}
	h := NewWithdrawHandler(eng, domain.NewCapability(), reg, testLogger())

	rec := postJSON(t, h.SubmitWithdraw, "/api/withdrawals", map[string]any{
		"asset": "WETH", "all": true,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, eng.gotSpec.All)
	require.Nil(t, eng.gotSpec.Amount)
}

func TestSubmitWithdrawInsufficient(t *testing.T) {
	reg := token.Polygon()
	h := NewWithdrawHandler(&fakeEngine{err: domain.ErrInsufficientBalance}, domain.NewCapability(), reg, testLogger())

	rec := postJSON(t, h.SubmitWithdraw, "/api/withdrawals", map[string]any{
		"asset": "USDC", "amount": "1",
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestStatusFromErr(t *testing.T) {
	require.Equal(t, http.StatusUnauthorized, statusFromErr(domain.ErrInvalidSignature))
	require.Equal(t, http.StatusConflict, statusFromErr(domain.ErrDuplicate))
	require.Equal(t, http.StatusBadRequest, statusFromErr(domain.ErrInvalidPath))
	require.Equal(t, http.StatusNotFound, statusFromErr(domain.ErrNotFound))
	require.Equal(t, http.StatusTooManyRequests, statusFromErr(domain.ErrRateLimited))
	require.Equal(t, http.StatusUnprocessableEntity, statusFromErr(domain.ErrDeadlineExpired))
	require.Equal(t, http.StatusInternalServerError, statusFromErr(errors.New("boom")))
}
