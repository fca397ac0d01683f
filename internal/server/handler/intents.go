package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/apexarb/arbengine/internal/domain"
)

// IntentDispatcher defines the engine surface the intent handler requires.
type IntentDispatcher interface {
	SubmitIntent(ctx context.Context, intent domain.AuthorizedIntent, submitter string) (domain.DispatchReceipt, error)
}

// ReceiptPutter persists dispatch receipts for later polling.
type ReceiptPutter interface {
	Put(ctx context.Context, receipt domain.DispatchReceipt) error
}

// RejectionObserver counts rejected intents by reason.
type RejectionObserver interface {
	ObserveRejection(reason string)
}

// IntentHandler serves the signed-intent relay endpoint.
type IntentHandler struct {
	runner     IntentDispatcher
	receipts   ReceiptPutter     // optional; when nil, receipts are not cached
	rejections RejectionObserver // optional
	logger     *slog.Logger
}

// NewIntentHandler creates an IntentHandler with the given dispatcher and logger.
func NewIntentHandler(runner IntentDispatcher, logger *slog.Logger) *IntentHandler {
	return &IntentHandler{runner: runner, logger: logger}
}

// WithReceiptCache sets the receipt store used to persist dispatch receipts.
func (h *IntentHandler) WithReceiptCache(p ReceiptPutter) *IntentHandler {
	h.receipts = p
	return h
}

// WithRejectionObserver sets the observer notified on rejected intents.
func (h *IntentHandler) WithRejectionObserver(o RejectionObserver) *IntentHandler {
	h.rejections = o
	return h
}

// submitIntentRequest is the wire form of a relayed signed intent. Payload and
// signature are hex strings; the signature must be the 65-byte r||s||v form.
type submitIntentRequest struct {
	Signer    string `json:"signer"`
	Target    string `json:"target"`
	Payload   string `json:"payload"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
	Submitter string `json:"submitter,omitempty"`
}

// receiptResponse is the wire form of a dispatch receipt. Output is a
// base-unit decimal string, omitted for operations with no output amount.
type receiptResponse struct {
	UnitID    string `json:"unit_id"`
	Signer    string `json:"signer"`
	Operation string `json:"operation"`
	Nonce     uint64 `json:"nonce"`
	Output    string `json:"output,omitempty"`
	Digest    string `json:"digest"`
}

func newReceiptResponse(rc domain.DispatchReceipt) receiptResponse {
	resp := receiptResponse{
		UnitID:    rc.UnitID.String(),
		Signer:    rc.Signer.Hex(),
		Operation: rc.Operation.String(),
		Nonce:     rc.Nonce,
		Digest:    rc.Digest,
	}
	if rc.Output != nil {
		resp.Output = rc.Output.Dec()
	}
	return resp
}

// SubmitIntent relays a signed intent into the engine and responds with the
// dispatch receipt.
// POST /api/intents
func (h *IntentHandler) SubmitIntent(w http.ResponseWriter, r *http.Request) {
	var req submitIntentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	intent, err := req.toIntent()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	submitter := strings.TrimSpace(req.Submitter)
	if submitter == "" {
		submitter = "api"
	}

	receipt, err := h.runner.SubmitIntent(r.Context(), intent, submitter)
	if err != nil {
		if reason := rejectionReason(err); reason != "" && h.rejections != nil {
			h.rejections.ObserveRejection(reason)
		}
		status := statusFromErr(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: intent dispatch failed",
				slog.String("signer", intent.Signer.Hex()),
				slog.Uint64("nonce", intent.Nonce),
				slog.String("error", err.Error()),
			)
			writeError(w, status, "intent dispatch failed")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	if h.receipts != nil {
		if err := h.receipts.Put(r.Context(), receipt); err != nil {
			h.logger.WarnContext(r.Context(), "handler: receipt cache put failed",
				slog.String("digest", receipt.Digest),
				slog.String("error", err.Error()),
			)
		}
	}

	writeJSON(w, http.StatusOK, newReceiptResponse(receipt))
}

func (req submitIntentRequest) toIntent() (domain.AuthorizedIntent, error) {
	if !common.IsHexAddress(req.Signer) {
		return domain.AuthorizedIntent{}, fmt.Errorf("invalid signer address %q", req.Signer)
	}
	if !common.IsHexAddress(req.Target) {
		return domain.AuthorizedIntent{}, fmt.Errorf("invalid target address %q", req.Target)
	}
	payload, err := decodeHexField("payload", req.Payload)
	if err != nil {
		return domain.AuthorizedIntent{}, err
	}
	sig, err := decodeHexField("signature", req.Signature)
	if err != nil {
		return domain.AuthorizedIntent{}, err
	}
	return domain.AuthorizedIntent{
		Signer:  common.HexToAddress(req.Signer),
		Target:  common.HexToAddress(req.Target),
		Payload: payload,
		Nonce:   req.Nonce,
		Sig:     sig,
	}, nil
}

// decodeHexField decodes a hex string field, accepting input with or without
// the 0x prefix.
func decodeHexField(name, s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("missing %s", name)
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return b, nil
}

// rejectionReason classifies authorization failures for metrics. Returns the
// empty string for errors that are not authorization rejections.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNonceRejected):
		return "nonce"
	case errors.Is(err, domain.ErrInvalidSignature):
		return "signature"
	case errors.Is(err, domain.ErrUnauthorizedCaller):
		return "unauthorized"
	default:
		return ""
	}
}
