package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/apexarb/arbengine/internal/domain"
)

// ReceiptGetter retrieves stored dispatch receipts by payload digest.
type ReceiptGetter interface {
	Get(ctx context.Context, digest string) (domain.DispatchReceipt, error)
}

// ReceiptHandler serves receipt lookups for previously relayed intents.
type ReceiptHandler struct {
	receipts ReceiptGetter
	logger   *slog.Logger
}

// NewReceiptHandler creates a ReceiptHandler backed by the given store.
func NewReceiptHandler(receipts ReceiptGetter, logger *slog.Logger) *ReceiptHandler {
	return &ReceiptHandler{receipts: receipts, logger: logger}
}

// GetReceipt responds with the dispatch receipt stored under a payload
// digest, or 404 once it has expired.
// GET /api/receipts/{digest}
func (h *ReceiptHandler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	digest := r.PathValue("digest")
	if digest == "" {
		writeError(w, http.StatusBadRequest, "missing receipt digest")
		return
	}

	receipt, err := h.receipts.Get(r.Context(), digest)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "receipt not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get receipt failed",
			slog.String("digest", digest),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get receipt")
		return
	}

	writeJSON(w, http.StatusOK, newReceiptResponse(receipt))
}
