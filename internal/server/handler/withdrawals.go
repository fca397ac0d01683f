package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/holiman/uint256"

	"github.com/apexarb/arbengine/internal/domain"
	"github.com/apexarb/arbengine/internal/token"
)

// WithdrawSubmitter defines the engine surface the withdrawal handler requires.
type WithdrawSubmitter interface {
	SubmitWithdraw(ctx context.Context, cap domain.Capability, spec domain.WithdrawSpec) (*uint256.Int, error)
}

// WithdrawHandler serves owner withdrawals of accumulated engine profit.
type WithdrawHandler struct {
	runner WithdrawSubmitter
	cap    domain.Capability
	tokens *token.Registry
	logger *slog.Logger
}

// NewWithdrawHandler creates a WithdrawHandler. The capability is the token
// minted for the engine owner.
func NewWithdrawHandler(runner WithdrawSubmitter, cap domain.Capability, tokens *token.Registry, logger *slog.Logger) *WithdrawHandler {
	return &WithdrawHandler{runner: runner, cap: cap, tokens: tokens, logger: logger}
}

// submitWithdrawRequest describes one owner withdrawal. Amount is a base-unit
// decimal string; when all is true the amount is ignored and the full balance
// is withdrawn.
type submitWithdrawRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount,omitempty"`
	All    bool   `json:"all,omitempty"`
}

// SubmitWithdraw moves accumulated profit out of engine custody.
// POST /api/withdrawals
func (h *WithdrawHandler) SubmitWithdraw(w http.ResponseWriter, r *http.Request) {
	var req submitWithdrawRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	asset, err := resolveAsset(h.tokens, req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	spec := domain.WithdrawSpec{Asset: asset, All: req.All}
	if !req.All {
		amount, err := parseAmount(req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		spec.Amount = amount
	}

	withdrawn, err := h.runner.SubmitWithdraw(r.Context(), h.cap, spec)
	if err != nil {
		status := statusFromErr(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: withdrawal failed",
				slog.String("asset", req.Asset),
				slog.String("error", err.Error()),
			)
			writeError(w, status, "withdrawal failed")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	resp := map[string]any{
		"asset":  asset.Hex(),
		"symbol": h.tokens.Symbol(asset),
		"all":    req.All,
	}
	if withdrawn != nil {
		resp["amount"] = withdrawn.Dec()
	}
	writeJSON(w, http.StatusOK, resp)
}
