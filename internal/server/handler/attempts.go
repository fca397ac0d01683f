package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/apexarb/arbengine/internal/domain"
	"github.com/apexarb/arbengine/internal/engine"
	"github.com/apexarb/arbengine/internal/token"
)

// defaultAttemptDeadline applies when the request omits deadline_seconds.
const defaultAttemptDeadline = 30 * time.Second

// PlanSubmitter defines the engine surface the attempt handler requires.
type PlanSubmitter interface {
	SubmitPlan(ctx context.Context, cap domain.Capability, req domain.LoanRequest, plan engine.TradePlan) (domain.ExecutionOutcome, error)
}

// AttemptHandler serves manual loan-attempt submission.
type AttemptHandler struct {
	runner PlanSubmitter
	cap    domain.Capability
	tokens *token.Registry
	logger *slog.Logger
}

// NewAttemptHandler creates an AttemptHandler. The capability is the token
// minted for the engine's authorized plan submitters.
func NewAttemptHandler(runner PlanSubmitter, cap domain.Capability, tokens *token.Registry, logger *slog.Logger) *AttemptHandler {
	return &AttemptHandler{runner: runner, cap: cap, tokens: tokens, logger: logger}
}

// submitAttemptRequest describes one loan attempt. Path elements and the
// asset accept either a registered token symbol or a hex address; amounts are
// base-unit decimal strings.
type submitAttemptRequest struct {
	Asset           string   `json:"asset"`
	Amount          string   `json:"amount"`
	Path            []string `json:"path"`
	PerHopMinOut    string   `json:"per_hop_min_out,omitempty"`
	DeadlineSeconds int      `json:"deadline_seconds,omitempty"`
	SettlePolicy    string   `json:"settle_policy,omitempty"`
}

// hopResponse is the wire form of one executed hop.
type hopResponse struct {
	From      string `json:"from"`
	To        string `json:"to"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
}

// outcomeResponse is the wire form of an execution outcome. Amounts are
// base-unit decimal strings; profit and deficit are mutually exclusive.
type outcomeResponse struct {
	UnitID    string        `json:"unit_id"`
	Asset     string        `json:"asset"`
	Symbol    string        `json:"symbol"`
	Borrowed  string        `json:"borrowed"`
	Profit    string        `json:"profit,omitempty"`
	Deficit   string        `json:"deficit,omitempty"`
	Succeeded bool          `json:"succeeded"`
	Reason    string        `json:"reason,omitempty"`
	Hops      []hopResponse `json:"hops"`
	At        string        `json:"at"`
}

// SubmitAttempt runs one flash-loan arbitrage attempt and responds with the
// execution outcome.
// POST /api/attempts
func (h *AttemptHandler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	var req submitAttemptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	loan, plan, err := h.buildPlan(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	outcome, err := h.runner.SubmitPlan(r.Context(), h.cap, loan, plan)
	if err != nil {
		status := statusFromErr(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: attempt failed",
				slog.String("asset", req.Asset),
				slog.String("error", err.Error()),
			)
			writeError(w, status, "attempt execution failed")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.outcomeResponse(outcome))
}

func (h *AttemptHandler) buildPlan(req submitAttemptRequest) (domain.LoanRequest, engine.TradePlan, error) {
	asset, err := resolveAsset(h.tokens, req.Asset)
	if err != nil {
		return domain.LoanRequest{}, engine.TradePlan{}, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return domain.LoanRequest{}, engine.TradePlan{}, err
	}

	assets := make([]common.Address, 0, len(req.Path))
	for _, el := range req.Path {
		a, err := resolveAsset(h.tokens, el)
		if err != nil {
			return domain.LoanRequest{}, engine.TradePlan{}, err
		}
		assets = append(assets, a)
	}
	path, err := domain.NewPath(assets...)
	if err != nil {
		return domain.LoanRequest{}, engine.TradePlan{}, err
	}

	minOut := uint256.NewInt(0)
	if req.PerHopMinOut != "" {
		minOut, err = parseAmount(req.PerHopMinOut)
		if err != nil {
			return domain.LoanRequest{}, engine.TradePlan{}, err
		}
	}

	deadline := defaultAttemptDeadline
	if req.DeadlineSeconds > 0 {
		deadline = time.Duration(req.DeadlineSeconds) * time.Second
	}

	policy := engine.SettleStrict
	if req.SettlePolicy != "" {
		policy, err = engine.ParseSettlePolicy(req.SettlePolicy)
		if err != nil {
			return domain.LoanRequest{}, engine.TradePlan{}, err
		}
	}

	loan := domain.NewLoanRequest(asset, amount)
	plan := engine.TradePlan{
		Path:         path,
		PerHopMinOut: minOut,
		Deadline:     time.Now().Add(deadline),
		Policy:       policy,
	}
	return loan, plan, nil
}

func (h *AttemptHandler) outcomeResponse(o domain.ExecutionOutcome) outcomeResponse {
	resp := outcomeResponse{
		UnitID:    o.UnitID.String(),
		Asset:     o.Asset.Hex(),
		Symbol:    h.tokens.Symbol(o.Asset),
		Succeeded: o.Succeeded,
		Reason:    o.Reason,
		Hops:      make([]hopResponse, 0, len(o.Hops)),
		At:        o.At.UTC().Format(time.RFC3339),
	}
	if o.Borrowed != nil {
		resp.Borrowed = o.Borrowed.Dec()
	}
	if o.Profit != nil && !o.Profit.IsZero() {
		resp.Profit = o.Profit.Dec()
	}
	if o.Deficit != nil && !o.Deficit.IsZero() {
		resp.Deficit = o.Deficit.Dec()
	}
	for _, hop := range o.Hops {
		resp.Hops = append(resp.Hops, hopResponse{
			From:      h.tokens.Symbol(hop.From),
			To:        h.tokens.Symbol(hop.To),
			AmountIn:  hop.AmountIn.Dec(),
			AmountOut: hop.AmountOut.Dec(),
		})
	}
	return resp
}
