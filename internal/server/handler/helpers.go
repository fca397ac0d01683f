package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/apexarb/arbengine/internal/domain"
	"github.com/apexarb/arbengine/internal/token"
)

// maxRequestBody bounds the size of any JSON request body.
const maxRequestBody = 1 << 20

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads and unmarshals the request body into v, rejecting bodies
// over maxRequestBody.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFromErr maps domain sentinel errors onto HTTP status codes. Rejected
// credentials map to 401, structural problems to 400, replay and duplicate
// submissions to 409, and business failures that were processed but did not
// settle in the caller's favor to 422.
func statusFromErr(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidSignature),
		errors.Is(err, domain.ErrUnauthorizedCaller):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNonceRejected),
		errors.Is(err, domain.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidPath),
		errors.Is(err, domain.ErrInvalidLoanRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrDeadlineExpired),
		errors.Is(err, domain.ErrInsufficientOutput),
		errors.Is(err, domain.ErrInsufficientRepayment),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientAllowance),
		errors.Is(err, domain.ErrInsufficientLiquidity),
		errors.Is(err, domain.ErrFallbackFundingInsufficient):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// resolveAsset accepts either a registered token symbol or a hex address.
func resolveAsset(tokens *token.Registry, s string) (common.Address, error) {
	if common.IsHexAddress(s) {
		return common.HexToAddress(s), nil
	}
	if tokens != nil {
		if info, ok := tokens.BySymbol(s); ok {
			return info.Address, nil
		}
	}
	return common.Address{}, fmt.Errorf("unknown asset %q", s)
}

// parseAmount parses a base-unit decimal amount string.
func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("missing amount")
	}
	n, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return n, nil
}
