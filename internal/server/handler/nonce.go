package handler

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// NonceSource exposes the gateway's nonce bookkeeping.
type NonceSource interface {
	NextNonce(signer common.Address) uint64
	PolicyName() string
}

// NonceHandler serves nonce lookups so signing clients can build the next
// intent without tracking state themselves.
type NonceHandler struct {
	nonces NonceSource
}

// NewNonceHandler creates a NonceHandler backed by the given source.
func NewNonceHandler(nonces NonceSource) *NonceHandler {
	return &NonceHandler{nonces: nonces}
}

// GetNonce responds with the next acceptable nonce for a signer. Under the
// set policy the value is a suggestion; any unused nonce is accepted.
// GET /api/nonce/{signer}
func (h *NonceHandler) GetNonce(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("signer")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid signer address")
		return
	}
	signer := common.HexToAddress(raw)

	writeJSON(w, http.StatusOK, map[string]any{
		"signer":     signer.Hex(),
		"next_nonce": h.nonces.NextNonce(signer),
		"policy":     h.nonces.PolicyName(),
	})
}
