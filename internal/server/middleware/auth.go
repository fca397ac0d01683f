// Package middleware holds the HTTP middleware chain of the operator server:
// authentication, CORS, request logging and rate limiting.
package middleware

import (
	"bytes"
	"crypto/subtle"
	"io"
	"net/http"
	"strings"
	"time"

	appcrypto "github.com/apexarb/arbengine/internal/crypto"
)

// maxAuthBody caps how much request body the HMAC scheme will buffer for
// signature verification.
const maxAuthBody = 1 << 20

// Credentials configures the accepted authentication schemes. Either or both
// may be set; a request passes when any configured scheme accepts it. With
// neither set, authentication is disabled.
type Credentials struct {
	// BearerToken is compared against "Authorization: Bearer <token>" or
	// the X-API-Key header.
	BearerToken string

	// HMAC verifies signed requests carrying the X-Arb-Key, X-Arb-Timestamp
	// and X-Arb-Signature headers.
	HMAC *appcrypto.RequestAuth
}

func (c Credentials) enabled() bool {
	return c.BearerToken != "" || c.HMAC != nil
}

// Auth returns middleware enforcing the configured credentials. The health
// endpoint is always reachable so probes work without secrets.
func Auth(creds Credentials) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !creds.enabled() || r.URL.Path == "/api/health" {
				next.ServeHTTP(w, r)
				return
			}

			if creds.BearerToken != "" {
				if token := extractToken(r); token != "" {
					if subtle.ConstantTimeCompare([]byte(token), []byte(creds.BearerToken)) == 1 {
						next.ServeHTTP(w, r)
						return
					}
					writeUnauthorized(w, "invalid authentication token")
					return
				}
			}

			if creds.HMAC != nil && r.Header.Get(appcrypto.HeaderAPIKey) != "" {
				if verifySignedRequest(creds.HMAC, r) {
					next.ServeHTTP(w, r)
					return
				}
				writeUnauthorized(w, "invalid request signature")
				return
			}

			writeUnauthorized(w, "missing authentication credentials")
		})
	}
}

// verifySignedRequest checks the HMAC headers against the request line and
// body. The body is buffered and restored so handlers can read it again.
func verifySignedRequest(auth *appcrypto.RequestAuth, r *http.Request) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAuthBody))
	if err != nil {
		return false
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	err = auth.Verify(
		r.Method,
		r.URL.Path,
		string(body),
		r.Header.Get(appcrypto.HeaderAPIKey),
		r.Header.Get(appcrypto.HeaderTimestamp),
		r.Header.Get(appcrypto.HeaderSignature),
		time.Now(),
		0,
	)
	return err == nil
}

// extractToken looks for a token in the Authorization header (Bearer scheme)
// or the X-API-Key header.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return ""
}

// writeUnauthorized sends a 401 with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
