// Package x402http is the explicit HTTP integration point for the x402
// flow: a middleware that lifts the caller's payment-proof header into the
// request context, and a renderer for the 402 challenge response. Hosts
// whose transport exposes a middleware chain wrap their handler with
// Middleware at setup; nothing here reaches into host internals.
package x402http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/paymcp/paymcp-go/x402"
)

type proofKey struct{}

// Middleware copies the payment-proof header (any accepted name) into the
// request context so flow strategies can read it without touching the
// transport.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, name := range x402.ProofHeaders {
			if v := r.Header.Get(name); v != "" {
				r = r.WithContext(WithProof(r.Context(), v))
				break
			}
		}
		next.ServeHTTP(w, r)
	})
}

// WithProof binds a raw proof header value into ctx.
func WithProof(ctx context.Context, proof string) context.Context {
	return context.WithValue(ctx, proofKey{}, proof)
}

// ProofFromContext reads the proof header value bound by Middleware.
func ProofFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(proofKey{}).(string)
	return v, ok && v != ""
}

// WriteChallenge renders an x402 challenge: HTTP 402, the base64-encoded
// offer set in the challenge header, and the JSON offer set as body.
func WriteChallenge(w http.ResponseWriter, pr *x402.PaymentRequirements) error {
	encoded, err := x402.EncodeRequirements(pr)
	if err != nil {
		return err
	}
	w.Header().Set(x402.ChallengeHeader, encoded)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	return json.NewEncoder(w).Encode(pr)
}

// Render writes err as a 402 challenge when it is (or wraps) a
// PaymentRequiredError, reporting whether it handled the error.
func Render(w http.ResponseWriter, err error) bool {
	var pre *x402.PaymentRequiredError
	if !errors.As(err, &pre) {
		return false
	}
	_ = WriteChallenge(w, pre.Requirements)
	return true
}
