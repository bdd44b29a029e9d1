package paymcp

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// proofPaymentID extracts the payment identifier from a signed resubmit
// proof. Proofs are JWTs carrying the identifier in the "pid" claim; the
// claim is read without signature verification because the proof itself,
// not its decoded form, is what the provider verifies. Anything that is
// not a JWT yields "" and the caller falls back to the explicit
// payment_id field.
func proofPaymentID(proof string) string {
	if strings.Count(proof, ".") != 2 {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(proof, claims); err != nil {
		return ""
	}
	pid, _ := claims["pid"].(string)
	return pid
}
