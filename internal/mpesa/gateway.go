package mpesa

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
)

// ErrGateway wraps provider-side failures so handlers can map them to the
// gateway error class.
var ErrGateway = errors.New("payment gateway error")

// ChargeInput captures the data needed to initiate a customer charge.
type ChargeInput struct {
	Phone     string
	Amount    int64
	Reference string
}

// ChargeResult is the provider response for an initiated charge.
type ChargeResult struct {
	Reference     string
	TransactionID string
	// Raw carries the provider payload verbatim for the ledger record.
	Raw map[string]any
}

// Gateway abstracts the mobile-money provider. The ledger only ever sees an
// opaque initiate-charge call.
type Gateway interface {
	Charge(ctx context.Context, input ChargeInput) (ChargeResult, error)
}

// NewReference produces a 9 digit numeric reference with no repeated digits,
// matching the provider's reference format.
func NewReference() string {
	digits := []byte("0123456789")
	rand.Shuffle(len(digits), func(i, j int) {
		digits[i], digits[j] = digits[j], digits[i]
	})
	return string(digits[:9])
}

// NormalizePhone strips formatting and the 258 country prefix, leaving the
// bare subscriber number the provider expects.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "258") && len(digits) > 9 {
		digits = digits[3:]
	}
	return digits
}

// StaticGateway approves every charge with a synthetic transaction id. Used in
// tests and development, mirroring the shape of the live client.
type StaticGateway struct{}

// Charge approves the request.
func (StaticGateway) Charge(_ context.Context, input ChargeInput) (ChargeResult, error) {
	ref := input.Reference
	if ref == "" {
		ref = NewReference()
	}
	return ChargeResult{
		Reference:     ref,
		TransactionID: ref,
		Raw:           map[string]any{"output_ResponseCode": "INS-0", "output_ResponseDesc": "Request processed successfully"},
	}, nil
}

// FailingGateway rejects every charge. Test double for the failure path.
type FailingGateway struct {
	Err error
}

// Charge returns the configured error.
func (g FailingGateway) Charge(_ context.Context, _ ChargeInput) (ChargeResult, error) {
	if g.Err != nil {
		return ChargeResult{}, g.Err
	}
	return ChargeResult{}, ErrGateway
}
