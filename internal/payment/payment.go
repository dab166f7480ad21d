package payment

import (
	"context"
	"errors"
	"math"
)

var ErrIntentNotFound = errors.New("payment intent not found")

// IntentStatus mirrors the provider's payment intent lifecycle
type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentProcessing            IntentStatus = "processing"
	IntentSucceeded             IntentStatus = "succeeded"
	IntentCanceled              IntentStatus = "canceled"
)

// Intent is a provider-side charge the hosted card widget completes
type Intent struct {
	ID           string
	ClientSecret string
	// Amount is in minor units (cents)
	Amount   int64
	Currency string
	Status   IntentStatus
	Metadata map[string]string
}

// IntentRequest asks the provider for a new intent
type IntentRequest struct {
	Amount   float64
	Currency string
	Metadata map[string]string
}

// Provider is the external payment collaborator
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
}

// ToMinorUnits converts a decimal price to cents
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromMinorUnits converts cents to a decimal price
func FromMinorUnits(amount int64) float64 {
	return float64(amount) / 100
}
