package payments

import (
	"context"
	"strings"
)

// IntentStatus mirrors the gateway's payment intent lifecycle.
type IntentStatus string

const (
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentProcessing            IntentStatus = "processing"
	IntentRequiresCapture       IntentStatus = "requires_capture"
	IntentSucceeded             IntentStatus = "succeeded"
	IntentCanceled              IntentStatus = "canceled"
)

// Intent is the gateway-neutral view of a payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	AmountCents  int
	Currency     string
	Status       IntentStatus
	Metadata     map[string]string
}

// Refund is the gateway-neutral view of a refund.
type Refund struct {
	ID          string
	AmountCents int
	Status      string
}

// Gateway is the payment provider surface checkout depends on.
type Gateway interface {
	CreateIntent(ctx context.Context, amountCents int, currency string, metadata map[string]string) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
	CaptureIntent(ctx context.Context, id string) (*Intent, error)
	CancelIntent(ctx context.Context, id string) (*Intent, error)
	// CreateRefund refunds amountCents of the intent, or all of it when nil.
	CreateRefund(ctx context.Context, intentID string, amountCents *int) (*Refund, error)
}

const (
	demoIntentPrefix = "pi_demo_"
	testIntentPrefix = "pi_test_"
)

// IsDemoHandle reports whether id was minted by the demo gateway or a test
// harness rather than a real provider.
func IsDemoHandle(id string) bool {
	id = strings.TrimSpace(id)
	return strings.HasPrefix(id, demoIntentPrefix) || strings.HasPrefix(id, testIntentPrefix)
}
