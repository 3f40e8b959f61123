package payments

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

// DemoGateway is an in-process gateway used when no provider key is
// configured outside production. Intents succeed immediately unless the
// gateway was built with authorize-only mode.
type DemoGateway struct {
	mu            sync.Mutex
	intents       map[string]*Intent
	refunds       int
	authorizeOnly bool
}

// NewDemoGateway builds an empty demo gateway.
func NewDemoGateway() *DemoGateway {
	return &DemoGateway{intents: map[string]*Intent{}}
}

// AuthorizeOnly makes new intents stop at requires_capture.
func (g *DemoGateway) AuthorizeOnly(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authorizeOnly = enabled
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("demo gateway: read random: %v", err))
	}
	return hex.EncodeToString(buf)
}

func (g *DemoGateway) CreateIntent(_ context.Context, amountCents int, currency string, metadata map[string]string) (*Intent, error) {
	if amountCents < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	id := demoIntentPrefix + randomHex(12)
	status := IntentSucceeded
	if g.authorizeOnly {
		status = IntentRequiresCapture
	}
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	intent := &Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + randomHex(12),
		AmountCents:  amountCents,
		Currency:     currency,
		Status:       status,
		Metadata:     meta,
	}
	g.intents[id] = intent
	out := *intent
	return &out, nil
}

func (g *DemoGateway) lookup(id string) (*Intent, error) {
	intent, ok := g.intents[id]
	if !ok {
		return nil, fmt.Errorf("payment intent %s not found", id)
	}
	return intent, nil
}

func (g *DemoGateway) RetrieveIntent(_ context.Context, id string) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, err := g.lookup(id)
	if err != nil {
		return nil, err
	}
	out := *intent
	return &out, nil
}

func (g *DemoGateway) CaptureIntent(_ context.Context, id string) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, err := g.lookup(id)
	if err != nil {
		return nil, err
	}
	if intent.Status != IntentRequiresCapture {
		return nil, fmt.Errorf("payment intent %s cannot be captured in status %s", id, intent.Status)
	}
	intent.Status = IntentSucceeded
	out := *intent
	return &out, nil
}

func (g *DemoGateway) CancelIntent(_ context.Context, id string) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, err := g.lookup(id)
	if err != nil {
		return nil, err
	}
	if intent.Status == IntentSucceeded {
		return nil, fmt.Errorf("payment intent %s already succeeded", id)
	}
	intent.Status = IntentCanceled
	out := *intent
	return &out, nil
}

func (g *DemoGateway) CreateRefund(_ context.Context, intentID string, amountCents *int) (*Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, err := g.lookup(intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status != IntentSucceeded {
		return nil, fmt.Errorf("payment intent %s has no captured funds", intentID)
	}
	amount := intent.AmountCents
	if amountCents != nil {
		if *amountCents <= 0 || *amountCents > intent.AmountCents {
			return nil, fmt.Errorf("refund amount out of range")
		}
		amount = *amountCents
	}
	g.refunds++
	return &Refund{
		ID:          fmt.Sprintf("re_demo_%s", randomHex(8)),
		AmountCents: amount,
		Status:      "succeeded",
	}, nil
}

// Refunds reports how many refunds the gateway has issued.
func (g *DemoGateway) Refunds() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunds
}
