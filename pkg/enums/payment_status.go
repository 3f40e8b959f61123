package enums

import (
	"fmt"
	"slices"
)

// PaymentStatus is the money side of an order, tracked apart from fulfillment.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusCaptured   PaymentStatus = "captured"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusVoided     PaymentStatus = "voided"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// paymentMoves lists where each payment state may go next. Failed, voided
// and refunded are final.
var paymentMoves = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusAuthorized, PaymentStatusCaptured, PaymentStatusFailed},
	PaymentStatusAuthorized: {PaymentStatusCaptured, PaymentStatusVoided, PaymentStatusFailed},
	PaymentStatusCaptured:   {PaymentStatusRefunded},
	PaymentStatusFailed:     nil,
	PaymentStatusVoided:     nil,
	PaymentStatusRefunded:   nil,
}

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool {
	_, ok := paymentMoves[p]
	return ok
}

// CanBecome reports whether a payment in p may move to next.
func (p PaymentStatus) CanBecome(next PaymentStatus) bool {
	return slices.Contains(paymentMoves[p], next)
}

// HoldsFunds is true while the gateway has money reserved or taken.
func (p PaymentStatus) HoldsFunds() bool {
	return p == PaymentStatusAuthorized || p == PaymentStatusCaptured
}

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	p := PaymentStatus(value)
	if !p.IsValid() {
		return "", fmt.Errorf("invalid payment status %q", value)
	}
	return p, nil
}
