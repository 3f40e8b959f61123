package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopledger-backend/internal/checkout"
	"github.com/angelmondragon/shopledger-backend/internal/orders"
	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	"github.com/angelmondragon/shopledger-backend/pkg/enums"
)

type fakeFinder struct {
	cutoff time.Time
	orders []models.Order
}

func (f *fakeFinder) FindPendingBefore(_ context.Context, cutoff time.Time, _ int) ([]models.Order, error) {
	f.cutoff = cutoff
	return f.orders, nil
}

type fakeCanceller struct {
	inputs []checkout.CancelInput
	fail   map[uuid.UUID]error
}

func (f *fakeCanceller) Cancel(_ context.Context, input checkout.CancelInput) (*models.Order, error) {
	f.inputs = append(f.inputs, input)
	if err := f.fail[input.OrderID]; err != nil {
		return nil, err
	}
	return &models.Order{ID: input.OrderID, Status: enums.OrderStatusCancelled}, nil
}

func TestPendingOrderJobCancelsStaleOrdersAsCompensation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stale := []models.Order{
		{ID: uuid.New(), OrderNumber: "ORD-20260301-AAAAAA", Status: enums.OrderStatusPending},
		{ID: uuid.New(), OrderNumber: "ORD-20260301-BBBBBB", Status: enums.OrderStatusPending},
		{ID: uuid.New(), OrderNumber: "ORD-20260301-CCCCCC", Status: enums.OrderStatusPending},
	}
	finder := &fakeFinder{orders: stale}
	canceller := &fakeCanceller{fail: map[uuid.UUID]error{stale[1].ID: errors.New("gateway timeout")}}
	job, err := NewPendingOrderJob(PendingOrderJobParams{
		Logger:   testLogger(),
		Orders:   finder,
		Checkout: canceller,
		Clock:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewPendingOrderJob: %v", err)
	}

	err = job.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "ORD-20260301-BBBBBB") {
		t.Fatalf("expected failure for the second order, got %v", err)
	}
	if want := now.Add(-30 * time.Minute); !finder.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, finder.cutoff)
	}
	if len(canceller.inputs) != 3 {
		t.Fatalf("expected every order attempted, got %d", len(canceller.inputs))
	}
	for _, input := range canceller.inputs {
		if input.Actor != orders.SystemCompensation {
			t.Fatalf("unexpected actor %s", input.Actor.String())
		}
		if input.Reason == "" {
			t.Fatal("expected cancel reason")
		}
	}
}
