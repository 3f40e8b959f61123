package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/shopledger-backend/pkg/logger"
)

const defaultSweepBatch = 200

type sessionSweeper interface {
	SweepExpiredSessions(ctx context.Context, now time.Time, limit int) (int, error)
}

// SessionSweepJobParams configure the abandoned checkout sweep.
type SessionSweepJobParams struct {
	Logger    *logger.Logger
	Checkout  sessionSweeper
	BatchSize int
	Clock     func() time.Time
}

// NewSessionSweepJob drains the checkout session expiry index in batches,
// cancelling the payment intents nobody confirmed.
func NewSessionSweepJob(params SessionSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Checkout == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &sessionSweepJob{logg: params.Logger, checkout: params.Checkout, batch: batch, now: now}, nil
}

type sessionSweepJob struct {
	logg     *logger.Logger
	checkout sessionSweeper
	batch    int
	now      func() time.Time
}

func (j *sessionSweepJob) Name() string { return "checkout-session-sweep" }

func (j *sessionSweepJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	total := 0
	for {
		swept, err := j.checkout.SweepExpiredSessions(ctx, now, j.batch)
		total += swept
		if err != nil {
			return fmt.Errorf("sweep checkout sessions: %w", err)
		}
		// a short batch means the index holds nothing else that is due
		if swept < j.batch || ctx.Err() != nil {
			break
		}
	}
	j.logg.Info(j.logg.WithField(ctx, "swept", total), "checkout session sweep complete")
	return nil
}
