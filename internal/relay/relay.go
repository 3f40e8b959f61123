package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopledger-backend/pkg/config"
	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	"github.com/angelmondragon/shopledger-backend/pkg/enums"
	"github.com/angelmondragon/shopledger-backend/pkg/logger"
	"github.com/angelmondragon/shopledger-backend/pkg/metrics"
	"github.com/angelmondragon/shopledger-backend/pkg/outbox"
	"github.com/angelmondragon/shopledger-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

// deliveryGuard dedupes deliveries across crashes between publish and commit.
type deliveryGuard interface {
	Claim(ctx context.Context, scope string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, scope string, eventID uuid.UUID) error
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetters interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// Params wires a Relay.
type Params struct {
	Config      config.OutboxConfig
	Logger      *logger.Logger
	DB          txRunner
	Broker      Broker
	Events      eventStore
	Registry    resolver
	DeadLetters deadLetters
	Guard       deliveryGuard
	Metrics     *metrics.OutboxMetrics
}

// Relay moves committed outbox rows to Pub/Sub. Each row is published at
// most once per topic while the guard remembers it, retried with backoff
// on transient failures and dead-lettered once it cannot succeed.
type Relay struct {
	logg         *logger.Logger
	db           txRunner
	broker       Broker
	events       eventStore
	registry     resolver
	dlq          deadLetters
	guard        deliveryGuard
	metrics      *metrics.OutboxMetrics
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration

	jitterMu sync.Mutex
	jitter   *rand.Rand
}

func New(params Params) (*Relay, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Broker == nil:
		return nil, errors.New("broker is required")
	case params.Events == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DeadLetters == nil:
		return nil, errors.New("dlq repository is required")
	}

	r := &Relay{
		logg:         params.Logger,
		db:           params.DB,
		broker:       params.Broker,
		events:       params.Events,
		registry:     params.Registry,
		dlq:          params.DeadLetters,
		guard:        params.Guard,
		metrics:      params.Metrics,
		batchSize:    params.Config.BatchSize,
		maxAttempts:  params.Config.MaxAttempts,
		pollInterval: time.Duration(params.Config.PollIntervalMS) * time.Millisecond,
		jitter:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.pollInterval <= 0 {
		r.pollInterval = defaultPollInterval
	}
	return r, nil
}

// Run polls until ctx ends. An empty batch waits one poll interval; a failed
// batch backs off exponentially up to maxBackoff.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := r.broker.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping failed: %w", err)
	}

	backoff := r.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		stats, err := r.processBatch(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			backoff = nextBackoff(backoff, r.pollInterval)
			if err := r.sleep(ctx, r.withJitter(backoff)); err != nil {
				return err
			}
		case stats.fetched == r.batchSize:
			backoff = r.pollInterval
		default:
			backoff = r.pollInterval
			if err := r.sleep(ctx, r.withJitter(r.pollInterval)); err != nil {
				return err
			}
		}
	}
}

type outcome int

const (
	outcomePublished outcome = iota
	outcomeDuplicate
	outcomeRetry
	outcomeDeadLettered
)

type batchStats struct {
	fetched      int
	published    int
	duplicates   int
	retried      int
	deadLettered int
}

func (s *batchStats) add(o outcome) {
	switch o {
	case outcomePublished:
		s.published++
	case outcomeDuplicate:
		s.duplicates++
	case outcomeRetry:
		s.retried++
	case outcomeDeadLettered:
		s.deadLettered++
	}
}

// processBatch locks a batch of rows and settles each one inside the same
// transaction, so a crash leaves rows unpublished rather than lost.
func (r *Relay) processBatch(ctx context.Context) (batchStats, error) {
	var stats batchStats
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.events.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		stats.fetched = len(rows)
		for _, row := range rows {
			o, err := r.deliver(ctx, tx, row)
			if err != nil {
				return err
			}
			stats.add(o)
		}
		return nil
	})
	if err == nil && stats.fetched > 0 {
		r.logg.Info(r.logg.WithFields(ctx, map[string]any{
			"fetched":       stats.fetched,
			"published":     stats.published,
			"duplicates":    stats.duplicates,
			"retried":       stats.retried,
			"dead_lettered": stats.deadLettered,
		}), "outbox batch settled")
	}
	return stats, err
}

// deliver settles one row. The returned error is reserved for bookkeeping
// failures that must abort the batch transaction.
func (r *Relay) deliver(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (outcome, error) {
	resolved, err := r.registry.Resolve(row)
	if err != nil {
		return outcomeDeadLettered, r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonUnroutable, err, r.rowFields(row, nil))
	}
	topic := resolved.Descriptor.Topic
	fields := r.rowFields(row, resolved)

	claimed, err := r.claim(ctx, topic, row.ID)
	if err != nil {
		return 0, fmt.Errorf("claim delivery %s: %w", row.ID, err)
	}
	if !claimed {
		r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox event already delivered")
		if err := r.events.MarkPublishedTx(tx, row.ID); err != nil {
			return 0, fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		return outcomeDuplicate, nil
	}

	if err := r.publish(ctx, row, resolved); err != nil {
		r.release(ctx, topic, row.ID)

		var nonRetry registry.NonRetryableError
		if errors.As(err, &nonRetry) {
			return outcomeDeadLettered, r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err, fields)
		}
		attempt := row.AttemptCount + 1
		fields["attempt_count"] = attempt
		if attempt >= r.maxAttempts {
			return outcomeDeadLettered, r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err), fields)
		}

		r.logg.Warn(r.logg.WithFields(ctx, withError(fields, err)), "outbox publish failed")
		r.metrics.IncPublishFailure(string(row.EventType))
		if err := r.events.MarkFailedTx(tx, row.ID, err); err != nil {
			return 0, fmt.Errorf("mark failure %s: %w", row.ID, err)
		}
		return outcomeRetry, nil
	}

	if err := r.events.MarkPublishedTx(tx, row.ID); err != nil {
		return 0, fmt.Errorf("mark published %s: %w", row.ID, err)
	}
	r.metrics.IncPublished(string(row.EventType))
	r.logg.Info(r.logg.WithFields(ctx, fields), "outbox event published")
	return outcomePublished, nil
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["dlq_reason"] = reason
	r.logg.Warn(r.logg.WithFields(ctx, withError(fields, cause)), "outbox event dead-lettered")

	if err := r.dlq.InsertTx(tx, outbox.NewDLQEntry(row, reason, cause)); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := r.events.MarkTerminalTx(tx, row.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	r.metrics.IncDeadLettered(string(reason))
	return nil
}

func (r *Relay) claim(ctx context.Context, topic string, id uuid.UUID) (bool, error) {
	if r.guard == nil {
		return true, nil
	}
	return r.guard.Claim(ctx, topic, id)
}

func (r *Relay) release(ctx context.Context, topic string, id uuid.UUID) {
	if r.guard == nil {
		return
	}
	if err := r.guard.Release(ctx, topic, id); err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "failed to release delivery claim")
	}
}

// publish sends the stored payload as is. Messages are ordered per
// aggregate so consumers see an order's events in commit order.
func (r *Relay) publish(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	msg := Message{
		Data:        row.Payload,
		OrderingKey: row.AggregateID.String(),
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"created_at":     row.CreatedAt.Format(time.RFC3339Nano),
		},
	}
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	return r.broker.Publish(publishCtx, resolved.Descriptor.Topic, msg)
}

func (r *Relay) rowFields(row models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	}
	if resolved != nil {
		fields["topic"] = resolved.Descriptor.Topic
		if resolved.Envelope.EventID != "" {
			fields["event_id"] = resolved.Envelope.EventID
			fields["occurred_at"] = resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
		}
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	return fields
}

func withError(fields map[string]any, err error) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["error"] = err.Error()
	return out
}

func (r *Relay) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Relay) withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	r.jitterMu.Lock()
	defer r.jitterMu.Unlock()
	return d + time.Duration(r.jitter.Int63n(int64(jitterWindow)))
}

func nextBackoff(current, base time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	if next := current * 2; next < maxBackoff {
		return next
	}
	return maxBackoff
}
