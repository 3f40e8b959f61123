package outbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopledger-backend/pkg/db/models"
	"github.com/angelmondragon/shopledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopledger-backend/pkg/errors"
)

func newDLQTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := newTestDB(t)
	require.NoError(t, db.AutoMigrate(&models.OutboxDLQ{}))
	return db
}

func parkEvent(t *testing.T, db *gorm.DB, repo *DLQRepository, reason enums.OutboxDLQErrorReason, failedAt time.Time) models.OutboxEvent {
	t.Helper()
	msg := "boom"
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventLowStockAlert,
		AggregateType: enums.AggregateStockItem,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1}`),
		AttemptCount:  5,
		LastError:     &msg,
	}
	require.NoError(t, db.Create(&row).Error)
	entry := NewDLQEntry(row, reason, errors.New(msg))
	entry.FailedAt = failedAt
	require.NoError(t, repo.InsertTx(db, entry))
	return row
}

func TestDLQInsertClipsErrorMessage(t *testing.T) {
	db := newDLQTestDB(t)
	repo := NewDLQRepository(db)

	row := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderConfirmed, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`)}
	entry := NewDLQEntry(row, enums.OutboxDLQReasonMaxAttempts, errors.New(strings.Repeat("x", 2000)))
	require.NoError(t, repo.InsertTx(db, entry))

	rows, err := repo.List(context.Background(), DeadLetterFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].ErrorMessage)
	assert.Len(t, *rows[0].ErrorMessage, maxDLQErrorLen)
	assert.Equal(t, row.ID, rows[0].EventID)
}

func TestDLQInsertRejectsUnknownReason(t *testing.T) {
	db := newDLQTestDB(t)
	repo := NewDLQRepository(db)
	entry := NewDLQEntry(models.OutboxEvent{ID: uuid.New()}, enums.OutboxDLQErrorReason("nope"), nil)
	assert.Error(t, repo.InsertTx(db, entry))
	assert.Error(t, repo.InsertTx(nil, entry))
}

func TestDLQListFiltersByReasonNewestFirst(t *testing.T) {
	db := newDLQTestDB(t)
	repo := NewDLQRepository(db)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	older := parkEvent(t, db, repo, enums.OutboxDLQReasonMaxAttempts, base)
	newer := parkEvent(t, db, repo, enums.OutboxDLQReasonMaxAttempts, base.Add(time.Minute))
	parkEvent(t, db, repo, enums.OutboxDLQReasonUnroutable, base.Add(2*time.Minute))

	reason := enums.OutboxDLQReasonMaxAttempts
	rows, err := repo.List(context.Background(), DeadLetterFilter{Reason: &reason})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, newer.ID, rows[0].EventID)
	assert.Equal(t, older.ID, rows[1].EventID)

	all, err := repo.List(context.Background(), DeadLetterFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	bogus := enums.OutboxDLQErrorReason("bogus")
	_, err = repo.List(context.Background(), DeadLetterFilter{Reason: &bogus})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDLQRequeueResetsRowAndClearsEntry(t *testing.T) {
	db := newDLQTestDB(t)
	repo := NewDLQRepository(db)
	row := parkEvent(t, db, repo, enums.OutboxDLQReasonMaxAttempts, time.Now().UTC())

	requeued, err := repo.Requeue(context.Background(), row.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, requeued.AttemptCount)
	assert.Nil(t, requeued.LastError)

	var stored models.OutboxEvent
	require.NoError(t, db.First(&stored, "id = ?", row.ID).Error)
	assert.Equal(t, 0, stored.AttemptCount)
	assert.Nil(t, stored.LastError)
	assert.True(t, stored.Pending())

	rows, err := repo.List(context.Background(), DeadLetterFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = repo.Requeue(context.Background(), row.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDLQRequeueRefusesPublishedRow(t *testing.T) {
	db := newDLQTestDB(t)
	repo := NewDLQRepository(db)
	row := parkEvent(t, db, repo, enums.OutboxDLQReasonNonRetryable, time.Now().UTC())
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("id = ?", row.ID).Update("published_at", time.Now().UTC()).Error)

	_, err := repo.Requeue(context.Background(), row.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	rows, err := repo.List(context.Background(), DeadLetterFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
