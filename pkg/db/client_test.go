package db

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopledger-backend/pkg/config"
	"github.com/angelmondragon/shopledger-backend/pkg/logger"
)

type ledgerRow struct {
	ID  int
	SKU string `gorm:"uniqueIndex:uq_ledger_rows_sku"`
}

func openMemory(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	pool, err := conn.DB()
	require.NoError(t, err)
	pool.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = pool.Close() })
	require.NoError(t, conn.AutoMigrate(&ledgerRow{}))
	return conn
}

func countRows(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&ledgerRow{}).Count(&n).Error)
	return n
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	conn := openMemory(t)
	client := FromConn(conn)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&ledgerRow{SKU: "tee-m"}).Error
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, countRows(t, conn))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	conn := openMemory(t)
	client := FromConn(conn)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&ledgerRow{SKU: "tee-l"}).Error)
		return errors.New("insufficient stock")
	})
	require.EqualError(t, err, "insufficient stock")
	assert.Zero(t, countRows(t, conn))
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	conn := openMemory(t)
	client := FromConn(conn)

	assert.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(&ledgerRow{SKU: "mug"}).Error)
			panic("boom")
		})
	})
	assert.Zero(t, countRows(t, conn))
}

func TestPingAndHandle(t *testing.T) {
	conn := openMemory(t)
	client := FromConn(conn)
	assert.Same(t, conn, client.DB())
	assert.NoError(t, client.Ping(context.Background()))
}

func TestNewRequiresDSN(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{}, nil)
	require.ErrorIs(t, err, errNoDSN)
}

func TestIsUniqueViolationOnSQLite(t *testing.T) {
	conn := openMemory(t)
	require.NoError(t, conn.Create(&ledgerRow{SKU: "cap"}).Error)

	err := conn.Create(&ledgerRow{SKU: "cap"}).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err, ""))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))
}

func TestQueryLoggerReportsSlowStatements(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{Output: buf, Format: logger.FormatJSON})
	ql := newQueryLogger(logg, time.Millisecond)

	ql.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) {
		return "SELECT 1", 1
	}, nil)
	assert.Contains(t, buf.String(), "db.slow_query")

	buf.Reset()
	ql.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT * FROM orders", 0
	}, gorm.ErrRecordNotFound)
	assert.Zero(t, buf.Len())
}
