package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func newRetryRepo() *PostgresRepository {
	return &PostgresRepository{retryDelays: []time.Duration{time.Millisecond, time.Millisecond}}
}

func TestWithRetry_RetriesSerializationFailure(t *testing.T) {
	r := newRetryRepo()

	calls := 0
	err := r.withRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("apply spin: %w", &pgconn.PgError{Code: pgerrcode.SerializationFailure})
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_StopsOnBusinessError(t *testing.T) {
	r := newRetryRepo()

	calls := 0
	err := r.withRetry(context.Background(), func() error {
		calls++
		return ErrNoSpinsRemaining
	})

	assert.ErrorIs(t, err, ErrNoSpinsRemaining)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_GivesUpAfterDelays(t *testing.T) {
	r := newRetryRepo()

	calls := 0
	err := r.withRetry(context.Background(), func() error {
		calls++
		return errors.New("read tcp: connection reset by peer")
	})

	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	r := &PostgresRepository{retryDelays: []time.Duration{time.Hour}}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.withRetry(ctx, func() error {
		calls++
		cancel()
		return &pgconn.PgError{Code: pgerrcode.DeadlockDetected}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPgErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: pgerrcode.UniqueViolation})
	fk := &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}

	assert.True(t, isUniqueViolation(unique))
	assert.False(t, isUniqueViolation(fk))
	assert.True(t, isForeignKeyViolation(fk))
	assert.False(t, isRetryable(unique))
	assert.Nil(t, nullID(0))
	assert.Equal(t, int64(5), *nullID(5))
}
