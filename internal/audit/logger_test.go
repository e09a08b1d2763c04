package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDB implements database.Querier for testing.
type mockDB struct {
	mu      sync.Mutex
	batches int
	args    int
}

func (m *mockDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	m.args += len(args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (m *mockDB) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockDB) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return nil
}

func (m *mockDB) counts() (batches, events int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches, m.args / 6
}

func testEvent() Event {
	actor := int64(1)
	return Event{ActorID: &actor, Action: ActionQuestionCreated, Source: SourceAPI}
}

func TestAsyncLogger_FlushesOnInterval(t *testing.T) {
	db := &mockDB{}
	logger := NewAsyncLogger(db, NewStore(), LoggerConfig{
		BufferSize:    100,
		BatchSize:     10,
		FlushInterval: 20 * time.Millisecond,
	})
	logger.Start()

	logger.Log(context.Background(), testEvent())

	assert.Eventually(t, func() bool {
		batches, _ := db.counts()
		return batches >= 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, logger.Close())
}

func TestAsyncLogger_FlushesOnBatchSize(t *testing.T) {
	db := &mockDB{}
	logger := NewAsyncLogger(db, NewStore(), LoggerConfig{
		BufferSize:    100,
		BatchSize:     3,
		FlushInterval: time.Hour,
	})
	logger.Start()

	for i := 0; i < 3; i++ {
		logger.Log(context.Background(), testEvent())
	}

	assert.Eventually(t, func() bool {
		_, events := db.counts()
		return events == 3
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, logger.Close())
}

func TestAsyncLogger_RunStopsOnContextAndFlushes(t *testing.T) {
	db := &mockDB{}
	logger := NewAsyncLogger(db, NewStore(), LoggerConfig{FlushInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- logger.Run(ctx) }()

	logger.Log(context.Background(), testEvent())
	logger.Log(context.Background(), testEvent())
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	_, events := db.counts()
	assert.Equal(t, 2, events)
}

func TestAsyncLogger_CloseWithoutRunFlushes(t *testing.T) {
	db := &mockDB{}
	logger := NewAsyncLogger(db, NewStore(), LoggerConfig{})

	logger.Log(context.Background(), testEvent())
	require.NoError(t, logger.Close())

	_, events := db.counts()
	assert.Equal(t, 1, events)
}

func TestAsyncLogger_DropsWhenBufferFull(t *testing.T) {
	db := &mockDB{}
	logger := NewAsyncLogger(db, NewStore(), LoggerConfig{
		BufferSize:    2,
		BatchSize:     100,
		FlushInterval: time.Hour,
	})

	for i := 0; i < 10; i++ {
		logger.Log(context.Background(), testEvent())
	}

	assert.Equal(t, int64(8), logger.Dropped())
	require.NoError(t, logger.Close())

	_, events := db.counts()
	assert.Equal(t, 2, events)
}
