package redis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dukex/flowguard/pkg/models"
	"github.com/dukex/flowguard/pkg/persistence"
	"github.com/dukex/flowguard/pkg/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*ExecutionStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store := NewExecutionStoreWithClient(client, logger, "test:")
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	return store, mr
}

func TestExecutionStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	execution := testutil.CreateTestExecution()
	require.NoError(t, store.SaveExecution(ctx, execution))

	assert.True(t, mr.Exists("test:execution:exec-1"))
	assert.True(t, mr.Exists("test:executions"))
	assert.True(t, mr.Exists("test:executions:"+testutil.TestWorkflowID))

	loaded, err := store.ExecutionByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, execution.WorkflowID, loaded.WorkflowID)
	assert.Len(t, loaded.NodeRuns, 2)
	assert.Len(t, loaded.NodeRuns[1].Items, 3)

	_, err = store.ExecutionByID(ctx, "missing")
	assert.True(t, persistence.IsExecutionNotFound(err))

	assert.ErrorIs(t, store.SaveExecution(ctx, testutil.CreateTestExecution(testutil.WithExecutionID(""))), persistence.ErrInvalidID)
}

func TestExecutionStore_Executions(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := range 150 {
		status := models.ExecutionStatusSuccess
		if i%10 == 0 {
			status = models.ExecutionStatusError
		}

		require.NoError(t, store.SaveExecution(ctx, testutil.CreateTestExecution(
			testutil.WithExecutionID(fmt.Sprintf("exec-%03d", i)),
			testutil.WithExecutionStatus(status),
			testutil.WithStartedAt(base.Add(time.Duration(i)*time.Second)),
		)))
	}

	require.NoError(t, store.SaveExecution(ctx, testutil.CreateTestExecution(
		testutil.WithExecutionID("exec-other"),
		testutil.WithExecutionWorkflow("wf-2"),
		testutil.WithStartedAt(base.Add(time.Hour)),
	)))

	latest, err := store.Executions(ctx, persistence.ExecutionFilter{Limit: 3})
	require.NoError(t, err)
	require.Len(t, latest, 3)
	assert.Equal(t, "exec-other", latest[0].ID)
	assert.Equal(t, "exec-149", latest[1].ID)

	errored, err := store.Executions(ctx, persistence.ExecutionFilter{
		WorkflowID: testutil.TestWorkflowID,
		Status:     models.ExecutionStatusError,
		Limit:      100,
	})
	require.NoError(t, err)
	require.Len(t, errored, 15, "status filter walks past the first index batch")
	assert.Equal(t, "exec-140", errored[0].ID)
	assert.Equal(t, "exec-000", errored[14].ID)

	mr.Del("test:execution:exec-149")

	afterDelete, err := store.Executions(ctx, persistence.ExecutionFilter{WorkflowID: testutil.TestWorkflowID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, afterDelete, 1)
	assert.Equal(t, "exec-148", afterDelete[0].ID, "dangling index entries are skipped")
}

func TestExecutionStore_HealthCheck(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	require.NoError(t, store.HealthCheck(ctx))

	mr.Close()
	assert.Error(t, store.HealthCheck(ctx))
}

func TestNewExecutionStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := NewExecutionStore(ctx, logger, "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	require.NoError(t, store.Close(ctx))

	_, err = NewExecutionStore(ctx, logger, "http://nope")
	assert.Error(t, err)
}
