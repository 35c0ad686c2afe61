package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/flowguard/pkg/models"
	"github.com/dukex/flowguard/pkg/persistence"
	"github.com/dukex/flowguard/pkg/persistence/postgresql"
	"github.com/dukex/flowguard/pkg/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func TestMain(m *testing.M) {
	code := m.Run()

	if postgresContainer != nil {
		if err := testcontainers.TerminateContainer(postgresContainer); err != nil {
			slog.Error("failed to terminate postgres container", "error", err)
		}
	}

	os.Exit(code)
}

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"executions", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("flowguard_test"),
			postgres.WithUsername("flowguard"),
			postgres.WithPassword("flowguard"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = store.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return store, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	store, ctx, databaseURL := setupTestDB(t)

	require.NoError(t, store.HealthCheck(ctx))

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer db.Close()

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	again, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err, "migrations must be idempotent")
	require.NoError(t, again.Close(ctx))
}

func TestPersistence_WorkflowRoundTrip(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	wf := testutil.CreateTestWorkflowWithNodes()
	require.NoError(t, store.SaveWorkflow(ctx, wf))

	loaded, err := store.WorkflowByID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(wf, loaded, cmpopts.EquateApproxTime(time.Millisecond)))

	created := loaded.CreatedAt
	wf.Name = "Renamed"
	wf.CreatedAt = time.Time{}
	require.NoError(t, store.SaveWorkflow(ctx, wf))
	assert.WithinDuration(t, created, wf.CreatedAt, time.Millisecond, "created_at is kept on update")

	all, err := store.Workflows(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Renamed", all[0].Name)

	require.NoError(t, store.DeleteWorkflow(ctx, wf.ID))

	_, err = store.WorkflowByID(ctx, wf.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))
	assert.True(t, persistence.IsWorkflowNotFound(store.DeleteWorkflow(ctx, wf.ID)))
}

func TestPersistence_ListWorkflows(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	for _, name := range []string{"charlie", "alpha", "bravo"} {
		wf := testutil.CreateTestWorkflow()
		wf.Name = name

		if name == "alpha" {
			wf.Tags = []string{"billing", "test"}
		}

		require.NoError(t, store.SaveWorkflow(ctx, wf))
	}

	page, err := store.ListWorkflows(ctx, persistence.ListWorkflowsOptions{SortBy: "name", SortOrder: "asc", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.TotalCount)
	assert.True(t, page.HasNextPage)
	require.Len(t, page.Workflows, 2)
	assert.Equal(t, "alpha", page.Workflows[0].Name)

	tagged, err := store.ListWorkflows(ctx, persistence.ListWorkflowsOptions{Tag: "billing"})
	require.NoError(t, err)
	require.Len(t, tagged.Workflows, 1)
	assert.Equal(t, "alpha", tagged.Workflows[0].Name)

	_, err = store.ListWorkflows(ctx, persistence.ListWorkflowsOptions{SortBy: "name; DROP TABLE workflows; --"})
	assert.ErrorIs(t, err, persistence.ErrInvalidSortField)
}

func TestPersistence_Executions(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, status := range []models.ExecutionStatus{models.ExecutionStatusSuccess, models.ExecutionStatusError, models.ExecutionStatusSuccess} {
		require.NoError(t, store.SaveExecution(ctx, testutil.CreateTestExecution(
			testutil.WithExecutionID("exec-"+string(rune('a'+i))),
			testutil.WithExecutionStatus(status),
			testutil.WithStartedAt(base.Add(time.Duration(i)*time.Minute)),
		)))
	}

	loaded, err := store.ExecutionByID(ctx, "exec-b")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusError, loaded.Status)
	assert.Len(t, loaded.NodeRuns, 2)

	_, err = store.ExecutionByID(ctx, "missing")
	assert.True(t, persistence.IsExecutionNotFound(err))

	successes, err := store.Executions(ctx, persistence.ExecutionFilter{Status: models.ExecutionStatusSuccess})
	require.NoError(t, err)
	require.Len(t, successes, 2)
	assert.Equal(t, "exec-c", successes[0].ID)
}
