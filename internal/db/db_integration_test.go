//go:build integration
// +build integration

package db

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jonathan/intbuddy/internal/types"
)

// testDatabaseURL returns TEST_DATABASE_URL, or starts a pgvector container.
func testDatabaseURL(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		return url
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "pgvector/pgvector:pg16",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "intbuddy",
				"POSTGRES_PASSWORD": "intbuddy",
				"POSTGRES_DB":       "intbuddy",
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				wait.ForListeningPort("5432/tcp"),
			).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("Skipping integration test: failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://intbuddy:intbuddy@%s:%s/intbuddy?sslmode=disable", host, port.Port())
}

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	url := testDatabaseURL(t)
	require.NoError(t, Migrate(url))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestSaveResultSet_Integration(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	company := "Company-" + uuid.NewString()
	q := types.Query{Company: company, Role: "SDE - 2", Pages: 2}
	rs := &types.ResultSet{
		Records: []types.InterviewRecord{
			{Company: company, Role: "SDE - 2", Description: "first"},
			{Company: company, Role: "SDE - 2", Description: "second"},
		},
		LinksFound: 3,
		Failed:     1,
		Status:     types.StatusPartial,
	}

	runID, err := db.SaveResultSet(ctx, q, rs)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, runID)

	run, err := db.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, company, run.Company)
	assert.Equal(t, types.StatusPartial, run.Status)
	assert.Equal(t, 2, run.Records)
	assert.Equal(t, 3, run.LinksFound)

	records, err := db.ListRecords(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, rs.Records, records)

	runs, err := db.ListRuns(ctx, company, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
}

func TestSaveResultSet_EmptyRun_Integration(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	runID, err := db.SaveResultSet(ctx, types.Query{Company: "Nobody", Role: "SDE - 1", Pages: 1},
		&types.ResultSet{Status: types.StatusNoLinks})
	require.NoError(t, err)

	records, err := db.ListRecords(ctx, runID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSaveChunks_Integration(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	runID, err := db.SaveResultSet(ctx, types.Query{Company: "Acme", Role: "SDE - 1", Pages: 1},
		&types.ResultSet{Records: []types.InterviewRecord{{Company: "Acme", Role: "SDE - 1", Description: "x"}}, Status: types.StatusComplete})
	require.NoError(t, err)

	chunks := []types.Chunk{
		{ID: "a", Order: 0, Section: "overview", Text: "overview"},
		{ID: "b", Order: 1, Section: "round", Text: "round 1"},
	}
	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}}

	require.NoError(t, db.SaveChunks(ctx, runID, chunks, vectors))
	require.NoError(t, db.SaveChunks(ctx, runID, chunks[:1], vectors[:1]))

	n, err := db.CountChunks(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetRun_NotFound_Integration(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetRun(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrRunNotFound)
}
