package db

import (
	"io/fs"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/intbuddy/internal/types"
)

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrationFiles, "migrations/*.sql")
	require.NoError(t, err)

	// Every up migration has a matching down migration.
	ups, downs := 0, 0
	for _, f := range files {
		switch {
		case len(f) > 7 && f[len(f)-7:] == ".up.sql":
			ups++
		case len(f) > 9 && f[len(f)-9:] == ".down.sql":
			downs++
		}
	}
	assert.Equal(t, 2, ups)
	assert.Equal(t, ups, downs)
}

func TestRecordRows(t *testing.T) {
	runID := uuid.New()
	rows := recordRows(runID, []types.InterviewRecord{
		{Company: "Microsoft", Role: "SDE - 2", Description: "first"},
		{Company: "Amazon", Role: "SDE - 1", Description: "second"},
	})

	require.Len(t, rows, 2)
	assert.Equal(t, []any{runID, 0, "Microsoft", "SDE - 2", "first"}, rows[0])
	assert.Equal(t, 1, rows[1][1])
}

func TestRunType(t *testing.T) {
	run := Run{Company: "Microsoft", Role: "SDE - 2", Status: types.StatusPartial}

	assert.Equal(t, "Microsoft", run.Company)
	assert.Equal(t, types.StatusPartial, run.Status)
	assert.Zero(t, run.Records)
}
