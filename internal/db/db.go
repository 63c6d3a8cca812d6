// Package db provides the optional PostgreSQL archive of scrape runs.
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver for migrations
	"github.com/pgvector/pgvector-go"

	"github.com/jonathan/intbuddy/internal/types"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("scrape run not found")

// Run is an archived scrape run.
type Run struct {
	ID         uuid.UUID          `json:"id"`
	Company    string             `json:"company"`
	Role       string             `json:"role"`
	Pages      int                `json:"pages"`
	Status     types.ScrapeStatus `json:"status"`
	LinksFound int                `json:"links_found"`
	Failed     int                `json:"failed"`
	Records    int                `json:"records"`
	CreatedAt  time.Time          `json:"created_at"`
}

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Migrate applies the embedded schema migrations.
func Migrate(databaseURL string) error {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer sqlDB.Close()

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	_, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("migration state is dirty - manual intervention required")
	}
	return nil
}

// SaveResultSet stores a run and its records in one transaction and returns the run id.
func (db *DB) SaveResultSet(ctx context.Context, q types.Query, rs *types.ResultSet) (uuid.UUID, error) {
	if rs == nil {
		return uuid.Nil, fmt.Errorf("result set is nil")
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO scrape_runs (company, role, pages, status, links_found, failed)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		q.Company, q.Role, max(q.Pages, 1), string(rs.Status), rs.LinksFound, rs.Failed,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create run: %w", err)
	}

	if len(rs.Records) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"interview_records"},
			[]string{"run_id", "position", "company", "role", "description"},
			pgx.CopyFromRows(recordRows(id, rs.Records)),
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to save records: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

// SaveChunks stores the embedded chunks of a run, replacing earlier ones.
func (db *DB) SaveChunks(ctx context.Context, runID uuid.UUID, chunks []types.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d != %d", len(chunks), len(vectors))
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM chunk_embeddings WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	batch := &pgx.Batch{}
	for i, c := range chunks {
		batch.Queue(
			`INSERT INTO chunk_embeddings (run_id, position, chunk_id, section, content, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			runID, c.Order, c.ID, c.Section, c.Text, pgvector.NewVector(vectors[i]),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// GetRun retrieves a run by id.
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	row := db.pool.QueryRow(ctx, runSelect+` WHERE r.id = $1 GROUP BY r.id`, runID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first. An empty company
// matches every run.
func (db *DB) ListRuns(ctx context.Context, company string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.pool.Query(ctx,
		runSelect+` WHERE ($1 = '' OR lower(r.company) = lower($1))
		 GROUP BY r.id ORDER BY r.created_at DESC LIMIT $2`,
		company, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListRecords returns the records of a run in their original order.
func (db *DB) ListRecords(ctx context.Context, runID uuid.UUID) ([]types.InterviewRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT company, role, description FROM interview_records
		 WHERE run_id = $1 ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []types.InterviewRecord
	for rows.Next() {
		var r types.InterviewRecord
		if err := rows.Scan(&r.Company, &r.Role, &r.Description); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountChunks returns how many embedded chunks a run has.
func (db *DB) CountChunks(ctx context.Context, runID uuid.UUID) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunk_embeddings WHERE run_id = $1`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

const runSelect = `SELECT r.id, r.company, r.role, r.pages, r.status, r.links_found, r.failed,
		COUNT(ir.position), r.created_at
	 FROM scrape_runs r LEFT JOIN interview_records ir ON ir.run_id = r.id`

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	var status string
	if err := row.Scan(&run.ID, &run.Company, &run.Role, &run.Pages, &status,
		&run.LinksFound, &run.Failed, &run.Records, &run.CreatedAt); err != nil {
		return nil, err
	}
	run.Status = types.ScrapeStatus(status)
	return &run, nil
}

func recordRows(runID uuid.UUID, records []types.InterviewRecord) [][]any {
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = []any{runID, i, r.Company, r.Role, r.Description}
	}
	return rows
}
