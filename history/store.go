package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"refinery/refiner"
)

// pathSeparator joins output paths into a single column. Paths never
// contain newlines.
const pathSeparator = "\n"

// Store persists prediction records and serves history queries.
// It satisfies refiner.Recorder so the orchestrator can feed it directly.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the history database at dbPath, applies pending
// migrations from migrationsPath and returns a ready Store.
//
// Example:
//
//	store, err := history.Open("history.db", "file://history/migrations", logger)
func Open(dbPath, migrationsPath string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Migrations run on a throwaway connection; the migrator closes it.
	if err := MigrateUpFromPath(dbPath, migrationsPath); err != nil {
		return nil, fmt.Errorf("history migrations: %w", err)
	}

	db, err := NewSQLiteConnectionWithDefaults(dbPath)
	if err != nil {
		return nil, fmt.Errorf("history connection: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record implements refiner.Recorder. Failures are logged, never returned;
// a broken history database must not fail predictions.
func (s *Store) Record(rec refiner.PredictionRecord) {
	if err := s.Save(context.Background(), rec); err != nil {
		s.logger.Warn("failed to record prediction",
			zap.String("prediction_id", rec.ID),
			zap.Error(err))
	}
}

// Save inserts one prediction record.
func (s *Store) Save(ctx context.Context, rec refiner.PredictionRecord) error {
	query := `
		INSERT INTO predictions (
			id, prompt, scheduler, resolution, steps, seed,
			status, error_message, output_paths, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Prompt,
		rec.Scheduler,
		rec.Resolution,
		rec.Steps,
		rec.Seed,
		rec.Status,
		rec.Error,
		strings.Join(rec.OutputPaths, pathSeparator),
		rec.Duration.Milliseconds(),
		createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

// Recent returns the most recent prediction records, newest first.
// A non-positive limit defaults to 10.
func (s *Store) Recent(ctx context.Context, limit int) ([]refiner.PredictionRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, prompt, scheduler, resolution, steps, seed,
		       status, error_message, output_paths, duration_ms, created_at
		FROM predictions
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var records []refiner.PredictionRecord
	for rows.Next() {
		rec, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ByID returns a single prediction record, or sql.ErrNoRows when absent.
func (s *Store) ByID(ctx context.Context, id string) (refiner.PredictionRecord, error) {
	query := `
		SELECT id, prompt, scheduler, resolution, steps, seed,
		       status, error_message, output_paths, duration_ms, created_at
		FROM predictions
		WHERE id = ?`

	return scanPrediction(s.db.QueryRowContext(ctx, query, id))
}

// Prune deletes records older than the retention period and returns the
// number of rows removed.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC()

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM predictions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune predictions: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the total number of stored prediction records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count predictions: %w", err)
	}
	return n, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPrediction(row scanner) (refiner.PredictionRecord, error) {
	var (
		rec        refiner.PredictionRecord
		paths      string
		durationMS int64
	)

	err := row.Scan(
		&rec.ID,
		&rec.Prompt,
		&rec.Scheduler,
		&rec.Resolution,
		&rec.Steps,
		&rec.Seed,
		&rec.Status,
		&rec.Error,
		&paths,
		&durationMS,
		&rec.CreatedAt,
	)
	if err != nil {
		return refiner.PredictionRecord{}, err
	}

	if paths != "" {
		rec.OutputPaths = strings.Split(paths, pathSeparator)
	}
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	return rec, nil
}
