package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/coderetrieve/pkg/types"
)

// SQLiteStore implements VectorStore on a single SQLite file.
// Candidate rows are narrowed in SQL by repo and language; cosine similarity
// is computed in Go.
type SQLiteStore struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and applies migrations.
// ":memory:" gives a private in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("sqlite: database path is required")
	}
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) dimension(ctx context.Context, collection string) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx, "SELECT dimension FROM collections WHERE name = ?", collection).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read collection %s: %w", collection, err)
	}
	return dim, nil
}

func (s *SQLiteStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	dim, err := s.dimension(ctx, name)
	switch {
	case err == nil:
		if dim != dimension {
			return fmt.Errorf("%w: %s has %d, requested %d", ErrDimensionMismatch, name, dim, dimension)
		}
		return nil
	case !errors.Is(err, ErrCollectionNotFound):
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO collections (name, dimension, created_at) VALUES (?, ?, ?)",
		name, dimension, time.Now()); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, collection string, points []Point) error {
	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return err
	}
	if err := validatePoints(points, dim); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO points (collection, id, repo_id, language, payload, vector, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id)
		DO UPDATE SET
			repo_id = excluded.repo_id,
			language = excluded.language,
			payload = excluded.payload,
			vector = excluded.vector,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now()
	for _, p := range points {
		payload, err := json.Marshal(p.Record)
		if err != nil {
			return fmt.Errorf("failed to encode payload %s: %w", p.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			collection, p.ID, p.Record.RepoID, p.Record.Language,
			string(payload), serializeVector(p.Vector), now,
		); err != nil {
			return fmt.Errorf("failed to upsert point %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Query(ctx context.Context, collection string, req QueryRequest) ([]Hit, error) {
	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(req.Vector) != dim {
		return nil, fmt.Errorf("%w: query has %d, collection has %d", ErrDimensionMismatch, len(req.Vector), dim)
	}

	query, args := buildPointQuery(collection, req.Filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits, err := scoreRows(rows, req)
	if err != nil {
		return nil, err
	}
	return rankHits(hits, req.Limit), nil
}

// buildPointQuery pushes repo and language predicates into SQL.
// Other predicates are checked against the decoded payload.
func buildPointQuery(collection string, filter *Filter) (string, []interface{}) {
	var b strings.Builder
	b.WriteString("SELECT id, payload, vector FROM points WHERE collection = ?")
	args := []interface{}{collection}

	if v, ok := filter.Value("repo_id"); ok {
		b.WriteString(" AND repo_id = ?")
		args = append(args, v)
	}
	if v, ok := filter.Value("language"); ok {
		b.WriteString(" AND language = ?")
		args = append(args, v)
	}
	return b.String(), args
}

// scoreRows decodes rows and computes cosine similarity
func scoreRows(rows *sql.Rows, req QueryRequest) ([]Hit, error) {
	hits := make([]Hit, 0, 256)

	for rows.Next() {
		var id, payload string
		var vectorBlob []byte
		if err := rows.Scan(&id, &payload, &vectorBlob); err != nil {
			return nil, err
		}

		vector := deserializeVector(vectorBlob)
		if len(vector) != len(req.Vector) {
			continue // Dimension mismatch, skip
		}

		var rec types.ChunkRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			continue // Undecodable payload is not a candidate
		}
		if !req.Filter.Matches(&rec) {
			continue
		}

		score := cosineSimilarity(req.Vector, vector)
		if belowThreshold(score, req.ScoreThreshold) {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: score, Record: rec})
	}

	return hits, rows.Err()
}

// Count returns the number of points in a collection
func (s *SQLiteStore) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM points WHERE collection = ?", collection).Scan(&n)
	return n, err
}
