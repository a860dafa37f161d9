package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

// Storage queries a Postgres table with a pgvector column using
// cosine distance.
type Storage struct {
	db     *sql.DB
	query  string
	fields vectorstore.Fields
}

type Config struct {
	DSN    string
	Table  string
	Fields vectorstore.Fields
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.DSN == "" || cfg.Table == "" {
		return nil, fmt.Errorf("postgres dsn and table are required: %w", domain.ErrInvalidConfig)
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w: %w", domain.ErrInvalidConfig, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, wrapError("ping postgres", err)
	}
	return New(db, cfg.Table, cfg.Fields), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, table string, fields vectorstore.Fields) *Storage {
	fields = fields.WithDefaults()
	return &Storage{db: db, query: searchQuery(table, fields), fields: fields}
}

func (s *Storage) Name() string { return "pgvector" }

func (s *Storage) Search(ctx context.Context, vector []float32, k int) ([]domain.SearchHit, error) {
	rows, err := s.db.QueryContext(ctx, s.query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, wrapError("pgvector search", err)
	}
	defer rows.Close()

	var hits []domain.SearchHit
	for rows.Next() {
		var text, contentType, bucket, key sql.NullString
		var distance float64
		if err := rows.Scan(&text, &contentType, &bucket, &key, &distance); err != nil {
			return nil, fmt.Errorf("pgvector search: %w: %w", domain.ErrEmptyResult, err)
		}
		hits = append(hits, domain.SearchHit{
			Text:        text.String,
			ContentType: contentType.String,
			Bucket:      bucket.String,
			Key:         key.String,
			Score:       1 - distance,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("pgvector search", err)
	}
	return hits, nil
}

func (s *Storage) Close() error { return s.db.Close() }

func searchQuery(table string, f vectorstore.Fields) string {
	return fmt.Sprintf(
		"SELECT %s, %s, %s, %s, %s <=> $1 AS distance FROM %s ORDER BY %s <=> $1 LIMIT $2",
		pq.QuoteIdentifier(f.Text),
		pq.QuoteIdentifier(f.ContentType),
		pq.QuoteIdentifier(f.Bucket),
		pq.QuoteIdentifier(f.Key),
		pq.QuoteIdentifier(f.Embedding),
		pq.QuoteIdentifier(table),
		pq.QuoteIdentifier(f.Embedding),
	)
}

func wrapError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "28":
			return fmt.Errorf("%s: %w: %w", op, domain.ErrUnauthorized, err)
		case "42":
			return fmt.Errorf("%s: %w: %w", op, domain.ErrInvalidConfig, err)
		case "08", "53", "57":
			return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	// Anything outside the server's error protocol is a transport failure.
	return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
}
