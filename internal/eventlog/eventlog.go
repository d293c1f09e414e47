// Package eventlog persists an audit trail of ingestion activity in
// PostgreSQL. The graph remains the source of truth for memory itself; the
// event log answers "what was ingested, when, and did it link or embed".
package eventlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nidhogg/cognigraph/internal/engine"
	"go.uber.org/zap"
)

// Store wraps a PostgreSQL connection pool.
type Store struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// New creates a Store with a pgx connection pool.
func New(dsn string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return &Store{db: pool, logger: logger}, nil
}

// Migrate reads and executes all .up.sql files from the migrations directory.
func (s *Store) Migrate(ctx context.Context, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(migrationsDir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		s.logger.Info("Migration applied", zap.String("file", f))
	}
	return nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.db.Close()
}

// RecordIngestion satisfies engine.Recorder: one row per observation.
func (s *Store) RecordIngestion(ctx context.Context, rec engine.IngestionRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ingestions (id, node_id, keywords, link_count, embedded, warning)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)`,
		rec.NodeID, rec.Keywords, rec.Links, rec.Embedded, nullable(rec.Warning),
	)
	if err != nil {
		return fmt.Errorf("record ingestion: %w", err)
	}
	return nil
}

// IngestionRow is a persisted audit entry.
type IngestionRow struct {
	NodeID    string    `json:"node_id"`
	Keywords  []string  `json:"keywords"`
	LinkCount int       `json:"link_count"`
	Embedded  bool      `json:"embedded"`
	Warning   string    `json:"warning,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RecentIngestions returns the latest audit entries, newest first.
func (s *Store) RecentIngestions(ctx context.Context, limit int) ([]IngestionRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT node_id, keywords, link_count, embedded, COALESCE(warning, ''), created_at
		FROM ingestions
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent ingestions: %w", err)
	}
	defer rows.Close()

	var out []IngestionRow
	for rows.Next() {
		var r IngestionRow
		if err := rows.Scan(&r.NodeID, &r.Keywords, &r.LinkCount, &r.Embedded, &r.Warning, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ingestion: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
