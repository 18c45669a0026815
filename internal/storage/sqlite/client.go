package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/platform-factory/backend/internal/storage/models"
	"github.com/platform-factory/backend/pkg/logger"
)

var ErrNotFound = errors.New("audit record not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one connection: sqlite serialises writers anyway and :memory: databases
	// are per connection
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite audit store initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pipeline_requests (
		trace_id TEXT PRIMARY KEY,
		endpoint TEXT NOT NULL,
		caller_id TEXT NOT NULL,
		text_fingerprint TEXT,
		language TEXT,
		sector TEXT,
		build_id TEXT,
		status_code INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_requests_caller ON pipeline_requests(caller_id);
	CREATE INDEX IF NOT EXISTS idx_requests_created ON pipeline_requests(created_at);
	CREATE INDEX IF NOT EXISTS idx_requests_fingerprint ON pipeline_requests(text_fingerprint);

	CREATE TABLE IF NOT EXISTS pipeline_stages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trace_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		provenance TEXT NOT NULL,
		outcome TEXT NOT NULL,
		FOREIGN KEY (trace_id) REFERENCES pipeline_requests(trace_id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_stages_trace ON pipeline_stages(trace_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// RecordRequest stores a request and its stage outcomes in one transaction.
func (c *Client) RecordRequest(ctx context.Context, req *models.PipelineRequest) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pipeline_requests (trace_id, endpoint, caller_id, text_fingerprint, language, sector, build_id, status_code, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		req.TraceID,
		req.Endpoint,
		req.CallerID,
		req.TextFingerprint,
		req.Language,
		req.Sector,
		req.BuildID,
		req.StatusCode,
		req.LatencyMS,
		req.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert pipeline request: %w", err)
	}

	for _, s := range req.Stages {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO pipeline_stages (trace_id, stage, provenance, outcome) VALUES (?, ?, ?, ?)`,
			req.TraceID, s.Stage, s.Provenance, s.Outcome,
		)
		if err != nil {
			return fmt.Errorf("failed to insert pipeline stage: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pipeline request: %w", err)
	}

	logger.Debug("Pipeline request audited", zap.String("trace_id", req.TraceID), zap.String("endpoint", req.Endpoint))
	return nil
}

func (c *Client) GetRequest(ctx context.Context, traceID string) (*models.PipelineRequest, error) {
	query := `SELECT trace_id, endpoint, caller_id, text_fingerprint, language, sector, build_id, status_code, latency_ms, created_at FROM pipeline_requests WHERE trace_id = ?`

	req, err := scanRequest(c.db.QueryRowContext(ctx, query, traceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, traceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pipeline request: %w", err)
	}

	stages, err := c.stages(ctx, traceID)
	if err != nil {
		return nil, err
	}
	req.Stages = stages
	return req, nil
}

// RecentRequests returns the newest requests first, optionally for one caller.
func (c *Client) RecentRequests(ctx context.Context, callerID string, limit int) ([]models.PipelineRequest, error) {
	query := `SELECT trace_id, endpoint, caller_id, text_fingerprint, language, sector, build_id, status_code, latency_ms, created_at
		FROM pipeline_requests WHERE (? = '' OR caller_id = ?) ORDER BY created_at DESC, rowid DESC LIMIT ?`

	rows, err := c.db.QueryContext(ctx, query, callerID, callerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pipeline requests: %w", err)
	}
	defer rows.Close()

	requests := []models.PipelineRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		requests = append(requests, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pipeline requests: %w", err)
	}
	return requests, nil
}

// Summary aggregates the requests recorded at or after since.
func (c *Client) Summary(ctx context.Context, since time.Time) (*models.AuditSummary, error) {
	cutoff := since.UnixMilli()
	summary := &models.AuditSummary{
		BySector:   map[string]int{},
		Provenance: []models.ProvenanceCount{},
	}

	var avg sql.NullFloat64
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(latency_ms) FROM pipeline_requests WHERE created_at >= ?`, cutoff,
	).Scan(&summary.Requests, &avg)
	if err != nil {
		return nil, fmt.Errorf("failed to count pipeline requests: %w", err)
	}
	summary.AvgLatencyMS = avg.Float64

	rows, err := c.db.QueryContext(ctx,
		`SELECT sector, COUNT(*) FROM pipeline_requests WHERE created_at >= ? AND sector != '' GROUP BY sector`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to group by sector: %w", err)
	}
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		summary.BySector[name] = n
	}
	rows.Close()

	rows, err = c.db.QueryContext(ctx, `
		SELECT s.stage, s.provenance, s.outcome, COUNT(*)
		FROM pipeline_stages s JOIN pipeline_requests r ON r.trace_id = s.trace_id
		WHERE r.created_at >= ?
		GROUP BY s.stage, s.provenance, s.outcome
		ORDER BY s.stage, s.provenance, s.outcome
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to group by provenance: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var pc models.ProvenanceCount
		if err := rows.Scan(&pc.Stage, &pc.Provenance, &pc.Outcome, &pc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		summary.Provenance = append(summary.Provenance, pc)
	}

	return summary, rows.Err()
}

// Prune deletes requests older than before and returns how many went.
func (c *Client) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM pipeline_requests WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune pipeline requests: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logger.Info("Pruned audit trail", zap.Int64("rows", n))
	}
	return n, nil
}

func (c *Client) stages(ctx context.Context, traceID string) ([]models.StageRecord, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT stage, provenance, outcome FROM pipeline_stages WHERE trace_id = ? ORDER BY id`, traceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pipeline stages: %w", err)
	}
	defer rows.Close()

	stages := []models.StageRecord{}
	for rows.Next() {
		var s models.StageRecord
		if err := rows.Scan(&s.Stage, &s.Provenance, &s.Outcome); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		stages = append(stages, s)
	}
	return stages, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.PipelineRequest, error) {
	var req models.PipelineRequest
	var fingerprint, language, sectorName, buildID sql.NullString
	var createdAt int64

	err := row.Scan(
		&req.TraceID,
		&req.Endpoint,
		&req.CallerID,
		&fingerprint,
		&language,
		&sectorName,
		&buildID,
		&req.StatusCode,
		&req.LatencyMS,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	req.TextFingerprint = fingerprint.String
	req.Language = language.String
	req.Sector = sectorName.String
	req.BuildID = buildID.String
	req.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &req, nil
}
