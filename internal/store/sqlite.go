// Package store persists inference runs in SQLite: node listings, per-step
// mixture weights, per-topic edge lists and inferred network histories.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/diffmix/internal/inference"
	"github.com/nvandessel/diffmix/internal/network"
	"github.com/nvandessel/diffmix/internal/shaping"
)

// Run kinds.
const (
	KindInfer       = "infer"
	KindGroundTruth = "groundtruth"
)

// createdAtLayout is fixed-width so created_at sorts as text.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned when a run ID or kind has no matching run.
var ErrRunNotFound = errors.New("run not found")

// Run describes one recorded run.
type Run struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Source    string    `json:"source,omitempty"`
	Topics    int       `json:"topics"`
	CreatedAt time.Time `json:"created_at"`
}

// StepWeights are the mixture weights recorded after one step.
type StepWeights struct {
	Step    int       `json:"step"`
	Time    float64   `json:"time"`
	Weights []float64 `json:"weights"`
}

// SQLiteStore stores runs in a SQLite database.
type SQLiteStore struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// Open opens (creating if needed) the database at dbPath.
func Open(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// NewRun returns a sink that records into a fresh run of the given kind
// when its Begin is called.
func (s *SQLiteStore) NewRun(kind, source string) *RunRecorder {
	return &RunRecorder{store: s, kind: kind, source: source}
}

// RunRecorder is an inference.Sink writing one run.
type RunRecorder struct {
	store  *SQLiteStore
	kind   string
	source string
	id     string
}

// ID returns the run ID, empty before Begin.
func (r *RunRecorder) ID() string {
	return r.id
}

// Begin implements inference.Sink. It creates the run and its node listing.
func (r *RunRecorder) Begin(ctx context.Context, nodes []network.Node, topics int) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, kind, source, topics, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, r.kind, nullString(r.source), topics, time.Now().UTC().Format(createdAtLayout))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO nodes (run_id, id, name, model) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare node insert: %w", err)
	}
	defer stmt.Close()
	for _, n := range nodes {
		if _, err := stmt.ExecContext(ctx, id, n.ID, n.Name, n.Model.String()); err != nil {
			return fmt.Errorf("failed to insert node %d: %w", n.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	r.id = id
	return nil
}

// RecordStep implements inference.Sink.
func (r *RunRecorder) RecordStep(ctx context.Context, res inference.StepResult) error {
	if r.id == "" {
		return fmt.Errorf("run has not begun")
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for k, w := range res.Weights {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO topic_weights (run_id, step, time, topic, weight)
			VALUES (?, ?, ?, ?, ?)
		`, r.id, res.Index, res.Time, k, w); err != nil {
			return fmt.Errorf("failed to insert topic weight: %w", err)
		}
	}

	topicStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO topic_edges (run_id, topic, src, dst, time, alpha)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare topic edge insert: %w", err)
	}
	defer topicStmt.Close()
	for k, edges := range res.TopicEdges {
		for _, e := range edges {
			if _, err := topicStmt.ExecContext(ctx, r.id, k, e.Src, e.Dst, e.Time, e.Alpha); err != nil {
				return fmt.Errorf("failed to insert topic edge: %w", err)
			}
		}
	}

	inferredStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO inferred_edges (run_id, src, dst, time, alpha)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare inferred edge insert: %w", err)
	}
	defer inferredStmt.Close()
	for _, e := range res.Inferred {
		if _, err := inferredStmt.ExecContext(ctx, r.id, e.Src, e.Dst, e.Time, e.Alpha); err != nil {
			return fmt.Errorf("failed to insert inferred edge: %w", err)
		}
	}

	return tx.Commit()
}

// Runs lists every run, oldest first.
func (s *SQLiteStore) Runs(ctx context.Context) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, source, topics, created_at FROM runs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns the run with the given ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, source, topics, created_at FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	return run, err
}

// LatestRun returns the most recent run of kind.
func (s *SQLiteStore) LatestRun(ctx context.Context, kind string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, source, topics, created_at FROM runs
		WHERE kind = ? ORDER BY created_at DESC, id DESC LIMIT 1`, kind)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("no %s run: %w", kind, ErrRunNotFound)
	}
	return run, err
}

// DeleteRun removes a run and everything recorded for it.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// InferredNetwork rebuilds the inferred network of a run.
func (s *SQLiteStore) InferredNetwork(ctx context.Context, runID string) (*network.Network, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	net, err := s.loadNodes(ctx, runID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT src, dst, time, alpha FROM inferred_edges
		WHERE run_id = ? ORDER BY src, dst, time`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query inferred edges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var src, dst int
		var t, alpha float64
		if err := rows.Scan(&src, &dst, &t, &alpha); err != nil {
			return nil, fmt.Errorf("failed to scan inferred edge: %w", err)
		}
		net.AddRate(src, dst, t, alpha)
	}
	return net, rows.Err()
}

// TopicEdges returns topic k's edge list of a run, ordered by time then edge.
func (s *SQLiteStore) TopicEdges(ctx context.Context, runID string, topic int) ([]inference.EdgeRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT src, dst, time, alpha FROM topic_edges
		WHERE run_id = ? AND topic = ? ORDER BY time, src, dst`, runID, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to query topic edges: %w", err)
	}
	defer rows.Close()

	var edges []inference.EdgeRate
	for rows.Next() {
		var e inference.EdgeRate
		if err := rows.Scan(&e.Src, &e.Dst, &e.Time, &e.Alpha); err != nil {
			return nil, fmt.Errorf("failed to scan topic edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// TopicWeights returns the mixture weights of every recorded step.
func (s *SQLiteStore) TopicWeights(ctx context.Context, runID string) ([]StepWeights, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT step, time, topic, weight FROM topic_weights
		WHERE run_id = ? ORDER BY step, topic`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query topic weights: %w", err)
	}
	defer rows.Close()

	var out []StepWeights
	for rows.Next() {
		var step, topic int
		var t, w float64
		if err := rows.Scan(&step, &t, &topic, &w); err != nil {
			return nil, fmt.Errorf("failed to scan topic weight: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].Step != step {
			out = append(out, StepWeights{Step: step, Time: t})
		}
		out[len(out)-1].Weights = append(out[len(out)-1].Weights, w)
	}
	return out, rows.Err()
}

// loadNodes builds a network holding the run's nodes. Caller holds mu.
func (s *SQLiteStore) loadNodes(ctx context.Context, runID string) (*network.Network, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to look up run: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, model FROM nodes WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	net := network.New()
	for rows.Next() {
		var n network.Node
		var model string
		if err := rows.Scan(&n.ID, &n.Name, &model); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		if n.Model, err = shaping.ParseModel(model); err != nil {
			return nil, fmt.Errorf("node %d: %w", n.ID, err)
		}
		net.AddNode(n)
	}
	return net, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var source sql.NullString
	var createdAt string
	if err := row.Scan(&run.ID, &run.Kind, &source, &run.Topics, &createdAt); err != nil {
		return Run{}, err
	}
	run.Source = source.String
	if t, err := time.Parse(createdAtLayout, createdAt); err == nil {
		run.CreatedAt = t
	}
	return run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
