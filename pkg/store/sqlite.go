package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/atomevolve/atomevolve-go/internal/types"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists the candidate ledger in a single SQLite file.
// Multiple cooperating processes may open the same file; SQLite serializes
// the writes and the reservations table carries the cross-process protocol.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteStore creates a store backed by the SQLite file at path
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

// Init opens the database and creates the schema if needed
func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	// busy_timeout rides in the DSN so it applies to every pooled
	// connection; concurrent workers then wait for each other instead
	// of failing on a locked database
	db, err := sql.Open("sqlite", s.path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

// SaveMeta persists the run metadata. The store holds exactly one metadata
// record; saving again overwrites it.
func (s *SQLiteStore) SaveMeta(ctx context.Context, meta types.RunMeta) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeMeta(meta)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO meta (id, payload)
		VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload
	`, payload)
	return err
}

// GetMeta retrieves the run metadata if present
func (s *SQLiteStore) GetMeta(ctx context.Context) (types.RunMeta, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return types.RunMeta{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM meta WHERE id = 1`).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.RunMeta{}, false, nil
		}
		return types.RunMeta{}, false, err
	}

	meta, err := DecodeMeta(payload)
	if err != nil {
		return types.RunMeta{}, false, fmt.Errorf("decode meta: %w", err)
	}
	return meta, true, nil
}

// AddUnrelaxed appends a new unrelaxed candidate to the ledger
func (s *SQLiteStore) AddUnrelaxed(ctx context.Context, cand *types.Candidate) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	if cand.ID == "" {
		return errors.New("candidate ID is required")
	}
	if cand.Structure == nil {
		return errors.New("candidate structure is required")
	}

	payload, err := EncodeStructure(cand.Structure)
	if err != nil {
		return err
	}
	parents, err := EncodeParents(cand.ParentIDs)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if cand.CreatedAt.IsZero() {
		cand.CreatedAt = now
	}
	cand.UpdatedAt = now
	cand.State = types.StateUnrelaxed

	_, err = db.ExecContext(ctx, `
		INSERT INTO candidates
			(id, state, raw_score, generation, origin, parents, payload, created_at, updated_at)
		VALUES (?, ?, NULL, ?, ?, ?, ?, ?, ?)
	`, cand.ID, string(cand.State), cand.Generation, cand.Origin, parents,
		payload, cand.CreatedAt.Format(time.RFC3339Nano), cand.UpdatedAt.Format(time.RFC3339Nano))
	return err
}

// NextUnrelaxed returns any one unrelaxed candidate, with no ordering
// guarantee beyond insertion order
func (s *SQLiteStore) NextUnrelaxed(ctx context.Context) (*types.Candidate, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT id, state, raw_score, generation, origin, parents, payload, created_at, updated_at
		FROM candidates WHERE state = ? LIMIT 1
	`, string(types.StateUnrelaxed))

	cand, err := scanCandidate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return cand, true, nil
}

// MarkRelaxed records the relaxation result for a candidate. The operation
// is idempotent: repeating it after a crash simply overwrites the same
// state and score.
func (s *SQLiteStore) MarkRelaxed(ctx context.Context, id string, positions []float64, rawScore float64) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var payload []byte
	err = tx.QueryRowContext(ctx, `SELECT payload FROM candidates WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("mark relaxed %s: %w", id, ErrNotFound)
		}
		return err
	}

	if len(positions) > 0 {
		structure, err := DecodeStructure(payload)
		if err != nil {
			return fmt.Errorf("decode candidate %s: %w", id, err)
		}
		if len(positions) != len(structure.Positions) {
			return fmt.Errorf("relaxed positions length %d does not match structure %d",
				len(positions), len(structure.Positions))
		}
		structure.Positions = positions
		payload, err = EncodeStructure(structure)
		if err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE candidates SET state = ?, raw_score = ?, payload = ?, updated_at = ?
		WHERE id = ?
	`, string(types.StateRelaxed), rawScore, payload,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// MarkFailed records a candidate whose relaxation did not converge. Failed
// candidates stay in the ledger but never enter the population.
func (s *SQLiteStore) MarkFailed(ctx context.Context, id string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `
		UPDATE candidates SET state = ?, updated_at = ? WHERE id = ?
	`, string(types.StateFailed), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("mark failed %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountUnrelaxed returns the number of pending candidates
func (s *SQLiteStore) CountUnrelaxed(ctx context.Context) (int, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}

	var n int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM candidates WHERE state = ?`,
		string(types.StateUnrelaxed)).Scan(&n)
	return n, err
}

// AllRelaxed returns every relaxed candidate in the ledger
func (s *SQLiteStore) AllRelaxed(ctx context.Context) ([]*types.Candidate, error) {
	return s.query(ctx, `
		SELECT id, state, raw_score, generation, origin, parents, payload, created_at, updated_at
		FROM candidates WHERE state = ? ORDER BY raw_score DESC
	`, string(types.StateRelaxed))
}

// Get retrieves a candidate by ID
func (s *SQLiteStore) Get(ctx context.Context, id string) (*types.Candidate, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT id, state, raw_score, generation, origin, parents, payload, created_at, updated_at
		FROM candidates WHERE id = ?
	`, id)

	cand, err := scanCandidate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return cand, true, nil
}

// All returns the whole ledger in insertion order
func (s *SQLiteStore) All(ctx context.Context) ([]*types.Candidate, error) {
	return s.query(ctx, `
		SELECT id, state, raw_score, generation, origin, parents, payload, created_at, updated_at
		FROM candidates ORDER BY created_at
	`)
}

// Reserve claims a slot keyed by descriptive parameters. A second Reserve
// with the same key fails with ErrReserved until the key is released.
func (s *SQLiteStore) Reserve(ctx context.Context, key, owner string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if key == "" {
		return errors.New("reservation key is required")
	}

	res, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO reservations (key, owner, created_at)
		VALUES (?, ?, ?)
	`, key, owner, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("reserve %q: %w", key, ErrReserved)
	}
	return nil
}

// Release drops a reservation. Releasing an unknown key is a no-op.
func (s *SQLiteStore) Release(ctx context.Context, key string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `DELETE FROM reservations WHERE key = ?`, key)
	return err
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]*types.Candidate, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Candidate
	for rows.Next() {
		cand, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cand)
	}
	return out, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner) (*types.Candidate, error) {
	var (
		cand      types.Candidate
		state     string
		rawScore  sql.NullFloat64
		parents   string
		payload   []byte
		createdAt string
		updatedAt string
	)

	err := row.Scan(&cand.ID, &state, &rawScore, &cand.Generation, &cand.Origin,
		&parents, &payload, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	cand.State = types.RelaxationState(state)
	if rawScore.Valid {
		cand.RawScore = rawScore.Float64
	}

	cand.ParentIDs, err = DecodeParents(parents)
	if err != nil {
		return nil, fmt.Errorf("decode parents for %s: %w", cand.ID, err)
	}

	cand.Structure, err = DecodeStructure(payload)
	if err != nil {
		return nil, fmt.Errorf("decode candidate %s: %w", cand.ID, err)
	}

	if cand.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if cand.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}

	return &cand, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS candidates (
			id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			raw_score REAL,
			generation INTEGER NOT NULL,
			origin TEXT NOT NULL,
			parents TEXT NOT NULL,
			payload BLOB NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_candidates_state ON candidates(state);
		CREATE TABLE IF NOT EXISTS reservations (
			key TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
	`)
	return err
}
