package metrics

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite"
)

// Index is an async secondary index over the metrics stream and snapshot
// catalog. Writes go through a single writer goroutine; the engine never
// reads it, so a dropped record can only degrade queries, not the run.
type Index struct {
	db *sql.DB

	ch   chan indexReq
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type indexReqKind int

const (
	reqMetrics indexReqKind = iota + 1
	reqSnapshot
)

type indexReq struct {
	kind     indexReqKind
	rows     []Row
	snapshot SnapshotRow
}

// SnapshotRow catalogs one written snapshot file.
type SnapshotRow struct {
	Tick   int
	Path   string
	Seed   int64
	Food   int
	Agents int
	Alive  int
}

// OpenIndex opens (or creates) the run's index.db.
func OpenIndex(dataDir string) (*Index, error) {
	path := filepath.Join(dataDir, "index.db")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	idx := &Index{
		db: db,
		ch: make(chan indexReq, 4096),
	}
	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		idx.loop()
	}()
	return idx, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-only workload; NORMAL is enough durability for a
	// secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS metrics (
			tick INTEGER NOT NULL,
			agent_name TEXT NOT NULL,
			energy REAL NOT NULL,
			alive INTEGER NOT NULL,
			action TEXT NOT NULL,
			parse_failed INTEGER NOT NULL,
			uncertainty_count INTEGER NOT NULL,
			self_reference_count INTEGER NOT NULL,
			trust_language_count INTEGER NOT NULL,
			memory_management_action INTEGER NOT NULL,
			reasoning_length INTEGER NOT NULL,
			working_length INTEGER NOT NULL,
			PRIMARY KEY (tick, agent_name)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_agent_tick ON metrics(agent_name, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			food INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			alive INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// AddMetrics queues metric rows. Non-blocking: if the writer falls behind,
// rows are dropped and the CSV remains the source of truth.
func (idx *Index) AddMetrics(rows []Row) {
	if idx == nil || idx.closed.Load() {
		return
	}
	select {
	case idx.ch <- indexReq{kind: reqMetrics, rows: rows}:
	default:
	}
}

// RecordSnapshot catalogs one snapshot file.
func (idx *Index) RecordSnapshot(r SnapshotRow) {
	if idx == nil || idx.closed.Load() {
		return
	}
	select {
	case idx.ch <- indexReq{kind: reqSnapshot, snapshot: r}:
	default:
	}
}

func (idx *Index) Close() error {
	if idx == nil {
		return nil
	}
	var err error
	idx.once.Do(func() {
		idx.closed.Store(true)
		close(idx.ch)
		idx.wg.Wait()
		err = idx.db.Close()
	})
	return err
}

func (idx *Index) loop() {
	for r := range idx.ch {
		switch r.kind {
		case reqMetrics:
			idx.insertMetrics(r.rows)
		case reqSnapshot:
			_, _ = idx.db.Exec(
				`INSERT OR REPLACE INTO snapshots (tick, path, seed, food, agents, alive)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				r.snapshot.Tick, r.snapshot.Path, r.snapshot.Seed,
				r.snapshot.Food, r.snapshot.Agents, r.snapshot.Alive,
			)
		}
	}
}

func (idx *Index) insertMetrics(rows []Row) {
	tx, err := idx.db.Begin()
	if err != nil {
		return
	}
	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO metrics (
			tick, agent_name, energy, alive, action, parse_failed,
			uncertainty_count, self_reference_count, trust_language_count,
			memory_management_action, reasoning_length, working_length
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return
	}
	for _, r := range rows {
		_, _ = stmt.Exec(
			r.Tick, r.AgentName, r.Energy, boolInt(r.Alive), r.Action,
			boolInt(r.ParseFailed), r.UncertaintyCount, r.SelfReferenceCount,
			r.TrustLanguageCount, boolInt(r.MemoryManagementAction),
			r.ReasoningLength, r.WorkingLength,
		)
	}
	_ = stmt.Close()
	_ = tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
