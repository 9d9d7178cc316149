package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelroute.ai/internal/persistence/snapshot"
	"voxelroute.ai/internal/sim/catalogs"
	"voxelroute.ai/internal/sim/tuning"
	"voxelroute.ai/internal/sim/world"
)

const schemaVersion = "1"

// SQLiteIndex is a queryable read model of the tick log. Writes are
// asynchronous and may be dropped under load; the JSONL logs remain the
// source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	snapshot snapshotRow
}

type snapshotRow struct {
	Tick       uint64
	Path       string
	Digest     string
	Nodes      int
	Masters    int
	Containers int
	Tanks      int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Large buffer: a busy network logs many transfers per tick.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func openDB(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
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
	return db, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
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
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			edits INTEGER NOT NULL,
			transfers INTEGER NOT NULL,
			purged INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS transfers (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			mx INTEGER NOT NULL,
			my INTEGER NOT NULL,
			mz INTEGER NOT NULL,
			channel TEXT NOT NULL,
			fx INTEGER NOT NULL,
			fy INTEGER NOT NULL,
			fz INTEGER NOT NULL,
			from_side TEXT NOT NULL,
			tx INTEGER NOT NULL,
			ty INTEGER NOT NULL,
			tz INTEGER NOT NULL,
			to_side TEXT NOT NULL,
			resource TEXT NOT NULL,
			amount INTEGER NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_resource_tick ON transfers(resource, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_transfers_master_tick ON transfers(mx, my, mz, tick);`,
		`CREATE TABLE IF NOT EXISTS edits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			op TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			error TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			digest TEXT NOT NULL,
			nodes INTEGER NOT NULL,
			masters INTEGER NOT NULL,
			containers INTEGER NOT NULL,
			tanks INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped counts writes discarded because the indexer fell behind.
func (s *SQLiteIndex) Dropped() uint64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

func (s *SQLiteIndex) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	s.enqueue(req{kind: reqTick, tick: entry})
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	r := snapshotRow{
		Tick:       snap.Header.Tick,
		Path:       path,
		Digest:     snap.Digest,
		Nodes:      len(snap.Nodes),
		Containers: len(snap.Containers),
		Tanks:      len(snap.Tanks),
	}
	for _, n := range snap.Nodes {
		if n.Master != nil {
			r.Masters++
		}
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r})
}

// UpsertCatalogs stores the raw catalog files and the applied tuning so a
// database can be interpreted without the configs it was produced with.
func (s *SQLiteIndex) UpsertCatalogs(configDir, worldID string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if configDir != "" && cats != nil {
		if cats.Nodes != nil {
			if b, err := yamlFileAsJSON(filepath.Join(configDir, "routing_nodes.yaml")); err == nil {
				rows = append(rows, kv{name: "routing_nodes", digest: cats.Nodes.Digest, json: b})
			}
		}
		if cats.Resources != nil {
			if b, err := yamlFileAsJSON(filepath.Join(configDir, "resources.yaml")); err == nil {
				rows = append(rows, kv{name: "resources", digest: cats.Resources.Digest, json: b})
			}
		}
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for k, v := range map[string]string{"schema_version": schemaVersion, "world_id": worldID} {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, k, v); err != nil {
			return err
		}
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,edits,transfers,purged,raw_json) VALUES(?,?,?,?,?,?)`)
	insertTransfer, _ := s.db.Prepare(`INSERT OR REPLACE INTO transfers(tick,seq,mx,my,mz,channel,fx,fy,fz,from_side,tx,ty,tz,to_side,resource,amount) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertEdit, _ := s.db.Prepare(`INSERT OR REPLACE INTO edits(tick,seq,op,x,y,z,error,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,digest,nodes,masters,containers,tanks) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertTransfer, insertEdit, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			t := r.tick
			tick := int64(t.Tick)
			b, _ := json.Marshal(t)
			if !exec(insertTick, tick, t.Digest, len(t.Edits), len(t.Transfers), len(t.Purged), string(b)) {
				continue
			}
			for i, tr := range t.Transfers {
				if !exec(insertTransfer, tick, i,
					tr.Master[0], tr.Master[1], tr.Master[2],
					tr.Channel,
					tr.From[0], tr.From[1], tr.From[2], tr.FromSide,
					tr.To[0], tr.To[1], tr.To[2], tr.ToSide,
					tr.Resource, tr.Amount,
				) {
					break
				}
			}
			for i, e := range t.Edits {
				raw, _ := json.Marshal(e.Edit)
				var errStr any
				if e.Error != "" {
					errStr = e.Error
				}
				if !exec(insertEdit, tick, i, e.Edit.Op, e.Edit.Pos[0], e.Edit.Pos[1], e.Edit.Pos[2], errStr, string(raw)) {
					break
				}
			}

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Digest, sn.Nodes, sn.Masters, sn.Containers, sn.Tanks)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
