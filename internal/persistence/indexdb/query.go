package indexdb

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// Reader runs read-only queries against an index written by SQLiteIndex.
type Reader struct {
	db *sql.DB
}

func OpenReader(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

func (r *Reader) Meta(key string) (string, error) {
	var v string
	err := r.db.QueryRow(`SELECT value FROM meta WHERE key=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

type TickRow struct {
	Tick      uint64 `json:"tick"`
	Digest    string `json:"digest"`
	Edits     int    `json:"edits"`
	Transfers int    `json:"transfers"`
	Purged    int    `json:"purged"`
}

// Ticks lists indexed ticks in [from, to].
func (r *Reader) Ticks(from, to uint64) ([]TickRow, error) {
	rows, err := r.db.Query(`SELECT tick,digest,edits,transfers,purged FROM ticks WHERE tick>=? AND tick<=? ORDER BY tick`, int64(from), int64(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TickRow
	for rows.Next() {
		var t TickRow
		var tick int64
		if err := rows.Scan(&tick, &t.Digest, &t.Edits, &t.Transfers, &t.Purged); err != nil {
			return nil, err
		}
		t.Tick = uint64(tick)
		out = append(out, t)
	}
	return out, rows.Err()
}

type FlowRow struct {
	Channel  string `json:"channel"`
	Resource string `json:"resource"`
	Moves    int    `json:"moves"`
	Amount   int64  `json:"amount"`
}

// Flows totals moved amounts per resource in [from, to].
func (r *Reader) Flows(from, to uint64) ([]FlowRow, error) {
	rows, err := r.db.Query(`SELECT channel,resource,COUNT(*),SUM(amount) FROM transfers
		WHERE tick>=? AND tick<=? GROUP BY channel,resource ORDER BY channel,resource`, int64(from), int64(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FlowRow
	for rows.Next() {
		var f FlowRow
		if err := rows.Scan(&f.Channel, &f.Resource, &f.Moves, &f.Amount); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

type TransferRow struct {
	Tick     uint64 `json:"tick"`
	Master   [3]int `json:"master"`
	Channel  string `json:"channel"`
	From     [3]int `json:"from"`
	FromSide string `json:"from_side"`
	To       [3]int `json:"to"`
	ToSide   string `json:"to_side"`
	Resource string `json:"resource"`
	Amount   int    `json:"amount"`
}

// Transfers returns the newest moves of resource, or of anything when
// resource is empty.
func (r *Reader) Transfers(resource string, limit int) ([]TransferRow, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT tick,mx,my,mz,channel,fx,fy,fz,from_side,tx,ty,tz,to_side,resource,amount FROM transfers`
	args := []any{}
	if resource != "" {
		q += ` WHERE resource=?`
		args = append(args, resource)
	}
	q += ` ORDER BY tick DESC, seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TransferRow
	for rows.Next() {
		var t TransferRow
		var tick int64
		if err := rows.Scan(&tick,
			&t.Master[0], &t.Master[1], &t.Master[2],
			&t.Channel,
			&t.From[0], &t.From[1], &t.From[2], &t.FromSide,
			&t.To[0], &t.To[1], &t.To[2], &t.ToSide,
			&t.Resource, &t.Amount,
		); err != nil {
			return nil, err
		}
		t.Tick = uint64(tick)
		out = append(out, t)
	}
	return out, rows.Err()
}

type EditRow struct {
	Tick  uint64 `json:"tick"`
	Op    string `json:"op"`
	Pos   [3]int `json:"pos"`
	Error string `json:"error,omitempty"`
}

// FailedEdits returns the newest rejected edits.
func (r *Reader) FailedEdits(limit int) ([]EditRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(`SELECT tick,op,x,y,z,error FROM edits WHERE error IS NOT NULL ORDER BY tick DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EditRow
	for rows.Next() {
		var e EditRow
		var tick int64
		if err := rows.Scan(&tick, &e.Op, &e.Pos[0], &e.Pos[1], &e.Pos[2], &e.Error); err != nil {
			return nil, err
		}
		e.Tick = uint64(tick)
		out = append(out, e)
	}
	return out, rows.Err()
}

type SnapshotRow struct {
	Tick       uint64 `json:"tick"`
	Path       string `json:"path"`
	Digest     string `json:"digest"`
	Nodes      int    `json:"nodes"`
	Masters    int    `json:"masters"`
	Containers int    `json:"containers"`
	Tanks      int    `json:"tanks"`
}

func (r *Reader) Snapshots() ([]SnapshotRow, error) {
	rows, err := r.db.Query(`SELECT tick,path,digest,nodes,masters,containers,tanks FROM snapshots ORDER BY tick`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotRow
	for rows.Next() {
		var s SnapshotRow
		var tick int64
		if err := rows.Scan(&tick, &s.Path, &s.Digest, &s.Nodes, &s.Masters, &s.Containers, &s.Tanks); err != nil {
			return nil, err
		}
		s.Tick = uint64(tick)
		out = append(out, s)
	}
	return out, rows.Err()
}

func yamlFileAsJSON(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v any
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
