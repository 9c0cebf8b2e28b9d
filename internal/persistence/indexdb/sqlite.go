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
	"sort"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"dishrush.game/internal/sim/catalogs"
	"dishrush.game/internal/sim/events"
	"dishrush.game/internal/sim/tuning"
	"dishrush.game/internal/sim/world"
)

// SQLiteIndex is a queryable secondary copy of the tick and signal journals.
// Writes are queued and applied by a single writer goroutine; the JSONL logs
// remain the source of truth, so a full queue drops rather than blocks.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick   atomic.Uint64
	dropSignal atomic.Uint64
	writeFail  atomic.Uint64
}

type IndexStats struct {
	QueueDepth      int
	QueueCapacity   int
	DropTickTotal   uint64
	DropSignalTotal uint64
	WriteFailTotal  uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSignal
	reqSync
)

type req struct {
	kind reqKind

	tick   world.TickLogEntry
	signal signalRow
	done   chan struct{}
}

type signalRow struct {
	Tick    uint64
	AgentID string
	Kind    string
	Items   int
	Payload string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
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
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// A busy arena emits a handful of signals per agent per tick.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
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
			joins INTEGER NOT NULL,
			leaves INTEGER NOT NULL,
			inputs INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS joins (
			tick INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			name TEXT NOT NULL,
			PRIMARY KEY (tick, agent_id)
		);`,
		`CREATE TABLE IF NOT EXISTS leaves (
			tick INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			PRIMARY KEY (tick, agent_id)
		);`,
		`CREATE TABLE IF NOT EXISTS inputs (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			input_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_inputs_agent_tick ON inputs(agent_id, tick);`,
		`CREATE TABLE IF NOT EXISTS signals (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			items INTEGER NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_signals_agent_kind ON signals(agent_id, kind);`,
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

func (s *SQLiteIndex) Stats() IndexStats {
	if s == nil {
		return IndexStats{}
	}
	return IndexStats{
		QueueDepth:      len(s.ch),
		QueueCapacity:   cap(s.ch),
		DropTickTotal:   s.dropTick.Load(),
		DropSignalTotal: s.dropSignal.Load(),
		WriteFailTotal:  s.writeFail.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

// Handle is a world.SignalHandler.
func (s *SQLiteIndex) Handle(agentID string, tick uint64, e events.Event) {
	if s == nil || s.closed.Load() {
		return
	}
	b, err := json.Marshal(e)
	if err != nil {
		s.writeFail.Add(1)
		return
	}
	row := signalRow{Tick: tick, AgentID: agentID, Kind: string(e.Kind()), Payload: string(b)}
	switch ev := e.(type) {
	case events.Delivered:
		row.Items = len(ev.Items)
	case events.Stumble:
		row.Items = len(ev.Dropped)
	}
	select {
	case s.ch <- req{kind: reqSignal, signal: row}:
	default:
		s.dropSignal.Add(1)
	}
}

// Sync blocks until every write queued before it is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqSync, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
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
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "items.json")); err == nil {
			rows = append(rows, kv{name: "items_defs", digest: cats.Items.DefsDigest, json: b})
		}
	}
	if b, _ := json.Marshal(cats.Items.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "items_palette", digest: cats.Items.PaletteDigest, json: b})
	}
	// Tuning: store the values we actually apply (canonical JSON).
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

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CatalogDigest returns the stored digest for one catalog row.
func (s *SQLiteIndex) CatalogDigest(ctx context.Context, name string) (string, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM catalogs WHERE name = ?`, name).Scan(&d)
	return d, err
}

type AgentSummary struct {
	AgentID       string `json:"agent_id"`
	Name          string `json:"name,omitempty"`
	Pickups       int64  `json:"pickups"`
	Deliveries    int64  `json:"deliveries"`
	DishesCleaned int64  `json:"dishes_cleaned"`
	Stumbles      int64  `json:"stumbles"`
	DishesDropped int64  `json:"dishes_dropped"`
	Impairments   int64  `json:"impairments"`
	Inputs        int64  `json:"inputs"`
}

type Summary struct {
	Ticks    int64            `json:"ticks"`
	LastTick uint64           `json:"last_tick"`
	Signals  map[string]int64 `json:"signals"`
	Agents   []AgentSummary   `json:"agents"`
}

// Summary aggregates everything indexed so far. Call Sync first to include
// writes still in the queue.
func (s *SQLiteIndex) Summary(ctx context.Context) (Summary, error) {
	out := Summary{Signals: map[string]int64{}}

	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(tick) FROM ticks`).Scan(&out.Ticks, &last); err != nil {
		return Summary{}, err
	}
	if last.Valid {
		out.LastTick = uint64(last.Int64)
	}

	agents := map[string]*AgentSummary{}
	get := func(id string) *AgentSummary {
		a := agents[id]
		if a == nil {
			a = &AgentSummary{AgentID: id}
			agents[id] = a
		}
		return a
	}

	rows, err := s.db.QueryContext(ctx, `SELECT agent_id, kind, COUNT(*), COALESCE(SUM(items),0) FROM signals GROUP BY agent_id, kind`)
	if err != nil {
		return Summary{}, err
	}
	for rows.Next() {
		var (
			agentID, kind string
			n, items      int64
		)
		if err := rows.Scan(&agentID, &kind, &n, &items); err != nil {
			_ = rows.Close()
			return Summary{}, err
		}
		out.Signals[kind] += n
		if agentID == "" {
			continue
		}
		a := get(agentID)
		switch events.Kind(kind) {
		case events.KindPickup:
			a.Pickups += n
		case events.KindDelivered:
			a.Deliveries += n
			a.DishesCleaned += items
		case events.KindStumble:
			a.Stumbles += n
			a.DishesDropped += items
		case events.KindImpaired:
			a.Impairments += n
		}
	}
	if err := rows.Close(); err != nil {
		return Summary{}, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT agent_id, name FROM joins`)
	if err != nil {
		return Summary{}, err
	}
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			_ = rows.Close()
			return Summary{}, err
		}
		get(id).Name = name
	}
	if err := rows.Close(); err != nil {
		return Summary{}, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT agent_id, COUNT(*) FROM inputs GROUP BY agent_id`)
	if err != nil {
		return Summary{}, err
	}
	for rows.Next() {
		var id string
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			_ = rows.Close()
			return Summary{}, err
		}
		get(id).Inputs = n
	}
	if err := rows.Close(); err != nil {
		return Summary{}, err
	}

	ids := make([]string, 0, len(agents))
	for id := range agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out.Agents = append(out.Agents, *agents[id])
	}
	return out, nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,joins,leaves,inputs,raw_json) VALUES(?,?,?,?,?,?)`)
	insertJoin, _ := s.db.Prepare(`INSERT OR REPLACE INTO joins(tick,agent_id,name) VALUES(?,?,?)`)
	insertLeave, _ := s.db.Prepare(`INSERT OR REPLACE INTO leaves(tick,agent_id) VALUES(?,?)`)
	insertInput, _ := s.db.Prepare(`INSERT OR REPLACE INTO inputs(tick,seq,agent_id,kind,input_json) VALUES(?,?,?,?,?)`)
	insertSignal, _ := s.db.Prepare(`INSERT OR REPLACE INTO signals(tick,seq,agent_id,kind,items,payload) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertJoin, insertLeave, insertInput, insertSignal} {
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

		lastSignalTick uint64
		signalSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.writeFail.Add(1)
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
		if err := tx.Commit(); err != nil {
			s.writeFail.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		s.writeFail.Add(1)
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
		if r.kind == reqSync {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			b, _ := json.Marshal(e)
			if !exec(insertTick, int64(e.Tick), e.Digest, len(e.Joins), len(e.Leaves), len(e.Inputs), string(b)) {
				continue
			}
			for _, j := range e.Joins {
				if !exec(insertJoin, int64(e.Tick), j.AgentID, j.Name) {
					break
				}
			}
			for _, id := range e.Leaves {
				if !exec(insertLeave, int64(e.Tick), id) {
					break
				}
			}
			for i, in := range e.Inputs {
				inJSON, _ := json.Marshal(in.Input)
				if !exec(insertInput, int64(e.Tick), i, in.AgentID, in.Input.Kind, string(inJSON)) {
					break
				}
			}

		case reqSignal:
			sg := r.signal
			if sg.Tick != lastSignalTick {
				lastSignalTick = sg.Tick
				signalSeq = 0
			}
			seq := signalSeq
			signalSeq++
			exec(insertSignal, int64(sg.Tick), seq, sg.AgentID, sg.Kind, sg.Items, sg.Payload)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
