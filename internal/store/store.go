package store

import (
	"database/sql"
	"fmt"
	"log"
	"math"
	"sync"

	_ "modernc.org/sqlite"
)

// CommitHook is invoked once per written record after a batch lands.
type CommitHook func(symbol string, ts uint64)

// Store is the canonical price map: (symbol, ts) -> price, ordered by
// symbol then timestamp ascending. At most one price exists per key; a
// later write overwrites the earlier one.
type Store struct {
	db    *sql.DB
	mu    sync.Mutex // serializes write transactions
	hooks []CommitHook
}

// Open opens (or creates) the price database and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so long query scans keep a stable snapshot while
	// ingestion commits concurrently.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] price store opened: %s", path)
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS prices (
		symbol TEXT    NOT NULL,
		ts     INTEGER NOT NULL,
		price  REAL    NOT NULL,
		PRIMARY KEY (symbol, ts)
	) WITHOUT ROWID`)
	return err
}

// AddCommitHook registers a hook fired for every record of every committed
// batch. Hooks must be registered before traffic starts.
func (s *Store) AddCommitHook(h CommitHook) {
	s.hooks = append(s.hooks, h)
}

// Get returns the price stored at (symbol, ts), if any.
func (s *Store) Get(symbol string, ts uint64) (float64, bool, error) {
	var price float64
	err := s.db.QueryRow(`SELECT price FROM prices WHERE symbol=? AND ts=?`,
		symbol, clampTs(ts)).Scan(&price)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get %s@%d: %w", symbol, ts, err)
	}
	return price, true, nil
}

// Range scans one symbol over the half-open interval [from, to),
// timestamps strictly ascending.
func (s *Store) Range(symbol string, from, to uint64) (*Iterator, error) {
	rows, err := s.db.Query(
		`SELECT ts, price FROM prices WHERE symbol=? AND ts>=? AND ts<? ORDER BY ts`,
		symbol, clampTs(from), clampTs(to))
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", symbol, err)
	}
	return &Iterator{rows: rows, symbol: symbol}, nil
}

// Prefix scans every record of one symbol, timestamps ascending.
func (s *Store) Prefix(symbol string) (*Iterator, error) {
	rows, err := s.db.Query(
		`SELECT ts, price FROM prices WHERE symbol=? ORDER BY ts`, symbol)
	if err != nil {
		return nil, fmt.Errorf("prefix %s: %w", symbol, err)
	}
	return &Iterator{rows: rows, symbol: symbol}, nil
}

// Scan walks the whole store ordered by symbol, then timestamp.
func (s *Store) Scan() (*Iterator, error) {
	rows, err := s.db.Query(`SELECT symbol, ts, price FROM prices ORDER BY symbol, ts`)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return &Iterator{rows: rows, full: true}, nil
}

// Symbols lists every distinct symbol in the store, sorted.
func (s *Store) Symbols() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT symbol FROM prices ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var symb string
		if err := rows.Scan(&symb); err != nil {
			return nil, err
		}
		out = append(out, symb)
	}
	return out, rows.Err()
}

// Commit writes the batch atomically in one transaction, fires the commit
// hooks and resets the batch. An empty batch is a no-op.
func (s *Store) Commit(b *Batch) error {
	if len(b.puts) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO prices (symbol, ts, price) VALUES (?,?,?)
		ON CONFLICT(symbol, ts) DO UPDATE SET price=excluded.price`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare commit: %w", err)
	}
	for _, p := range b.puts {
		if _, err := stmt.Exec(p.symbol, clampTs(p.ts), p.price); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("put %s@%d: %w", p.symbol, p.ts, err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	for _, p := range b.puts {
		for _, h := range s.hooks {
			h(p.symbol, p.ts)
		}
	}
	b.puts = b.puts[:0]
	return nil
}

// Compact truncates the WAL and vacuums the database file.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if _, err := s.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	log.Println("[INFO] closing price store")
	return s.db.Close()
}

// sqlite stores INTEGER as int64; the unbounded sentinel must not wrap.
func clampTs(ts uint64) int64 {
	if ts > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(ts)
}

type put struct {
	symbol string
	ts     uint64
	price  float64
}

// Batch accumulates writes for one atomic commit.
type Batch struct {
	puts []put
}

// Set schedules a write of price at (symbol, ts).
func (b *Batch) Set(symbol string, ts uint64, price float64) {
	b.puts = append(b.puts, put{symbol: symbol, ts: ts, price: price})
}

// Len reports the number of pending writes.
func (b *Batch) Len() int { return len(b.puts) }

// Iterator walks an ordered result set. It observes the snapshot taken
// when the query started.
type Iterator struct {
	rows   *sql.Rows
	full   bool // rows include the symbol column
	symbol string
	ts     int64
	price  float64
	err    error
}

// Next advances to the following record, returning false at the end of
// the sequence or on error.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.rows.Next() {
		it.err = it.rows.Err()
		return false
	}
	if it.full {
		it.err = it.rows.Scan(&it.symbol, &it.ts, &it.price)
	} else {
		it.err = it.rows.Scan(&it.ts, &it.price)
	}
	return it.err == nil
}

// Symbol returns the symbol of the current record.
func (it *Iterator) Symbol() string { return it.symbol }

// Time returns the timestamp of the current record.
func (it *Iterator) Time() uint64 { return uint64(it.ts) }

// Price returns the price of the current record.
func (it *Iterator) Price() float64 { return it.price }

// Err reports the first error hit while iterating.
func (it *Iterator) Err() error { return it.err }

// Close releases the underlying rows; safe to call more than once.
func (it *Iterator) Close() error { return it.rows.Close() }
