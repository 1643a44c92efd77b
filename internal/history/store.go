// Package history implements the durable relational store: users,
// pairs, per-user subscriptions, candle history for cold-start backfill,
// and the evaluated-signal/delivery audit trail. Backed by SQLite in
// WAL mode with a single writer connection and a batched-transaction
// writer.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"tradingsignalcore/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
	snapshotKeep      = 10
)

// Store is a single-writer SQLite-backed implementation of
// model.CandleHistoryStore and model.SignalHistoryWriter, plus the
// subscription/pair bookkeeping internal/subscription reads from.
type Store struct {
	db *sql.DB

	pairIDCache map[string]int64
}

// Open opens (creating if absent) the SQLite database at path, in WAL
// mode with a single connection.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[history] opened database at %s", path)
	return &Store{db: db, pairIDCache: make(map[string]int64)}, nil
}

// DB returns the underlying connection for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// EnsurePair returns the id of the pairs row for symbol, inserting one
// if it doesn't already exist. base/quote are best-effort splits
// (e.g. "BTCUSDT" -> "BTC","USDT") left to the caller.
func (s *Store) EnsurePair(symbol, base, quote string) (int64, error) {
	if id, ok := s.pairIDCache[symbol]; ok {
		return id, nil
	}

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO pairs (symbol, base_asset, quote_asset) VALUES (?, ?, ?)`,
		symbol, base, quote,
	)
	if err != nil {
		return 0, fmt.Errorf("ensure pair %s: %w", symbol, err)
	}

	var id int64
	if err := s.db.QueryRow(`SELECT id FROM pairs WHERE symbol = ?`, symbol).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup pair id %s: %w", symbol, err)
	}
	s.pairIDCache[symbol] = id
	return id, nil
}

// WriteCandle upserts one candle into the candles table, recording its
// closed flag in is_closed.
func (s *Store) WriteCandle(ctx context.Context, c model.Candle) error {
	pairID, err := s.EnsurePair(c.Symbol, "", "")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO candles (pair_id, timeframe, open_time, close_time, o, h, l, c, volume, is_closed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pair_id, timeframe, open_time) DO UPDATE SET
			close_time = excluded.close_time, o = excluded.o, h = excluded.h,
			l = excluded.l, c = excluded.c, volume = excluded.volume,
			is_closed = excluded.is_closed
	`, pairID, c.Timeframe, c.OpenTime.Unix(), c.CloseTime.Unix(),
		c.Open, c.High, c.Low, c.Close, c.Volume, boolToInt(c.Closed))
	if err != nil {
		return fmt.Errorf("write candle %s: %w", c.Key(), err)
	}
	return nil
}

// WriteCandleBatch upserts a batch of candles in a single transaction
// for write throughput.
func (s *Store) WriteCandleBatch(ctx context.Context, candles []model.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin candle batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (pair_id, timeframe, open_time, close_time, o, h, l, c, volume, is_closed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pair_id, timeframe, open_time) DO UPDATE SET
			close_time = excluded.close_time, o = excluded.o, h = excluded.h,
			l = excluded.l, c = excluded.c, volume = excluded.volume,
			is_closed = excluded.is_closed
	`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("prepare candle batch: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, c := range candles {
		pairID, err := s.EnsurePair(c.Symbol, "", "")
		if err != nil {
			tx.Rollback()
			return n, err
		}
		_, err = stmt.ExecContext(ctx, pairID, c.Timeframe, c.OpenTime.Unix(), c.CloseTime.Unix(),
			c.Open, c.High, c.Low, c.Close, c.Volume, boolToInt(c.Closed))
		if err != nil {
			tx.Rollback()
			return n, fmt.Errorf("exec candle batch for %s: %w", c.Key(), err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return n, fmt.Errorf("commit candle batch: %w", err)
	}
	return n, nil
}

// ReadRecentCandles returns the most recent limit closed candles for
// (symbol, timeframe), oldest first, for indicator engine backfill.
func (s *Store) ReadRecentCandles(symbol, timeframe string, limit int) ([]model.Candle, error) {
	rows, err := s.db.Query(`
		SELECT c.open_time, c.close_time, c.o, c.h, c.l, c.c, c.volume, c.is_closed
		FROM candles c
		JOIN pairs p ON p.id = c.pair_id
		WHERE p.symbol = ? AND c.timeframe = ? AND c.is_closed = 1
		ORDER BY c.open_time DESC
		LIMIT ?
	`, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("read recent candles %s/%s: %w", symbol, timeframe, err)
	}
	defer rows.Close()

	var out []model.Candle
	for rows.Next() {
		var openUnix, closeUnix int64
		var closedInt int
		c := model.Candle{Symbol: symbol, Timeframe: timeframe}
		if err := rows.Scan(&openUnix, &closeUnix, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &closedInt); err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		c.OpenTime = time.Unix(openUnix, 0).UTC()
		c.CloseTime = time.Unix(closeUnix, 0).UTC()
		c.Closed = closedInt != 0
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// reverse to oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// SaveSignal records one evaluated signal (pre-fanout) to the audit trail.
func (s *Store) SaveSignal(ctx context.Context, sig model.Signal) error {
	pairID, err := s.EnsurePair(sig.Symbol, "", "")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO signal_history
			(signal_uid, pair_id, timeframe, signal_type, signal_value, price, sent_at, processing_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sig.ID, pairID, sig.Timeframe, string(sig.Kind), sig.RSIValue, sig.Price,
		sig.TS.Unix(), sig.ProcessingTimeMS)
	if err != nil {
		return fmt.Errorf("save signal %s: %w", sig.ID, err)
	}
	return nil
}

// SaveDelivery records one per-user delivery attempt outcome.
func (s *Store) SaveDelivery(ctx context.Context, d model.DeliveryRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (signal_uid, user_id, attempts, delivered, blocked, last_error, last_attempt, latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, d.SignalID, d.UserID, d.Attempts, boolToInt(d.Delivered), boolToInt(d.Blocked),
		d.LastError, d.LastAttempt.Unix(), d.LatencyMS)
	if err != nil {
		return fmt.Errorf("save delivery for signal %s: %w", d.SignalID, err)
	}
	return nil
}

// SaveSnapshotDurable persists an indicator engine checkpoint to SQLite
// as a durability backstop alongside the Redis-held snapshot, pruning
// all but the most recent snapshotKeep rows.
func (s *Store) SaveSnapshotDurable(snap interface{}) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if _, err := s.db.Exec(`INSERT INTO engine_snapshots (data) VALUES (?)`, string(data)); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	_, err = s.db.Exec(`DELETE FROM engine_snapshots WHERE id NOT IN (
		SELECT id FROM engine_snapshots ORDER BY created_at DESC, id DESC LIMIT ?)`, snapshotKeep)
	if err != nil {
		log.Printf("[history] prune snapshots warning: %v", err)
	}
	return nil
}

// ReadLatestSnapshotDurable returns the most recently saved checkpoint
// JSON, or nil if none exists.
func (s *Store) ReadLatestSnapshotDurable() ([]byte, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM engine_snapshots ORDER BY created_at DESC, id DESC LIMIT 1`).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return []byte(data), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var (
	_ model.CandleHistoryStore  = (*Store)(nil)
	_ model.SignalHistoryWriter = (*Store)(nil)
)
