package history

import "database/sql"

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                    INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id               INTEGER NOT NULL UNIQUE,
			notifications_enabled INTEGER NOT NULL DEFAULT 1,
			is_active             INTEGER NOT NULL DEFAULT 1,
			real_time_enabled     INTEGER NOT NULL DEFAULT 0,
			created_at            INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);

		CREATE TABLE IF NOT EXISTS pairs (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol               TEXT    NOT NULL UNIQUE,
			base_asset           TEXT    NOT NULL,
			quote_asset          TEXT    NOT NULL,
			is_active            INTEGER NOT NULL DEFAULT 1,
			real_time_monitoring INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS user_pairs (
			user_id         INTEGER NOT NULL REFERENCES users(id),
			pair_id         INTEGER NOT NULL REFERENCES pairs(id),
			timeframes      TEXT    NOT NULL DEFAULT '[]',
			real_time_active INTEGER NOT NULL DEFAULT 0,
			last_signal_time INTEGER,
			PRIMARY KEY (user_id, pair_id)
		);

		CREATE TABLE IF NOT EXISTS signal_history (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			signal_uid         TEXT    NOT NULL UNIQUE,
			user_id            INTEGER,
			pair_id            INTEGER NOT NULL,
			timeframe          TEXT    NOT NULL,
			signal_type        TEXT    NOT NULL,
			signal_value       REAL    NOT NULL,
			price              REAL    NOT NULL,
			sent_at            INTEGER NOT NULL,
			processing_time_ms REAL    NOT NULL,
			delivery_time_ms   REAL
		);

		CREATE TABLE IF NOT EXISTS deliveries (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			signal_uid  TEXT    NOT NULL,
			user_id     INTEGER NOT NULL,
			attempts    INTEGER NOT NULL,
			delivered   INTEGER NOT NULL,
			blocked     INTEGER NOT NULL,
			last_error  TEXT,
			last_attempt INTEGER NOT NULL,
			latency_ms  REAL
		);

		CREATE TABLE IF NOT EXISTS candles (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			pair_id    INTEGER NOT NULL,
			timeframe  TEXT    NOT NULL,
			open_time  INTEGER NOT NULL,
			close_time INTEGER NOT NULL,
			o          REAL    NOT NULL,
			h          REAL    NOT NULL,
			l          REAL    NOT NULL,
			c          REAL    NOT NULL,
			volume     REAL    NOT NULL,
			is_closed  INTEGER NOT NULL,
			UNIQUE (pair_id, timeframe, open_time)
		);
		CREATE INDEX IF NOT EXISTS idx_candles_pair_tf_open
			ON candles (pair_id, timeframe, open_time);

		CREATE TABLE IF NOT EXISTS engine_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	return err
}
