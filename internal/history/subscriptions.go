package history

import (
	"context"
	"encoding/json"
	"fmt"

	"tradingsignalcore/internal/model"
)

// EnsureUser returns the id of the users row for chatID, inserting one
// if it doesn't already exist.
func (s *Store) EnsureUser(chatID int64) (int64, error) {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO users (chat_id) VALUES (?)`, chatID)
	if err != nil {
		return 0, fmt.Errorf("ensure user %d: %w", chatID, err)
	}
	var id int64
	if err := s.db.QueryRow(`SELECT id FROM users WHERE chat_id = ?`, chatID).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup user id %d: %w", chatID, err)
	}
	return id, nil
}

// Subscribe records that userID wants signals for (symbol, timeframe).
func (s *Store) Subscribe(userID int64, symbol, timeframe string) error {
	pairID, err := s.EnsurePair(symbol, "", "")
	if err != nil {
		return err
	}

	var existing string
	err = s.db.QueryRow(`SELECT timeframes FROM user_pairs WHERE user_id = ? AND pair_id = ?`, userID, pairID).Scan(&existing)
	var tfs []string
	if err == nil {
		_ = json.Unmarshal([]byte(existing), &tfs)
	}
	for _, tf := range tfs {
		if tf == timeframe {
			return nil // already subscribed
		}
	}
	tfs = append(tfs, timeframe)
	data, _ := json.Marshal(tfs)

	_, err = s.db.Exec(`
		INSERT INTO user_pairs (user_id, pair_id, timeframes) VALUES (?, ?, ?)
		ON CONFLICT(user_id, pair_id) DO UPDATE SET timeframes = excluded.timeframes
	`, userID, pairID, string(data))
	if err != nil {
		return fmt.Errorf("subscribe user=%d pair=%s: %w", userID, symbol, err)
	}
	return nil
}

// SubscribersFor returns the chat IDs of every user subscribed to
// (symbol, timeframe); internal/subscription.Index reads it on refresh.
func (s *Store) SubscribersFor(ctx context.Context, symbol, timeframe string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.chat_id, up.timeframes
		FROM user_pairs up
		JOIN users u ON u.id = up.user_id
		JOIN pairs p ON p.id = up.pair_id
		WHERE p.symbol = ? AND u.is_active = 1
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("subscribers for %s/%s: %w", symbol, timeframe, err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var chatID int64
		var tfsJSON string
		if err := rows.Scan(&chatID, &tfsJSON); err != nil {
			return nil, fmt.Errorf("scan subscriber row: %w", err)
		}
		var tfs []string
		if err := json.Unmarshal([]byte(tfsJSON), &tfs); err != nil {
			continue
		}
		for _, tf := range tfs {
			if tf == timeframe {
				out = append(out, chatID)
				break
			}
		}
	}
	return out, rows.Err()
}

// AllPairs returns every active trading pair; internal/subscription.Index
// reads it on refresh.
func (s *Store) AllPairs(ctx context.Context) ([]model.Pair, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, symbol FROM pairs WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("all pairs: %w", err)
	}
	defer rows.Close()

	var out []model.Pair
	for rows.Next() {
		var p model.Pair
		if err := rows.Scan(&p.ID, &p.Symbol); err != nil {
			return nil, fmt.Errorf("scan pair row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
