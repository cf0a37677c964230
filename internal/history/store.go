package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	apperr "tradedesk/internal/errors"
	"tradedesk/internal/model"
	"tradedesk/internal/wallet"
)

// Store persists executed trades and wallet session state across
// invocations. A file lock serializes writers from concurrent processes.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create history lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS trades (
			trade_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			family TEXT NOT NULL,
			source TEXT NOT NULL,
			submitted_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_trades_status_updated ON trades(status, updated_at DESC);",
		`CREATE TABLE IF NOT EXISTS session (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init history schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(trade model.Trade) error {
	if strings.TrimSpace(trade.ID) == "" {
		return fmt.Errorf("save trade: missing trade id")
	}
	unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	payload, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}
	submitted := trade.SubmittedAt.UTC().Unix()
	updated := trade.UpdatedAt.UTC().Unix()
	if submitted <= 0 {
		submitted = time.Now().UTC().Unix()
	}
	if updated <= 0 {
		updated = submitted
	}

	_, err = s.db.Exec(`
		INSERT INTO trades (trade_id, status, family, source, submitted_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_id) DO UPDATE SET
			status=excluded.status,
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, trade.ID, trade.Status, string(trade.Family), trade.Source, submitted, updated, payload)
	if err != nil {
		return fmt.Errorf("save trade: %w", err)
	}
	return nil
}

func (s *Store) Get(tradeID string) (model.Trade, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM trades WHERE trade_id = ?", tradeID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Trade{}, apperr.New(apperr.CodeValidation, fmt.Sprintf("trade not found: %s", tradeID))
		}
		return model.Trade{}, fmt.Errorf("read trade: %w", err)
	}
	var trade model.Trade
	if err := json.Unmarshal(payload, &trade); err != nil {
		return model.Trade{}, fmt.Errorf("decode trade payload: %w", err)
	}
	return trade, nil
}

func (s *Store) List(status string, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(status) == "" {
		rows, err = s.db.Query("SELECT payload FROM trades ORDER BY updated_at DESC, trade_id LIMIT ?", limit)
	} else {
		rows, err = s.db.Query("SELECT payload FROM trades WHERE status = ? ORDER BY updated_at DESC, trade_id LIMIT ?", status, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	trades := make([]model.Trade, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		var trade model.Trade
		if err := json.Unmarshal(payload, &trade); err != nil {
			return nil, fmt.Errorf("decode trade row: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}
	return trades, nil
}

// UpdateStatus moves a pending trade to confirmed or failed. Settled trades
// never change again.
func (s *Store) UpdateStatus(tradeID, status, txHash string) (model.Trade, error) {
	switch status {
	case model.TradeConfirmed, model.TradeFailed:
	default:
		return model.Trade{}, apperr.New(apperr.CodeValidation, fmt.Sprintf("invalid trade status: %s", status))
	}

	trade, err := s.Get(tradeID)
	if err != nil {
		return model.Trade{}, err
	}
	if trade.Status != model.TradePending {
		return model.Trade{}, apperr.New(apperr.CodeValidation,
			fmt.Sprintf("trade %s already settled as %s", tradeID, trade.Status))
	}

	trade.Status = status
	trade.UpdatedAt = time.Now().UTC()
	if txHash != "" {
		trade.TxHash = txHash
	}
	if err := s.Save(trade); err != nil {
		return model.Trade{}, err
	}
	return trade, nil
}

const sessionWalletKey = "wallet_snapshot"

// SaveWalletSnapshot persists which wallets were connected and which family
// was pinned, so the next invocation starts where this one left off.
func (s *Store) SaveWalletSnapshot(snap wallet.Snapshot) error {
	unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal wallet snapshot: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO session (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value
	`, sessionWalletKey, payload)
	if err != nil {
		return fmt.Errorf("save wallet snapshot: %w", err)
	}
	return nil
}

func (s *Store) WalletSnapshot() (wallet.Snapshot, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT value FROM session WHERE key = ?", sessionWalletKey).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return wallet.Snapshot{}, nil
		}
		return wallet.Snapshot{}, fmt.Errorf("read wallet snapshot: %w", err)
	}
	var snap wallet.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return wallet.Snapshot{}, fmt.Errorf("decode wallet snapshot: %w", err)
	}
	return snap, nil
}

func (s *Store) acquire() (func(), error) {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("lock history store: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock history store: timeout acquiring lock")
	}
	return func() { _ = s.lock.Unlock() }, nil
}
