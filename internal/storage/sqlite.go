// Package storage persists daily closing prices in SQLite and serves them as
// price tables.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iwvelando/autocall-forecast/pkg/datetime"
	"github.com/iwvelando/autocall-forecast/pkg/mathutil"
	"github.com/iwvelando/autocall-forecast/pkg/pricetable"
	// Register sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ErrInvalidPrice is returned when a close is not strictly positive.
var ErrInvalidPrice = errors.New("invalid price")

// Price is one stored daily close.
type Price struct {
	Date  time.Time
	Asset string
	Close float64
}

// Store reads and writes the prices table.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens the database at dsn. Use ":memory:" for a throwaway store.
func OpenSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", dsn, err)
	}
	// An in-memory database lives as long as its one connection.
	db.SetMaxOpenConns(1)
	return db, nil
}

// InitSchema creates the prices table if it does not exist.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS prices(
		date TEXT NOT NULL, asset TEXT NOT NULL, close REAL NOT NULL,
		PRIMARY KEY(date, asset)
	)`)
	if err != nil {
		return fmt.Errorf("failed to create prices table: %w", err)
	}
	return nil
}

// NewStore wraps an initialised database.
// If logger is nil, it will use a no-op logger to prevent panics.
func NewStore(logger *zap.Logger, db *sql.DB) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Open is OpenSQLite, InitSchema and NewStore in one call.
func Open(logger *zap.Logger, dsn string) (*Store, error) {
	db, err := OpenSQLite(dsn)
	if err != nil {
		return nil, err
	}
	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewStore(logger, db), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SavePrices upserts closes in a single transaction.
func (s *Store) SavePrices(ctx context.Context, prices []Price) error {
	for _, p := range prices {
		if !mathutil.IsFinite(p.Close) || p.Close <= 0 {
			return fmt.Errorf("%w: %s on %s is %v", ErrInvalidPrice, p.Asset, datetime.Format(p.Date), p.Close)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO prices(date,asset,close) VALUES(?,?,?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range prices {
		if _, err := stmt.ExecContext(ctx, datetime.Format(p.Date), p.Asset, p.Close); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to save %s on %s: %w", p.Asset, datetime.Format(p.Date), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit prices: %w", err)
	}

	s.logger.Debug("saved prices",
		zap.String("op", "storage.SavePrices"),
		zap.Int("count", len(prices)),
	)
	return nil
}

// SaveTable stores every cell of a price table.
func (s *Store) SaveTable(ctx context.Context, table *pricetable.Table) error {
	assets := table.Assets()
	prices := make([]Price, 0, table.Len()*len(assets))
	for i := 0; i < table.Len(); i++ {
		for j, a := range assets {
			prices = append(prices, Price{Date: table.DateAt(i), Asset: a, Close: table.At(i, j)})
		}
	}
	return s.SavePrices(ctx, prices)
}

// Fetch implements pricetable.Provider. The returned table opens on start,
// carrying each asset's latest close on or before start, and then holds every
// stored date in (start, end] with gaps forward filled. An asset with no close
// on or before start is rejected with pricetable.ErrMissingAsset.
func (s *Store) Fetch(ctx context.Context, start, end time.Time, assets []string) (*pricetable.Table, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: no assets requested", pricetable.ErrMissingAsset)
	}
	start, end = datetime.Truncate(start), datetime.Truncate(end)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", pricetable.ErrMissingDate, datetime.Format(end), datetime.Format(start))
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(assets)), ",")
	args := make([]any, 0, len(assets)+2)
	for _, a := range assets {
		args = append(args, a)
	}

	b := pricetable.NewBuilder(assets)

	opening, err := s.db.QueryContext(ctx,
		`SELECT p.asset, p.close FROM prices p
		 WHERE p.asset IN (`+placeholders+`)
		 AND p.date = (SELECT MAX(q.date) FROM prices q WHERE q.asset = p.asset AND q.date <= ?)`,
		append(args, datetime.Format(start))...)
	if err != nil {
		return nil, fmt.Errorf("failed to query opening prices: %w", err)
	}
	seen := make(map[string]bool, len(assets))
	for opening.Next() {
		var asset string
		var px float64
		if err := opening.Scan(&asset, &px); err != nil {
			opening.Close()
			return nil, fmt.Errorf("failed to scan opening price: %w", err)
		}
		b.Set(start, asset, px)
		seen[asset] = true
	}
	opening.Close()
	if err := opening.Err(); err != nil {
		return nil, fmt.Errorf("failed to read opening prices: %w", err)
	}
	for _, a := range assets {
		if !seen[a] {
			return nil, fmt.Errorf("%w: %s has no close on or before %s", pricetable.ErrMissingAsset, a, datetime.Format(start))
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT date, asset, close FROM prices
		 WHERE asset IN (`+placeholders+`) AND date > ? AND date <= ?
		 ORDER BY date ASC`,
		append(args, datetime.Format(start), datetime.Format(end))...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var date, asset string
		var px float64
		if err := rows.Scan(&date, &asset, &px); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		d, err := datetime.ParseDate(date)
		if err != nil {
			return nil, err
		}
		b.Set(d, asset, px)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read prices: %w", err)
	}

	table, err := b.Build(true)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("fetched prices",
		zap.String("op", "storage.Fetch"),
		zap.Strings("assets", assets),
		zap.Int("dates", table.Len()),
		zap.String("first", datetime.Format(table.First())),
		zap.String("last", datetime.Format(table.Last())),
	)
	return table, nil
}

// Assets lists the distinct stored asset names in alphabetical order.
func (s *Store) Assets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT asset FROM prices ORDER BY asset ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
