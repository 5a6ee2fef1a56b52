package store

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"OptionSentinel/internal/model"
)

const timeLayout = "2006-01-02 15:04:05"

// Store persists trade rows to a SQLite database. It is the durable owner of
// Trade records; in-memory state machines never touch rows they do not own
// by trade_id.
type Store struct {
	db  *sql.DB
	loc *time.Location
	mu  sync.Mutex
}

// Open opens (or creates) the SQLite database and runs migrations.
func Open(dbPath string, loc *time.Location) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so report exports can read while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &Store{db: db, loc: loc}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] trade store opened: %s", dbPath)
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS opt_trades (
			trading_mode       TEXT,
			trade_id           TEXT NOT NULL,
			exchange           TEXT,
			symbol             TEXT,
			symbol_type        TEXT,
			opt_type           TEXT,
			expiry_date        TEXT,
			strike             REAL,
			lot_size           INTEGER,
			side               TEXT,
			instruction        TEXT,
			quantity           INTEGER,
			stop_loss          REAL,
			final_stop_loss    REAL,
			reference_price    REAL,
			entry_order_time   TEXT,
			entry_order_price  REAL,
			entry_order_status TEXT,
			entry_order_id     INTEGER NOT NULL,
			entry_price        REAL,
			entry_time         TEXT,
			position_status    TEXT,
			exit_order_time    TEXT,
			exit_order_price   REAL,
			exit_order_status  TEXT,
			exit_order_id      INTEGER,
			exit_time          TEXT,
			exit_type          TEXT,
			exit_price         REAL,
			PRIMARY KEY (trade_id, entry_order_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_mode_status ON opt_trades(trading_mode, position_status)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *Store) fmtTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.In(s.loc).Format(timeLayout)
}

// Apply persists one trade event. A missing row for an update action is
// logged and skipped, never an error.
func (s *Store) Apply(ev TradeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case MakeEntry:
		_, err := s.db.Exec(`INSERT INTO opt_trades
			(trading_mode, trade_id, exchange, symbol, symbol_type, opt_type,
			 expiry_date, strike, lot_size, side, instruction, quantity,
			 entry_order_time, entry_order_price, entry_order_status, entry_order_id)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			e.TradingMode, e.TradeID, e.Exchange, e.Symbol, e.SymbolType, e.OptType,
			e.ExpiryDate, e.Strike, e.LotSize, e.Side, e.Instruction, e.Quantity,
			e.EntryOrderTime.In(s.loc).Format(timeLayout), e.EntryOrderPrice,
			e.EntryOrderStatus, e.EntryOrderID)
		if err != nil {
			return fmt.Errorf("insert trade %s: %w", e.TradeID, err)
		}
		log.Printf("[DEBUG] trade saved for %s, action: %s", e.Symbol, e.Action())
		return nil

	case ConfirmEntry:
		res, err := s.db.Exec(`UPDATE opt_trades SET
			entry_time = ?, entry_price = ?, reference_price = ?, final_stop_loss = ?,
			stop_loss = ?, entry_order_status = ?, position_status = ?
			WHERE trade_id = ? AND symbol = ? AND entry_order_status = ?`,
			s.fmtTime(e.EntryTime), e.EntryPrice, e.ReferencePrice, e.FinalStopLoss,
			e.FinalStopLoss, e.EntryOrderStatus, nullIfEmpty(e.PositionStatus),
			e.TradeID, e.Symbol, model.OrderStatusOpen)
		return s.finishUpdate(res, err, e.Symbol, e.TradeID, e.Action())

	case MakeExit:
		res, err := s.db.Exec(`UPDATE opt_trades SET
			instruction = ?, exit_order_id = ?, exit_order_time = ?, exit_order_price = ?,
			exit_order_status = ?, reference_price = ?, final_stop_loss = ?
			WHERE trade_id = ? AND symbol = ? AND position_status = ?`,
			e.Instruction, e.ExitOrderID, e.ExitOrderTime.In(s.loc).Format(timeLayout),
			e.ExitOrderPrice, e.ExitOrderStatus, e.ReferencePrice, e.FinalStopLoss,
			e.TradeID, e.Symbol, model.PositionOpen)
		return s.finishUpdate(res, err, e.Symbol, e.TradeID, e.Action())

	case ConfirmExit:
		res, err := s.db.Exec(`UPDATE opt_trades SET
			exit_time = ?, exit_price = ?, exit_type = ?, exit_order_status = ?,
			position_status = ?
			WHERE trade_id = ? AND symbol = ? AND position_status = ?`,
			s.fmtTime(e.ExitTime), e.ExitPrice, nullIfEmpty(e.ExitType),
			e.ExitOrderStatus, nullIfEmpty(e.PositionStatus),
			e.TradeID, e.Symbol, model.PositionOpen)
		return s.finishUpdate(res, err, e.Symbol, e.TradeID, e.Action())

	case StatusClosed:
		res, err := s.db.Exec(`UPDATE opt_trades SET position_status = ?
			WHERE trade_id = ? AND symbol = ? AND position_status = ?`,
			model.PositionClosed, e.TradeID, e.Symbol, model.PositionOpen)
		return s.finishUpdate(res, err, e.Symbol, e.TradeID, e.Action())
	}
	return fmt.Errorf("unknown trade event %T", ev)
}

func (s *Store) finishUpdate(res sql.Result, err error, symbol, tradeID, action string) error {
	if err != nil {
		return fmt.Errorf("update trade %s (%s): %w", tradeID, action, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.Printf("[DEBUG] trade not found for %s, trade_id: %s, action: %s", symbol, tradeID, action)
		return nil
	}
	log.Printf("[DEBUG] trade modified for %s, action: %s", symbol, action)
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ClosedPnL sums (exit - entry) * quantity * 100 over the given day's CLOSED
// rows for the account mode.
func (s *Store) ClosedPnL(mode string, day time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pnl sql.NullFloat64
	err := s.db.QueryRow(`SELECT SUM((exit_price - entry_price) * quantity * 100)
		FROM opt_trades
		WHERE upper(trading_mode) = upper(?)
		  AND position_status = ?
		  AND date(exit_time) = ?
		  AND exit_price IS NOT NULL AND entry_price IS NOT NULL`,
		mode, model.PositionClosed, day.In(s.loc).Format("2006-01-02")).Scan(&pnl)
	if err != nil {
		return 0, fmt.Errorf("closed pnl query: %w", err)
	}
	return pnl.Float64, nil
}

// OpenTrades returns rows with an open position or a still-open entry order
// for the account mode, used to resume state machines at startup.
func (s *Store) OpenTrades(mode string) ([]model.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(selectColumns+`
		WHERE upper(trading_mode) = upper(?)
		  AND (position_status = ? OR entry_order_status = ?)`,
		mode, model.PositionOpen, model.OrderStatusOpen)
	if err != nil {
		return nil, fmt.Errorf("open trades query: %w", err)
	}
	defer rows.Close()
	return s.scanTrades(rows)
}

// ClosedTrades returns CLOSED rows for the account mode sorted ascending by
// entry time, the report export set.
func (s *Store) ClosedTrades(mode string) ([]model.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(selectColumns+`
		WHERE upper(trading_mode) = upper(?) AND position_status = ?
		ORDER BY entry_time ASC`,
		mode, model.PositionClosed)
	if err != nil {
		return nil, fmt.Errorf("closed trades query: %w", err)
	}
	defer rows.Close()
	return s.scanTrades(rows)
}

const selectColumns = `SELECT trading_mode, trade_id, exchange, symbol, symbol_type,
	opt_type, expiry_date, strike, lot_size, side, instruction, quantity,
	stop_loss, final_stop_loss, reference_price,
	entry_order_time, entry_order_price, entry_order_status, entry_order_id,
	entry_price, entry_time, position_status,
	exit_order_time, exit_order_price, exit_order_status, exit_order_id,
	exit_time, exit_type, exit_price
	FROM opt_trades`

func (s *Store) scanTrades(rows *sql.Rows) ([]model.Trade, error) {
	var out []model.Trade
	for rows.Next() {
		var t model.Trade
		var (
			lotSize, quantity                  sql.NullInt64
			stopLoss, finalSL, refPrice        sql.NullFloat64
			entryOrderTime, entryTime          sql.NullString
			entryOrderPrice, entryPrice        sql.NullFloat64
			entryOrderStatus, positionStatus   sql.NullString
			exitOrderTime, exitTime            sql.NullString
			exitOrderPrice, exitPrice          sql.NullFloat64
			exitOrderStatus, exitType          sql.NullString
			exitOrderID                        sql.NullInt64
			instruction, side, expiry, optType sql.NullString
			exchange, symbolType               sql.NullString
			strike                             sql.NullFloat64
		)
		if err := rows.Scan(&t.TradingMode, &t.TradeID, &exchange, &t.Symbol, &symbolType,
			&optType, &expiry, &strike, &lotSize, &side, &instruction, &quantity,
			&stopLoss, &finalSL, &refPrice,
			&entryOrderTime, &entryOrderPrice, &entryOrderStatus, &t.EntryOrderID,
			&entryPrice, &entryTime, &positionStatus,
			&exitOrderTime, &exitOrderPrice, &exitOrderStatus, &exitOrderID,
			&exitTime, &exitType, &exitPrice); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Exchange = exchange.String
		t.SymbolType = symbolType.String
		t.OptType = optType.String
		t.ExpiryDate = expiry.String
		t.Strike = strike.Float64
		t.LotSize = int(lotSize.Int64)
		t.Side = side.String
		t.Instruction = instruction.String
		t.Quantity = int(quantity.Int64)
		t.StopLoss = nullFloat(stopLoss)
		t.FinalStopLoss = nullFloat(finalSL)
		t.ReferencePrice = nullFloat(refPrice)
		t.EntryOrderTime = s.parseTime(entryOrderTime)
		t.EntryOrderPrice = nullFloat(entryOrderPrice)
		t.EntryOrderStatus = entryOrderStatus.String
		t.EntryPrice = nullFloat(entryPrice)
		t.EntryTime = s.parseTime(entryTime)
		t.PositionStatus = positionStatus.String
		t.ExitOrderTime = s.parseTime(exitOrderTime)
		t.ExitOrderPrice = nullFloat(exitOrderPrice)
		t.ExitOrderStatus = exitOrderStatus.String
		if exitOrderID.Valid {
			id := int(exitOrderID.Int64)
			t.ExitOrderID = &id
		}
		t.ExitTime = s.parseTime(exitTime)
		t.ExitType = exitType.String
		t.ExitPrice = nullFloat(exitPrice)
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func (s *Store) parseTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.ParseInLocation(timeLayout, v.String, s.loc)
	if err != nil {
		return nil
	}
	return &t
}

// Close closes the database.
func (s *Store) Close() error {
	log.Println("[INFO] closing trade store")
	return s.db.Close()
}
