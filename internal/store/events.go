package store

import "time"

// TradeEvent is one persistence action emitted by a trade state machine.
// Each variant is an explicit typed update applied field by field; actions
// other than MakeEntry update an existing row selected by (trade_id, symbol)
// plus the status guard noted on the variant.
type TradeEvent interface {
	Action() string
}

// MakeEntry inserts a new trade row when an entry order is placed.
type MakeEntry struct {
	TradingMode      string
	TradeID          string
	Symbol           string
	SymbolType       string
	Exchange         string
	OptType          string
	ExpiryDate       string
	Strike           float64
	LotSize          int
	Side             string
	Instruction      string
	Quantity         int
	EntryOrderID     int
	EntryOrderTime   time.Time
	EntryOrderPrice  *float64
	EntryOrderStatus string
}

func (MakeEntry) Action() string { return "make_entry" }

// ConfirmEntry updates a row whose entry order is still OPEN: either a fill
// (entry price/time, initial stop) or a cancellation (nulled entry fields).
type ConfirmEntry struct {
	TradeID          string
	Symbol           string
	EntryTime        *time.Time
	EntryPrice       *float64
	ReferencePrice   *float64
	FinalStopLoss    *float64
	EntryOrderStatus string
	PositionStatus   string
}

func (ConfirmEntry) Action() string { return "confirm_entry" }

// MakeExit records a placed exit order on a row with an OPEN position.
type MakeExit struct {
	TradeID         string
	Symbol          string
	Instruction     string
	ExitOrderID     int
	ExitOrderTime   time.Time
	ExitOrderPrice  float64
	ExitOrderStatus string
	ReferencePrice  *float64
	FinalStopLoss   *float64
}

func (MakeExit) Action() string { return "make_exit" }

// ConfirmExit closes out a row with an OPEN position after the exit order
// fills.
type ConfirmExit struct {
	TradeID         string
	Symbol          string
	ExitTime        *time.Time
	ExitPrice       *float64
	ExitType        string
	ExitOrderStatus string
	PositionStatus  string
}

func (ConfirmExit) Action() string { return "confirm_exit" }

// StatusClosed marks an OPEN row CLOSED without exit details, used when the
// gateway reports the position already flat.
type StatusClosed struct {
	TradeID string
	Symbol  string
}

func (StatusClosed) Action() string { return "status_closed" }
