package model

import "time"

// Trade side.
const (
	SideLong  = "LONG"
	SideShort = "SHORT"
)

// Order instructions.
const (
	InstructionBuy  = "BUY"
	InstructionSell = "SELL"
)

// Order statuses as persisted on a trade row.
const (
	OrderStatusOpen   = "OPEN"
	OrderStatusFilled = "FILLED"
)

// Position statuses.
const (
	PositionOpen   = "OPEN"
	PositionClosed = "CLOSED"
)

// ExitTypeStopLoss marks an exit filled through the resting stop order.
const ExitTypeStopLoss = "SL"

// Trade is the durable unit of truth for one option position. A row is
// uniquely identified by (trade_id, entry_order_id); position_status moves
// OPEN -> CLOSED exactly once. Entry fields are immutable after entry
// confirmation except FinalStopLoss/ReferencePrice, which move through
// explicit trailing-stop updates.
type Trade struct {
	TradingMode string
	TradeID     string
	Exchange    string
	Symbol      string
	SymbolType  string
	OptType     string
	ExpiryDate  string
	Strike      float64
	LotSize     int
	Side        string
	Instruction string
	Quantity    int

	StopLoss       *float64 // initial stop, percent-derived absolute price
	FinalStopLoss  *float64 // trailing absolute stop price
	ReferencePrice *float64 // trailing anchor

	EntryOrderID     int
	EntryOrderTime   *time.Time
	EntryOrderPrice  *float64
	EntryOrderStatus string
	EntryPrice       *float64
	EntryTime        *time.Time

	PositionStatus string // OPEN, CLOSED or empty

	ExitOrderID     *int
	ExitOrderTime   *time.Time
	ExitOrderPrice  *float64
	ExitOrderStatus string
	ExitTime        *time.Time
	ExitPrice       *float64
	ExitType        string
}
