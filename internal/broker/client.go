package broker

import (
	"sync"
	"time"

	"OptionSentinel/internal/model"
)

// Gateway order statuses the state machine reacts to.
const (
	StatusCancelled    = "Cancelled"
	StatusInactive     = "Inactive"
	StatusApiCancelled = "ApiCancelled"
	StatusFilled       = "Filled"
	StatusSubmitted    = "Submitted"
)

// Order types.
const (
	OrderMarket = "MKT"
	OrderStop   = "STP"
	OrderLimit  = "LMT"
)

// Order is one order instruction for the gateway.
type Order struct {
	Action     string // BUY or SELL
	Quantity   int
	Type       string // MKT, STP, LMT
	LimitPrice float64
	StopPrice  float64
	TIF        string
}

// MarketOrder builds a good-till-cancel market order.
func MarketOrder(action string, qty int) Order {
	return Order{Action: action, Quantity: qty, Type: OrderMarket, TIF: "GTC"}
}

// StopOrder builds a good-till-cancel stop order at the given trigger price.
func StopOrder(action string, qty int, stopPrice float64) Order {
	return Order{Action: action, Quantity: qty, Type: OrderStop, StopPrice: stopPrice, TIF: "GTC"}
}

// OrderState is one entry of the gateway's continuously-updated order feed.
type OrderState struct {
	OrderID      int
	Status       string
	Filled       float64
	AvgFillPrice float64
}

// Execution is one entry of the gateway's execution feed.
type Execution struct {
	OrderID  int
	Symbol   string
	Quantity int
	AvgPrice float64
	Time     time.Time
}

// Position is one entry of the gateway's live position feed.
type Position struct {
	Symbol   string
	Quantity float64
	AvgCost  float64
}

// Chain maps expiry (YYYYMMDD) to the sorted strike list for that expiry.
type Chain map[string][]float64

// Client is the surface of the desktop trading gateway the strategy core
// calls. All feed accessors return the gateway's current in-memory state and
// never block; ValidateContract blocks with an internal timeout and fails
// soft (returns false).
type Client interface {
	SubscribeBars(reqID int, contract model.OptionContract, timeframe, duration string) error
	Bars(reqID int) (*model.BarSeries, bool)

	SubscribeQuote(reqID int, contract model.OptionContract) error
	CancelQuote(reqID int)
	Quote(reqID int) (float64, bool)

	RequestContractChain(reqID int, underlying, secType string) error
	ContractChain(underlying string) (Chain, bool)
	ValidateContract(contract model.OptionContract) bool

	PlaceOrder(orderID int, contract model.OptionContract, order Order) error
	CancelOrder(orderID int)
	Orders() []OrderState
	Executions() []Execution
	Positions() []Position

	RequestOpenOrders()
	RequestExecutions(reqID int)
	RequestAccountSummary(reqID int)
}

// Sequence hands out monotonically unique gateway request/order ids under
// single-writer access. It replaces the gateway's mutable next-order-id
// counter with an explicit generator shared by every component that needs
// fresh ids.
type Sequence struct {
	mu   sync.Mutex
	next int
}

// NewSequence starts a sequence at the given floor.
func NewSequence(start int) *Sequence {
	return &Sequence{next: start}
}

// Next returns a fresh id.
func (s *Sequence) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	return id
}

// Advance raises the floor to the gateway-announced next valid id. Lower
// values are ignored.
func (s *Sequence) Advance(floor int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if floor > s.next {
		s.next = floor
	}
}
