package broker

import (
	"sync"

	"OptionSentinel/internal/model"
)

// PlacedOrder records one PlaceOrder call on the mock.
type PlacedOrder struct {
	OrderID  int
	Contract model.OptionContract
	Order    Order
}

// MockClient is a controllable in-memory Client for development and tests.
type MockClient struct {
	mu sync.Mutex

	QuoteByReqID   map[int]float64
	SeriesByReqID  map[int]*model.BarSeries
	Chains         map[string]Chain
	OrderFeed      []OrderState
	ExecutionFeed  []Execution
	PositionFeed   []Position
	InvalidStrikes map[float64]bool // strikes ValidateContract rejects

	Placed    []PlacedOrder
	Cancelled []int
}

// NewMockClient creates an empty mock.
func NewMockClient() *MockClient {
	return &MockClient{
		QuoteByReqID:   make(map[int]float64),
		SeriesByReqID:  make(map[int]*model.BarSeries),
		Chains:         make(map[string]Chain),
		InvalidStrikes: make(map[float64]bool),
	}
}

func (m *MockClient) SubscribeBars(reqID int, _ model.OptionContract, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.SeriesByReqID[reqID]; !ok {
		m.SeriesByReqID[reqID] = model.NewBarSeries()
	}
	return nil
}

func (m *MockClient) Bars(reqID int) (*model.BarSeries, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.SeriesByReqID[reqID]
	return s, ok
}

func (m *MockClient) SubscribeQuote(int, model.OptionContract) error { return nil }

func (m *MockClient) CancelQuote(reqID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.QuoteByReqID, reqID)
}

func (m *MockClient) Quote(reqID int) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	px, ok := m.QuoteByReqID[reqID]
	return px, ok
}

// SetQuote publishes a quote for a subscription id.
func (m *MockClient) SetQuote(reqID int, px float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QuoteByReqID[reqID] = px
}

func (m *MockClient) RequestContractChain(int, string, string) error { return nil }

func (m *MockClient) ContractChain(underlying string) (Chain, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chain, ok := m.Chains[underlying]
	return chain, ok
}

func (m *MockClient) ValidateContract(contract model.OptionContract) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.InvalidStrikes[contract.Strike]
}

func (m *MockClient) PlaceOrder(orderID int, contract model.OptionContract, order Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Placed = append(m.Placed, PlacedOrder{OrderID: orderID, Contract: contract, Order: order})
	return nil
}

func (m *MockClient) CancelOrder(orderID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cancelled = append(m.Cancelled, orderID)
}

func (m *MockClient) Orders() []OrderState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OrderState, len(m.OrderFeed))
	copy(out, m.OrderFeed)
	return out
}

func (m *MockClient) Executions() []Execution {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Execution, len(m.ExecutionFeed))
	copy(out, m.ExecutionFeed)
	return out
}

func (m *MockClient) Positions() []Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Position, len(m.PositionFeed))
	copy(out, m.PositionFeed)
	return out
}

// AddExecution appends to the execution feed.
func (m *MockClient) AddExecution(e Execution) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExecutionFeed = append(m.ExecutionFeed, e)
}

// AddOrderStatus appends to the order-status feed.
func (m *MockClient) AddOrderStatus(st OrderState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OrderFeed = append(m.OrderFeed, st)
}

// SetPositions replaces the position feed.
func (m *MockClient) SetPositions(ps []Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PositionFeed = ps
}

// LastPlaced returns the most recent placed order.
func (m *MockClient) LastPlaced() (PlacedOrder, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Placed) == 0 {
		return PlacedOrder{}, false
	}
	return m.Placed[len(m.Placed)-1], true
}

func (m *MockClient) RequestOpenOrders()        {}
func (m *MockClient) RequestExecutions(int)     {}
func (m *MockClient) RequestAccountSummary(int) {}
