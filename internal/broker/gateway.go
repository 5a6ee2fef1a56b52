package broker

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"OptionSentinel/internal/model"
)

// Request/response envelope on the gateway bridge socket.
type wsMessage struct {
	Type     string          `json:"type"`
	ReqID    int             `json:"req_id,omitempty"`
	Symbol   string          `json:"symbol,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	ErrorMsg string          `json:"error,omitempty"`
}

type wsContract struct {
	Symbol     string  `json:"symbol"`
	SecType    string  `json:"sec_type"`
	Exchange   string  `json:"exchange"`
	Currency   string  `json:"currency"`
	Right      string  `json:"right,omitempty"`
	Expiry     string  `json:"expiry,omitempty"`
	Strike     float64 `json:"strike,omitempty"`
	Multiplier int     `json:"multiplier,omitempty"`
}

type wsOrder struct {
	Action     string  `json:"action"`
	Quantity   int     `json:"quantity"`
	OrderType  string  `json:"order_type"`
	LimitPrice float64 `json:"limit_price,omitempty"`
	StopPrice  float64 `json:"stop_price,omitempty"`
	TIF        string  `json:"tif,omitempty"`
}

type wsBar struct {
	Time   int64   `json:"t"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume float64 `json:"v"`
}

// Gateway is the websocket client for the desktop trading gateway bridge.
// One background goroutine runs the message pump and folds every inbound
// message into mutex-guarded in-memory feeds; strategy code reads those feeds
// on the main polling thread.
type Gateway struct {
	url string
	seq *Sequence
	loc *time.Location

	conn   *websocket.Conn
	sendMu sync.Mutex
	done   chan struct{}

	mu          sync.Mutex
	quotes      map[int]float64
	series      map[int]*model.BarSeries
	chains      map[string]Chain
	orders      []OrderState
	executions  []Execution
	positions   []Position
	cashBalance float64
	ready       chan int // first next_valid_id
	readyOnce   sync.Once
	acks        map[int]chan bool // contract validation results keyed by req id

	// ValidateTimeout bounds contract validation; the call fails soft when it
	// elapses without an acknowledgement.
	ValidateTimeout time.Duration
	// ConnectTimeout bounds the wait for the gateway's next-valid-id
	// handshake after dialing.
	ConnectTimeout time.Duration
}

// NewGateway creates a gateway client for the bridge at url. Bar timestamps
// are localized into loc.
func NewGateway(url string, seq *Sequence, loc *time.Location) *Gateway {
	return &Gateway{
		url:             url,
		seq:             seq,
		loc:             loc,
		done:            make(chan struct{}),
		quotes:          make(map[int]float64),
		series:          make(map[int]*model.BarSeries),
		chains:          make(map[string]Chain),
		ready:           make(chan int, 1),
		acks:            make(map[int]chan bool),
		ValidateTimeout: 15 * time.Second,
		ConnectTimeout:  25 * time.Second,
	}
}

// Connect dials the bridge, starts the message pump and blocks until the
// gateway announces its next valid order id or the connect timeout elapses.
func (g *Gateway) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(g.url, nil)
	if err != nil {
		return fmt.Errorf("dial gateway %s: %w", g.url, err)
	}
	g.conn = conn
	go g.readLoop()

	select {
	case id := <-g.ready:
		g.seq.Advance(id)
		log.Printf("[INFO] gateway connected, next valid order id: %d", id)
		return nil
	case <-time.After(g.ConnectTimeout):
		conn.Close()
		return fmt.Errorf("gateway handshake timed out after %s", g.ConnectTimeout)
	}
}

// Close tears the connection down and stops the pump.
func (g *Gateway) Close() {
	close(g.done)
	if g.conn != nil {
		g.conn.Close()
	}
}

func (g *Gateway) readLoop() {
	for {
		select {
		case <-g.done:
			return
		default:
		}
		var msg wsMessage
		if err := g.conn.ReadJSON(&msg); err != nil {
			select {
			case <-g.done:
			default:
				log.Printf("[ERROR] gateway read: %v", err)
			}
			return
		}
		g.dispatch(msg)
	}
}

func (g *Gateway) dispatch(msg wsMessage) {
	switch msg.Type {
	case "next_valid_id":
		var id int
		if err := json.Unmarshal(msg.Payload, &id); err == nil {
			g.readyOnce.Do(func() { g.ready <- id })
			g.seq.Advance(id)
		}
	case "bar":
		var b wsBar
		if err := json.Unmarshal(msg.Payload, &b); err != nil {
			return
		}
		g.mu.Lock()
		s, ok := g.series[msg.ReqID]
		if !ok {
			s = model.NewBarSeries()
			g.series[msg.ReqID] = s
		}
		s.Upsert(model.Bar{
			Time: time.Unix(b.Time, 0).In(g.loc),
			Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
			Volume: b.Volume,
		})
		g.mu.Unlock()
	case "quote":
		var px float64
		if err := json.Unmarshal(msg.Payload, &px); err == nil && px > 0 {
			g.mu.Lock()
			g.quotes[msg.ReqID] = px
			g.mu.Unlock()
		}
	case "chain":
		var chain Chain
		if err := json.Unmarshal(msg.Payload, &chain); err == nil {
			g.mu.Lock()
			g.chains[msg.Symbol] = chain
			g.mu.Unlock()
		}
	case "contract_details_end":
		g.resolveAck(msg.ReqID, true)
	case "order_status":
		var raw struct {
			OrderID      int     `json:"order_id"`
			Status       string  `json:"status"`
			Filled       float64 `json:"filled"`
			AvgFillPrice float64 `json:"avg_fill_price"`
		}
		if err := json.Unmarshal(msg.Payload, &raw); err == nil {
			g.mu.Lock()
			g.orders = append(g.orders, OrderState{
				OrderID:      raw.OrderID,
				Status:       raw.Status,
				Filled:       raw.Filled,
				AvgFillPrice: raw.AvgFillPrice,
			})
			g.mu.Unlock()
		}
	case "execution":
		var raw struct {
			OrderID  int     `json:"order_id"`
			Symbol   string  `json:"symbol"`
			Quantity int     `json:"quantity"`
			AvgPrice float64 `json:"avg_price"`
			Time     int64   `json:"time"`
		}
		if err := json.Unmarshal(msg.Payload, &raw); err == nil {
			g.mu.Lock()
			g.executions = append(g.executions, Execution{
				OrderID:  raw.OrderID,
				Symbol:   raw.Symbol,
				Quantity: raw.Quantity,
				AvgPrice: raw.AvgPrice,
				Time:     time.Unix(raw.Time, 0).In(g.loc),
			})
			g.mu.Unlock()
		}
	case "position":
		var raw struct {
			Symbol   string  `json:"symbol"`
			Quantity float64 `json:"quantity"`
			AvgCost  float64 `json:"avg_cost"`
		}
		if err := json.Unmarshal(msg.Payload, &raw); err != nil {
			return
		}
		pos := Position{Symbol: raw.Symbol, Quantity: raw.Quantity, AvgCost: raw.AvgCost}
		g.mu.Lock()
		replaced := false
		for i := range g.positions {
			if g.positions[i].Symbol == pos.Symbol {
				g.positions[i] = pos
				replaced = true
				break
			}
		}
		if !replaced {
			g.positions = append(g.positions, pos)
		}
		g.mu.Unlock()
	case "account_summary":
		var raw struct {
			Tag   string  `json:"tag"`
			Value float64 `json:"value"`
		}
		if err := json.Unmarshal(msg.Payload, &raw); err == nil && raw.Tag == "TotalCashBalance" {
			g.mu.Lock()
			g.cashBalance = raw.Value
			g.mu.Unlock()
		}
	case "error":
		log.Printf("[DEBUG] gateway error for req %d: %s", msg.ReqID, msg.ErrorMsg)
		g.resolveAck(msg.ReqID, false)
	}
}

func (g *Gateway) resolveAck(reqID int, ok bool) {
	g.mu.Lock()
	ch, found := g.acks[reqID]
	if found {
		delete(g.acks, reqID)
	}
	g.mu.Unlock()
	if found {
		ch <- ok
	}
}

func (g *Gateway) send(msg wsMessage) error {
	g.sendMu.Lock()
	defer g.sendMu.Unlock()
	return g.conn.WriteJSON(msg)
}

func (g *Gateway) sendReq(msgType string, reqID int, symbol string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return g.send(wsMessage{Type: msgType, ReqID: reqID, Symbol: symbol, Payload: raw})
}

func contractPayload(c model.OptionContract) wsContract {
	return wsContract{
		Symbol: c.Underlying, SecType: c.SecType, Exchange: c.Exchange,
		Currency: c.Currency, Right: c.Right, Expiry: c.Expiry,
		Strike: c.Strike, Multiplier: c.Multiplier,
	}
}

// SubscribeBars requests a streamed historical bar series with live updates.
func (g *Gateway) SubscribeBars(reqID int, contract model.OptionContract, timeframe, duration string) error {
	return g.sendReq("subscribe_bars", reqID, contract.Underlying, struct {
		Contract  wsContract `json:"contract"`
		Timeframe string     `json:"timeframe"`
		Duration  string     `json:"duration"`
	}{contractPayload(contract), timeframe, duration})
}

// Bars returns the live-updated series for a bar subscription.
func (g *Gateway) Bars(reqID int) (*model.BarSeries, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.series[reqID]
	return s, ok
}

// SubscribeQuote starts a market-data stream for the contract.
func (g *Gateway) SubscribeQuote(reqID int, contract model.OptionContract) error {
	return g.sendReq("subscribe_quote", reqID, contract.Underlying, contractPayload(contract))
}

// CancelQuote stops a market-data stream.
func (g *Gateway) CancelQuote(reqID int) {
	if err := g.send(wsMessage{Type: "cancel_quote", ReqID: reqID}); err != nil {
		log.Printf("[WARN] cancel quote %d: %v", reqID, err)
	}
}

// Quote returns the latest price for a quote subscription, if one has
// arrived yet.
func (g *Gateway) Quote(reqID int) (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	px, ok := g.quotes[reqID]
	return px, ok
}

// RequestContractChain asks for the expiry/strike chain of an underlying.
func (g *Gateway) RequestContractChain(reqID int, underlying, secType string) error {
	return g.sendReq("sec_def_opt_params", reqID, underlying, struct {
		SecType string `json:"sec_type"`
	}{secType})
}

// ContractChain returns the chain for an underlying once delivered.
func (g *Gateway) ContractChain(underlying string) (Chain, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	chain, ok := g.chains[underlying]
	return chain, ok
}

// ValidateContract asks the gateway to resolve the contract and blocks until
// it acknowledges or errors. A timeout counts as not valid; the gateway
// sometimes reports strikes it then refuses to resolve.
func (g *Gateway) ValidateContract(contract model.OptionContract) bool {
	reqID := g.seq.Next()
	ack := make(chan bool, 1)
	g.mu.Lock()
	g.acks[reqID] = ack
	g.mu.Unlock()

	if err := g.sendReq("contract_details", reqID, contract.Underlying, contractPayload(contract)); err != nil {
		log.Printf("[WARN] contract details request %d: %v", reqID, err)
		g.resolveAck(reqID, false)
		return false
	}
	select {
	case ok := <-ack:
		if !ok {
			log.Printf("[DEBUG] wrong contract definition for req %d (%s)", reqID, contract.Identifier())
		}
		return ok
	case <-time.After(g.ValidateTimeout):
		log.Printf("[DEBUG] contract validation timed out for req %d (%s)", reqID, contract.Identifier())
		g.mu.Lock()
		delete(g.acks, reqID)
		g.mu.Unlock()
		return false
	}
}

// PlaceOrder transmits an order for the contract.
func (g *Gateway) PlaceOrder(orderID int, contract model.OptionContract, order Order) error {
	return g.sendReq("place_order", orderID, contract.Underlying, struct {
		Contract wsContract `json:"contract"`
		Order    wsOrder    `json:"order"`
	}{contractPayload(contract), wsOrder{
		Action: order.Action, Quantity: order.Quantity, OrderType: order.Type,
		LimitPrice: order.LimitPrice, StopPrice: order.StopPrice, TIF: order.TIF,
	}})
}

// CancelOrder cancels a working order.
func (g *Gateway) CancelOrder(orderID int) {
	if err := g.send(wsMessage{Type: "cancel_order", ReqID: orderID}); err != nil {
		log.Printf("[WARN] cancel order %d: %v", orderID, err)
	}
}

// Orders returns the accumulated order-status feed.
func (g *Gateway) Orders() []OrderState {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]OrderState, len(g.orders))
	copy(out, g.orders)
	return out
}

// Executions returns the accumulated execution feed.
func (g *Gateway) Executions() []Execution {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Execution, len(g.executions))
	copy(out, g.executions)
	return out
}

// Positions returns the live position feed.
func (g *Gateway) Positions() []Position {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Position, len(g.positions))
	copy(out, g.positions)
	return out
}

// RequestOpenOrders asks the gateway to replay all open orders into the
// order-status feed.
func (g *Gateway) RequestOpenOrders() {
	if err := g.send(wsMessage{Type: "req_open_orders"}); err != nil {
		log.Printf("[WARN] request open orders: %v", err)
	}
}

// RequestExecutions asks the gateway to replay today's executions.
func (g *Gateway) RequestExecutions(reqID int) {
	if err := g.send(wsMessage{Type: "req_executions", ReqID: reqID}); err != nil {
		log.Printf("[WARN] request executions: %v", err)
	}
}

// RequestAccountSummary refreshes the cash balance feed.
func (g *Gateway) RequestAccountSummary(reqID int) {
	if err := g.sendReq("account_summary", reqID, "", struct {
		Group string `json:"group"`
		Tags  string `json:"tags"`
	}{"All", "$LEDGER"}); err != nil {
		log.Printf("[WARN] request account summary: %v", err)
	}
}

// CashBalance returns the last reported total cash balance.
func (g *Gateway) CashBalance() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cashBalance
}
