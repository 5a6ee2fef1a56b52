// Package trade owns the lifecycle of a single option position: entry
// placement and confirmation, exit placement, trailing stop adjustment and
// exit confirmation.
package trade

import (
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"OptionSentinel/internal/broker"
	"OptionSentinel/internal/metrics"
	"OptionSentinel/internal/model"
	"OptionSentinel/internal/store"
)

const accountSummaryReqID = 9002

// Params carries the per-trade configuration shared by new and resumed
// managers.
type Params struct {
	TradingMode     string
	TradeSize       float64
	StopLossPct     float64
	TighterStopPct  float64
	TradeEndTime    model.TimeOfDay
	TotalLossAmount float64
	CurrentLoss     float64 // realized PnL for the day at manager start
	Now             func() time.Time
}

// Manager is the in-memory state machine for exactly one trade row. It is
// created when a signal fires or when an OPEN row is resumed and destroyed
// once the trade ends. One Poll call advances at most one lifecycle step per
// concern; all gateway feeds are read, never mutated.
type Manager struct {
	Params
	client broker.Client
	seq    *broker.Sequence

	ID       int // quote subscription id
	Contract model.OptionContract
	Side     string

	tradeID     string
	instruction string
	qty         int

	entered          bool
	bought, sold     bool
	entryOrderID     int
	entryOrderTime   time.Time
	entryOrderStatus string
	entryOrderFilled bool
	entryPrice       float64
	entryTime        time.Time

	sl       float64 // initial stop
	finalSL  float64 // trailing stop
	refPrice float64 // trailing anchor

	exitPending     bool
	exitOrderID     int
	exitOrderTime   time.Time
	exitOrderPrice  float64
	exitOrderStatus string
	exitTime        time.Time
	exitPrice       float64
	exitType        string

	positionCheck bool
	timeBasedExit bool
	tradeEnded    bool

	ltp     float64
	livePnL float64

	messages []store.TradeEvent
}

// NewManager starts a manager for a fresh signal.
func NewManager(client broker.Client, seq *broker.Sequence, quoteReqID int, contract model.OptionContract, side string, p Params) *Manager {
	m := &Manager{
		Params:   p,
		client:   client,
		seq:      seq,
		ID:       quoteReqID,
		Contract: contract,
		Side:     side,
		tradeID:  uuid.NewString(),
		// Entry confirmation flips this off so the first post-fill exit
		// check runs optimistically.
		positionCheck: true,
	}
	m.logStart()
	return m
}

// Resume rebuilds a manager from a persisted OPEN trade row.
func Resume(client broker.Client, seq *broker.Sequence, quoteReqID int, t model.Trade, p Params) *Manager {
	contract := model.NewOptionContract(t.Symbol, t.Exchange, "USD", t.OptType, t.ExpiryDate, t.Strike)
	if t.LotSize > 0 {
		contract.Multiplier = t.LotSize
	}
	m := &Manager{
		Params:           p,
		client:           client,
		seq:              seq,
		ID:               quoteReqID,
		Contract:         contract,
		Side:             t.Side,
		tradeID:          t.TradeID,
		instruction:      t.Instruction,
		qty:              t.Quantity,
		entered:          true,
		bought:           t.Side == model.SideLong,
		sold:             t.Side == model.SideShort,
		entryOrderID:     t.EntryOrderID,
		entryOrderStatus: t.EntryOrderStatus,
		entryOrderFilled: t.EntryOrderStatus != model.OrderStatusOpen,
		exitPending:      t.ExitOrderStatus == model.OrderStatusOpen,
		// Resumed positions are verified against the live position feed
		// straight away.
		positionCheck: true,
	}
	if t.EntryPrice != nil {
		m.entryPrice = *t.EntryPrice
	}
	if t.StopLoss != nil {
		m.sl = *t.StopLoss
	}
	if t.FinalStopLoss != nil {
		m.finalSL = *t.FinalStopLoss
	}
	if t.ReferencePrice != nil {
		m.refPrice = *t.ReferencePrice
	}
	if t.ExitOrderID != nil {
		m.exitOrderID = *t.ExitOrderID
	}
	if t.ExitOrderPrice != nil {
		m.exitOrderPrice = *t.ExitOrderPrice
	}
	m.logStart()
	return m
}

func (m *Manager) logStart() {
	log.Printf("[DEBUG] %s trading bot %s instance started, unique id: %d, side: %s, trade_id: %s, "+
		"entered: %v, exit pending: %v, sl: %v, entry_price: %v, ref price: %v, trade end time: %s, "+
		"total loss amount: %v, current pnl: %v",
		m.TradingMode, m.Identifier(), m.ID, m.Side, m.tradeID,
		m.entered, m.exitPending, m.finalSL, m.entryPrice, m.refPrice,
		m.TradeEndTime, m.TotalLossAmount, m.CurrentLoss)
}

// Identifier is the instrument label used in logs.
func (m *Manager) Identifier() string { return m.Contract.Identifier() }

// Symbol returns the underlying symbol.
func (m *Manager) Symbol() string { return m.Contract.Underlying }

// TradeID returns the durable trade id.
func (m *Manager) TradeID() string { return m.tradeID }

// Ended reports whether the trade reached a terminal state.
func (m *Manager) Ended() bool { return m.tradeEnded }

// ForcedExit reports whether a time- or loss-based market exit was tripped.
func (m *Manager) ForcedExit() bool { return m.timeBasedExit }

// LivePnL is the current floating PnL of the position.
func (m *Manager) LivePnL() float64 { return m.livePnL }

// FinalStopLoss exposes the current trailing stop, for tests and logs.
func (m *Manager) FinalStopLoss() float64 { return m.finalSL }

// ReferencePrice exposes the current trailing anchor.
func (m *Manager) ReferencePrice() float64 { return m.refPrice }

// Quantity returns the contract quantity once set.
func (m *Manager) Quantity() int { return m.qty }

// Poll runs one lifecycle cycle and returns the persistence events it
// produced. Without a live quote for the instrument the cycle is a no-op.
func (m *Manager) Poll() []store.TradeEvent {
	if m.tradeEnded {
		return nil
	}
	ltp, ok := m.client.Quote(m.ID)
	if !ok {
		return nil
	}
	m.ltp = ltp
	if m.entered && m.entryOrderFilled {
		m.livePnL = (m.ltp - m.entryPrice) * float64(m.qty) * 100
	}

	m.messages = nil
	if m.isValidEntry() {
		m.makeEntry()
	}
	if m.entered && !m.entryOrderFilled {
		m.confirmEntry()
	}
	if m.isValidExit() {
		m.makeExit()
	}
	if m.entered && m.exitPending {
		m.confirmExit()
		if m.entered && m.exitPending {
			if !m.checkTimeBasedExit() && !m.checkLossBasedExit() {
				m.trailStopLoss()
			}
			m.confirmExit()
		}
	}
	return m.messages
}

func (m *Manager) now() time.Time { return m.Now() }

func (m *Manager) isValidEntry() bool {
	if m.entered {
		return false
	}
	switch m.Side {
	case model.SideLong:
		log.Printf("[INFO] %s: long signal generated at %s, price: %v", m.Identifier(), m.now(), m.ltp)
		m.bought = true
		m.instruction = model.InstructionBuy
		return true
	case model.SideShort:
		log.Printf("[INFO] %s: short signal generated at %s, price: %v", m.Identifier(), m.now(), m.ltp)
		m.sold = true
		m.instruction = model.InstructionSell
		return true
	}
	return false
}

func (m *Manager) makeEntry() {
	m.qty = int(m.TradeSize / (m.ltp * 100))
	log.Printf("[DEBUG] %s: quantity set to %d", m.Identifier(), m.qty)
	if m.qty < 1 {
		log.Printf("[DEBUG] %s: quantity less than 1, please increase trade size, qty: %d", m.Identifier(), m.qty)
		m.tradeEnded = true
		return
	}

	m.entryOrderID = m.seq.Next()
	if err := m.client.PlaceOrder(m.entryOrderID, m.Contract, broker.MarketOrder(m.instruction, m.qty)); err != nil {
		log.Printf("[ERROR] %s: place entry order %d: %v", m.Identifier(), m.entryOrderID, err)
		return
	}
	m.entryOrderTime = m.now()
	m.entered = true
	m.entryOrderFilled = false
	m.entryOrderStatus = model.OrderStatusOpen
	metrics.OrdersPlaced.WithLabelValues("entry").Inc()

	// Refresh account balance after taking the position.
	m.client.RequestAccountSummary(accountSummaryReqID)

	log.Printf("[DEBUG] %s: entry order placed to %s qty: %d, ltp: %v, time: %s, order id: %d",
		m.Identifier(), m.instruction, m.qty, m.ltp, m.entryOrderTime, m.entryOrderID)
	m.tradeID = uuid.NewString()
	log.Printf("[DEBUG] %s instance, new trade_id: %s", m.Identifier(), m.tradeID)

	m.messages = append(m.messages, store.MakeEntry{
		TradingMode:      m.TradingMode,
		TradeID:          m.tradeID,
		Symbol:           m.Contract.Underlying,
		SymbolType:       m.Contract.SecType,
		Exchange:         m.Contract.Exchange,
		OptType:          m.Contract.Right,
		ExpiryDate:       m.Contract.Expiry,
		Strike:           m.Contract.Strike,
		LotSize:          m.Contract.Multiplier,
		Side:             m.Side,
		Instruction:      m.instruction,
		Quantity:         m.qty,
		EntryOrderID:     m.entryOrderID,
		EntryOrderTime:   m.entryOrderTime,
		EntryOrderStatus: m.entryOrderStatus,
	})
}

func (m *Manager) confirmEntry() {
	for _, exec := range m.client.Executions() {
		if exec.OrderID == m.entryOrderID && exec.Symbol == m.Contract.Underlying && exec.Quantity == m.qty {
			m.entryPrice = exec.AvgPrice
			m.refPrice = exec.AvgPrice
			m.entryTime = exec.Time
			m.entryOrderFilled = true
			m.entryOrderStatus = model.OrderStatusFilled
			m.sl = m.entryPrice * (1 - m.StopLossPct/100)
			m.finalSL = m.sl
			log.Printf("[DEBUG] %s: entry order filled to %s, price: %v, qty: %d, time: %s, sl: %v",
				m.Identifier(), m.instruction, m.entryPrice, m.qty, m.entryTime, m.sl)
			m.messages = append(m.messages, store.ConfirmEntry{
				TradeID:          m.tradeID,
				Symbol:           m.Contract.Underlying,
				EntryTime:        &m.entryTime,
				EntryPrice:       &m.entryPrice,
				ReferencePrice:   &m.refPrice,
				FinalStopLoss:    &m.finalSL,
				EntryOrderStatus: m.entryOrderStatus,
				PositionStatus:   model.PositionOpen,
			})
			// First post-fill exit check runs optimistically; the position
			// feed may lag the fill.
			m.positionCheck = false
			return
		}
	}

	for _, order := range m.client.Orders() {
		if order.OrderID != m.entryOrderID {
			continue
		}
		if order.Status == broker.StatusCancelled || order.Status == broker.StatusInactive {
			log.Printf("[DEBUG] %s: entry order to %s %s", m.Identifier(), m.instruction, order.Status)
			m.entered = false
			m.bought, m.sold = false, false
			m.entryPrice = 0
			m.sl = 0
			m.entryOrderStatus = order.Status
			m.messages = append(m.messages, store.ConfirmEntry{
				TradeID:          m.tradeID,
				Symbol:           m.Contract.Underlying,
				EntryOrderStatus: m.entryOrderStatus,
			})
			m.tradeEnded = true
			log.Printf("[INFO] %s: entry order cancelled, closing instance", m.Identifier())
			if order.Status == broker.StatusInactive {
				m.timeBasedExit = true
			}
			return
		}
	}
}

// isValidExit decides whether an exit order may be placed. The first call
// after a fill answers yes without consulting the position feed; later calls
// require the expected quantity to still be open at the gateway, otherwise
// the row is closed out with no exit order.
func (m *Manager) isValidExit() bool {
	if !m.entered || !m.entryOrderFilled || m.exitPending {
		return false
	}

	inverse := model.InstructionSell
	if m.sold {
		inverse = model.InstructionBuy
	}

	if !m.positionCheck {
		m.instruction = inverse
		m.positionCheck = true
		return true
	}

	var posQty float64
	for _, pos := range m.client.Positions() {
		posQty = pos.Quantity
		q := pos.Quantity
		if m.sold {
			q = math.Abs(q)
		}
		if pos.Symbol == m.Contract.Underlying && q >= float64(m.qty) {
			m.instruction = inverse
			return true
		}
	}
	log.Printf("[DEBUG] %s: no %s position exists for qty: %d, pos_qty: %v",
		m.Identifier(), m.Side, m.qty, posQty)

	// Already flat at the gateway: close the row, place nothing.
	m.entered, m.bought, m.sold, m.exitPending = false, false, false, false
	m.messages = append(m.messages, store.StatusClosed{
		TradeID: m.tradeID,
		Symbol:  m.Contract.Underlying,
	})
	m.tradeEnded = true
	metrics.TradesClosed.Inc()
	log.Printf("[DEBUG] %s: trade completed, closing instance", m.Identifier())
	return false
}

func (m *Manager) makeExit() {
	m.exitOrderID = m.seq.Next()
	m.seq.Next() // the gateway protocol reserves an extra id per exit pair

	m.exitOrderPrice = math.Round(m.finalSL*100) / 100
	var order broker.Order
	priceLabel := "MKT"
	if m.timeBasedExit {
		order = broker.MarketOrder(m.instruction, m.qty)
	} else {
		order = broker.StopOrder(m.instruction, m.qty, m.exitOrderPrice)
		priceLabel = ""
	}

	m.exitOrderTime = m.now()
	if err := m.client.PlaceOrder(m.exitOrderID, m.Contract, order); err != nil {
		log.Printf("[ERROR] %s: place exit order %d: %v", m.Identifier(), m.exitOrderID, err)
		return
	}
	m.exitOrderStatus = model.OrderStatusOpen
	m.exitPending = true
	metrics.OrdersPlaced.WithLabelValues("exit").Inc()
	if priceLabel == "" {
		log.Printf("[DEBUG] %s: exit SL order placed to %s qty: %d, SL order price: %v, time: %s, order id: %d",
			m.Identifier(), m.instruction, m.qty, m.exitOrderPrice, m.exitOrderTime, m.exitOrderID)
	} else {
		log.Printf("[DEBUG] %s: exit order placed to %s qty: %d, price: %s, time: %s, order id: %d",
			m.Identifier(), m.instruction, m.qty, priceLabel, m.exitOrderTime, m.exitOrderID)
	}
	m.messages = append(m.messages, store.MakeExit{
		TradeID:         m.tradeID,
		Symbol:          m.Contract.Underlying,
		Instruction:     m.instruction,
		ExitOrderID:     m.exitOrderID,
		ExitOrderTime:   m.exitOrderTime,
		ExitOrderPrice:  m.exitOrderPrice,
		ExitOrderStatus: m.exitOrderStatus,
		ReferencePrice:  &m.refPrice,
		FinalStopLoss:   &m.finalSL,
	})
}

func (m *Manager) confirmExit() {
	for _, exec := range m.client.Executions() {
		if exec.Symbol != m.Contract.Underlying {
			continue
		}
		if exec.OrderID != m.exitOrderID || exec.Quantity != m.qty {
			continue
		}
		m.exitPrice = exec.AvgPrice
		m.exitTime = exec.Time
		m.exitType = model.ExitTypeStopLoss
		m.exitOrderStatus = model.OrderStatusFilled
		m.bought, m.sold = false, false
		m.entered = false
		m.exitPending = false
		log.Printf("[DEBUG] %s: exit %s order filled to %s %d, price: %v, time: %s, order id: %d",
			m.Identifier(), m.exitType, m.instruction, m.qty, m.exitPrice, m.exitTime, m.exitOrderID)
		m.messages = append(m.messages, store.ConfirmExit{
			TradeID:         m.tradeID,
			Symbol:          m.Contract.Underlying,
			ExitTime:        &m.exitTime,
			ExitPrice:       &m.exitPrice,
			ExitType:        m.exitType,
			ExitOrderStatus: m.exitOrderStatus,
			PositionStatus:  model.PositionClosed,
		})
		m.tradeEnded = true
		metrics.TradesClosed.Inc()
		log.Printf("[DEBUG] %s: trade completed, closing instance", m.Identifier())
		return
	}

	for _, order := range m.client.Orders() {
		if order.OrderID != m.exitOrderID {
			continue
		}
		switch order.Status {
		case broker.StatusCancelled, broker.StatusInactive, broker.StatusApiCancelled:
			log.Printf("[DEBUG] %s: exit order to %s, status: %s", m.Identifier(), m.instruction, order.Status)
			// Cleared so the next cycle re-places the exit.
			m.exitPending = false
			return
		}
	}
}

// checkTimeBasedExit trips once the trade end time is reached: the pending
// stop is cancelled so a market order goes out on the next cycle.
func (m *Manager) checkTimeBasedExit() bool {
	if !m.timeBasedExit && m.TradeEndTime.ReachedBy(m.now()) {
		m.timeBasedExit = true
		log.Printf("[DEBUG] %s: end time %s reached, cancelling SL order and exiting through market order",
			m.Identifier(), m.TradeEndTime)
		m.client.CancelOrder(m.exitOrderID)
		return true
	}
	return false
}

// checkLossBasedExit trips when realized-today plus floating loss breaches
// the daily limit.
func (m *Manager) checkLossBasedExit() bool {
	if !m.timeBasedExit && m.livePnL+m.CurrentLoss <= -m.TotalLossAmount {
		m.timeBasedExit = true
		log.Printf("[DEBUG] total current loss: %v is more than total loss amount: %v, "+
			"so cancelling SL and exiting through market order", m.livePnL+m.CurrentLoss, m.TotalLossAmount)
		m.client.CancelOrder(m.exitOrderID)
		return true
	}
	return false
}

// trailStopLoss ratchets the stop while the quote makes new highs over the
// reference price. The default trail adds the price gain to the stop; once
// the quote is 20% over entry and the reference had not yet crossed that
// level, the tighter percentage trail takes over, applied only when it
// raises the stop. The pending exit order is cancelled either way so a fresh
// stop goes out next cycle.
func (m *Manager) trailStopLoss() {
	if m.timeBasedExit || m.ltp <= m.refPrice {
		return
	}
	initSL := m.finalSL
	trailed := m.finalSL + (m.ltp - m.refPrice)
	threshold := m.entryPrice * 1.20
	if m.ltp >= threshold && threshold > m.refPrice {
		tighter := m.ltp * (1 - m.TighterStopPct/100)
		if tighter > m.finalSL {
			m.finalSL = tighter
			log.Printf("[DEBUG] %s: SL trailed to %v%% after 20%% move in price, new sl: %v, before sl: %v, ltp: %v",
				m.Identifier(), m.TighterStopPct, m.finalSL, initSL, m.ltp)
		}
	} else {
		m.finalSL = trailed
		log.Printf("[DEBUG] %s: SL trailed new sl: %v, before sl: %v, ltp: %v",
			m.Identifier(), m.finalSL, initSL, m.ltp)
	}

	m.refPrice = m.ltp
	m.client.CancelOrder(m.exitOrderID)
}
