package model

import "fmt"

// Security types understood by the gateway.
const (
	SecTypeStock  = "STK"
	SecTypeOption = "OPT"
)

// Option rights.
const (
	RightCall = "C"
	RightPut  = "P"
)

// OptionContract identifies one contract against the gateway's chain.
// Immutable once selected for a trade.
type OptionContract struct {
	Underlying string
	SecType    string
	Expiry     string // YYYYMMDD, empty for stock contracts
	Strike     float64
	Right      string // C or P
	Exchange   string
	Currency   string
	Multiplier int
}

// StockContract builds the underlying stock contract used for data requests.
func StockContract(symbol, exchange, currency string) OptionContract {
	return OptionContract{
		Underlying: symbol,
		SecType:    SecTypeStock,
		Exchange:   exchange,
		Currency:   currency,
	}
}

// NewOptionContract builds an option contract with the standard 100 multiplier.
func NewOptionContract(symbol, exchange, currency, right, expiry string, strike float64) OptionContract {
	return OptionContract{
		Underlying: symbol,
		SecType:    SecTypeOption,
		Exchange:   exchange,
		Currency:   currency,
		Right:      right,
		Expiry:     expiry,
		Strike:     strike,
		Multiplier: 100,
	}
}

// Identifier is the human-readable instrument label used in logs.
func (c OptionContract) Identifier() string {
	if c.SecType == SecTypeStock {
		return fmt.Sprintf("%s %s %s %s", c.Underlying, c.SecType, c.Currency, c.Exchange)
	}
	return fmt.Sprintf("%s %s %s %v", c.Underlying, c.Right, c.Expiry, c.Strike)
}
