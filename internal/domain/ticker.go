package domain

import "github.com/shopspring/decimal"

// Ticker is the current price quote for a trading pair.
type Ticker struct {
	Pair      Pair
	LastPrice decimal.Decimal
}

// Tickers holds the normalized ticker set of one collection cycle,
// keyed by the canonical "BASE/QUOTE" symbol.
type Tickers map[string]Ticker

// Put stores a ticker under its canonical key.
func (t Tickers) Put(ticker Ticker) {
	t[ticker.Pair.String()] = ticker
}
