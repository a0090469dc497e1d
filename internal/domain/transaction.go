package domain

import "github.com/shopspring/decimal"

// TransactionKey identifies one aggregated transaction series.
type TransactionKey struct {
	Currency          string
	ReferenceCurrency string
	Type              string
}

// Aggregates accumulates signed transaction totals per key. Incoming amounts
// are added, outgoing amounts subtracted.
type Aggregates map[TransactionKey]decimal.Decimal

// Add accumulates a signed amount for the key.
func (a Aggregates) Add(key TransactionKey, amount decimal.Decimal) {
	a[key] = a[key].Add(amount)
}

// Sub subtracts an amount for the key.
func (a Aggregates) Sub(key TransactionKey, amount decimal.Decimal) {
	a[key] = a[key].Sub(amount)
}
