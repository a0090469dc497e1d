package domain

import "github.com/shopspring/decimal"

// Balances maps a currency code to the balances of its accounts. An account
// is a bucket label such as "total", "free", "used" or a wallet address.
type Balances map[string]map[string]decimal.Decimal

// Deposit records the balance of an account for a currency, creating the
// currency bucket when needed. Zero values are stored; the emitter decides
// whether they become samples.
func (b Balances) Deposit(currency, account string, amount decimal.Decimal) {
	if b[currency] == nil {
		b[currency] = make(map[string]decimal.Decimal)
	}
	b[currency][account] = amount
}
