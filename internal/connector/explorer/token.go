package explorer

import "github.com/shopspring/decimal"

// maxTokenSymbolLen filters out low-quality tokens with absurd symbols.
const maxTokenSymbolLen = 15

// tokenValue converts a raw integer token balance into its decimal value:
// raw / 10^decimals when decimals is positive, the raw value unchanged
// otherwise.
func tokenValue(raw decimal.Decimal, decimals int) decimal.Decimal {
	if decimals > 0 {
		return raw.Shift(int32(-decimals))
	}
	return raw
}

// validTokenSymbol reports whether a token symbol is usable as a currency
// label.
func validTokenSymbol(symbol string) bool {
	return symbol != "" && len(symbol) <= maxTokenSymbolLen
}
