// Package domain defines the normalized data model shared by all connectors.
package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Pair is a trading pair of a base and a quote currency.
type Pair struct {
	// Base currency symbol.
	Base string
	// Quote currency symbol, also called the reference currency.
	Quote string
}

// ParsePair parses a "BASE/QUOTE" symbol. Symbols with anything other than
// exactly two components are rejected.
func ParsePair(symbol string) (Pair, error) {
	parts := strings.Split(symbol, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, errors.Errorf("invalid pair symbol %q", symbol)
	}
	return Pair{Base: parts[0], Quote: parts[1]}, nil
}

// String returns the canonical "BASE/QUOTE" representation.
func (p Pair) String() string {
	return fmt.Sprintf("%s/%s", p.Base, p.Quote)
}
