// Package exchange implements the generic trading-exchange connector. One
// Connector drives any upstream that fulfills the Client interface; the
// per-exchange clients adapt the vendor SDKs to it.
package exchange

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/mkrutov/cryptoexporter/pkg/retrier"
)

var (
	// ErrNotSupported is returned by clients for operations their upstream
	// does not offer.
	ErrNotSupported = errors.New("operation not supported by this exchange")

	// ErrStaleMarkets signals that the upstream rejected a symbol the cached
	// market list still contains. The connector reacts by force-refreshing
	// the markets.
	ErrStaleMarkets = errors.New("markets are stale")

	// ErrMalformed marks a response whose shape could not be interpreted.
	// Classified as fatal, never retried.
	ErrMalformed = errors.New("malformed exchange response")
)

// Market is one tradable pair, identified by its canonical "BASE/QUOTE"
// symbol.
type Market struct {
	Symbol string
}

// AccountBalance is the per-currency balance reported by an exchange.
type AccountBalance struct {
	Currency string
	Total    decimal.Decimal
	Free     decimal.Decimal
	Used     decimal.Decimal
}

// LedgerEntry is one account-affecting event. Entries come in two upstream
// dialects: native-amount entries carry the counter value in a reference
// currency, reference-id entries pair up through a shared ReferenceID.
type LedgerEntry struct {
	ID          string
	ReferenceID string
	Currency    string
	Amount      decimal.Decimal
	// Direction is "in" or "out" for reference-id entries.
	Direction string
	// Type is the upstream entry type, e.g. "trade", "buy", "sell".
	Type string

	// NativeCurrency and NativeAmount are set on native-amount entries.
	NativeCurrency string
	NativeAmount   decimal.Decimal
}

// LedgerPage is one page of ledger entries. NextCursor is empty on the last
// page; TotalCount, when reported by the upstream, is the full entry count.
type LedgerPage struct {
	Entries    []LedgerEntry
	NextCursor string
	TotalCount int
}

// Client adapts one exchange SDK to the connector. Implementations are not
// required to be safe for concurrent use; the connector is single-threaded.
type Client interface {
	// Name returns the exchange identifier.
	Name() string

	// Authenticated reports whether credentials were configured.
	Authenticated() bool
	// HasBulkTickers reports whether all tickers can be fetched in one call.
	HasBulkTickers() bool
	// HasLedger reports whether the upstream exposes a transaction ledger.
	HasLedger() bool

	// FetchMarkets lists the tradable pairs.
	FetchMarkets(ctx context.Context) ([]Market, error)
	// FetchTickers returns last prices for all symbols, keyed canonically.
	FetchTickers(ctx context.Context) (map[string]decimal.Decimal, error)
	// FetchTicker returns the last price for one canonical symbol.
	FetchTicker(ctx context.Context, symbol string) (decimal.Decimal, error)
	// FetchBalance returns the authenticated account balances.
	FetchBalance(ctx context.Context) ([]AccountBalance, error)
	// FetchLedger returns one ledger page for an account, starting at the
	// given cursor ("" for the first page).
	FetchLedger(ctx context.Context, account, cursor string) (LedgerPage, error)

	// Classify maps an error returned by this client into the retry
	// taxonomy.
	Classify(err error) retrier.Kind
}
