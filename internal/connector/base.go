package connector

import (
	"context"

	"github.com/mkrutov/cryptoexporter/internal/domain"
	"github.com/mkrutov/cryptoexporter/internal/redact"
)

// Base carries the per-instance state common to every connector: the three
// normalized maps, the authentication state and the redactor. Connectors
// embed it and override the Retrieve methods they support.
//
// The maps are owned exclusively by the connector and read by the emitter
// between cycles; there is a single worker of execution, so no locking.
type Base struct {
	name         string
	tickers      domain.Tickers
	accounts     domain.Balances
	transactions domain.Aggregates
	auth         domain.Auth
	redactor     *redact.Redactor
}

// NewBase creates the shared state for a named connector. The secrets feed
// the redactor.
func NewBase(name string, secrets ...string) Base {
	return Base{
		name:         name,
		tickers:      make(domain.Tickers),
		accounts:     make(domain.Balances),
		transactions: make(domain.Aggregates),
		redactor:     redact.New(secrets...),
	}
}

// Name returns the provider identifier.
func (b *Base) Name() string { return b.name }

// Tickers returns the stored ticker rates.
func (b *Base) Tickers() domain.Tickers { return b.tickers }

// Accounts returns the stored account balances.
func (b *Base) Accounts() domain.Balances { return b.accounts }

// Transactions returns the stored transaction aggregates.
func (b *Base) Transactions() domain.Aggregates { return b.transactions }

// AuthenticationState reports the credential state.
func (b *Base) AuthenticationState() domain.AuthState { return b.auth.State() }

// Auth exposes the mutable authentication state to the embedding connector.
func (b *Base) Auth() *domain.Auth { return &b.auth }

// Redact removes the connector's secrets from a message.
func (b *Base) Redact(message string) string { return b.redactor.Redact(message) }

// RedactErr removes the connector's secrets from an error's text.
func (b *Base) RedactErr(err error) string { return b.redactor.RedactErr(err) }

// ReplaceTickers swaps in a freshly built ticker map.
func (b *Base) ReplaceTickers(t domain.Tickers) { b.tickers = t }

// ReplaceAccounts swaps in a freshly built balance map. Used by connectors
// with a clear-then-populate cycle policy.
func (b *Base) ReplaceAccounts(a domain.Balances) { b.accounts = a }

// ReplaceTransactions swaps in a freshly built aggregate map.
func (b *Base) ReplaceTransactions(t domain.Aggregates) { b.transactions = t }

// RetrieveTickers is a no-op; connectors with ticker support override it.
func (b *Base) RetrieveTickers(ctx context.Context) {}

// RetrieveAccounts is a no-op; connectors with account support override it.
func (b *Base) RetrieveAccounts(ctx context.Context) {}

// RetrieveTransactions is a no-op; connectors with transaction support
// override it.
func (b *Base) RetrieveTransactions(ctx context.Context) {}
