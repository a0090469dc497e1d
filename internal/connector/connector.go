// Package connector defines the contract every provider connector fulfills
// and the shared state they embed.
//
// A connector owns the normalized data of exactly one upstream provider. The
// three Retrieve methods absorb every upstream failure: a retrieval that
// cannot complete logs and leaves the corresponding map unchanged, it never
// propagates an error to the caller.
package connector

import (
	"context"

	"github.com/mkrutov/cryptoexporter/internal/domain"
)

// Connector is the capability set shared by all provider connectors.
type Connector interface {
	// Name returns the provider identifier, e.g. "binance" or "etherscan".
	Name() string

	// RetrieveTickers populates the ticker map. No-op when tickers are
	// disabled by configuration.
	RetrieveTickers(ctx context.Context)
	// RetrieveAccounts populates the balance map. No-op when authentication
	// is unavailable or no addresses are configured.
	RetrieveAccounts(ctx context.Context)
	// RetrieveTransactions populates the transaction aggregates. No-op when
	// transactions are disabled, unauthenticated or unsupported upstream.
	RetrieveTransactions(ctx context.Context)

	// Tickers returns the stored ticker rates.
	Tickers() domain.Tickers
	// Accounts returns the stored account balances.
	Accounts() domain.Balances
	// Transactions returns the stored transaction aggregates.
	Transactions() domain.Aggregates

	// AuthenticationState reports whether credentials are usable.
	AuthenticationState() domain.AuthState

	// Redact removes the connector's secrets from a message.
	Redact(message string) string
}
