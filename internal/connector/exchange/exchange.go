package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mkrutov/cryptoexporter/config"
	"github.com/mkrutov/cryptoexporter/internal/connector"
	"github.com/mkrutov/cryptoexporter/internal/domain"
	"github.com/mkrutov/cryptoexporter/pkg/retrier"
)

const (
	callRetries    = 3
	marketsRetries = 5

	rateLimitedDelay = 1 * time.Second
	unavailableDelay = 10 * time.Second
)

// Connector retrieves tickers, balances and the transaction ledger from a
// trading exchange through a Client.
type Connector struct {
	connector.Base

	client   Client
	settings config.Settings
	logger   *zap.Logger

	callRetrier    *retrier.Retrier
	marketsRetrier *retrier.Retrier

	markets []Market
}

// New creates the connector for the given exchange client.
func New(client Client, settings *config.Settings, logger *zap.Logger) *Connector {
	c := &Connector{
		Base:     connector.NewBase(client.Name(), settings.Secrets()...),
		client:   client,
		settings: *settings,
		logger:   logger.Named(client.Name()),
	}
	c.callRetrier = retrier.New(
		retrier.WithMaxRetries(callRetries),
		retrier.WithClassifier(client.Classify),
		retrier.WithDelay(retrier.RateLimited, rateLimitedDelay),
		retrier.WithDelay(retrier.Unavailable, unavailableDelay),
	)
	c.marketsRetrier = retrier.New(
		retrier.WithMaxRetries(marketsRetries),
		retrier.WithClassifier(client.Classify),
		retrier.WithDelay(retrier.RateLimited, rateLimitedDelay),
		retrier.WithDelay(retrier.Unavailable, unavailableDelay),
	)
	return c
}

// RetrieveTickers downloads the price tickers and stores them in the ticker
// map. The map is rebuilt wholesale; on failure the previous cycle's data
// stays in place.
func (c *Connector) RetrieveTickers(ctx context.Context) {
	if !c.settings.EnableTickers {
		return
	}
	if !c.ensureMarkets(ctx, false) {
		return
	}

	c.logger.Debug("retrieving tickers")

	var quotes map[string]decimal.Decimal
	if c.client.HasBulkTickers() && !c.settings.DisableFetchTickers {
		quotes = c.fetchTickers(ctx)
	} else {
		c.logger.Warn("exchange cannot fetch all tickers in one go, loading them individually")
		quotes = c.fetchEachTicker(ctx)
	}
	if quotes == nil {
		return
	}

	tickers := make(domain.Tickers, len(quotes))
	for symbol, last := range quotes {
		pair, err := domain.ParsePair(symbol)
		if err != nil || last.IsZero() {
			continue
		}
		tickers.Put(domain.Ticker{Pair: pair, LastPrice: last})
	}
	c.ReplaceTickers(tickers)
}

// RetrieveAccounts downloads the account balances. Balances are replaced
// wholesale on success, so sub-accounts that disappeared upstream are
// dropped.
func (c *Connector) RetrieveAccounts(ctx context.Context) {
	c.prepareAuthentication()
	if !c.Auth().Usable() {
		return
	}
	if !c.ensureMarkets(ctx, false) {
		return
	}

	c.logger.Debug("retrieving accounts")

	balances, err := retrier.DoWithData(c.callRetrier, ctx, c.client.FetchBalance)
	if err != nil {
		c.absorb(err, "fetch balance")
		return
	}

	accounts := make(domain.Balances, len(balances))
	for _, b := range balances {
		accounts.Deposit(b.Currency, "total", b.Total)
		if !b.Free.IsZero() || !b.Used.IsZero() {
			accounts.Deposit(b.Currency, "free", b.Free)
			accounts.Deposit(b.Currency, "used", b.Used)
		}
	}
	c.ReplaceAccounts(accounts)
}

// RetrieveTransactions downloads the ledger of every account and aggregates
// it into signed per-pair totals. Only supported for exchanges exposing a
// ledger.
func (c *Connector) RetrieveTransactions(ctx context.Context) {
	if !c.settings.EnableTransactions {
		return
	}
	c.prepareAuthentication()
	if !c.Auth().Usable() {
		return
	}
	if !c.client.HasLedger() {
		c.logger.Debug("exchange has no ledger support, skipping transactions")
		return
	}
	if !c.ensureMarkets(ctx, false) {
		return
	}
	if len(c.Accounts()) == 0 {
		c.RetrieveAccounts(ctx)
	}

	c.logger.Debug("retrieving transactions")

	var ledger []LedgerEntry
	for account := range c.Accounts() {
		entries := c.fetchLedger(ctx, account)
		if len(entries) == 0 {
			continue
		}
		if entries[0].NativeCurrency != "" {
			ledger = append(ledger, entries...)
			continue
		}
		if entries[0].ReferenceID != "" {
			// reference-id ledgers span all accounts in one response
			ledger = entries
			break
		}
	}
	if len(ledger) == 0 {
		return
	}

	transactions := make(domain.Aggregates)
	if ledger[0].NativeCurrency != "" {
		processNativeAmounts(transactions, ledger)
	} else {
		processReferenceIDs(transactions, ledger)
	}
	c.ReplaceTransactions(transactions)
}

// prepareAuthentication flips the auth state to enabled once credentials are
// present and first used. A disabled state is final.
func (c *Connector) prepareAuthentication() {
	if c.AuthenticationState() == domain.AuthUnknown && c.client.Authenticated() {
		c.Auth().Enable()
		c.logger.Debug("authentication is configured")
	}
}

// ensureMarkets loads the market list once and caches it. It reports whether
// markets are available.
func (c *Connector) ensureMarkets(ctx context.Context, force bool) bool {
	if len(c.markets) > 0 && !force {
		return true
	}

	c.logger.Debug("fetching markets", zap.Bool("force", force))
	markets, err := retrier.DoWithData(c.marketsRetrier, ctx, c.client.FetchMarkets)
	if err != nil {
		c.absorb(err, "fetch markets")
		return false
	}
	c.markets = markets
	return len(c.markets) > 0
}

func (c *Connector) fetchTickers(ctx context.Context) map[string]decimal.Decimal {
	quotes, err := retrier.DoWithData(c.callRetrier, ctx, c.client.FetchTickers)
	if err != nil {
		c.absorb(err, "fetch tickers")
		return nil
	}
	return quotes
}

// fetchEachTicker polls the filtered symbols one by one. Used when the
// upstream lacks a bulk endpoint or bulk fetching is disabled.
func (c *Connector) fetchEachTicker(ctx context.Context) map[string]decimal.Decimal {
	quotes := make(map[string]decimal.Decimal)
	for _, market := range c.markets {
		if !c.wantSymbol(market.Symbol) {
			continue
		}

		last, err := retrier.DoWithData(c.callRetrier, ctx, func(ctx context.Context) (decimal.Decimal, error) {
			return c.client.FetchTicker(ctx, market.Symbol)
		})
		if err != nil {
			if kind, _ := retrier.KindOf(err); kind == retrier.Fatal && isStaleMarkets(err) {
				c.logger.Warn("reloading markets", zap.String("symbol", market.Symbol))
				c.ensureMarkets(ctx, true)
				continue
			}
			c.absorb(err, "fetch ticker "+market.Symbol)
			continue
		}
		quotes[market.Symbol] = last
	}
	return quotes
}

// wantSymbol applies the symbol and reference-currency filters. The filters
// are ORed: a symbol passes with no filters configured, when listed
// explicitly, or when its quote currency matches a reference currency.
func (c *Connector) wantSymbol(symbol string) bool {
	if len(c.settings.Symbols) == 0 && len(c.settings.ReferenceCurrencies) == 0 {
		return true
	}
	for _, s := range c.settings.Symbols {
		if s == symbol {
			return true
		}
	}
	pair, err := domain.ParsePair(symbol)
	if err != nil {
		return false
	}
	for _, ref := range c.settings.ReferenceCurrencies {
		if ref == pair.Quote {
			return true
		}
	}
	return false
}

// fetchLedger walks the account's ledger page by page with an explicit
// cursor, backfills when the upstream reports more entries than retrieved,
// and drops structurally identical duplicates.
func (c *Connector) fetchLedger(ctx context.Context, account string) []LedgerEntry {
	var entries []LedgerEntry

	page, ok := c.fetchLedgerPage(ctx, account, "")
	if !ok {
		return nil
	}
	entries = append(entries, page.Entries...)

	for page.NextCursor != "" {
		if page, ok = c.fetchLedgerPage(ctx, account, page.NextCursor); !ok {
			break
		}
		entries = append(entries, page.Entries...)
	}

	// some upstreams report a total count instead of a cursor
	for page.TotalCount > len(entries) && len(entries) > 0 {
		backfill, ok := c.fetchLedgerPage(ctx, account, entries[0].ID)
		if !ok || len(backfill.Entries) == 0 {
			break
		}
		entries = append(entries, backfill.Entries...)
		page = backfill
	}

	return dedupEntries(entries)
}

func (c *Connector) fetchLedgerPage(ctx context.Context, account, cursor string) (LedgerPage, bool) {
	c.logger.Debug("fetching ledger page",
		zap.String("account", account), zap.String("cursor", cursor))

	page, err := retrier.DoWithData(c.callRetrier, ctx, func(ctx context.Context) (LedgerPage, error) {
		return c.client.FetchLedger(ctx, account, cursor)
	})
	if err != nil {
		c.absorb(err, "fetch ledger for "+account)
		return LedgerPage{}, false
	}
	return page, true
}

// absorb logs a retrieval failure and disables authentication on credential
// problems. Nothing propagates to the caller.
func (c *Connector) absorb(err error, op string) {
	kind, _ := retrier.KindOf(err)
	switch kind {
	case retrier.AuthFailed:
		c.Auth().Disable()
		c.logger.Error("cannot authenticate, disabling the credentials"+c.nonceHint(err),
			zap.String("op", op), zap.String("error", c.RedactErr(err)))
	case retrier.PermissionDenied:
		c.Auth().Disable()
		c.logger.Error("the exchange reports permission denied, check the API token permissions",
			zap.String("op", op), zap.String("error", c.RedactErr(err)))
	default:
		c.logger.Warn("giving up on "+op,
			zap.String("kind", kind.String()), zap.String("error", c.RedactErr(err)))
	}
}

// nonceHint suggests flipping the NONCE setting when the upstream complains
// about an expired request timestamp.
func (c *Connector) nonceHint(err error) string {
	if !strings.Contains(strings.ToLower(err.Error()), "timestamp") {
		return ""
	}
	switch c.settings.Nonce {
	case "milliseconds":
		return ", set NONCE to 'seconds' and try again"
	case "seconds":
		return ", set NONCE to 'milliseconds' and try again"
	}
	return ""
}

func isStaleMarkets(err error) bool {
	return errors.Is(err, ErrStaleMarkets)
}

// processNativeAmounts aggregates native-amount ledger entries. Only buys and
// sells between distinct currencies count; the native value is subtracted
// from the pair's running total.
func processNativeAmounts(agg domain.Aggregates, ledger []LedgerEntry) {
	for _, entry := range ledger {
		if entry.NativeCurrency == "" || entry.Currency == entry.NativeCurrency {
			continue
		}
		if entry.Type != "buy" && entry.Type != "sell" {
			continue
		}
		agg.Sub(domain.TransactionKey{
			Currency:          entry.Currency,
			ReferenceCurrency: entry.NativeCurrency,
			Type:              "trade",
		}, entry.NativeAmount)
	}
}

// processReferenceIDs aggregates reference-id ledger entries by pairing each
// trade with the opposite leg sharing its ReferenceID. Incoming amounts add,
// outgoing subtract.
func processReferenceIDs(agg domain.Aggregates, ledger []LedgerEntry) {
	for _, entry := range ledger {
		if entry.Type != "trade" {
			continue
		}
		for _, pair := range ledger {
			if entry.ReferenceID == "" || pair.ReferenceID == "" ||
				entry.ReferenceID != pair.ReferenceID || entry.Currency == pair.Currency {
				continue
			}
			key := domain.TransactionKey{
				Currency:          pair.Currency,
				ReferenceCurrency: entry.Currency,
				Type:              entry.Type,
			}
			switch entry.Direction {
			case "in":
				agg.Add(key, entry.Amount)
			case "out":
				agg.Sub(key, entry.Amount)
			}
		}
	}
}

// dedupEntries removes entries structurally identical to an earlier one.
func dedupEntries(entries []LedgerEntry) []LedgerEntry {
	seen := make(map[string]struct{}, len(entries))
	out := entries[:0]
	for _, e := range entries {
		key := e.ID + "|" + e.ReferenceID + "|" + e.Currency + "|" + e.Amount.String() +
			"|" + e.Direction + "|" + e.Type + "|" + e.NativeCurrency + "|" + e.NativeAmount.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}
