package exchange

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mkrutov/cryptoexporter/config"
	"github.com/mkrutov/cryptoexporter/internal/domain"
	"github.com/mkrutov/cryptoexporter/pkg/retrier"
)

type fakeClient struct {
	name          string
	authenticated bool
	bulk          bool
	ledger        bool

	markets    []Market
	marketsErr error
	quotes     map[string]decimal.Decimal
	quotesErr  error
	tickerFn   func(symbol string) (decimal.Decimal, error)
	balances   []AccountBalance
	balanceErr error
	ledgerFn   func(account, cursor string) (LedgerPage, error)

	classifyFn func(error) retrier.Kind

	balanceCalls int
	marketsCalls int
	tickerCalls  []string
}

func (f *fakeClient) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}
func (f *fakeClient) Authenticated() bool  { return f.authenticated }
func (f *fakeClient) HasBulkTickers() bool { return f.bulk }
func (f *fakeClient) HasLedger() bool      { return f.ledger }

func (f *fakeClient) FetchMarkets(ctx context.Context) ([]Market, error) {
	f.marketsCalls++
	return f.markets, f.marketsErr
}

func (f *fakeClient) FetchTickers(ctx context.Context) (map[string]decimal.Decimal, error) {
	return f.quotes, f.quotesErr
}

func (f *fakeClient) FetchTicker(ctx context.Context, symbol string) (decimal.Decimal, error) {
	f.tickerCalls = append(f.tickerCalls, symbol)
	if f.tickerFn != nil {
		return f.tickerFn(symbol)
	}
	last, ok := f.quotes[symbol]
	if !ok {
		return decimal.Zero, errors.Wrapf(ErrStaleMarkets, "unknown symbol %s", symbol)
	}
	return last, nil
}

func (f *fakeClient) FetchBalance(ctx context.Context) ([]AccountBalance, error) {
	f.balanceCalls++
	return f.balances, f.balanceErr
}

func (f *fakeClient) FetchLedger(ctx context.Context, account, cursor string) (LedgerPage, error) {
	if f.ledgerFn == nil {
		return LedgerPage{}, ErrNotSupported
	}
	return f.ledgerFn(account, cursor)
}

func (f *fakeClient) Classify(err error) retrier.Kind {
	if f.classifyFn != nil {
		return f.classifyFn(err)
	}
	return retrier.Fatal
}

func newTestConnector(client Client, settings config.Settings) *Connector {
	if settings.Timeout == 0 {
		settings.Timeout = config.DefaultTimeout
	}
	return New(client, &settings, zap.NewNop())
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRetrieveTickers(t *testing.T) {
	t.Run("bulk tickers are normalized", func(t *testing.T) {
		client := &fakeClient{
			bulk:    true,
			markets: []Market{{Symbol: "BTC/USDT"}, {Symbol: "ETH/USDT"}},
			quotes: map[string]decimal.Decimal{
				"BTC/USDT":  d("50000"),
				"ETH/USDT":  d("0"),     // zero prices are dropped
				"GARBAGE":   d("1"),     // not a pair
				"A/B/C":     d("2"),     // too many components
				"DOGE/USDT": d("0.123"),
			},
		}
		c := newTestConnector(client, config.Settings{EnableTickers: true})

		c.RetrieveTickers(context.Background())

		tickers := c.Tickers()
		require.Len(t, tickers, 2)
		assert.Equal(t, d("50000"), tickers["BTC/USDT"].LastPrice)
		assert.Equal(t, "BTC", tickers["BTC/USDT"].Pair.Base)
		assert.Equal(t, "USDT", tickers["BTC/USDT"].Pair.Quote)
		assert.Equal(t, d("0.123"), tickers["DOGE/USDT"].LastPrice)
	})

	t.Run("disabled tickers stay empty", func(t *testing.T) {
		client := &fakeClient{bulk: true, markets: []Market{{Symbol: "BTC/USDT"}}}
		c := newTestConnector(client, config.Settings{EnableTickers: false})

		c.RetrieveTickers(context.Background())

		assert.Empty(t, c.Tickers())
	})

	t.Run("failure keeps the previous cycle", func(t *testing.T) {
		client := &fakeClient{
			bulk:    true,
			markets: []Market{{Symbol: "BTC/USDT"}},
			quotes:  map[string]decimal.Decimal{"BTC/USDT": d("50000")},
		}
		c := newTestConnector(client, config.Settings{EnableTickers: true})

		c.RetrieveTickers(context.Background())
		require.Len(t, c.Tickers(), 1)

		client.quotes = nil
		client.quotesErr = errors.New("boom")
		c.RetrieveTickers(context.Background())

		assert.Len(t, c.Tickers(), 1, "stale data beats no data")
	})

	t.Run("per-symbol fetch honors the filters", func(t *testing.T) {
		client := &fakeClient{
			bulk: false,
			markets: []Market{
				{Symbol: "BTC/USDT"}, {Symbol: "ETH/USDT"},
				{Symbol: "ETH/EUR"}, {Symbol: "XRP/BTC"},
			},
			quotes: map[string]decimal.Decimal{
				"BTC/USDT": d("50000"),
				"ETH/USDT": d("3000"),
				"ETH/EUR":  d("2800"),
				"XRP/BTC":  d("0.00001"),
			},
		}
		c := newTestConnector(client, config.Settings{
			EnableTickers:       true,
			Symbols:             []string{"BTC/USDT"},
			ReferenceCurrencies: []string{"EUR"},
		})

		c.RetrieveTickers(context.Background())

		// listed symbol OR matching reference currency
		assert.ElementsMatch(t, []string{"BTC/USDT", "ETH/EUR"}, client.tickerCalls)
		assert.Len(t, c.Tickers(), 2)
	})

	t.Run("stale symbol reloads markets and keeps going", func(t *testing.T) {
		client := &fakeClient{
			bulk: false,
			markets: []Market{
				{Symbol: "AAA/USD"}, {Symbol: "BBB/USD"}, {Symbol: "CCC/USD"},
			},
			// BBB/USD is gone upstream, FetchTicker rejects it
			quotes: map[string]decimal.Decimal{
				"AAA/USD": d("1"),
				"CCC/USD": d("3"),
			},
		}
		c := newTestConnector(client, config.Settings{EnableTickers: true})

		c.RetrieveTickers(context.Background())

		assert.Equal(t, []string{"AAA/USD", "BBB/USD", "CCC/USD"}, client.tickerCalls,
			"symbols after the stale one are still polled")
		assert.Equal(t, 2, client.marketsCalls, "the stale symbol forces a reload")
		tickers := c.Tickers()
		require.Len(t, tickers, 2)
		assert.Equal(t, d("1"), tickers["AAA/USD"].LastPrice)
		assert.Equal(t, d("3"), tickers["CCC/USD"].LastPrice)
	})

	t.Run("no filters means everything", func(t *testing.T) {
		client := &fakeClient{
			bulk:    false,
			markets: []Market{{Symbol: "BTC/USDT"}, {Symbol: "ETH/EUR"}},
			quotes: map[string]decimal.Decimal{
				"BTC/USDT": d("50000"),
				"ETH/EUR":  d("2800"),
			},
		}
		c := newTestConnector(client, config.Settings{EnableTickers: true})

		c.RetrieveTickers(context.Background())

		assert.Len(t, client.tickerCalls, 2)
	})
}

func TestRetrieveAccounts(t *testing.T) {
	t.Run("balances land in buckets", func(t *testing.T) {
		client := &fakeClient{
			authenticated: true,
			markets:       []Market{{Symbol: "BTC/USDT"}},
			balances: []AccountBalance{
				{Currency: "BTC", Total: d("1.5"), Free: d("1"), Used: d("0.5")},
				{Currency: "USDT", Total: d("100")},
			},
		}
		c := newTestConnector(client, config.Settings{})

		c.RetrieveAccounts(context.Background())

		accounts := c.Accounts()
		assert.Equal(t, d("1.5"), accounts["BTC"]["total"])
		assert.Equal(t, d("1"), accounts["BTC"]["free"])
		assert.Equal(t, d("0.5"), accounts["BTC"]["used"])
		assert.Equal(t, d("100"), accounts["USDT"]["total"])
		_, hasFree := accounts["USDT"]["free"]
		assert.False(t, hasFree, "free/used omitted when both are zero")
		assert.Equal(t, domain.AuthEnabled, c.AuthenticationState())
	})

	t.Run("unauthenticated client never fetches", func(t *testing.T) {
		client := &fakeClient{authenticated: false, markets: []Market{{Symbol: "BTC/USDT"}}}
		c := newTestConnector(client, config.Settings{})

		c.RetrieveAccounts(context.Background())

		assert.Zero(t, client.balanceCalls)
		assert.Equal(t, domain.AuthUnknown, c.AuthenticationState())
	})

	t.Run("auth failure disables credentials permanently", func(t *testing.T) {
		authErr := errors.New("invalid api key")
		client := &fakeClient{
			authenticated: true,
			markets:       []Market{{Symbol: "BTC/USDT"}},
			balanceErr:    authErr,
			classifyFn: func(err error) retrier.Kind {
				if errors.Is(err, authErr) {
					return retrier.AuthFailed
				}
				return retrier.Fatal
			},
		}
		c := newTestConnector(client, config.Settings{})

		c.RetrieveAccounts(context.Background())
		require.Equal(t, domain.AuthDisabled, c.AuthenticationState())
		require.Equal(t, 1, client.balanceCalls, "terminal failures abort immediately")

		// the credentials stay disabled even after the upstream recovers
		client.balanceErr = nil
		client.balances = []AccountBalance{{Currency: "BTC", Total: d("1")}}
		c.RetrieveAccounts(context.Background())

		assert.Equal(t, domain.AuthDisabled, c.AuthenticationState())
		assert.Equal(t, 1, client.balanceCalls)
		assert.Empty(t, c.Accounts())
	})
}

func TestRetrieveTransactions(t *testing.T) {
	base := func(ledgerFn func(account, cursor string) (LedgerPage, error)) *fakeClient {
		return &fakeClient{
			authenticated: true,
			ledger:        true,
			markets:       []Market{{Symbol: "BTC/USDT"}},
			balances:      []AccountBalance{{Currency: "BTC", Total: d("1")}},
			ledgerFn:      ledgerFn,
		}
	}

	t.Run("native amount scheme", func(t *testing.T) {
		client := base(func(account, cursor string) (LedgerPage, error) {
			return LedgerPage{Entries: []LedgerEntry{
				{ID: "1", Currency: "BTC", Amount: d("0.1"), Type: "buy",
					NativeCurrency: "USD", NativeAmount: d("5000")},
				{ID: "2", Currency: "BTC", Amount: d("0.05"), Type: "sell",
					NativeCurrency: "USD", NativeAmount: d("-2600")},
				{ID: "3", Currency: "USD", Amount: d("10"), Type: "buy",
					NativeCurrency: "USD", NativeAmount: d("10")}, // same currency, skipped
				{ID: "4", Currency: "BTC", Amount: d("1"), Type: "deposit",
					NativeCurrency: "USD", NativeAmount: d("99")}, // not a trade, skipped
			}}, nil
		})
		c := newTestConnector(client, config.Settings{EnableTransactions: true})

		c.RetrieveTransactions(context.Background())

		agg := c.Transactions()
		require.Len(t, agg, 1)
		key := domain.TransactionKey{Currency: "BTC", ReferenceCurrency: "USD", Type: "trade"}
		// -(5000) - (-2600)
		assert.Equal(t, d("-2400"), agg[key])
	})

	t.Run("reference id scheme", func(t *testing.T) {
		client := base(func(account, cursor string) (LedgerPage, error) {
			return LedgerPage{Entries: []LedgerEntry{
				{ID: "1", ReferenceID: "t1", Currency: "BTC", Amount: d("0.1"),
					Direction: "in", Type: "trade"},
				{ID: "2", ReferenceID: "t1", Currency: "USDT", Amount: d("5000"),
					Direction: "out", Type: "trade"},
			}}, nil
		})
		c := newTestConnector(client, config.Settings{EnableTransactions: true})

		c.RetrieveTransactions(context.Background())

		// each leg is keyed by its counterpart's currency: the incoming BTC
		// leg books 0.1 under {USDT, BTC}, the outgoing USDT leg -5000 under
		// {BTC, USDT}
		agg := c.Transactions()
		require.Len(t, agg, 2)
		assert.Equal(t, d("0.1"), agg[domain.TransactionKey{
			Currency: "USDT", ReferenceCurrency: "BTC", Type: "trade"}])
		assert.Equal(t, d("-5000"), agg[domain.TransactionKey{
			Currency: "BTC", ReferenceCurrency: "USDT", Type: "trade"}])
	})

	t.Run("cursor pagination with duplicates", func(t *testing.T) {
		pages := map[string]LedgerPage{
			"": {
				Entries: []LedgerEntry{
					{ID: "3", Currency: "BTC", Amount: d("0.3"), Type: "buy",
						NativeCurrency: "USD", NativeAmount: d("300")},
				},
				NextCursor: "p2",
			},
			"p2": {
				Entries: []LedgerEntry{
					// repeated from the first page
					{ID: "3", Currency: "BTC", Amount: d("0.3"), Type: "buy",
						NativeCurrency: "USD", NativeAmount: d("300")},
					{ID: "2", Currency: "BTC", Amount: d("0.2"), Type: "buy",
						NativeCurrency: "USD", NativeAmount: d("200")},
				},
			},
		}
		client := base(func(account, cursor string) (LedgerPage, error) {
			return pages[cursor], nil
		})
		c := newTestConnector(client, config.Settings{EnableTransactions: true})

		c.RetrieveTransactions(context.Background())

		agg := c.Transactions()
		key := domain.TransactionKey{Currency: "BTC", ReferenceCurrency: "USD", Type: "trade"}
		assert.Equal(t, d("-500"), agg[key], "duplicate entries count once")
	})

	t.Run("total count backfill", func(t *testing.T) {
		pages := map[string]LedgerPage{
			"": {
				Entries: []LedgerEntry{
					{ID: "2", Currency: "BTC", Amount: d("0.2"), Type: "buy",
						NativeCurrency: "USD", NativeAmount: d("200")},
				},
				TotalCount: 2,
			},
			// backfill resumes from the oldest retrieved id
			"2": {
				Entries: []LedgerEntry{
					{ID: "1", Currency: "BTC", Amount: d("0.1"), Type: "buy",
						NativeCurrency: "USD", NativeAmount: d("100")},
				},
				TotalCount: 2,
			},
		}
		client := base(func(account, cursor string) (LedgerPage, error) {
			return pages[cursor], nil
		})
		c := newTestConnector(client, config.Settings{EnableTransactions: true})

		c.RetrieveTransactions(context.Background())

		key := domain.TransactionKey{Currency: "BTC", ReferenceCurrency: "USD", Type: "trade"}
		assert.Equal(t, d("-300"), c.Transactions()[key])
	})

	t.Run("disabled transactions skip the ledger", func(t *testing.T) {
		called := false
		client := base(func(account, cursor string) (LedgerPage, error) {
			called = true
			return LedgerPage{}, nil
		})
		c := newTestConnector(client, config.Settings{EnableTransactions: false})

		c.RetrieveTransactions(context.Background())

		assert.False(t, called)
		assert.Empty(t, c.Transactions())
	})
}

func TestRedaction(t *testing.T) {
	client := &fakeClient{name: "fake"}
	settings := config.Settings{APIKey: "my-key", APISecret: "my-secret"}
	c := newTestConnector(client, settings)

	msg := c.Redact("request with my-key and my-secret failed")
	assert.NotContains(t, msg, "my-key")
	assert.NotContains(t, msg, "my-secret")
	assert.Contains(t, msg, "***REDACTED***")
}
