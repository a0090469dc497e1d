package exchange

import (
	"context"
	"net"
	"strings"

	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/mkrutov/cryptoexporter/config"
	"github.com/mkrutov/cryptoexporter/pkg/retrier"
)

// BybitClient adapts the Bybit V5 spot API.
type BybitClient struct {
	client *bybit.Client
	authed bool

	bySymbol    map[string]string
	byCanonical map[string]string
}

// NewBybitClient builds the Bybit adapter from the settings.
func NewBybitClient(settings *config.Settings) *BybitClient {
	client := bybit.NewClient()
	if settings.APIKey != "" && settings.APISecret != "" {
		client = client.WithAuth(settings.APIKey, settings.APISecret)
	}
	if settings.URL != "" {
		client = client.WithBaseURL(settings.URL)
	}
	return &BybitClient{
		client:      client,
		authed:      settings.APIKey != "" && settings.APISecret != "",
		bySymbol:    make(map[string]string),
		byCanonical: make(map[string]string),
	}
}

func (b *BybitClient) Name() string         { return "bybit" }
func (b *BybitClient) Authenticated() bool  { return b.authed }
func (b *BybitClient) HasBulkTickers() bool { return true }
func (b *BybitClient) HasLedger() bool      { return false }

func (b *BybitClient) FetchMarkets(ctx context.Context) ([]Market, error) {
	res, err := b.client.V5().Market().GetInstrumentsInfo(bybit.V5GetInstrumentsInfoParam{
		Category: bybit.CategoryV5Spot,
	})
	if err != nil {
		return nil, errors.Wrap(err, "fetch instruments info")
	}
	if res.Result.Spot == nil {
		return nil, errors.Wrap(ErrMalformed, "instruments info has no spot result")
	}

	markets := make([]Market, 0, len(res.Result.Spot.List))
	for _, item := range res.Result.Spot.List {
		canonical := string(item.BaseCoin) + "/" + string(item.QuoteCoin)
		b.bySymbol[string(item.Symbol)] = canonical
		b.byCanonical[canonical] = string(item.Symbol)
		markets = append(markets, Market{Symbol: canonical})
	}
	return markets, nil
}

func (b *BybitClient) FetchTickers(ctx context.Context) (map[string]decimal.Decimal, error) {
	res, err := b.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: bybit.CategoryV5Spot,
	})
	if err != nil {
		return nil, errors.Wrap(err, "fetch tickers")
	}
	if res.Result.Spot == nil {
		return nil, errors.Wrap(ErrMalformed, "tickers have no spot result")
	}

	quotes := make(map[string]decimal.Decimal, len(res.Result.Spot.List))
	for _, item := range res.Result.Spot.List {
		canonical, ok := b.bySymbol[string(item.Symbol)]
		if !ok {
			continue
		}
		last, err := decimal.NewFromString(item.LastPrice)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "last price %q for %s", item.LastPrice, item.Symbol)
		}
		quotes[canonical] = last
	}
	return quotes, nil
}

func (b *BybitClient) FetchTicker(ctx context.Context, symbol string) (decimal.Decimal, error) {
	exchangeSymbol, ok := b.byCanonical[symbol]
	if !ok {
		return decimal.Zero, errors.Wrapf(ErrStaleMarkets, "unknown symbol %s", symbol)
	}

	sym := bybit.SymbolV5(exchangeSymbol)
	res, err := b.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   &sym,
	})
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "fetch ticker for %s", symbol)
	}
	if res.Result.Spot == nil || len(res.Result.Spot.List) == 0 {
		return decimal.Zero, errors.Wrapf(ErrMalformed, "empty ticker list for %s", symbol)
	}
	return decimal.NewFromString(res.Result.Spot.List[0].LastPrice)
}

func (b *BybitClient) FetchBalance(ctx context.Context) ([]AccountBalance, error) {
	res, err := b.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5("UNIFIED"), nil)
	if err != nil {
		return nil, errors.Wrap(err, "fetch wallet balance")
	}
	if len(res.Result.List) == 0 {
		return nil, errors.Wrap(ErrMalformed, "wallet balance has no account list")
	}

	var balances []AccountBalance
	for _, coin := range res.Result.List[0].Coin {
		total, err := decimal.NewFromString(coin.WalletBalance)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "wallet balance %q for %s", coin.WalletBalance, coin.Coin)
		}
		if total.IsZero() {
			continue
		}
		balances = append(balances, AccountBalance{
			Currency: string(coin.Coin),
			Total:    total,
		})
	}
	return balances, nil
}

func (b *BybitClient) FetchLedger(ctx context.Context, account, cursor string) (LedgerPage, error) {
	return LedgerPage{}, ErrNotSupported
}

// Classify inspects Bybit error text; the SDK does not expose typed errors
// for every failure, so the documented return codes are matched as strings.
func (b *BybitClient) Classify(err error) retrier.Kind {
	if errors.Is(err, ErrMalformed) || errors.Is(err, ErrStaleMarkets) || errors.Is(err, ErrNotSupported) {
		return retrier.Fatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return retrier.Unavailable
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "10006"), strings.Contains(msg, "too many visits"),
		strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"):
		return retrier.RateLimited
	case strings.Contains(msg, "10003"), strings.Contains(msg, "10004"),
		strings.Contains(msg, "invalid api_key"), strings.Contains(msg, "error sign"),
		strings.Contains(msg, "timestamp"):
		return retrier.AuthFailed
	case strings.Contains(msg, "10005"), strings.Contains(msg, "permission denied"):
		return retrier.PermissionDenied
	}
	return retrier.Unavailable
}
