package exchange

import (
	"context"
	"net"
	"net/http"
	"strings"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/mkrutov/cryptoexporter/config"
	"github.com/mkrutov/cryptoexporter/pkg/retrier"
)

// BinanceClient adapts the Binance spot API.
type BinanceClient struct {
	client *binance.Client
	authed bool

	// exchange symbol ("BTCUSDT") keyed by canonical symbol and back
	bySymbol    map[string]string
	byCanonical map[string]string
}

// NewBinanceClient builds the Binance adapter from the settings.
func NewBinanceClient(settings *config.Settings) *BinanceClient {
	client := binance.NewClient(settings.APIKey, settings.APISecret)
	client.HTTPClient = &http.Client{Timeout: settings.Timeout}
	if settings.URL != "" {
		client.BaseURL = settings.URL
	}
	return &BinanceClient{
		client:      client,
		authed:      settings.APIKey != "" && settings.APISecret != "",
		bySymbol:    make(map[string]string),
		byCanonical: make(map[string]string),
	}
}

func (b *BinanceClient) Name() string         { return "binance" }
func (b *BinanceClient) Authenticated() bool  { return b.authed }
func (b *BinanceClient) HasBulkTickers() bool { return true }
func (b *BinanceClient) HasLedger() bool      { return false }

func (b *BinanceClient) FetchMarkets(ctx context.Context) ([]Market, error) {
	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch exchange info")
	}

	markets := make([]Market, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		canonical := s.BaseAsset + "/" + s.QuoteAsset
		b.bySymbol[s.Symbol] = canonical
		b.byCanonical[canonical] = s.Symbol
		markets = append(markets, Market{Symbol: canonical})
	}
	return markets, nil
}

func (b *BinanceClient) FetchTickers(ctx context.Context) (map[string]decimal.Decimal, error) {
	prices, err := b.client.NewListPricesService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch prices")
	}

	quotes := make(map[string]decimal.Decimal, len(prices))
	for _, p := range prices {
		canonical, ok := b.bySymbol[p.Symbol]
		if !ok {
			continue
		}
		last, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "price %q for %s", p.Price, p.Symbol)
		}
		quotes[canonical] = last
	}
	return quotes, nil
}

func (b *BinanceClient) FetchTicker(ctx context.Context, symbol string) (decimal.Decimal, error) {
	exchangeSymbol, ok := b.byCanonical[symbol]
	if !ok {
		return decimal.Zero, errors.Wrapf(ErrStaleMarkets, "unknown symbol %s", symbol)
	}

	prices, err := b.client.NewListPricesService().Symbol(exchangeSymbol).Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "fetch price for %s", symbol)
	}
	if len(prices) == 0 {
		return decimal.Zero, errors.Wrapf(ErrMalformed, "empty price list for %s", symbol)
	}
	return decimal.NewFromString(prices[0].Price)
}

func (b *BinanceClient) FetchBalance(ctx context.Context) ([]AccountBalance, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch account")
	}

	var balances []AccountBalance
	for _, bal := range account.Balances {
		free, err := decimal.NewFromString(bal.Free)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "free balance %q for %s", bal.Free, bal.Asset)
		}
		locked, err := decimal.NewFromString(bal.Locked)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "locked balance %q for %s", bal.Locked, bal.Asset)
		}
		total := free.Add(locked)
		if total.IsZero() {
			continue
		}
		balances = append(balances, AccountBalance{
			Currency: bal.Asset,
			Total:    total,
			Free:     free,
			Used:     locked,
		})
	}
	return balances, nil
}

func (b *BinanceClient) FetchLedger(ctx context.Context, account, cursor string) (LedgerPage, error) {
	return LedgerPage{}, ErrNotSupported
}

// Classify maps Binance API error codes and transport failures into the
// retry taxonomy.
func (b *BinanceClient) Classify(err error) retrier.Kind {
	if errors.Is(err, ErrMalformed) || errors.Is(err, ErrStaleMarkets) || errors.Is(err, ErrNotSupported) {
		return retrier.Fatal
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -1003: // TOO_MANY_REQUESTS
			return retrier.RateLimited
		case -1021, -1022, -2014: // timestamp, signature, key format
			return retrier.AuthFailed
		case -2015: // invalid key, IP or permissions for action
			return retrier.PermissionDenied
		}
		return retrier.Unavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return retrier.Unavailable
	}
	if strings.Contains(err.Error(), "429") {
		return retrier.RateLimited
	}
	return retrier.Unavailable
}
