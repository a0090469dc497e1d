package exchange

import (
	"context"
	"crypto/ecdsa"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/mkrutov/cryptoexporter/config"
	"github.com/mkrutov/cryptoexporter/pkg/retrier"
)

const hyperliquidMainnetURL = "https://api.hyperliquid.xyz"

// HyperliquidClient adapts the Hyperliquid Info API. All pairs are quoted in
// USD; the account address is derived from the configured private key.
type HyperliquidClient struct {
	info        *hyperliquid.Info
	accountAddr string
}

// NewHyperliquidClient builds the Hyperliquid adapter. The private key is a
// required setting since the SDK derives the queryable account from it.
func NewHyperliquidClient(settings *config.Settings) (*HyperliquidClient, error) {
	if settings.PrivateKey == "" {
		return nil, errors.New("missing required setting PRIVATE_KEY")
	}

	key := strings.TrimPrefix(strings.TrimPrefix(settings.PrivateKey, "0x"), "0X")
	privateKey, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, errors.Wrap(err, "parse private key")
	}

	pub, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("error casting public key to ECDSA")
	}
	accountAddr := crypto.PubkeyToAddress(*pub).Hex()

	baseURL := settings.URL
	if baseURL == "" {
		baseURL = hyperliquidMainnetURL
	}

	// Info and SpotMeta are fetched lazily by the SDK
	ex := hyperliquid.NewExchange(
		context.Background(),
		privateKey,
		baseURL,
		nil,
		"",
		accountAddr,
		nil,
	)

	return &HyperliquidClient{info: ex.Info(), accountAddr: accountAddr}, nil
}

func (h *HyperliquidClient) Name() string         { return "hyperliquid" }
func (h *HyperliquidClient) Authenticated() bool  { return true }
func (h *HyperliquidClient) HasBulkTickers() bool { return true }
func (h *HyperliquidClient) HasLedger() bool      { return false }

func (h *HyperliquidClient) FetchMarkets(ctx context.Context) ([]Market, error) {
	mids, err := h.info.AllMids(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch mids")
	}

	markets := make([]Market, 0, len(mids))
	for coin := range mids {
		markets = append(markets, Market{Symbol: coin + "/USD"})
	}
	return markets, nil
}

func (h *HyperliquidClient) FetchTickers(ctx context.Context) (map[string]decimal.Decimal, error) {
	mids, err := h.info.AllMids(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch mids")
	}

	quotes := make(map[string]decimal.Decimal, len(mids))
	for coin, mid := range mids {
		if mid == "" {
			continue
		}
		last, err := decimal.NewFromString(mid)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "mid price %q for %s", mid, coin)
		}
		quotes[coin+"/USD"] = last
	}
	return quotes, nil
}

func (h *HyperliquidClient) FetchTicker(ctx context.Context, symbol string) (decimal.Decimal, error) {
	quotes, err := h.FetchTickers(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	last, ok := quotes[symbol]
	if !ok {
		return decimal.Zero, errors.Wrapf(ErrStaleMarkets, "unknown symbol %s", symbol)
	}
	return last, nil
}

func (h *HyperliquidClient) FetchBalance(ctx context.Context) ([]AccountBalance, error) {
	st, err := h.info.SpotUserState(ctx, h.accountAddr)
	if err != nil {
		return nil, errors.Wrap(err, "fetch spot user state")
	}

	var balances []AccountBalance
	for _, b := range st.Balances {
		total, err := decimal.NewFromString(b.Total)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "balance %q for %s", b.Total, b.Coin)
		}
		if total.IsZero() {
			continue
		}
		hold := decimal.Zero
		if b.Hold != "" {
			if hold, err = decimal.NewFromString(b.Hold); err != nil {
				return nil, errors.Wrapf(ErrMalformed, "hold %q for %s", b.Hold, b.Coin)
			}
		}
		balances = append(balances, AccountBalance{
			Currency: b.Coin,
			Total:    total,
			Free:     total.Sub(hold),
			Used:     hold,
		})
	}
	return balances, nil
}

func (h *HyperliquidClient) FetchLedger(ctx context.Context, account, cursor string) (LedgerPage, error) {
	return LedgerPage{}, ErrNotSupported
}

// Classify inspects Hyperliquid error text and transport failures.
func (h *HyperliquidClient) Classify(err error) retrier.Kind {
	if errors.Is(err, ErrMalformed) || errors.Is(err, ErrStaleMarkets) || errors.Is(err, ErrNotSupported) {
		return retrier.Fatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return retrier.Unavailable
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"):
		return retrier.RateLimited
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "signature"):
		return retrier.AuthFailed
	}
	return retrier.Unavailable
}
