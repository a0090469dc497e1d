package explorer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
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
	ethplorerDefaultURL = "https://api.ethplorer.io"
	ethplorerRetries    = 2
)

// Ethplorer retrieves ETH and token balances per address from the Ethplorer
// getAddressInfo API. The balance map is rebuilt every cycle.
type Ethplorer struct {
	connector.Base

	settings config.Settings
	client   *http.Client
	logger   *zap.Logger
	retr     *retrier.Retrier
}

// NewEthplorer validates the mandatory settings and builds the connector.
// The public "freekey" API key works with tight rate limits.
func NewEthplorer(settings *config.Settings, logger *zap.Logger) (*Ethplorer, error) {
	if settings.APIKey == "" {
		return nil, errors.New("missing required setting API_KEY")
	}
	if len(settings.Addresses) == 0 {
		return nil, errors.New("missing required setting ADDRESSES")
	}

	c := &Ethplorer{
		Base:     connector.NewBase("ethplorer", settings.Secrets()...),
		settings: *settings,
		client:   &http.Client{Timeout: settings.Timeout},
		logger:   logger.Named("ethplorer"),
	}
	if c.settings.URL == "" {
		c.settings.URL = ethplorerDefaultURL
	}
	c.retr = retrier.New(
		retrier.WithMaxRetries(ethplorerRetries),
		retrier.WithClassifier(classifyEthplorer),
		retrier.WithDelay(retrier.RateLimited, time.Second),
		retrier.WithDelay(retrier.Unavailable, 2*time.Second),
	)
	c.Auth().Enable()
	return c, nil
}

// classifyEthplorer treats a 403 as a bad API key on top of the usual HTTP
// classification.
func classifyEthplorer(err error) retrier.Kind {
	var httpErr *httpError
	if errors.As(err, &httpErr) && httpErr.status == http.StatusForbidden {
		return retrier.AuthFailed
	}
	return classifyHTTP(err)
}

type ethplorerAddressInfo struct {
	ETH struct {
		Balance float64 `json:"balance"`
	} `json:"ETH"`
	Tokens []struct {
		TokenInfo struct {
			Symbol   string          `json:"symbol"`
			Decimals json.RawMessage `json:"decimals"`
		} `json:"tokenInfo"`
		Balance float64 `json:"balance"`
	} `json:"tokens"`
}

// RetrieveAccounts loads every configured address via getAddressInfo. A token
// with a missing or oversized symbol aborts the rest of that address's token
// list.
func (c *Ethplorer) RetrieveAccounts(ctx context.Context) {
	if !c.Auth().Usable() {
		return
	}

	c.logger.Debug("retrieving the account balances")

	accounts := make(domain.Balances)
	for _, address := range c.settings.Addresses {
		var info ethplorerAddressInfo
		err := c.retr.Do(ctx, func(ctx context.Context) error {
			return getJSON(ctx, c.client, c.settings.URL+"/getAddressInfo/"+address, url.Values{
				"apiKey": []string{c.settings.APIKey},
			}, &info)
		})
		if err != nil {
			if kind, _ := retrier.KindOf(err); kind == retrier.AuthFailed {
				c.Auth().Disable()
				c.logger.Error("cannot authenticate, disabling the credentials",
					zap.String("error", c.RedactErr(err)))
				return
			}
			c.logger.Warn("giving up on getAddressInfo",
				zap.String("account", address), zap.String("error", c.RedactErr(err)))
			continue
		}

		accounts.Deposit("ETH", address, decimal.NewFromFloat(info.ETH.Balance))

		for _, token := range info.Tokens {
			if !validTokenSymbol(token.TokenInfo.Symbol) {
				break
			}
			value := decimal.NewFromFloat(token.Balance)
			accounts.Deposit(token.TokenInfo.Symbol, address,
				tokenValue(value, ethplorerDecimals(token.TokenInfo.Decimals)))
		}
	}
	c.ReplaceAccounts(accounts)
}

// ethplorerDecimals parses the decimals field, which the API returns as
// either a number or a quoted string.
func ethplorerDecimals(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return 0
}
