package explorer

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mkrutov/cryptoexporter/config"
	"github.com/mkrutov/cryptoexporter/internal/connector"
	"github.com/mkrutov/cryptoexporter/pkg/retrier"
)

const stellarDefaultURL = "https://horizon.stellar.org"

// Stellar retrieves account balances for configured addresses from a Horizon
// server. Addresses accumulate across cycles.
type Stellar struct {
	connector.Base

	settings config.Settings
	client   *http.Client
	logger   *zap.Logger
	retr     *retrier.Retrier
}

// NewStellar validates the mandatory settings and builds the connector.
func NewStellar(settings *config.Settings, logger *zap.Logger) (*Stellar, error) {
	if len(settings.Addresses) == 0 {
		return nil, errors.New("missing required setting ADDRESSES")
	}

	c := &Stellar{
		Base:     connector.NewBase("stellar", settings.Secrets()...),
		settings: *settings,
		client:   &http.Client{Timeout: settings.Timeout},
		logger:   logger.Named("stellar"),
	}
	if c.settings.URL == "" {
		c.settings.URL = stellarDefaultURL
	}
	c.retr = retrier.New(
		retrier.WithMaxRetries(bestEffortRetries),
		retrier.WithClassifier(classifyHTTP),
		retrier.WithDelay(retrier.RateLimited, time.Second),
		retrier.WithDelay(retrier.Unavailable, 2*time.Second),
	)
	return c, nil
}

// RetrieveAccounts loads the balances of every configured address. The
// native asset is reported as XLM, issued assets under their asset code.
func (c *Stellar) RetrieveAccounts(ctx context.Context) {
	c.logger.Debug("retrieving the account balances")

	accounts := c.Accounts()
	for _, address := range c.settings.Addresses {
		var result struct {
			Balances []struct {
				AssetType string          `json:"asset_type"`
				AssetCode string          `json:"asset_code"`
				Balance   decimal.Decimal `json:"balance"`
			} `json:"balances"`
		}
		err := c.retr.Do(ctx, func(ctx context.Context) error {
			return getJSON(ctx, c.client, c.settings.URL+"/accounts/"+address, nil, &result)
		})
		if err != nil {
			c.logger.Warn("giving up on account",
				zap.String("account", address), zap.String("error", c.RedactErr(err)))
			continue
		}

		for _, balance := range result.Balances {
			currency := balance.AssetCode
			if balance.AssetType == "native" {
				currency = "XLM"
			}
			if currency == "" {
				continue
			}
			accounts.Deposit(currency, address, balance.Balance)
		}
	}
}
