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

const (
	rippleDefaultURL = "https://data.ripple.com/v2"
	// ripplePacing spaces out per-address calls to stay under the public
	// API's rate limit.
	ripplePacing = time.Second
)

// Ripple retrieves XRP ledger balances for configured addresses from the
// Ripple Data API. Addresses accumulate across cycles.
type Ripple struct {
	connector.Base

	settings config.Settings
	client   *http.Client
	logger   *zap.Logger
	retr     *retrier.Retrier
}

// NewRipple validates the mandatory settings and builds the connector.
func NewRipple(settings *config.Settings, logger *zap.Logger) (*Ripple, error) {
	if len(settings.Addresses) == 0 {
		return nil, errors.New("missing required setting ADDRESSES")
	}

	c := &Ripple{
		Base:     connector.NewBase("ripple", settings.Secrets()...),
		settings: *settings,
		client:   &http.Client{Timeout: settings.Timeout},
		logger:   logger.Named("ripple"),
	}
	if c.settings.URL == "" {
		c.settings.URL = rippleDefaultURL
	}
	c.retr = retrier.New(
		retrier.WithMaxRetries(bestEffortRetries),
		retrier.WithClassifier(classifyHTTP),
		retrier.WithDelay(retrier.RateLimited, time.Second),
		retrier.WithDelay(retrier.Unavailable, 2*time.Second),
	)
	return c, nil
}

// RetrieveAccounts loads the balances of every configured address, pausing
// between addresses.
func (c *Ripple) RetrieveAccounts(ctx context.Context) {
	c.logger.Debug("retrieving the account balances")

	accounts := c.Accounts()
	for i, address := range c.settings.Addresses {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(ripplePacing):
			}
		}

		var result struct {
			Result   string `json:"result"`
			Balances []struct {
				Currency string          `json:"currency"`
				Value    decimal.Decimal `json:"value"`
			} `json:"balances"`
		}
		err := c.retr.Do(ctx, func(ctx context.Context) error {
			return getJSON(ctx, c.client, c.settings.URL+"/accounts/"+address+"/balances", nil, &result)
		})
		if err != nil {
			c.logger.Warn("giving up on balances",
				zap.String("account", address), zap.String("error", c.RedactErr(err)))
			continue
		}
		if result.Result != "success" {
			c.logger.Warn("could not retrieve balances",
				zap.String("account", address), zap.String("result", c.Redact(result.Result)))
			continue
		}

		for _, balance := range result.Balances {
			accounts.Deposit(balance.Currency, address, balance.Value)
		}
	}
}
