package explorer

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mkrutov/cryptoexporter/config"
	"github.com/mkrutov/cryptoexporter/internal/connector"
	"github.com/mkrutov/cryptoexporter/pkg/retrier"
)

const (
	blockchainDefaultURL = "https://blockchain.info"
	satoshisPerBTCShift  = 8
)

// Blockchain retrieves BTC balances for configured addresses from the
// blockchain.info balance API. Addresses accumulate across cycles.
type Blockchain struct {
	connector.Base

	settings config.Settings
	client   *http.Client
	logger   *zap.Logger
	retr     *retrier.Retrier
}

// NewBlockchain validates the mandatory settings and builds the connector.
func NewBlockchain(settings *config.Settings, logger *zap.Logger) (*Blockchain, error) {
	if len(settings.Addresses) == 0 {
		return nil, errors.New("missing required setting ADDRESSES")
	}

	c := &Blockchain{
		Base:     connector.NewBase("blockchain", settings.Secrets()...),
		settings: *settings,
		client:   &http.Client{Timeout: settings.Timeout},
		logger:   logger.Named("blockchain"),
	}
	if c.settings.URL == "" {
		c.settings.URL = blockchainDefaultURL
	}
	c.retr = retrier.New(
		retrier.WithMaxRetries(bestEffortRetries),
		retrier.WithClassifier(classifyHTTP),
		retrier.WithDelay(retrier.RateLimited, time.Second),
		retrier.WithDelay(retrier.Unavailable, 2*time.Second),
	)
	return c, nil
}

// RetrieveAccounts loads the final balance of every configured address.
func (c *Blockchain) RetrieveAccounts(ctx context.Context) {
	c.logger.Debug("retrieving the account balances")

	var result map[string]struct {
		FinalBalance decimal.Decimal `json:"final_balance"`
	}
	err := c.retr.Do(ctx, func(ctx context.Context) error {
		return getJSON(ctx, c.client, c.settings.URL+"/balance", url.Values{
			"active": []string{strings.Join(c.settings.Addresses, "|")},
		}, &result)
	})
	if err != nil {
		c.logger.Warn("giving up on balance", zap.String("error", c.RedactErr(err)))
		return
	}

	accounts := c.Accounts()
	for address, entry := range result {
		accounts.Deposit("BTC", address, entry.FinalBalance.Shift(-satoshisPerBTCShift))
	}
}
