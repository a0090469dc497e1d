package explorer

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
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

const blockscoutDefaultURL = "https://blockscout.com/eth/mainnet/api"

// Blockscout retrieves ETH and token balances for configured addresses from
// a Blockscout instance. The balance map is rebuilt every cycle.
type Blockscout struct {
	connector.Base

	settings config.Settings
	client   *http.Client
	logger   *zap.Logger
	retr     *retrier.Retrier
}

// NewBlockscout validates the mandatory settings and builds the connector.
func NewBlockscout(settings *config.Settings, logger *zap.Logger) (*Blockscout, error) {
	if len(settings.Addresses) == 0 {
		return nil, errors.New("missing required setting ADDRESSES")
	}

	c := &Blockscout{
		Base:     connector.NewBase("blockscout", settings.Secrets()...),
		settings: *settings,
		client:   &http.Client{Timeout: settings.Timeout},
		logger:   logger.Named("blockscout"),
	}
	if c.settings.URL == "" {
		c.settings.URL = blockscoutDefaultURL
	}
	c.retr = retrier.New(
		retrier.WithMaxRetries(explorerRetries),
		retrier.WithClassifier(classifyHTTP),
		retrier.WithDelay(retrier.RateLimited, time.Second),
		retrier.WithDelay(retrier.Unavailable, 2*time.Second),
	)
	return c, nil
}

type blockscoutBalance struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
}

type blockscoutToken struct {
	Symbol   string `json:"symbol"`
	Balance  string `json:"balance"`
	Decimals string `json:"decimals"`
}

// RetrieveAccounts loads the ETH balances of all configured addresses plus
// the token list of every address. Prior cycle data is replaced wholesale.
func (c *Blockscout) RetrieveAccounts(ctx context.Context) {
	c.logger.Debug("retrieving the account balances")

	var balanceResp struct {
		Message string              `json:"message"`
		Result  []blockscoutBalance `json:"result"`
	}
	err := c.retr.Do(ctx, func(ctx context.Context) error {
		return getJSON(ctx, c.client, c.settings.URL, url.Values{
			"module":  []string{"account"},
			"action":  []string{"balancemulti"},
			"address": []string{strings.Join(c.settings.Addresses, ",")},
		}, &balanceResp)
	})
	if err != nil {
		c.logger.Warn("giving up on balancemulti", zap.String("error", c.RedactErr(err)))
		return
	}
	if balanceResp.Message != "OK" {
		c.logger.Warn("could not retrieve balances", zap.String("message", c.Redact(balanceResp.Message)))
		return
	}

	accounts := make(domain.Balances)
	for _, balance := range balanceResp.Result {
		wei, err := decimal.NewFromString(balance.Balance)
		if err != nil {
			c.logger.Warn("skipping unparsable balance",
				zap.String("account", balance.Account), zap.String("error", c.Redact(err.Error())))
			continue
		}
		accounts.Deposit("ETH", balance.Account, tokenValue(wei, 18))
	}

	for account := range accounts["ETH"] {
		c.retrieveTokens(ctx, accounts, account)
	}
	c.ReplaceAccounts(accounts)
}

// retrieveTokens adds the token balances of one address. A token with a
// missing or oversized symbol aborts the rest of that address's token list.
func (c *Blockscout) retrieveTokens(ctx context.Context, accounts domain.Balances, account string) {
	var tokenResp struct {
		Message string            `json:"message"`
		Result  []blockscoutToken `json:"result"`
	}
	err := c.retr.Do(ctx, func(ctx context.Context) error {
		return getJSON(ctx, c.client, c.settings.URL, url.Values{
			"module":  []string{"account"},
			"action":  []string{"tokenlist"},
			"address": []string{account},
		}, &tokenResp)
	})
	if err != nil {
		c.logger.Warn("giving up on tokenlist", zap.String("account", account),
			zap.String("error", c.RedactErr(err)))
		return
	}
	if tokenResp.Message != "OK" {
		return
	}

	for _, token := range tokenResp.Result {
		if !validTokenSymbol(token.Symbol) {
			break
		}

		decimals := 0
		if token.Decimals != "" {
			if decimals, err = strconv.Atoi(token.Decimals); err != nil {
				decimals = 0
			}
		}

		raw := decimal.Zero
		if token.Balance != "" {
			if raw, err = decimal.NewFromString(token.Balance); err != nil {
				raw = decimal.Zero
			}
		}

		accounts.Deposit(token.Symbol, account, tokenValue(raw, decimals))
	}
}
