package explorer

import (
	"context"
	"encoding/json"
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
	etherscanDefaultURL    = "https://api.etherscan.io/api"
	etherscanWeiDecimals   = 18
	etherscanTokenDecimals = 18
)

// apiError is a NOTOK envelope from the etherscan-style API.
type apiError struct {
	result string
}

func (e *apiError) Error() string { return e.result }

// Etherscan retrieves ETH and token balances for configured addresses from
// the Etherscan account API.
type Etherscan struct {
	connector.Base

	settings config.Settings
	client   *http.Client
	logger   *zap.Logger
	retr     *retrier.Retrier
}

// NewEtherscan validates the mandatory settings and builds the connector.
func NewEtherscan(settings *config.Settings, logger *zap.Logger) (*Etherscan, error) {
	if settings.APIKey == "" {
		return nil, errors.New("missing required setting API_KEY")
	}
	if len(settings.Addresses) == 0 {
		return nil, errors.New("missing required setting ADDRESSES")
	}

	c := &Etherscan{
		Base:     connector.NewBase("etherscan", settings.Secrets()...),
		settings: *settings,
		client:   &http.Client{Timeout: settings.Timeout},
		logger:   logger.Named("etherscan"),
	}
	if c.settings.URL == "" {
		c.settings.URL = etherscanDefaultURL
	}
	c.retr = retrier.New(
		retrier.WithMaxRetries(explorerRetries),
		retrier.WithClassifier(c.classify),
		retrier.WithDelay(retrier.RateLimited, time.Second),
		retrier.WithDelay(retrier.Unavailable, 2*time.Second),
	)
	c.Auth().Enable()
	return c, nil
}

func (c *Etherscan) classify(err error) retrier.Kind {
	var api *apiError
	if errors.As(err, &api) {
		if strings.Contains(api.result, "Invalid API Key") {
			return retrier.AuthFailed
		}
		return retrier.Fatal
	}
	return classifyHTTP(err)
}

// RetrieveAccounts loads the ETH balance of every configured address and the
// balances of the configured tokens. Addresses accumulate into the existing
// map; prior entries are kept within the cycle.
func (c *Etherscan) RetrieveAccounts(ctx context.Context) {
	if !c.Auth().Usable() {
		return
	}

	c.logger.Debug("retrieving the account balances")

	result, err := c.load(ctx, url.Values{
		"action":  []string{"balancemulti"},
		"address": []string{strings.Join(c.settings.Addresses, ",")},
	})
	if err != nil {
		c.absorb(err, "balancemulti")
		return
	}

	var entries []struct {
		Account string `json:"account"`
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(result, &entries); err != nil {
		c.logger.Warn("giving up on balancemulti",
			zap.String("error", c.Redact(errors.Wrapf(errMalformed, "balance list: %v", err).Error())))
		return
	}

	accounts := c.Accounts()
	for _, entry := range entries {
		wei, err := decimal.NewFromString(entry.Balance)
		if err != nil {
			c.logger.Warn("skipping unparsable balance",
				zap.String("account", entry.Account), zap.String("error", c.Redact(err.Error())))
			continue
		}
		accounts.Deposit("ETH", entry.Account, tokenValue(wei, etherscanWeiDecimals))
	}

	if len(c.settings.Tokens) > 0 {
		c.retrieveTokens(ctx)
	}
}

// retrieveTokens loads every configured token's balance on every known ETH
// address.
func (c *Etherscan) retrieveTokens(ctx context.Context) {
	c.logger.Debug("retrieving the tokens")

	accounts := c.Accounts()
	for account := range accounts["ETH"] {
		for _, token := range c.settings.Tokens {
			balance, ok := c.tokenBalance(ctx, account, token)
			if !ok {
				continue
			}
			accounts.Deposit(token.Short, account, balance)
		}
	}
}

func (c *Etherscan) tokenBalance(ctx context.Context, account string, token config.Token) (decimal.Decimal, bool) {
	result, err := c.load(ctx, url.Values{
		"action":          []string{"tokenbalance"},
		"contractaddress": []string{token.Contract},
		"address":         []string{account},
	})
	if err != nil {
		c.absorb(err, "tokenbalance "+token.Short)
		return decimal.Zero, false
	}

	var raw string
	if err := json.Unmarshal(result, &raw); err != nil {
		return decimal.Zero, false
	}
	value, err := decimal.NewFromString(raw)
	if err != nil || !value.IsPositive() {
		return decimal.Zero, false
	}

	decimals := etherscanTokenDecimals
	if token.Decimals != nil && *token.Decimals >= 0 {
		decimals = *token.Decimals
	}
	return tokenValue(value, decimals), true
}

// load performs one etherscan API call with retries and unwraps the
// status/message/result envelope.
func (c *Etherscan) load(ctx context.Context, params url.Values) (json.RawMessage, error) {
	params.Set("module", "account")
	params.Set("tag", "latest")
	params.Set("apikey", c.settings.APIKey)

	return retrier.DoWithData(c.retr, ctx, func(ctx context.Context) (json.RawMessage, error) {
		var envelope struct {
			Status  string          `json:"status"`
			Message string          `json:"message"`
			Result  json.RawMessage `json:"result"`
		}
		if err := getJSON(ctx, c.client, c.settings.URL, params, &envelope); err != nil {
			return nil, err
		}
		if strings.Contains(envelope.Message, "NOTOK") {
			var result string
			_ = json.Unmarshal(envelope.Result, &result)
			return nil, &apiError{result: result}
		}
		if envelope.Message != "OK" && !strings.Contains(envelope.Message, "OK-") {
			return nil, errors.Wrapf(errMalformed, "unexpected message %q", envelope.Message)
		}
		return envelope.Result, nil
	})
}

func (c *Etherscan) absorb(err error, op string) {
	if kind, _ := retrier.KindOf(err); kind == retrier.AuthFailed {
		c.Auth().Disable()
		c.logger.Error("cannot authenticate, disabling the credentials",
			zap.String("op", op), zap.String("error", c.RedactErr(err)))
		return
	}
	c.logger.Warn("giving up on "+op, zap.String("error", c.RedactErr(err)))
}
