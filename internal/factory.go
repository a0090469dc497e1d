package internal

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mkrutov/cryptoexporter/config"
	"github.com/mkrutov/cryptoexporter/internal/connector"
	"github.com/mkrutov/cryptoexporter/internal/connector/exchange"
	"github.com/mkrutov/cryptoexporter/internal/connector/explorer"
)

// NewConnector creates the connector selected by the EXCHANGE setting.
// This is the single point of truth for dispatching to provider-specific
// implementations.
func NewConnector(settings *config.Settings, logger *zap.Logger) (connector.Connector, error) {
	switch settings.Exchange {
	case "binance":
		return exchange.New(exchange.NewBinanceClient(settings), settings, logger), nil
	case "bybit":
		return exchange.New(exchange.NewBybitClient(settings), settings, logger), nil
	case "hyperliquid":
		client, err := exchange.NewHyperliquidClient(settings)
		if err != nil {
			return nil, errors.Wrap(err, "create hyperliquid client")
		}
		return exchange.New(client, settings, logger), nil
	case "etherscan":
		return explorer.NewEtherscan(settings, logger)
	case "blockscout":
		return explorer.NewBlockscout(settings, logger)
	case "ethplorer":
		return explorer.NewEthplorer(settings, logger)
	case "blockchain":
		return explorer.NewBlockchain(settings, logger)
	case "ripple":
		return explorer.NewRipple(settings, logger)
	case "stellar":
		return explorer.NewStellar(settings, logger)
	default:
		return nil, errors.Errorf("unsupported exchange: %s", settings.Exchange)
	}
}
