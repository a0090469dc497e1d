// Package exporter exposes one connector's normalized data as Prometheus
// metrics.
package exporter

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mkrutov/cryptoexporter/internal/connector"
	"github.com/mkrutov/cryptoexporter/internal/domain"
)

// Collector drives one retrieval cycle per scrape and emits the results as
// const metrics. A mutex serializes cycles so concurrent scrapes never hit
// the upstream provider in parallel.
type Collector struct {
	conn   connector.Connector
	logger *zap.Logger

	mu sync.Mutex

	exchangeRate    *prometheus.Desc
	accountBalance  *prometheus.Desc
	transactions    *prometheus.Desc
	authEnabled     *prometheus.Desc
	collectDuration *prometheus.Desc
}

// NewCollector builds a collector bound to one connector.
func NewCollector(conn connector.Connector, logger *zap.Logger) *Collector {
	return &Collector{
		conn:   conn,
		logger: logger.Named("exporter"),
		exchangeRate: prometheus.NewDesc(
			"crypto_exchange_rate",
			"Last known rate of a currency against a reference currency",
			[]string{"currency", "reference_currency", "exchange"}, nil,
		),
		accountBalance: prometheus.NewDesc(
			"crypto_account_balance",
			"Balance of an account in a currency",
			[]string{"currency", "account", "exchange"}, nil,
		),
		transactions: prometheus.NewDesc(
			"crypto_transactions_total",
			"Aggregated transaction amounts per currency pair and type",
			[]string{"currency", "reference_currency", "type", "exchange"}, nil,
		),
		authEnabled: prometheus.NewDesc(
			"crypto_authentication_enabled",
			"Whether the provider credentials are usable (1) or disabled (0)",
			[]string{"exchange"}, nil,
		),
		collectDuration: prometheus.NewDesc(
			"crypto_collect_duration_seconds",
			"Wall clock time of the last retrieval cycle",
			[]string{"exchange"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.exchangeRate
	ch <- c.accountBalance
	ch <- c.transactions
	ch <- c.authEnabled
	ch <- c.collectDuration
}

// Collect implements prometheus.Collector. One scrape runs one full cycle:
// tickers, then accounts, then transactions.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx := context.Background()
	name := c.conn.Name()
	start := time.Now()

	c.conn.RetrieveTickers(ctx)
	c.conn.RetrieveAccounts(ctx)
	c.conn.RetrieveTransactions(ctx)

	elapsed := time.Since(start)
	c.logger.Debug("collection cycle finished", zap.Duration("elapsed", elapsed))

	for _, ticker := range c.conn.Tickers() {
		ch <- prometheus.MustNewConstMetric(c.exchangeRate, prometheus.GaugeValue,
			ticker.LastPrice.InexactFloat64(),
			ticker.Pair.Base, ticker.Pair.Quote, name)
	}

	for currency, accounts := range c.conn.Accounts() {
		for account, amount := range accounts {
			// zero and negative balances are noise, not signal
			if !amount.IsPositive() {
				continue
			}
			ch <- prometheus.MustNewConstMetric(c.accountBalance, prometheus.GaugeValue,
				amount.InexactFloat64(), currency, account, name)
		}
	}

	for key, amount := range c.conn.Transactions() {
		ch <- prometheus.MustNewConstMetric(c.transactions, prometheus.GaugeValue,
			amount.InexactFloat64(),
			key.Currency, key.ReferenceCurrency, key.Type, name)
	}

	if state := c.conn.AuthenticationState(); state != domain.AuthUnknown {
		enabled := 0.0
		if state == domain.AuthEnabled {
			enabled = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.authEnabled, prometheus.GaugeValue, enabled, name)
	}

	ch <- prometheus.MustNewConstMetric(c.collectDuration, prometheus.GaugeValue,
		elapsed.Seconds(), name)
}
