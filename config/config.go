// Package config loads the exporter settings from the environment or from a
// YAML file. Settings are immutable after construction; connectors receive
// them by value and validate their own mandatory fields.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPort is the port the metrics endpoint listens on.
	DefaultPort = 9188
	// DefaultTimeout bounds every single upstream HTTP call.
	DefaultTimeout = 10 * time.Second
)

// Token describes an ERC-20 style token to look up on explorer connectors.
// Decimals is optional; most tokens use 18 and that is the default.
type Token struct {
	Contract string `yaml:"contract" json:"contract"`
	Short    string `yaml:"short" json:"short"`
	Decimals *int   `yaml:"decimals" json:"decimals"`
}

// Settings carries everything a connector needs. Which fields are mandatory
// depends on the selected exchange; the connector constructors enforce that.
type Settings struct {
	// Exchange selects the provider: an exchange name handled by the generic
	// exchange connector (binance, bybit, hyperliquid) or one of the explorer
	// connectors (etherscan, blockscout, ethplorer, blockchain, ripple,
	// stellar).
	Exchange string `yaml:"exchange"`

	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	APIUID     string `yaml:"api_uid"`
	APIPass    string `yaml:"api_pass"`
	PrivateKey string `yaml:"private_key"`

	Addresses           []string `yaml:"addresses"`
	Symbols             []string `yaml:"symbols"`
	ReferenceCurrencies []string `yaml:"reference_currencies"`
	Tokens              []Token  `yaml:"tokens"`

	// URL overrides the provider's default API endpoint.
	URL string `yaml:"url"`
	// Nonce selects the timestamp granularity for signed exchange requests:
	// "milliseconds" or "seconds".
	Nonce string `yaml:"nonce"`

	Timeout             time.Duration `yaml:"timeout"`
	EnableTickers       bool          `yaml:"enable_tickers"`
	EnableTransactions  bool          `yaml:"enable_transactions"`
	DisableFetchTickers bool          `yaml:"disable_fetch_tickers"`

	Port int `yaml:"port"`
}

// Secrets returns the values that must never appear in log output.
func (s *Settings) Secrets() []string {
	return []string{s.APIKey, s.APISecret, s.APIUID, s.APIPass, s.PrivateKey}
}

// Get loads the settings. When path is non-empty the YAML file wins,
// otherwise everything comes from environment variables. A .env file in the
// working directory is honored either way.
func Get(path string) (*Settings, error) {
	_ = godotenv.Load()

	if path != "" {
		return fromYaml(path)
	}
	return fromEnv()
}

func fromYaml(path string) (*Settings, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	s := defaults()
	if err := yaml.Unmarshal(f, s); err != nil {
		return nil, errors.Wrap(err, "parse config file")
	}
	if s.Exchange == "" {
		return nil, errors.New("missing required setting 'exchange' in config file")
	}
	return s, nil
}

func fromEnv() (*Settings, error) {
	s := defaults()

	s.Exchange = os.Getenv("EXCHANGE")
	if s.Exchange == "" {
		return nil, errors.New("missing required setting EXCHANGE")
	}

	s.APIKey = os.Getenv("API_KEY")
	s.APISecret = os.Getenv("API_SECRET")
	s.APIUID = os.Getenv("API_UID")
	s.APIPass = os.Getenv("API_PASS")
	s.PrivateKey = os.Getenv("PRIVATE_KEY")

	s.Addresses = splitList(os.Getenv("ADDRESSES"))
	s.Symbols = splitList(os.Getenv("SYMBOLS"))
	s.ReferenceCurrencies = splitList(os.Getenv("REFERENCE_CURRENCIES"))

	if v := os.Getenv("URL"); v != "" {
		s.URL = v
	}
	if v := os.Getenv("NONCE"); v != "" {
		s.Nonce = v
	}

	var err error
	if s.Timeout, err = durationEnv("TIMEOUT", s.Timeout); err != nil {
		return nil, err
	}
	if s.EnableTickers, err = boolEnv("ENABLE_TICKERS", s.EnableTickers); err != nil {
		return nil, err
	}
	if s.EnableTransactions, err = boolEnv("ENABLE_TRANSACTIONS", s.EnableTransactions); err != nil {
		return nil, err
	}
	if s.DisableFetchTickers, err = boolEnv("DISABLE_FETCH_TICKERS", s.DisableFetchTickers); err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid PORT value %q", v)
		}
		s.Port = port
	}

	// TOKENS is a YAML or JSON list of {contract, short, decimals} objects.
	if v := os.Getenv("TOKENS"); v != "" {
		if err := yaml.Unmarshal([]byte(v), &s.Tokens); err != nil {
			return nil, errors.Wrap(err, "invalid TOKENS value")
		}
	}

	return s, nil
}

func defaults() *Settings {
	return &Settings{
		Nonce:         "milliseconds",
		Timeout:       DefaultTimeout,
		EnableTickers: true,
		Port:          DefaultPort,
	}
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return false, errors.Wrapf(err, "invalid %s value %q", key, v)
	}
	return b, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	// bare numbers mean seconds, matching the older exporter configs
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s value %q", key, v)
	}
	return d, nil
}
