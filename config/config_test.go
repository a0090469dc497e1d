package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFromEnv(t *testing.T) {
	t.Run("missing exchange fails", func(t *testing.T) {
		_, err := Get("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "EXCHANGE")
	})

	t.Run("full environment", func(t *testing.T) {
		t.Setenv("EXCHANGE", "binance")
		t.Setenv("API_KEY", "key")
		t.Setenv("API_SECRET", "s3cr3t")
		t.Setenv("SYMBOLS", "BTC/USDT, ETH/USDT")
		t.Setenv("REFERENCE_CURRENCIES", "EUR")
		t.Setenv("TIMEOUT", "15")
		t.Setenv("ENABLE_TRANSACTIONS", "true")
		t.Setenv("PORT", "9999")

		s, err := Get("")
		require.NoError(t, err)
		assert.Equal(t, "binance", s.Exchange)
		assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, s.Symbols)
		assert.Equal(t, []string{"EUR"}, s.ReferenceCurrencies)
		assert.Equal(t, 15*time.Second, s.Timeout)
		assert.True(t, s.EnableTickers) // default
		assert.True(t, s.EnableTransactions)
		assert.Equal(t, 9999, s.Port)
		assert.Contains(t, s.Secrets(), "s3cr3t")
	})

	t.Run("tokens from inline json", func(t *testing.T) {
		t.Setenv("EXCHANGE", "etherscan")
		t.Setenv("TOKENS", `[{"contract":"0xabc","short":"DAI","decimals":18}]`)

		s, err := Get("")
		require.NoError(t, err)
		require.Len(t, s.Tokens, 1)
		assert.Equal(t, "DAI", s.Tokens[0].Short)
		require.NotNil(t, s.Tokens[0].Decimals)
		assert.Equal(t, 18, *s.Tokens[0].Decimals)
	})

	t.Run("invalid port fails", func(t *testing.T) {
		t.Setenv("EXCHANGE", "binance")
		t.Setenv("PORT", "not-a-port")
		_, err := Get("")
		assert.Error(t, err)
	})
}

func TestGetFromYaml(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
exchange: ethplorer
api_key: freekey
addresses:
  - "0x0000000000000000000000000000000000000001"
timeout: 5s
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	s, err := Get(path)
	require.NoError(t, err)
	assert.Equal(t, "ethplorer", s.Exchange)
	assert.Equal(t, "freekey", s.APIKey)
	assert.Len(t, s.Addresses, 1)
	assert.Equal(t, 5*time.Second, s.Timeout)

	t.Run("missing exchange in file fails", func(t *testing.T) {
		empty := filepath.Join(dir, "empty.yaml")
		require.NoError(t, os.WriteFile(empty, []byte("port: 1\n"), 0o600))
		_, err := Get(empty)
		assert.Error(t, err)
	})
}
