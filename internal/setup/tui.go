// Package setup provides a terminal wizard that writes a starter
// configuration file.
package setup

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/mkrutov/cryptoexporter/config"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// exchanges that take API credentials rather than public addresses
var credentialProviders = map[string]bool{
	"binance":     true,
	"bybit":       true,
	"hyperliquid": true,
}

// RunTUI launches the terminal configuration wizard and writes the result to
// config.gen.yaml.
func RunTUI() error {
	var (
		exchange     string
		apiKey       string
		apiSecret    string
		privateKey   string
		addressesStr string
		symbolsStr   string
		refsStr      string
		portStr      string
		transactions bool
		confirm      bool
	)

	// defaults
	portStr = strconv.Itoa(config.DefaultPort)

	// step 1: welcome + provider
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("CRYPTOEXPORTER CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Let's wire your balances into Prometheus.\n"))

	fmt.Println(stepStyle.Render("STEP 1: PROVIDER"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Data Provider").
				Options(
					huh.NewOption("Binance", "binance"),
					huh.NewOption("Bybit", "bybit"),
					huh.NewOption("Hyperliquid", "hyperliquid"),
					huh.NewOption("Etherscan", "etherscan"),
					huh.NewOption("Blockscout", "blockscout"),
					huh.NewOption("Ethplorer", "ethplorer"),
					huh.NewOption("Blockchain.info", "blockchain"),
					huh.NewOption("Ripple", "ripple"),
					huh.NewOption("Stellar", "stellar"),
				).
				Value(&exchange),
		),
	).Run()
	if err != nil {
		return err
	}

	// step 2: credentials or addresses
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("CRYPTOEXPORTER CONFIG WIZARD"))
	if credentialProviders[exchange] {
		fmt.Println(stepStyle.Render("STEP 2: CREDENTIALS"))
		fields := []huh.Field{}
		if exchange == "hyperliquid" {
			fields = append(fields, huh.NewInput().
				Title("Private Key").
				Description("Hex encoded, with or without 0x prefix").
				Value(&privateKey).
				EchoMode(huh.EchoModePassword))
		} else {
			fields = append(fields,
				huh.NewInput().
					Title("API Key").
					Value(&apiKey),
				huh.NewInput().
					Title("API Secret").
					Value(&apiSecret).
					EchoMode(huh.EchoModePassword))
		}
		if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
			return err
		}
	} else {
		fmt.Println(stepStyle.Render("STEP 2: ADDRESSES"))
		fields := []huh.Field{
			huh.NewInput().
				Title("Addresses").
				Description("Comma separated list of addresses to watch").
				Value(&addressesStr).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("at least one address is required")
					}
					return nil
				}),
		}
		if exchange == "etherscan" || exchange == "ethplorer" {
			fields = append(fields, huh.NewInput().
				Title("API Key").
				Value(&apiKey))
		}
		if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
			return err
		}
	}

	// step 3: filters, only meaningful for exchanges
	if credentialProviders[exchange] {
		fmt.Print("\033[H\033[2J")
		fmt.Println(headerStyle.Render("CRYPTOEXPORTER CONFIG WIZARD"))
		fmt.Println(stepStyle.Render("STEP 3: FILTERS"))
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Symbols").
					Description("Comma separated pairs to export (empty = all), e.g. BTC/USDT,ETH/USDT").
					Value(&symbolsStr),
				huh.NewInput().
					Title("Reference Currencies").
					Description("Export every pair quoted in these currencies (empty = none)").
					Value(&refsStr),
				huh.NewConfirm().
					Title("Export transaction aggregates?").
					Value(&transactions),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	// step 4: listen port
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("CRYPTOEXPORTER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 4: METRICS ENDPOINT"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen Port").
				Value(&portStr).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 1 || n > 65535 {
						return fmt.Errorf("must be a port number")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	// confirmation
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("CRYPTOEXPORTER CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	summary := fmt.Sprintf(
		"Provider: %s\nAddresses: %s\nSymbols: %s\nPort: %s\n",
		exchange, addressesStr, symbolsStr, portStr,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}

	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	port, _ := strconv.Atoi(portStr)
	settings := config.Settings{
		Exchange:            exchange,
		APIKey:              apiKey,
		APISecret:           apiSecret,
		PrivateKey:          privateKey,
		Addresses:           splitInput(addressesStr),
		Symbols:             splitInput(symbolsStr),
		ReferenceCurrencies: splitInput(refsStr),
		Nonce:               "milliseconds",
		Timeout:             config.DefaultTimeout,
		EnableTickers:       true,
		EnableTransactions:  transactions,
		Port:                port,
	}

	data, err := yaml.Marshal(&settings)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	filename := "config.gen.yaml"
	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting exporter...", filename)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

func splitInput(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
