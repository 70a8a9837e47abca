package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "marketfeed"
	version = "v0.1.0"
)

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Real-time order book, trade tape, arbitrage, and spoofing detection for Binance and Kraken",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "marketfeed.yaml", "path to the YAML configuration file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(initdbCmd)
	rootCmd.AddCommand(healthcheckCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
