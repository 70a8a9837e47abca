package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/arbiq/marketfeed/internal/config"
)

var healthcheckTimeout time.Duration

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Query a running marketfeed instance's /healthz endpoint",
	RunE:  runHealthcheck,
}

func init() {
	healthcheckCmd.Flags().DurationVar(&healthcheckTimeout, "timeout", 5*time.Second, "request timeout")
}

type healthResponse struct {
	Healthy  bool              `json:"healthy"`
	Sessions map[string]string `json:"sessions"`
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	host := cfg.HTTP.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.HTTP.Port
	if port == 0 {
		port = 9090
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthcheckTimeout)
	defer cancel()

	url := fmt.Sprintf("http://%s:%d/healthz", host, port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("querying %s: %w", url, err)
	}
	defer resp.Body.Close()

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	out, err := json.MarshalIndent(health, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting response: %w", err)
	}
	fmt.Println(string(out))

	if !health.Healthy {
		return fmt.Errorf("marketfeed reports unhealthy")
	}
	return nil
}
