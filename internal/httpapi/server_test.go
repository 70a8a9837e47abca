package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, health HealthFunc) (addr string, shutdown func()) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Port = 0 // let the OS choose a free port

	s, listener, err := New(cfg, health)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Serve(ctx, listener)
		close(done)
	}()

	return listener.Addr().String(), func() {
		cancel()
		<-done
	}
}

func TestHealthzReportsHealthy(t *testing.T) {
	addr, shutdown := startTestServer(t, func() (bool, map[string]string) {
		return true, map[string]string{"binance": "running"}
	})
	defer shutdown()

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Healthy)
	assert.Equal(t, "running", body.Sessions["binance"])
}

func TestHealthzReportsUnhealthyAs503(t *testing.T) {
	addr, shutdown := startTestServer(t, func() (bool, map[string]string) {
		return false, nil
	})
	defer shutdown()

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	addr, shutdown := startTestServer(t, func() (bool, map[string]string) { return true, nil })
	defer shutdown()

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNewRejectsBusyPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 0
	_, listener, err := New(cfg, func() (bool, map[string]string) { return true, nil })
	require.NoError(t, err)
	defer listener.Close()

	busy := DefaultConfig()
	busy.Host = listener.Addr().(*net.TCPAddr).IP.String()
	busy.Port = listener.Addr().(*net.TCPAddr).Port

	_, _, err = New(busy, func() (bool, map[string]string) { return true, nil })
	require.Error(t, err)
}
