package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiq/marketfeed/internal/canon"
)

// echoVenue is a test Venue that dials a local test server, sends one
// subscribe frame, and translates every inbound frame as a single
// LevelUpdated carrying the frame bytes as a fake timestamp.
type echoVenue struct {
	url string
}

func (v echoVenue) Name() string { return "echo" }
func (v echoVenue) DialURL(Config) (string, error) { return v.url, nil }
func (v echoVenue) SubscribeFrames(Config) ([][]byte, error) {
	return [][]byte{[]byte("subscribe")}, nil
}
func (v echoVenue) Translate(cfg Config, frame []byte) ([]canon.Event, error) {
	if string(frame) == "bad" {
		return nil, errors.New("translate failed")
	}
	return []canon.Event{{Level: &canon.LevelUpdated{Timestamp: canon.TimestampMS(len(frame))}}}, nil
}

func newEchoServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, wsURL
}

func TestDriverConnectAndReceiveEvents(t *testing.T) {
	srv, url := newEchoServer(t)
	defer srv.Close()

	d := NewDriver(echoVenue{url: url}, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, d.Connect(ctx))
	assert.Equal(t, Running, d.State())

	select {
	case ev := <-d.Events():
		require.NotNil(t, ev.Level)
		assert.Equal(t, canon.TimestampMS(len("subscribe")), ev.Level.Timestamp)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for echoed event")
	}

	require.NoError(t, d.Close())
}

func TestDriverClosesOnContextCancel(t *testing.T) {
	srv, url := newEchoServer(t)
	defer srv.Close()

	d := NewDriver(echoVenue{url: url}, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Connect(ctx))

	cancel()

	select {
	case _, ok := <-d.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not close its events channel after cancel")
	}
}

func TestDriverConnectGatesRunningOnSymbolValidator(t *testing.T) {
	srv, url := newEchoServer(t)
	defer srv.Close()

	cfg := Config{SymbolValidator: func(context.Context, []canon.TickerConfig) error {
		return errors.New("symbol not tradable")
	}}
	d := NewDriver(echoVenue{url: url}, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := d.Connect(ctx)
	assert.ErrorIs(t, err, canon.ErrBuilder)
	assert.NotEqual(t, Running, d.State())
}

func TestDriverConnectRunsOnStateChangeHook(t *testing.T) {
	srv, url := newEchoServer(t)
	defer srv.Close()

	var seen []State
	cfg := Config{OnStateChange: func(s State) { seen = append(seen, s) }}
	d := NewDriver(echoVenue{url: url}, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, d.Connect(ctx))
	assert.Equal(t, []State{Subscribing, Running}, seen)
	require.NoError(t, d.Close())
}

func TestDriverConnectFailsOnBadURL(t *testing.T) {
	d := NewDriver(echoVenue{url: "ws://127.0.0.1:1/no-such-server"}, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := d.Connect(ctx)
	assert.ErrorIs(t, err, canon.ErrTransport)
}
