package streamclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestStreamNameLowercasesSymbol(t *testing.T) {
	got := StreamName("BTCUSDT", "1m")
	want := "btcusdt@kline_1m"
	if got != want {
		t.Errorf("StreamName() = %q, want %q", got, want)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateReconnecting: "reconnecting",
		StateClosed:       "closed",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func newEchoServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			// Echo the kline-shaped frame straight back as data.
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
}

func TestConnectAndSubscribeRoundTrip(t *testing.T) {
	srv := newEchoServer(t)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(wsURL)

	opened := make(chan struct{}, 1)
	c.OnOpen = func() { opened <- struct{}{} }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer c.Close()

	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnOpen")
	}

	if c.State() != StateConnected {
		t.Fatalf("expected StateConnected, got %v", c.State())
	}

	if err := c.Subscribe([]string{StreamName("BTCUSDT", "1m")}); err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
}

func TestSubscribeFailsWhenNotConnected(t *testing.T) {
	c := New("ws://example.invalid")
	if err := c.Subscribe([]string{"btcusdt@kline_1m"}); err == nil {
		t.Error("expected Subscribe to fail before Connect")
	}
}

func TestSubscribeBurstIsRateLimited(t *testing.T) {
	srv := newEchoServer(t)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(wsURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer c.Close()

	start := time.Now()
	for i := 0; i < subscribeBurst+5; i++ {
		if err := c.Subscribe([]string{StreamName("BTCUSDT", "1m")}); err != nil {
			t.Fatalf("Subscribe() error on call %d: %v", i, err)
		}
	}
	// subscribeBurst calls drain the bucket instantly; the remaining 5
	// must wait for refill at subscribeRateLimit/s.
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("expected the burst to be throttled past 1s, took %v", elapsed)
	}
}
