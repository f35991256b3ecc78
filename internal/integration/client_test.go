package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"pollroom/internal/app"
	"pollroom/internal/config"
	"pollroom/pkg/types"
)

const readTimeout = 5 * time.Second

// frame is an outbound envelope with its payload left raw
type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// testClient drives one WebSocket connection against a running server
type testClient struct {
	t      *testing.T
	conn   *websocket.Conn
	connID string
}

// startServer builds the full application on a temp archive and serves it
func startServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Archive.Path = filepath.Join(t.TempDir(), "history.db")
	cfg.Poll.TickInterval = 50 * time.Millisecond
	cfg.Poll.InboundRateLimit = 0

	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := application.StartHub(ctx); err != nil {
		cancel()
		t.Fatalf("StartHub failed: %v", err)
	}

	srv := httptest.NewServer(application.Handler())
	return srv, func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = application.Stop(stopCtx)
		srv.Close()
		cancel()
	}
}

// dial connects and consumes the connected greeting
func dial(t *testing.T, srv *httptest.Server) *testClient {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	c := &testClient{t: t, conn: conn}
	var greeting types.ConnectedPayload
	c.expect(types.EventConnected, &greeting)
	if greeting.ConnectionID == "" {
		t.Fatal("Expected a connection ID in the greeting")
	}
	c.connID = greeting.ConnectionID
	return c
}

func (c *testClient) send(eventType string, payload any) {
	c.t.Helper()

	msg := map[string]any{"type": eventType}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		c.t.Fatalf("WriteJSON %s failed: %v", eventType, err)
	}
}

// expect reads frames until one of eventType arrives, skipping others,
// and decodes its payload into v when v is non-nil
func (c *testClient) expect(eventType string, v any) {
	c.t.Helper()

	deadline := time.Now().Add(readTimeout)
	for {
		_ = c.conn.SetReadDeadline(deadline)
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			c.t.Fatalf("Waiting for %s: %v", eventType, err)
		}
		if f.Type != eventType {
			continue
		}
		if v != nil {
			if err := json.Unmarshal(f.Payload, v); err != nil {
				c.t.Fatalf("Decoding %s payload: %v", eventType, err)
			}
		}
		return
	}
}

// expectClosed reads until the server closes the socket
func (c *testClient) expectClosed() {
	c.t.Helper()

	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				c.t.Fatal("Timed out waiting for the server to close the connection")
			}
			return
		}
	}
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("Decoding %s: %v", url, err)
		}
	}
	return resp.StatusCode
}
