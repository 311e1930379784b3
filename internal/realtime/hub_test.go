package realtime

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type message struct {
	Phase string `json:"phase"`
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m message
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, h.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewClientReceivesCurrentState(t *testing.T) {
	h := NewHub(func() any { return message{Phase: "ready"} })
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	if m := readMessage(t, conn); m.Phase != "ready" {
		t.Fatalf("expected current state first, got %+v", m)
	}
}

func TestBroadcastReachesClients(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	waitForClients(t, h, 2)

	h.Broadcast(message{Phase: "loading"})
	for _, conn := range []*websocket.Conn{a, b} {
		if m := readMessage(t, conn); m.Phase != "loading" {
			t.Fatalf("unexpected message %+v", m)
		}
	}
}

func TestDisconnectRemovesClient(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	waitForClients(t, h, 1)
	_ = conn.Close()
	waitForClients(t, h, 0)
}

func TestBroadcastDuringConnectIsNotLost(t *testing.T) {
	var h *Hub
	h = NewHub(func() any {
		// A state change lands between reading the snapshot and registering
		// the client.
		h.Broadcast(message{Phase: "ready"})
		return message{Phase: "loading"}
	})
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	if m := readMessage(t, conn); m.Phase != "ready" {
		t.Fatalf("expected the newer broadcast state, got %+v", m)
	}
}

func TestLateClientReceivesLastBroadcast(t *testing.T) {
	h := NewHub(func() any { return message{Phase: "initializing"} })
	srv := httptest.NewServer(h)
	defer srv.Close()

	h.Broadcast(message{Phase: "error"})
	conn := dial(t, srv)
	if m := readMessage(t, conn); m.Phase != "error" {
		t.Fatalf("expected last broadcast state, got %+v", m)
	}
}
