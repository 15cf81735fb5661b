package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/shelfarr/shelfbrowse/internal/catalog"
	"github.com/sirupsen/logrus"
)

type wireEvent struct {
	Type EventType       `json:"type"`
	Seq  uint64          `json:"seq"`
	Data json.RawMessage `json:"data"`
}

func startHub(t *testing.T, configure func(*Hub)) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub(logrus.New())
	if configure != nil {
		configure(hub)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	e := echo.New()
	e.GET("/ws", hub.WebSocketHandler)
	srv := httptest.NewServer(e)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		cancel()
		srv.Close()
	})
	return hub, conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev wireEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	return ev
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_GreetingAndPing(t *testing.T) {
	_, conn := startHub(t, func(h *Hub) {
		h.Greeting = func() *Event {
			return &Event{Type: EventCatalogSnapshot, Data: map[string]string{"status": "loading"}}
		}
	})

	if ev := readEvent(t, conn); ev.Type != EventCatalogSnapshot || !strings.Contains(string(ev.Data), "loading") {
		t.Fatalf("unexpected greeting %+v", ev)
	}

	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatal(err)
	}
	if ev := readEvent(t, conn); ev.Type != EventPong {
		t.Fatalf("expected pong, got %+v", ev)
	}
}

func TestHub_BroadcastDuringConnectReachesNewClient(t *testing.T) {
	var hub *Hub
	_, conn := startHub(t, func(h *Hub) {
		hub = h
		h.Greeting = func() *Event {
			// the fetch settles while the client is still being set up
			hub.Broadcast(Event{Type: EventCatalogSnapshot, Seq: 1, Data: map[string]string{"status": "ready"}})
			return &Event{Type: EventCatalogSnapshot, Seq: 1, Data: map[string]string{"status": "loading"}}
		}
	})

	greeting := readEvent(t, conn)
	if greeting.Seq != 1 || !strings.Contains(string(greeting.Data), "loading") {
		t.Fatalf("unexpected greeting %+v", greeting)
	}
	settled := readEvent(t, conn)
	if settled.Seq != 1 || !strings.Contains(string(settled.Data), "ready") {
		t.Fatalf("settled snapshot not delivered to the new client: %+v", settled)
	}
}

func TestHub_Commands(t *testing.T) {
	got := make(chan string, 1)
	_, conn := startHub(t, func(h *Hub) {
		h.Commands = func(msgType string, data json.RawMessage) error {
			if msgType == "setPage" {
				got <- string(data)
				return nil
			}
			return errors.New("unknown command")
		}
	})

	conn.WriteJSON(map[string]any{"type": "setPage", "data": map[string]int{"page": 3}})
	select {
	case d := <-got:
		if !strings.Contains(d, `"page":3`) {
			t.Errorf("command data = %s", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command not dispatched")
	}

	conn.WriteJSON(map[string]any{"type": "fly"})
	ev := readEvent(t, conn)
	if ev.Type != EventCommandError || !strings.Contains(string(ev.Data), "unknown command") {
		t.Fatalf("expected command error, got %+v", ev)
	}
}

func TestForwardSnapshots(t *testing.T) {
	hub, conn := startHub(t, nil)
	waitForClients(t, hub, 1)

	ch := make(chan catalog.Snapshot, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ForwardSnapshots(ctx, hub, ch, func(s catalog.Snapshot) interface{} {
		return catalog.NewView(s, []catalog.Topic{"java"})
	})

	ch <- catalog.Snapshot{Topic: "java", Page: 2, TotalPages: 4, Seq: 7}
	ev := readEvent(t, conn)
	if ev.Type != EventCatalogSnapshot || ev.Seq != 7 {
		t.Fatalf("unexpected event %+v", ev)
	}
	var view catalog.View
	if err := json.Unmarshal(ev.Data, &view); err != nil {
		t.Fatal(err)
	}
	if view.Seq != 7 || view.Pagination.Page != 2 || !view.Pagination.HasNext || view.Status != "ready" {
		t.Errorf("unexpected view %+v", view)
	}
}
