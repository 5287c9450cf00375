package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/platform/auth"
	"github.com/telecare/telecare/internal/platform/events"
)

func newClient(account uuid.UUID) *Client {
	return &Client{
		ID:        uuid.NewString(),
		AccountID: account,
		Topics:    []string{AccountTopic(account)},
		Send:      make(chan []byte, sendBuffer),
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	account := uuid.New()
	client := newClient(account)

	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.TopicCount(AccountTopic(account)) != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.TopicCount(AccountTopic(account)))
	}

	hub.Unregister(client)
	hub.Unregister(client)
	if hub.ClientCount() != 0 || hub.TopicCount(AccountTopic(account)) != 0 {
		t.Fatal("expected hub to be empty after unregister")
	}
	if _, ok := <-client.Send; ok {
		t.Fatal("expected Send channel to be closed")
	}
}

func TestHub_PublishReachesRecipientsOnly(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	patient, doctor, other := uuid.New(), uuid.New(), uuid.New()
	pc, dc, oc := newClient(patient), newClient(doctor), newClient(other)
	hub.Register(pc)
	hub.Register(dc)
	hub.Register(oc)

	e := events.New("appointment", "accepted", uuid.New(), doctor, "doctor_accepted", patient, doctor)
	if err := hub.Publish(context.Background(), e); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, c := range []*Client{pc, dc} {
		select {
		case data := <-c.Send:
			var got events.Event
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Type != "appointment.accepted" {
				t.Errorf("unexpected event type %s", got.Type)
			}
		default:
			t.Errorf("client %s did not receive the event", c.AccountID)
		}
	}
	select {
	case <-oc.Send:
		t.Error("unrelated account received the event")
	default:
	}
}

func TestHub_BroadcastDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	account := uuid.New()
	client := &Client{ID: "slow", AccountID: account, Topics: []string{AccountTopic(account)}, Send: make(chan []byte, 1)}
	hub.Register(client)

	if n := hub.Broadcast(AccountTopic(account), []byte("1")); n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	if n := hub.Broadcast(AccountTopic(account), []byte("2")); n != 0 {
		t.Fatalf("expected full buffer to drop, got %d deliveries", n)
	}
}

func TestHub_BroadcastToEmptyTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	if n := hub.Broadcast("account:nobody", []byte("x")); n != 0 {
		t.Fatalf("expected 0 deliveries, got %d", n)
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	account := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newClient(account)
			hub.Register(c)
			hub.Broadcast(AccountTopic(account), []byte("ping"))
			hub.Unregister(c)
		}()
	}
	wg.Wait()

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestHandler_RequiresCaller(t *testing.T) {
	h := NewHandler(NewHub(zerolog.Nop()), nil)
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ws", nil), httptest.NewRecorder())

	err := h.HandleConnect(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestHandler_FullUpgradeWithDialer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	account := uuid.New()

	e := echo.New()
	g := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithCaller(c.Request().Context(), auth.Caller{ID: account, Role: auth.RolePatient})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(hub, []string{"http://allowed.test"}).RegisterRoutes(g)

	server := httptest.NewServer(e)
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws"

	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://allowed.test"}})
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount(AccountTopic(account)) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	sent := events.New("prescription", "created", uuid.New(), uuid.New(), "active", account)
	if err := hub.Publish(context.Background(), sent); err != nil {
		t.Fatalf("publish: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received events.Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if received.Type != "prescription.created" || received.ResourceID != sent.ResourceID {
		t.Fatalf("unexpected event %+v", received)
	}
}

func TestHandler_RejectsUnknownOrigin(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	g := e.Group("", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithCaller(c.Request().Context(), auth.Caller{ID: uuid.New(), Role: auth.RoleDoctor})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(hub, []string{"http://allowed.test"}).RegisterRoutes(g)

	server := httptest.NewServer(e)
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	_, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://evil.test"}})
	if err == nil {
		t.Fatal("expected dial to fail for disallowed origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 response, got %v", resp)
	}
}
