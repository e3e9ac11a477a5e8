package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
)

type chanBus struct {
	mu   sync.Mutex
	subs map[string]chan []byte
}

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 8)
	b.subs[channel] = ch
	return ch, nil
}

func (b *chanBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	ch, ok := b.subs[channel]
	b.mu.Unlock()
	if !ok {
		return errors.New("no subscriber")
	}
	ch <- payload
	return nil
}

func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *chanBus) subscribed(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs) == n
}

type staticReports struct{ report domain.Report }

func (s staticReports) SetLatest(context.Context, domain.Report) error { return nil }
func (s staticReports) GetLatest(context.Context) (domain.Report, error) {
	return s.report, nil
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return env
}

func TestHubBroadcast(t *testing.T) {
	bus := &chanBus{subs: map[string]chan []byte{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(bus, staticReports{domain.Report{RunID: "run-0"}}, logger, Config{Mode: "Serve"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if env := readEnvelope(t, conn); env.Type != "hello" || !strings.Contains(string(env.Payload), `"mode":"serve"`) {
		t.Fatalf("first frame = %+v", env)
	}
	if env := readEnvelope(t, conn); env.Type != "report" || !strings.Contains(string(env.Payload), `"run-0"`) {
		t.Fatalf("second frame = %+v", env)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !bus.subscribed(len(defaultChannels)) {
		if time.Now().After(deadline) {
			t.Fatal("hub never subscribed to the bus")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := bus.Publish(ctx, domain.ChannelReports, []byte(`{"run_id":"run-1"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	env := readEnvelope(t, conn)
	if env.Type != "report" || env.Channel != domain.ChannelReports || string(env.Payload) != `{"run_id":"run-1"}` {
		t.Fatalf("broadcast frame = %+v", env)
	}
}

func TestClientSubscriptions(t *testing.T) {
	c := &client{subs: map[string]bool{domain.ChannelReports: true, domain.ChannelSnapshots: true}}
	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{domain.ChannelSnapshots}})
	if c.isSubscribed(domain.ChannelSnapshots) || !c.isSubscribed(domain.ChannelReports) {
		t.Fatalf("subs = %v", c.subs)
	}
	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"other", domain.ChannelSnapshots}})
	if !c.isSubscribed(domain.ChannelSnapshots) || c.isSubscribed("other") {
		t.Fatalf("subs = %v", c.subs)
	}
}

func TestEncodeRejectsNonJSON(t *testing.T) {
	if _, err := encode("report", domain.ChannelReports, []byte("not json")); err == nil {
		t.Fatal("expected error")
	}
}

func TestHandleWSAfterHubStopped(t *testing.T) {
	bus := &chanBus{subs: map[string]chan []byte{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(bus, nil, logger, Config{Mode: "serve"})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- hub.Run(ctx) }()
	cancel()
	select {
	case err := <-stopped:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	returned := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(returned)
		hub.HandleWS(w, r)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleWS blocked registering with a stopped hub")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("read after shutdown = %v, want going-away close", err)
	}
}

func TestClientDisconnectAfterHubStopped(t *testing.T) {
	bus := &chanBus{subs: map[string]chan []byte{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(bus, nil, logger, Config{Mode: "serve"})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if env := readEnvelope(t, conn); env.Type != "hello" {
		t.Fatalf("first frame = %+v", env)
	}

	cancel()
	<-stopped

	c := &client{hub: hub}
	unregistered := make(chan struct{})
	go func() {
		defer close(unregistered)
		c.leave()
	}()
	select {
	case <-unregistered:
	case <-time.After(2 * time.Second):
		t.Fatal("unregister blocked on a stopped hub")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("connection stayed open after hub shutdown")
	}
}
