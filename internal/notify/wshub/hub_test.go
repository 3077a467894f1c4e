package wshub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"talentcore/internal/notify/bus"
	"talentcore/pkg/domain"
)

func newServer(b *bus.Bus) *httptest.Server {
	h := New(b, nil)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		topic := domain.StatusTopic
		if id := r.URL.Query().Get("application_id"); id != "" {
			topic = domain.TopicFor(id)
		}
		h.Stream(w, r, topic)
	}))
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitForSubscribers(t *testing.T, b *bus.Bus, topic string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.Subscribers(topic) < n {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber on %s never registered", topic)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubStreamsApplicationEvents(t *testing.T) {
	b := bus.New(4)
	srv := newServer(b)
	defer srv.Close()

	conn := dial(t, srv, "?application_id=a1")
	defer func() { _ = conn.Close() }()
	waitForSubscribers(t, b, domain.TopicFor("a1"), 1)

	event := domain.StatusChangedEvent{Type: domain.EventStatusChanged, ApplicationID: "a1", OldStatus: domain.StatusNew, NewStatus: domain.StatusInReview}
	if err := b.Publish(context.Background(), domain.TopicFor("a1"), event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got domain.StatusChangedEvent
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.ApplicationID != "a1" || got.NewStatus != domain.StatusInReview {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestHubReleasesSubscriptionOnDisconnect(t *testing.T) {
	b := bus.New(4)
	srv := newServer(b)
	defer srv.Close()

	conn := dial(t, srv, "")
	waitForSubscribers(t, b, domain.StatusTopic, 1)
	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for b.Subscribers(domain.StatusTopic) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription leaked after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example"})
	cases := map[string]bool{"": true, "https://app.example": true, "https://evil.example": false}
	for origin, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		if got := check(r); got != want {
			t.Fatalf("origin %q: expected %v, got %v", origin, want, got)
		}
	}
}

func TestHubScopesViewerToItsTopic(t *testing.T) {
	b := bus.New(4)
	srv := newServer(b)
	defer srv.Close()

	conn := dial(t, srv, "?application_id=a1")
	defer func() { _ = conn.Close() }()
	waitForSubscribers(t, b, domain.TopicFor("a1"), 1)

	ctx := context.Background()
	_ = b.Publish(ctx, domain.TopicFor("a2"), domain.StatusChangedEvent{ApplicationID: "a2", NewStatus: domain.StatusRejected})
	_ = b.Publish(ctx, domain.TopicFor("a1"), domain.StatusChangedEvent{ApplicationID: "a1", NewStatus: domain.StatusOffer})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got domain.StatusChangedEvent
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.ApplicationID != "a1" {
		t.Fatalf("viewer of a1 received %+v", got)
	}
}
