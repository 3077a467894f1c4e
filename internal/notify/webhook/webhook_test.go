package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"talentcore/pkg/domain"
)

func TestNotifyPostsEvent(t *testing.T) {
	var (
		got  domain.StatusChangedEvent
		auth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	event := domain.StatusChangedEvent{Type: domain.EventStatusChanged, ApplicationID: "a1", NewStatus: domain.StatusHired, JobTitle: "SRE"}
	if err := NewClient(srv.URL, " s3cret ", srv.Client()).Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got.ApplicationID != "a1" || got.JobTitle != "SRE" {
		t.Fatalf("unexpected payload %+v", got)
	}
	if auth != "Bearer s3cret" {
		t.Fatalf("unexpected auth header %q", auth)
	}
}

func TestNotifyReportsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "mailbox full", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "", nil).Notify(context.Background(), domain.StatusChangedEvent{})
	if err == nil || !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "mailbox full") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestNotifyTransportError(t *testing.T) {
	if err := NewClient("http://127.0.0.1:1", "", nil).Notify(context.Background(), domain.StatusChangedEvent{}); err == nil {
		t.Fatalf("expected transport error")
	}
}
