package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/narvanalabs/inviteonly/internal/invitation"
	"github.com/narvanalabs/inviteonly/internal/store/memory"
	"github.com/narvanalabs/inviteonly/pkg/config"
)

func TestWithStatus(t *testing.T) {
	tests := []struct {
		name   string
		target string
		path   string
		keep   string
	}{
		{"empty target", "", "/", ""},
		{"plain path", "/welcome", "/welcome", ""},
		{"existing query", "/teams/7?tab=members", "/teams/7", "members"},
		{"absolute url", "https://app.example.com/done", "/done", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(withStatus(tt.target, StatusAccepted, MessageAccepted))
			if err != nil {
				t.Fatal(err)
			}
			q := u.Query()
			if u.Path != tt.path {
				t.Errorf("path = %q, want %q", u.Path, tt.path)
			}
			if q.Get(StatusParam) != StatusAccepted || q.Get(MessageParam) != MessageAccepted {
				t.Errorf("query = %q", u.RawQuery)
			}
			if q.Get("tab") != tt.keep {
				t.Errorf("tab = %q, want %q", q.Get("tab"), tt.keep)
			}
		})
	}
}

func TestShowChecksExpiryBeforeAcceptance(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Invite and accept ten days ago so the accepted invitation has since expired.
	past := time.Now().Add(-10 * 24 * time.Hour)
	svc := invitation.NewService(memory.New(), invitation.DefaultConfig(),
		invitation.WithClock(func() time.Time { return past }),
		invitation.WithLogger(logger),
	)
	stale, err := svc.Invite(ctx, "stale@example.com", nil, invitation.InviteOptions{})
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if _, err := svc.Accept(ctx, stale.Token, nil); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	future := time.Now().Add(24 * time.Hour)
	live, err := svc.Invite(ctx, "live@example.com", nil, invitation.InviteOptions{ExpiresAt: &future})
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if _, err := svc.Accept(ctx, live.Token, nil); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	h := NewPublicHandler(svc, config.RedirectsConfig{Expired: "/expired", Home: "/home"}, logger)
	r := chi.NewRouter()
	r.Get("/invitations/{token}", h.Show)

	tests := []struct {
		name   string
		token  string
		path   string
		status string
	}{
		{"accepted and expired", stale.Token, "/expired", StatusExpired},
		{"accepted and live", live.Token, "/home", StatusSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invitations/"+tt.token, nil))

			if rec.Code != http.StatusSeeOther {
				t.Fatalf("status code = %d, want %d", rec.Code, http.StatusSeeOther)
			}
			u, err := url.Parse(rec.Header().Get("Location"))
			if err != nil {
				t.Fatal(err)
			}
			if u.Path != tt.path || u.Query().Get(StatusParam) != tt.status {
				t.Errorf("redirect = %s, want %s with %s", u, tt.path, tt.status)
			}
		})
	}
}
