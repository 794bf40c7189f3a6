package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/narvanalabs/inviteonly/internal/api/handlers"
	"github.com/narvanalabs/inviteonly/internal/auth"
	"github.com/narvanalabs/inviteonly/internal/events"
	"github.com/narvanalabs/inviteonly/internal/invitation"
	"github.com/narvanalabs/inviteonly/internal/models"
	"github.com/narvanalabs/inviteonly/internal/store/memory"
	"github.com/narvanalabs/inviteonly/pkg/config"
)

type testEnv struct {
	server *httptest.Server
	client *http.Client
	svc    *invitation.Service
	auth   *auth.Service
	admin  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &config.Config{
		Invitations: config.InvitationsConfig{
			Redirects: config.RedirectsConfig{
				Accepted: "/welcome",
				Declined: "/goodbye",
				Expired:  "/expired",
				Home:     "/home",
			},
		},
	}

	st := memory.New()
	broker := events.NewBroker(16, logger)
	svc := invitation.NewService(st, invitation.DefaultConfig(),
		invitation.WithPublisher(broker),
		invitation.WithLogger(logger),
	)
	authSvc := auth.NewService(&auth.Config{
		JWTSecret:   []byte("server-test-secret-0123456789abcdef"),
		TokenExpiry: time.Hour,
	}, logger)

	srv := NewServer(cfg, svc, broker, authSvc, st, logger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	admin, err := authSvc.GenerateToken(&models.Actor{ID: "admin-1", Email: "admin@example.com"}, true)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	return &testEnv{
		server: ts,
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		svc:   svc,
		auth:  authSvc,
		admin: admin,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

// redirectTarget returns the path and status parameters of a 303 response.
func redirectTarget(t *testing.T, resp *http.Response) (string, string, string) {
	t.Helper()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", resp.StatusCode)
	}
	u, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	return u.Path, q.Get(handlers.StatusParam), q.Get(handlers.MessageParam)
}

func (e *testEnv) invite(t *testing.T, email string, opts invitation.InviteOptions) *models.Invitation {
	t.Helper()
	inv, err := e.svc.Invite(context.Background(), email, nil, opts)
	if err != nil {
		t.Fatalf("Invite(%s): %v", email, err)
	}
	return inv
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	member, err := env.auth.GenerateToken(&models.Actor{ID: "member-1"}, false)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"garbage token", "not-a-jwt", http.StatusUnauthorized},
		{"non-admin", member, http.StatusForbidden},
		{"admin", env.admin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, "/v1/invitations", tt.token, nil)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestCreateInvitationEndpoint(t *testing.T) {
	env := newTestEnv(t)
	body := handlers.CreateInvitationRequest{
		Email:     "new@example.com",
		Invitable: &handlers.InvitableRequest{Type: "team", ID: "7"},
		Role:      "member",
	}

	resp := env.do(t, http.MethodPost, "/v1/invitations", env.admin, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	created := decode[models.Invitation](t, resp)
	if created.Status != models.InvitationStatusPending || created.InvitedBy == nil || *created.InvitedBy != "admin-1" {
		t.Errorf("unexpected invitation: %+v", created)
	}

	resp = env.do(t, http.MethodPost, "/v1/invitations", env.admin, body)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/v1/invitations", env.admin, handlers.CreateInvitationRequest{Email: "not an email"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid email status = %d, want 400", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/v1/invitations/"+strconv.FormatInt(created.ID, 10), env.admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("get status = %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/v1/invitations/lookup?email=new@example.com&invitable_type=team&invitable_id=7", env.admin, nil)
	if got := decode[models.Invitation](t, resp); got.ID != created.ID {
		t.Errorf("lookup returned %d, want %d", got.ID, created.ID)
	}

	resp = env.do(t, http.MethodGet, "/v1/invitations/lookup?email=new@example.com", env.admin, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("global lookup status = %d, want 404", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/v1/invitations/999", env.admin, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing id status = %d, want 404", resp.StatusCode)
	}
}

func TestBulkInvitationEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.invite(t, "taken@example.com", invitation.InviteOptions{})

	resp := env.do(t, http.MethodPost, "/v1/invitations/bulk", env.admin, handlers.BulkInvitationRequest{
		Emails: []string{"one@example.com", "bad", "taken@example.com", "two@example.com"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decode[handlers.BulkInvitationResponse](t, resp)
	if got.Total != 4 || got.Count != 2 || len(got.Failed) != 2 {
		t.Errorf("unexpected result: %+v", got)
	}

	resp = env.do(t, http.MethodPost, "/v1/invitations/bulk", env.admin, handlers.BulkInvitationRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty bulk status = %d, want 400", resp.StatusCode)
	}
}

func TestCancelAndResendEndpoints(t *testing.T) {
	env := newTestEnv(t)
	inv := env.invite(t, "cancel@example.com", invitation.InviteOptions{})
	path := "/v1/invitations/" + strconv.FormatInt(inv.ID, 10)

	resp := env.do(t, http.MethodPost, path+"/resend", env.admin, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resend status = %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, path+"/cancel", env.admin, nil)
	if got := decode[models.Invitation](t, resp); got.Status != models.InvitationStatusCancelled {
		t.Errorf("status after cancel = %s", got.Status)
	}

	resp = env.do(t, http.MethodPost, path+"/resend", env.admin, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("resend cancelled status = %d, want 409", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/v1/invitations/abc/cancel", env.admin, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", resp.StatusCode)
	}
}

func TestInvitationLinks(t *testing.T) {
	env := newTestEnv(t)
	past := time.Now().Add(-time.Hour)

	pending := env.invite(t, "pending@example.com", invitation.InviteOptions{})
	expired := env.invite(t, "expired@example.com", invitation.InviteOptions{ExpiresAt: &past})
	declining := env.invite(t, "decline@example.com", invitation.InviteOptions{})

	t.Run("show valid continues to accept", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/invitations/"+pending.Token, "", nil)
		if resp.StatusCode != http.StatusSeeOther {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		if loc := resp.Header.Get("Location"); loc != "/invitations/"+pending.Token+"/accept" {
			t.Errorf("location = %q", loc)
		}
	})

	t.Run("accept records signed in actor", func(t *testing.T) {
		token, err := env.auth.GenerateToken(&models.Actor{ID: "user-9"}, false)
		if err != nil {
			t.Fatal(err)
		}
		path, status, message := redirectTarget(t, env.do(t, http.MethodPost, "/invitations/"+pending.Token+"/accept", token, nil))
		if path != "/welcome" || status != handlers.StatusAccepted || message != handlers.MessageAccepted {
			t.Errorf("redirect = %s %s %q", path, status, message)
		}
		got, err := env.svc.Get(context.Background(), pending.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.AcceptedBy == nil || *got.AcceptedBy != "user-9" {
			t.Errorf("accepted_by = %v", got.AcceptedBy)
		}
	})

	t.Run("accept twice", func(t *testing.T) {
		path, status, message := redirectTarget(t, env.do(t, http.MethodGet, "/invitations/"+pending.Token+"/accept", "", nil))
		if path != "/home" || status != handlers.StatusSuccess || message != handlers.MessageAlreadyAccepted {
			t.Errorf("redirect = %s %s %q", path, status, message)
		}
	})

	t.Run("expired", func(t *testing.T) {
		for _, p := range []string{"/invitations/" + expired.Token, "/invitations/" + expired.Token + "/accept"} {
			path, status, _ := redirectTarget(t, env.do(t, http.MethodGet, p, "", nil))
			if path != "/expired" || status != handlers.StatusExpired {
				t.Errorf("%s redirect = %s %s", p, path, status)
			}
		}
	})

	t.Run("decline", func(t *testing.T) {
		path, status, _ := redirectTarget(t, env.do(t, http.MethodPost, "/invitations/"+declining.Token+"/decline", "", nil))
		if path != "/goodbye" || status != handlers.StatusDeclined {
			t.Errorf("redirect = %s %s", path, status)
		}
		path, status, _ = redirectTarget(t, env.do(t, http.MethodGet, "/invitations/"+declining.Token+"/accept", "", nil))
		if path != "/home" || status != handlers.StatusError {
			t.Errorf("accept after decline = %s %s", path, status)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		path, status, message := redirectTarget(t, env.do(t, http.MethodGet, "/invitations/nope/accept", "", nil))
		if path != "/home" || status != handlers.StatusError || message != handlers.MessageInvalidLink {
			t.Errorf("redirect = %s %s %q", path, status, message)
		}
	})
}

func TestSweepEndpoints(t *testing.T) {
	env := newTestEnv(t)
	past := time.Now().Add(-time.Minute)
	env.invite(t, "old@example.com", invitation.InviteOptions{ExpiresAt: &past})
	env.invite(t, "fresh@example.com", invitation.InviteOptions{})

	resp := env.do(t, http.MethodPost, "/v1/sweeps/expire", env.admin, nil)
	if got := decode[handlers.SweepResponse](t, resp); got.Count != 1 {
		t.Errorf("expired count = %d, want 1", got.Count)
	}

	resp = env.do(t, http.MethodPost, "/v1/sweeps/reminders", env.admin, nil)
	if got := decode[handlers.SweepResponse](t, resp); got.Count != 0 {
		t.Errorf("reminder count = %d, want 0 for fresh invitations", got.Count)
	}

	resp = env.do(t, http.MethodGet, "/v1/invitations/stats", env.admin, nil)
	stats := decode[invitation.Stats](t, resp)
	if stats.Total != 2 || stats.Expired != 1 || stats.Pending != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestForgetActorEndpoint(t *testing.T) {
	env := newTestEnv(t)
	inviter := &models.Actor{ID: "gone-1", Email: "gone@example.com"}
	inv := env.invite(t, "kept@example.com", invitation.InviteOptions{InvitedBy: inviter})

	resp := env.do(t, http.MethodDelete, "/v1/actors/gone-1", env.admin, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	got, err := env.svc.Get(context.Background(), inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.InvitedBy != nil {
		t.Errorf("invited_by = %v, want nil", *got.InvitedBy)
	}
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t)
	replayed := env.invite(t, "before@example.com", invitation.InviteOptions{})

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") +
		"/v1/invitations/events?types=invitation.created&recent=5&access_token=" + env.admin
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var event events.Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read replay: %v", err)
	}
	if event.Type != events.InvitationCreated || event.Invitation.ID != replayed.ID {
		t.Fatalf("replayed event = %+v", event)
	}

	// The subscription is registered before the replay is written.
	live := env.invite(t, "after@example.com", invitation.InviteOptions{})
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read live: %v", err)
	}
	if event.Invitation.ID != live.ID {
		t.Errorf("live event invitation = %d, want %d", event.Invitation.ID, live.ID)
	}
}

func TestEventStreamRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/v1/invitations/events"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail without a token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}
