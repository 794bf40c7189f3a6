package app

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/narvanalabs/inviteonly/internal/events"
	"github.com/narvanalabs/inviteonly/internal/invitation"
	"github.com/narvanalabs/inviteonly/internal/notify"
	"github.com/narvanalabs/inviteonly/pkg/config"
	"github.com/narvanalabs/inviteonly/pkg/logger"
)

func memoryConfig(async bool) *config.Config {
	return &config.Config{
		StoreDriver: "memory",
		JWTSecret:   "app-test-secret-0123456789abcdefgh",
		PublicURL:   "https://invites.example.com",
		Mail:        config.MailConfig{Driver: "log", Async: async, MaxAttempts: 1},
		Invitations: config.InvitationsConfig{
			Expiration: config.ExpirationConfig{Enabled: true, Days: 7},
		},
	}
}

func TestNewMemoryAsync(t *testing.T) {
	var logs bytes.Buffer
	a, err := New(memoryConfig(true), logger.NewWithWriter(&logs, logger.ParseLevel("info"), false))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	ctx := context.Background()

	if err := a.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	sub := a.Broker.Subscribe(nil, events.InvitationCreated)
	defer a.Broker.Unsubscribe(sub)

	inv, err := a.Invitations.Invite(ctx, "queued@example.com", nil, invitation.InviteOptions{})
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}

	select {
	case e := <-sub.Ch:
		if e.Invitation.ID != inv.ID {
			t.Errorf("event for %d, want %d", e.Invitation.ID, inv.ID)
		}
	default:
		t.Error("broker did not receive the created event")
	}

	d, err := a.Queue.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if d.To != "queued@example.com" || d.Kind != string(notify.KindInvitation) {
		t.Errorf("delivery = %+v", d)
	}
	if !strings.Contains(d.TextBody, "https://invites.example.com/invitations/"+inv.Token) {
		t.Errorf("body does not link to the invitation: %q", d.TextBody)
	}
}

func TestNewUnknownDriver(t *testing.T) {
	cfg := memoryConfig(false)
	cfg.StoreDriver = "sqlite"
	if _, err := New(cfg, logger.Default()); err == nil {
		t.Fatal("expected an error for an unknown store driver")
	}
}
