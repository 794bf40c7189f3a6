package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/narvanalabs/inviteonly/internal/models"
	"github.com/narvanalabs/inviteonly/internal/store"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func pending(email, tok string, invitable *models.Invitable, created time.Time) *models.Invitation {
	return &models.Invitation{
		Invitable: invitable,
		Email:     email,
		Token:     tok,
		Status:    models.InvitationStatusPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestCreateEnforcesUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	team := &models.Invitable{Type: "team", ID: "1"}

	if err := s.Invitations().Create(ctx, pending("a@x.com", "t1", nil, baseTime)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Invitations().Create(ctx, pending("a@x.com", "t2", nil, baseTime)); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate for global scope, got %v", err)
	}
	if err := s.Invitations().Create(ctx, pending("a@x.com", "t3", team, baseTime)); err != nil {
		t.Errorf("same email in another scope should be allowed: %v", err)
	}
	if err := s.Invitations().Create(ctx, pending("b@x.com", "t1", nil, baseTime)); !errors.Is(err, store.ErrTokenConflict) {
		t.Errorf("expected ErrTokenConflict, got %v", err)
	}
}

func TestReturnedInvitationsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	inv := pending("a@x.com", "t1", nil, baseTime)
	if err := s.Invitations().Create(ctx, inv); err != nil {
		t.Fatalf("create: %v", err)
	}

	inv.Status = models.InvitationStatusAccepted
	got, _ := s.Invitations().Get(ctx, inv.ID)
	if got.Status != models.InvitationStatusPending {
		t.Fatal("mutating the caller's value must not change stored state")
	}

	got.Email = "changed@x.com"
	again, _ := s.Invitations().GetByToken(ctx, "t1")
	if again.Email != "a@x.com" {
		t.Fatal("mutating a returned value must not change stored state")
	}
}

// Property: of any number of concurrent transitions from pending, exactly one applies.
func TestTransitionAppliesOnce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("exactly one concurrent transition wins", prop.ForAll(
		func(n int) bool {
			ctx := context.Background()
			s := New()
			inv := pending("a@x.com", "t1", nil, baseTime)
			if err := s.Invitations().Create(ctx, inv); err != nil {
				return false
			}

			results := make(chan bool, n)
			for i := 0; i < n; i++ {
				go func() {
					next := inv.Clone()
					next.MarkAsAccepted(nil, baseTime)
					ok, _ := s.Invitations().Transition(ctx, next, models.InvitationStatusPending)
					results <- ok
				}()
			}

			wins := 0
			for i := 0; i < n; i++ {
				if <-results {
					wins++
				}
			}
			return wins == 1
		},
		gen.IntRange(1, 16),
	))

	properties.TestingRun(t)
}

func TestExpirePastDueOnlyTouchesPendingPastExpiry(t *testing.T) {
	ctx := context.Background()
	s := New()
	past := baseTime.Add(-time.Minute)
	future := baseTime.Add(time.Minute)

	cases := []struct {
		expires *time.Time
		status  models.InvitationStatus
	}{
		{&past, models.InvitationStatusPending},
		{&baseTime, models.InvitationStatusPending},
		{&future, models.InvitationStatusPending},
		{nil, models.InvitationStatusPending},
		{&past, models.InvitationStatusAccepted},
	}
	for i, c := range cases {
		inv := pending(fmt.Sprintf("u%d@x.com", i), fmt.Sprintf("t%d", i), nil, baseTime)
		inv.ExpiresAt = c.expires
		inv.Status = c.status
		if err := s.Invitations().Create(ctx, inv); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	expired, err := s.Invitations().ExpirePastDue(ctx, baseTime)
	if err != nil {
		t.Fatalf("ExpirePastDue: %v", err)
	}
	if len(expired) != 2 {
		t.Fatalf("expected 2 expired, got %d", len(expired))
	}

	counts, _ := s.Invitations().CountByStatus(ctx, nil)
	if counts[models.InvitationStatusExpired] != 2 || counts[models.InvitationStatusPending] != 2 || counts[models.InvitationStatusAccepted] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}
}

func TestDueForReminderHonoursQuery(t *testing.T) {
	ctx := context.Background()
	s := New()

	old := pending("old@x.com", "t1", nil, baseTime.AddDate(0, 0, -6))
	young := pending("young@x.com", "t2", nil, baseTime.AddDate(0, 0, -1))
	maxed := pending("maxed@x.com", "t3", nil, baseTime.AddDate(0, 0, -6))
	maxed.ReminderCount = 2
	for _, inv := range []*models.Invitation{old, young, maxed} {
		if err := s.Invitations().Create(ctx, inv); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	q := store.ReminderQuery{MaxCount: 5, MaxReminders: 2, CreatedBefore: baseTime.AddDate(0, 0, -3), Now: baseTime}
	due, _ := s.Invitations().DueForReminder(ctx, q)
	if len(due) != 1 || due[0].ID != old.ID {
		t.Fatalf("expected only %d, got %v", old.ID, due)
	}

	q.Exclude = []int64{old.ID}
	if due, _ := s.Invitations().DueForReminder(ctx, q); len(due) != 0 {
		t.Errorf("excluded id returned")
	}

	if ok, _ := s.Invitations().RecordReminder(ctx, old.ID, 1, baseTime); ok {
		t.Error("RecordReminder must require the expected count")
	}
	if ok, _ := s.Invitations().RecordReminder(ctx, old.ID, 0, baseTime); !ok {
		t.Error("RecordReminder should apply with the current count")
	}
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	s := New()
	team := &models.Invitable{Type: "team", ID: "1"}
	past := baseTime.Add(-time.Hour)

	a := pending("a@x.com", "t1", team, baseTime)
	b := pending("b@x.com", "t2", team, baseTime.Add(time.Second))
	b.ExpiresAt = &past
	c := pending("c@x.com", "t3", nil, baseTime.Add(2*time.Second))
	for _, inv := range []*models.Invitation{a, b, c} {
		if err := s.Invitations().Create(ctx, inv); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	all, _ := s.Invitations().List(ctx, store.ListFilter{})
	if len(all) != 3 || all[0].ID != c.ID {
		t.Errorf("expected 3 newest-first, got %v", all)
	}
	scoped, _ := s.Invitations().List(ctx, store.ListFilter{Invitable: team})
	if len(scoped) != 2 {
		t.Errorf("expected 2 in team scope, got %d", len(scoped))
	}
	global, _ := s.Invitations().List(ctx, store.ListFilter{GlobalOnly: true})
	if len(global) != 1 || global[0].ID != c.ID {
		t.Errorf("expected only the global invitation, got %v", global)
	}
	valid, _ := s.Invitations().List(ctx, store.ListFilter{Invitable: team, ValidAt: &baseTime})
	if len(valid) != 1 || valid[0].ID != a.ID {
		t.Errorf("expected only the unexpired invitation, got %v", valid)
	}
	limited, _ := s.Invitations().List(ctx, store.ListFilter{Limit: 1, Offset: 1})
	if len(limited) != 1 || limited[0].ID != b.ID {
		t.Errorf("unexpected page %v", limited)
	}
}

func TestActorDeleteClearsReferences(t *testing.T) {
	ctx := context.Background()
	s := New()

	actor := &models.Actor{ID: "u1", Email: "Owner@x.com"}
	if err := s.Actors().Upsert(ctx, actor); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if found, _ := s.Actors().GetByEmail(ctx, "owner@x.com"); found == nil || found.ID != "u1" {
		t.Fatalf("GetByEmail should match case-insensitively, got %v", found)
	}

	inv := pending("a@x.com", "t1", nil, baseTime)
	inv.InvitedBy = models.ActorID(actor)
	inv.AcceptedBy = models.ActorID(actor)
	if err := s.Invitations().Create(ctx, inv); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.Actors().Delete(ctx, "u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, _ := s.Invitations().Get(ctx, inv.ID)
	if got == nil || got.InvitedBy != nil || got.AcceptedBy != nil {
		t.Errorf("expected references cleared, got %+v", got)
	}
	if gone, _ := s.Actors().Get(ctx, "u1"); gone != nil {
		t.Error("actor should be deleted")
	}
}
