package invitation

import (
	"context"
	"fmt"
	"time"

	"github.com/narvanalabs/inviteonly/internal/events"
	"github.com/narvanalabs/inviteonly/internal/models"
	"github.com/narvanalabs/inviteonly/internal/notify"
	"github.com/narvanalabs/inviteonly/internal/store"
)

// MarkExpiredInvitations persists the expired status of every pending
// invitation past its expiry in one bulk update, then publishes one event per
// affected invitation. Returns the number expired.
func (s *Service) MarkExpiredInvitations(ctx context.Context) (int, error) {
	now := s.now().UTC()
	expired, err := s.store.Invitations().ExpirePastDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("expiring invitations: %w", err)
	}

	for _, inv := range expired {
		s.publish(ctx, events.New(events.InvitationExpired, inv, now))
	}
	if len(expired) > 0 {
		s.logger.Info("invitations expired", "count", len(expired))
	}
	return len(expired), nil
}

// SendReminders sends at most one reminder to each pending invitation that
// has reached a reminder threshold. The threshold at index i applies to
// invitations with at most i reminders so far, so an invitation that missed
// a run catches up one reminder per run. Returns the number sent.
func (s *Service) SendReminders(ctx context.Context) (int, error) {
	if !s.cfg.RemindersEnabled {
		return 0, nil
	}

	now := s.now().UTC()
	var processed []int64
	sent := 0

	for i, days := range s.cfg.ReminderThresholds {
		if i >= s.cfg.MaxReminders {
			break
		}
		due, err := s.store.Invitations().DueForReminder(ctx, store.ReminderQuery{
			MaxCount:      i,
			MaxReminders:  s.cfg.MaxReminders,
			CreatedBefore: now.AddDate(0, 0, -days),
			Now:           now,
			Exclude:       processed,
		})
		if err != nil {
			return sent, fmt.Errorf("selecting reminders for day %d: %w", days, err)
		}

		for _, inv := range due {
			processed = append(processed, inv.ID)
			ok, err := s.remind(ctx, inv, now)
			if err != nil {
				return sent, err
			}
			if ok {
				sent++
			}
		}
	}

	if sent > 0 {
		s.logger.Info("invitation reminders sent", "count", sent)
	}
	return sent, nil
}

// remind bumps reminder_count from the value that was read, then dispatches.
// Reports false when another run claimed the reminder first.
func (s *Service) remind(ctx context.Context, inv *models.Invitation, now time.Time) (bool, error) {
	ok, err := s.store.Invitations().RecordReminder(ctx, inv.ID, inv.ReminderCount, now)
	if err != nil {
		return false, fmt.Errorf("recording reminder for invitation %d: %w", inv.ID, err)
	}
	if !ok {
		return false, nil
	}
	inv.IncrementReminderCount(now)
	s.notify(ctx, notify.KindReminder, inv, notify.Recipient{Email: inv.Email})
	return true, nil
}
