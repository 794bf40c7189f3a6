package invitation

import (
	"sort"

	"github.com/narvanalabs/inviteonly/internal/models"
	"github.com/narvanalabs/inviteonly/internal/notify"
	"github.com/narvanalabs/inviteonly/pkg/config"
)

// Config is the invitation policy injected into the Service.
type Config struct {
	ExpirationEnabled bool
	ExpirationDays    int

	RemindersEnabled bool
	// ReminderThresholds are day counts after creation at which a reminder
	// becomes due. NewService sorts them ascending.
	ReminderThresholds []int
	MaxReminders       int

	// Notifications maps each kind to a template. A kind mapped to "" is
	// disabled; a kind missing from the map uses the built-in template.
	Notifications map[notify.Kind]string

	// InvitableTypes is the closed set of allowed invitable type tags. Empty
	// allows any non-empty tag.
	InvitableTypes []string
}

// DefaultConfig returns the built-in policy: 7 day expiry and reminders on
// days 3 and 5, at most 2.
func DefaultConfig() Config {
	return Config{
		ExpirationEnabled:  true,
		ExpirationDays:     7,
		RemindersEnabled:   true,
		ReminderThresholds: []int{3, 5},
		MaxReminders:       2,
		Notifications:      notify.DefaultTemplates(),
	}
}

// FromSettings converts the loaded configuration into a service Config.
func FromSettings(s config.InvitationsConfig) Config {
	cfg := Config{
		ExpirationEnabled:  s.Expiration.Enabled,
		ExpirationDays:     s.Expiration.Days,
		RemindersEnabled:   s.Reminders.Enabled,
		ReminderThresholds: append([]int(nil), s.Reminders.AfterDays...),
		MaxReminders:       s.Reminders.MaxReminders,
		Notifications:      notify.DefaultTemplates(),
		InvitableTypes:     append([]string(nil), s.InvitableTypes...),
	}
	for kind, template := range s.Notifications {
		cfg.Notifications[notify.Kind(kind)] = template
	}
	return cfg
}

func (c Config) normalized() Config {
	out := c
	out.ReminderThresholds = append([]int(nil), c.ReminderThresholds...)
	sort.Ints(out.ReminderThresholds)
	out.Notifications = notify.DefaultTemplates()
	for kind, template := range c.Notifications {
		out.Notifications[kind] = template
	}
	return out
}

// template returns the template for kind and whether the kind is enabled.
func (c Config) template(kind notify.Kind) (string, bool) {
	t, ok := c.Notifications[kind]
	if !ok {
		t = notify.DefaultTemplates()[kind]
	}
	return t, t != ""
}

func (c Config) allowsInvitable(inv *models.Invitable) bool {
	if inv == nil {
		return true
	}
	if inv.Type == "" || inv.ID == "" {
		return false
	}
	if len(c.InvitableTypes) == 0 {
		return true
	}
	for _, t := range c.InvitableTypes {
		if t == inv.Type {
			return true
		}
	}
	return false
}
