package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/narvanalabs/inviteonly/internal/app"
	"github.com/narvanalabs/inviteonly/internal/auth"
	"github.com/narvanalabs/inviteonly/pkg/config"
	"github.com/narvanalabs/inviteonly/pkg/logger"
)

type fakeJobs struct {
	reminders int
	expired   int
	err       error
	calls     []string
}

func (f *fakeJobs) SendReminders(context.Context) (int, error) {
	f.calls = append(f.calls, "remind")
	return f.reminders, f.err
}

func (f *fakeJobs) MarkExpiredInvitations(context.Context) (int, error) {
	f.calls = append(f.calls, "expire")
	return f.expired, f.err
}

func TestRunSendReminders(t *testing.T) {
	tests := []struct {
		name        string
		jobs        *fakeJobs
		enabled     bool
		markExpired bool
		wantLines   []string
		wantCalls   string
	}{
		{
			name:      "disabled",
			jobs:      &fakeJobs{reminders: 3},
			wantLines: []string{"Invitation reminders are disabled in configuration."},
		},
		{
			name:      "sent",
			jobs:      &fakeJobs{reminders: 3},
			enabled:   true,
			wantLines: []string{"Sending invitation reminders...", "Sent 3 reminder(s)."},
			wantCalls: "remind",
		},
		{
			name:      "nothing due",
			jobs:      &fakeJobs{},
			enabled:   true,
			wantLines: []string{"Sending invitation reminders...", "No reminders needed to be sent."},
			wantCalls: "remind",
		},
		{
			name:        "mark expired",
			jobs:        &fakeJobs{expired: 2},
			enabled:     true,
			markExpired: true,
			wantLines: []string{
				"Sending invitation reminders...",
				"No reminders needed to be sent.",
				"Marking expired invitations...",
				"Marked 2 invitation(s) as expired.",
			},
			wantCalls: "remind,expire",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := runSendReminders(context.Background(), &out, tt.jobs, tt.enabled, tt.markExpired); err != nil {
				t.Fatalf("runSendReminders: %v", err)
			}
			got := strings.Split(strings.TrimSpace(out.String()), "\n")
			if strings.Join(got, "|") != strings.Join(tt.wantLines, "|") {
				t.Errorf("output = %q, want %q", got, tt.wantLines)
			}
			if calls := strings.Join(tt.jobs.calls, ","); calls != tt.wantCalls {
				t.Errorf("calls = %q, want %q", calls, tt.wantCalls)
			}
		})
	}
}

func TestRunSendRemindersError(t *testing.T) {
	jobs := &fakeJobs{err: errors.New("store down")}
	err := runSendReminders(context.Background(), &bytes.Buffer{}, jobs, true, true)
	if err == nil || !strings.Contains(err.Error(), "store down") {
		t.Fatalf("err = %v", err)
	}
	if len(jobs.calls) != 1 {
		t.Errorf("calls = %v, expiry should not run after a failure", jobs.calls)
	}
}

func testEnv() env {
	return env{
		loadConfig: func() (*config.Config, error) {
			return &config.Config{
				StoreDriver: "memory",
				JWTSecret:   "invitectl-test-secret-0123456789abcdef",
				JWTExpiry:   time.Hour,
				LogLevel:    "error",
				Mail:        config.MailConfig{Driver: "log", MaxAttempts: 1},
				Invitations: config.InvitationsConfig{
					Reminders: config.RemindersConfig{Enabled: true, AfterDays: []int{3}, MaxReminders: 1},
				},
			}, nil
		},
		newApp: func(cfg *config.Config, log *logger.Logger) (*app.App, error) {
			return app.New(cfg, log)
		},
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCommand(testEnv())
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"migrate"}, "Migrations applied."},
		{[]string{"send-reminders", "--mark-expired"}, "No invitations to mark as expired."},
		{[]string{"mark-expired"}, "No invitations to mark as expired."},
		{[]string{"forget-actor", "user-1"}, "Actor user-1 forgotten."},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output = %q, want it to contain %q", out, tt.want)
			}
		})
	}
}

func TestTokenCommand(t *testing.T) {
	out, err := execute(t, "token", "--actor", "ops-1", "--email", "ops@example.com", "--admin")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	cfg, _ := testEnv().loadConfig()
	svc := auth.NewService(&auth.Config{JWTSecret: []byte(cfg.JWTSecret), TokenExpiry: time.Hour}, nil)
	claims, err := svc.ValidateToken(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != "ops-1" || !claims.Admin || claims.Email != "ops@example.com" {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := execute(t, "token"); err == nil {
		t.Error("expected an error without --actor")
	}
}
