package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func pinger(healthy bool) Pinger {
	return PingFunc(func(ctx context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("connection refused")
	})
}

func TestPropertyHealthAggregation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("overall status follows the worst component", prop.ForAll(
		func(version string, storeHealthy, mailHealthy bool) bool {
			checker := NewChecker(version)
			checker.AddComponent("store", pinger(storeHealthy), true)
			checker.AddComponent("mail", pinger(mailHealthy), false)

			response := checker.Check(context.Background())
			if response.Version != version || len(response.Components) != 2 {
				return false
			}

			want := StatusHealthy
			switch {
			case !storeHealthy:
				want = StatusUnhealthy
			case !mailHealthy:
				want = StatusDegraded
			}
			return response.Status == want
		},
		gen.RegexMatch(`v?[0-9]+\.[0-9]+\.[0-9]+`),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestHandlerStatusCodes(t *testing.T) {
	for _, tt := range []struct {
		healthy bool
		want    int
	}{
		{true, http.StatusOK},
		{false, http.StatusServiceUnavailable},
	} {
		checker := NewChecker("dev")
		checker.AddComponent("store", pinger(tt.healthy), true)

		rr := httptest.NewRecorder()
		checker.Handler()(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rr.Code != tt.want {
			t.Errorf("healthy=%v status = %d, want %d", tt.healthy, rr.Code, tt.want)
		}
		var body Response
		if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if _, ok := body.Components["store"]; !ok {
			t.Errorf("missing store component: %+v", body)
		}
	}
}

func TestCheckRespectsTimeout(t *testing.T) {
	checker := NewChecker("dev")
	checker.SetTimeout(20 * time.Millisecond)
	checker.AddComponent("store", PingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), true)

	start := time.Now()
	response := checker.Check(context.Background())
	if time.Since(start) > time.Second {
		t.Error("check did not honour timeout")
	}
	if response.Status != StatusUnhealthy {
		t.Errorf("status = %s, want unhealthy", response.Status)
	}
}

func TestMissingPinger(t *testing.T) {
	checker := NewChecker("dev")
	checker.AddComponent("queue", nil, false)

	if got := checker.Check(context.Background()).Status; got != StatusDegraded {
		t.Errorf("status = %s, want degraded", got)
	}
}
