package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/retro-leaderboard/internal/domain"
)

var gateNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestGate(store SettingStore) *RunGate {
	g := NewRunGate(store, 600*time.Second, testLogger())
	g.now = func() time.Time { return gateNow }
	return g
}

func TestGateAllowsFirstRun(t *testing.T) {
	store := newMemStore()
	gate := newTestGate(store)

	status, err := gate.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Allowed || status.Elapsed != "never" {
		t.Errorf("expected allowed with no previous run, got %+v", status)
	}

	if _, err := gate.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got := store.settings[domain.SettingLastRun]; got != "2024-03-01 12:00:00" {
		t.Errorf("expected last_run to be written, got %q", got)
	}
}

func TestGateCooldown(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		allowed bool
	}{
		{"just ran", 0, false},
		{"five minutes", 5 * time.Minute, false},
		{"exactly the cooldown", 600 * time.Second, false},
		{"one second past", 601 * time.Second, true},
		{"an hour", time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			lastRun := gateNow.Add(-tt.elapsed).Format(domain.LastRunFormat)
			store.settings[domain.SettingLastRun] = lastRun

			status, err := newTestGate(store).Acquire(context.Background())
			if status.Allowed != tt.allowed {
				t.Errorf("expected allowed=%v, got %+v", tt.allowed, status)
			}

			if tt.allowed {
				if err != nil {
					t.Fatalf("acquire: %v", err)
				}
				if store.settings[domain.SettingLastRun] == lastRun {
					t.Error("expected last_run to advance")
				}
				return
			}

			if !errors.Is(err, domain.ErrRunNotAllowed) {
				t.Fatalf("expected ErrRunNotAllowed, got %v", err)
			}
			var notAllowed *domain.RunNotAllowedError
			if !errors.As(err, &notAllowed) || !notAllowed.LastRun.Equal(gateNow.Add(-tt.elapsed)) {
				t.Errorf("expected typed error carrying the last run, got %v", err)
			}
			if store.settings[domain.SettingLastRun] != lastRun {
				t.Error("a rejected run must not touch last_run")
			}
		})
	}
}

func TestGateElapsedDescription(t *testing.T) {
	store := newMemStore()
	store.settings[domain.SettingLastRun] = gateNow.Add(-5 * time.Minute).Format(domain.LastRunFormat)

	_, err := newTestGate(store).Acquire(context.Background())
	if err == nil || !strings.Contains(err.Error(), "5 minutes ago") {
		t.Errorf("expected error to mention the elapsed time, got %v", err)
	}
}

func TestGateRejectsMalformedLastRun(t *testing.T) {
	store := newMemStore()
	store.settings[domain.SettingLastRun] = "yesterday"

	if _, err := newTestGate(store).Status(context.Background()); err == nil {
		t.Fatal("expected parse error")
	}
}
