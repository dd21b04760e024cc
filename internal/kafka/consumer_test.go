package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/retro-leaderboard/internal/config"
	"github.com/retro-leaderboard/internal/domain"
)

type fakeTrigger struct {
	calls []int64
	err   error
}

func (f *fakeTrigger) TriggerUpdate(_ context.Context, challengeID int64) (*domain.RunSummary, error) {
	f.calls = append(f.calls, challengeID)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.RunSummary{ChallengeID: challengeID}, nil
}

func newTestConsumer(trigger UpdateTrigger) *Consumer {
	return &Consumer{
		config:  &config.KafkaConfig{RequestTopic: "requests"},
		trigger: trigger,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestHandleUpdateRequest(t *testing.T) {
	trigger := &fakeTrigger{}
	c := newTestConsumer(trigger)

	value, err := json.Marshal(UpdateRequest{ChallengeID: 3, RequestedBy: "cron", RequestedAt: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	c.handle(context.Background(), value, 0, 0)

	if len(trigger.calls) != 1 || trigger.calls[0] != 3 {
		t.Fatalf("expected one update of challenge 3, got %v", trigger.calls)
	}
}

func TestHandleIgnoresMalformedRequest(t *testing.T) {
	trigger := &fakeTrigger{}
	c := newTestConsumer(trigger)

	c.handle(context.Background(), []byte("{nope"), 4, 1)

	if len(trigger.calls) != 0 {
		t.Fatalf("expected malformed request to be dropped, got %v", trigger.calls)
	}
}

func TestHandleSurvivesRejectedAndFailedRuns(t *testing.T) {
	for _, err := range []error{&domain.RunNotAllowedError{Elapsed: "1 minute ago"}, errors.New("boom")} {
		trigger := &fakeTrigger{err: err}
		c := newTestConsumer(trigger)
		c.handle(context.Background(), []byte(`{}`), 0, 0)
		if len(trigger.calls) != 1 || trigger.calls[0] != 0 {
			t.Errorf("expected current challenge to be requested once, got %v", trigger.calls)
		}
	}
}

func TestRunEventEncoding(t *testing.T) {
	event := RunEvent{
		EventID:   "e1",
		Type:      EventTypeRunCompleted,
		Summary:   domain.RunSummary{RunID: "r1", ChallengeID: 2, UpdatedPlayers: []string{"alice"}},
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["type"] != "run_completed" {
		t.Errorf("unexpected type %v", decoded["type"])
	}
	summary := decoded["summary"].(map[string]any)
	if summary["run_id"] != "r1" || summary["challenge_id"] != float64(2) {
		t.Errorf("unexpected summary %v", summary)
	}
}
