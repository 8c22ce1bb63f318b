package alerting

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/recallguard/recallguard-api/internal/match"
	"github.com/recallguard/recallguard-api/internal/models"
	"github.com/recallguard/recallguard-api/internal/repository"
)

type fakeAlerts struct {
	seen    map[string]bool
	created []repository.CreateAlertParams
}

func newFakeAlerts() *fakeAlerts {
	return &fakeAlerts{seen: make(map[string]bool)}
}

func dedupKey(p repository.CreateAlertParams) string {
	deref := func(s *string) string {
		if s == nil {
			return "<nil>"
		}
		return *s
	}
	return fmt.Sprintf("%s|%s|%s|%s|%d", deref(p.UserID), p.RecallID, deref(p.ProductID), deref(p.SubscriptionID), p.RemedySeq)
}

func (f *fakeAlerts) Create(_ context.Context, params repository.CreateAlertParams) (models.Alert, repository.InsertOutcome, error) {
	key := dedupKey(params)
	if f.seen[key] {
		return models.Alert{}, repository.OutcomeAlreadyExists, nil
	}
	f.seen[key] = true
	f.created = append(f.created, params)
	return models.Alert{
		ID:       fmt.Sprintf("alert-%d", len(f.created)),
		UserID:   params.UserID,
		RecallID: params.RecallID,
		Channel:  params.Channel,
		Status:   models.AlertStatusPending,
	}, repository.OutcomeInserted, nil
}

func (f *fakeAlerts) Get(context.Context, string) (models.Alert, error) {
	return models.Alert{}, nil
}
func (f *fakeAlerts) MarkSent(context.Context, string) error { return nil }
func (f *fakeAlerts) MarkFailed(context.Context, string, string) error { return nil }
func (f *fakeAlerts) ListPending(context.Context, int) ([]models.Alert, error) {
	return nil, nil
}
func (f *fakeAlerts) ListNotifiedUserIDs(context.Context, string) ([]string, error) {
	return nil, nil
}

type fakeUsers struct {
	users map[string]models.User
}

func (f *fakeUsers) Get(_ context.Context, userID string) (models.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return models.User{}, fmt.Errorf("user %s not found", userID)
	}
	return user, nil
}

type recordingEnqueuer struct {
	enqueued []string
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, alert models.Alert) error {
	e.enqueued = append(e.enqueued, alert.ID)
	return nil
}

func strPtr(s string) *string { return &s }

func TestCreateAlertsAtMostOnce(t *testing.T) {
	t.Parallel()

	alerts := newFakeAlerts()
	users := &fakeUsers{users: map[string]models.User{
		"u1": {ID: "u1", Email: "u1@example.com", EmailOptIn: true, PreferredChannel: models.ChannelEmail},
	}}
	enqueuer := &recordingEnqueuer{}
	gen := NewGenerator(alerts, users, enqueuer, nil, zerolog.Nop())

	candidates := []match.Candidate{{
		Recall:  models.Recall{ID: "r1"},
		UserID:  strPtr("u1"),
		Product: &models.Product{ID: "p1", UserID: "u1"},
	}}

	created, err := gen.CreateAlerts(context.Background(), candidates)
	if err != nil {
		t.Fatalf("CreateAlerts returned error: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 alert, got %d", created)
	}
	if len(enqueuer.enqueued) != 1 {
		t.Fatalf("expected 1 enqueue, got %d", len(enqueuer.enqueued))
	}

	// The same candidates again must create and enqueue nothing.
	created, err = gen.CreateAlerts(context.Background(), candidates)
	if err != nil {
		t.Fatalf("CreateAlerts returned error: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected 0 alerts on replay, got %d", created)
	}
	if len(enqueuer.enqueued) != 1 {
		t.Fatalf("replay must not enqueue, got %d enqueues", len(enqueuer.enqueued))
	}
}

func TestCreateAlertsRespectsEmailOptOut(t *testing.T) {
	t.Parallel()

	alerts := newFakeAlerts()
	users := &fakeUsers{users: map[string]models.User{
		"opted-out":  {ID: "opted-out", EmailOptIn: false, PreferredChannel: models.ChannelEmail},
		"has-tokens": {ID: "has-tokens", EmailOptIn: false, PreferredChannel: models.ChannelEmail, PushTokens: []string{"tok"}},
	}}
	gen := NewGenerator(alerts, users, &recordingEnqueuer{}, nil, zerolog.Nop())

	candidates := []match.Candidate{
		{Recall: models.Recall{ID: "r1"}, UserID: strPtr("opted-out"), Product: &models.Product{ID: "p1"}},
		{Recall: models.Recall{ID: "r1"}, UserID: strPtr("has-tokens"), Product: &models.Product{ID: "p2"}},
	}

	created, err := gen.CreateAlerts(context.Background(), candidates)
	if err != nil {
		t.Fatalf("CreateAlerts returned error: %v", err)
	}
	// The opted-out user with no push tokens gets nothing; the other
	// falls back to push.
	if created != 1 {
		t.Fatalf("expected 1 alert, got %d", created)
	}
	if alerts.created[0].Channel != models.ChannelPush {
		t.Fatalf("expected push fallback, got %s", alerts.created[0].Channel)
	}
}

func TestCreateAlertsChannelSubscription(t *testing.T) {
	t.Parallel()

	alerts := newFakeAlerts()
	gen := NewGenerator(alerts, &fakeUsers{}, &recordingEnqueuer{}, nil, zerolog.Nop())

	candidates := []match.Candidate{{
		Recall: models.Recall{ID: "r1"},
		Subscription: &models.Subscription{
			ID:         "s1",
			Kind:       models.SubscriptionKindWebhook,
			WebhookURL: "https://partner.example.com/hook",
		},
	}}

	created, err := gen.CreateAlerts(context.Background(), candidates)
	if err != nil {
		t.Fatalf("CreateAlerts returned error: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 alert, got %d", created)
	}
	got := alerts.created[0]
	if got.Channel != models.ChannelWebhook {
		t.Fatalf("expected webhook channel, got %s", got.Channel)
	}
	if got.UserID != nil {
		t.Fatalf("expected nil user for channel subscription, got %v", got.UserID)
	}
}

func TestCreateRemedyAlertsPerSequence(t *testing.T) {
	t.Parallel()

	alerts := newFakeAlerts()
	users := &fakeUsers{users: map[string]models.User{
		"u1": {ID: "u1", EmailOptIn: true, PreferredChannel: models.ChannelEmail},
	}}
	gen := NewGenerator(alerts, users, &recordingEnqueuer{}, nil, zerolog.Nop())

	recall := models.Recall{ID: "r1"}

	created, err := gen.CreateRemedyAlerts(context.Background(), recall, []string{"u1"}, 1)
	if err != nil {
		t.Fatalf("CreateRemedyAlerts returned error: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 re-alert, got %d", created)
	}

	// The same remedy change replayed is absorbed by the dedup key.
	created, err = gen.CreateRemedyAlerts(context.Background(), recall, []string{"u1"}, 1)
	if err != nil {
		t.Fatalf("CreateRemedyAlerts returned error: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected 0 on replay, got %d", created)
	}

	// A new remedy change is a new sequence and alerts again.
	created, err = gen.CreateRemedyAlerts(context.Background(), recall, []string{"u1"}, 2)
	if err != nil {
		t.Fatalf("CreateRemedyAlerts returned error: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 for next sequence, got %d", created)
	}
}
