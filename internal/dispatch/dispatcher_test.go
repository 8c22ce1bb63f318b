package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/recallguard/recallguard-api/internal/models"
	"github.com/recallguard/recallguard-api/internal/repository"
)

type stubAlerts struct {
	alerts map[string]models.Alert
	sent   []string
	failed []string
}

func (s *stubAlerts) Get(_ context.Context, alertID string) (models.Alert, error) {
	alert, ok := s.alerts[alertID]
	if !ok {
		return models.Alert{}, fmt.Errorf("alert %s not found", alertID)
	}
	return alert, nil
}

func (s *stubAlerts) MarkSent(_ context.Context, alertID string) error {
	alert := s.alerts[alertID]
	if alert.SentAt != nil {
		return repository.ErrAlreadySent
	}
	now := time.Now()
	alert.SentAt = &now
	s.alerts[alertID] = alert
	s.sent = append(s.sent, alertID)
	return nil
}

func (s *stubAlerts) MarkFailed(_ context.Context, alertID, _ string) error {
	s.failed = append(s.failed, alertID)
	return nil
}

func (s *stubAlerts) Create(context.Context, repository.CreateAlertParams) (models.Alert, repository.InsertOutcome, error) {
	return models.Alert{}, repository.OutcomeInserted, nil
}
func (s *stubAlerts) ListPending(context.Context, int) ([]models.Alert, error) { return nil, nil }
func (s *stubAlerts) ListNotifiedUserIDs(context.Context, string) ([]string, error) {
	return nil, nil
}

type stubRecalls struct {
	recalls map[string]models.Recall
}

func (s *stubRecalls) GetByID(_ context.Context, recallID string) (models.Recall, error) {
	recall, ok := s.recalls[recallID]
	if !ok {
		return models.Recall{}, fmt.Errorf("recall %s not found", recallID)
	}
	return recall, nil
}

func (s *stubRecalls) Upsert(context.Context, models.Recall) (models.Recall, bool, error) {
	return models.Recall{}, false, nil
}
func (s *stubRecalls) Exists(context.Context, models.Source, string) (bool, error) {
	return false, nil
}
func (s *stubRecalls) GetBySourceExternalID(context.Context, models.Source, string) (models.Recall, error) {
	return models.Recall{}, nil
}
func (s *stubRecalls) ListInsertedAfter(context.Context, time.Time, string, int) ([]models.Recall, error) {
	return nil, nil
}
func (s *stubRecalls) List(context.Context, repository.RecallFilter) ([]models.Recall, error) {
	return nil, nil
}
func (s *stubRecalls) ListBySources(context.Context, []models.Source) ([]models.Recall, error) {
	return nil, nil
}
func (s *stubRecalls) AppendRemedyUpdate(context.Context, string, models.RemedyUpdate) (int, error) {
	return 0, nil
}
func (s *stubRecalls) Count(context.Context) (int, error) { return 0, nil }

type stubUsers struct{}

func (stubUsers) Get(_ context.Context, userID string) (models.User, error) {
	return models.User{ID: userID, Email: userID + "@example.com"}, nil
}

type stubSubscriptions struct{}

func (stubSubscriptions) ListAll(context.Context) ([]models.Subscription, error) { return nil, nil }
func (stubSubscriptions) Get(context.Context, string) (models.Subscription, error) {
	return models.Subscription{}, nil
}

type fakeNotifier struct {
	channel    models.Channel
	err        error
	deliveries []Delivery
}

func (f *fakeNotifier) Channel() models.Channel { return f.channel }

func (f *fakeNotifier) Notify(_ context.Context, delivery Delivery) error {
	f.deliveries = append(f.deliveries, delivery)
	return f.err
}

func deliveryFixture() (*stubAlerts, *stubRecalls) {
	userID := "u1"
	alerts := &stubAlerts{alerts: map[string]models.Alert{
		"a1": {ID: "a1", UserID: &userID, RecallID: "r1", Channel: models.ChannelEmail, Status: models.AlertStatusPending},
	}}
	recalls := &stubRecalls{recalls: map[string]models.Recall{
		"r1": {ID: "r1", Product: "Acme Toaster", Hazard: "fire"},
	}}
	return alerts, recalls
}

func TestDeliverSendsAndMarksSent(t *testing.T) {
	t.Parallel()

	alerts, recalls := deliveryFixture()
	notifier := &fakeNotifier{channel: models.ChannelEmail}
	d := NewDispatcher(alerts, recalls, stubUsers{}, stubSubscriptions{}, zerolog.Nop(), notifier)

	if err := d.Deliver(context.Background(), "a1"); err != nil {
		t.Fatalf("Deliver returned error: %v", err)
	}
	if len(notifier.deliveries) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.deliveries))
	}
	got := notifier.deliveries[0]
	if got.User == nil || got.User.Email != "u1@example.com" {
		t.Fatalf("delivery user not resolved: %+v", got.User)
	}
	if got.Subject == "" || got.Body == "" {
		t.Fatalf("delivery message not built: %+v", got)
	}
	if len(alerts.sent) != 1 || alerts.sent[0] != "a1" {
		t.Fatalf("alert not marked sent: %v", alerts.sent)
	}
}

func TestDeliverSkipsAlreadySent(t *testing.T) {
	t.Parallel()

	alerts, recalls := deliveryFixture()
	sentAt := time.Now()
	alert := alerts.alerts["a1"]
	alert.SentAt = &sentAt
	alerts.alerts["a1"] = alert

	notifier := &fakeNotifier{channel: models.ChannelEmail}
	d := NewDispatcher(alerts, recalls, stubUsers{}, stubSubscriptions{}, zerolog.Nop(), notifier)

	if err := d.Deliver(context.Background(), "a1"); err != nil {
		t.Fatalf("Deliver returned error: %v", err)
	}
	if len(notifier.deliveries) != 0 {
		t.Fatalf("already-sent alert was re-notified %d times", len(notifier.deliveries))
	}
}

func TestDeliverNotifierFailureLeavesAlertPending(t *testing.T) {
	t.Parallel()

	alerts, recalls := deliveryFixture()
	notifier := &fakeNotifier{channel: models.ChannelEmail, err: errors.New("smtp refused")}
	d := NewDispatcher(alerts, recalls, stubUsers{}, stubSubscriptions{}, zerolog.Nop(), notifier)

	if err := d.Deliver(context.Background(), "a1"); err == nil {
		t.Fatal("expected delivery error")
	}
	if len(alerts.sent) != 0 {
		t.Fatalf("failed delivery must not mark sent: %v", alerts.sent)
	}
	if alerts.alerts["a1"].SentAt != nil {
		t.Fatal("sent_at set despite notifier failure")
	}
}

func TestDeliverNoNotifierForChannel(t *testing.T) {
	t.Parallel()

	alerts, recalls := deliveryFixture()
	d := NewDispatcher(alerts, recalls, stubUsers{}, stubSubscriptions{}, zerolog.Nop(),
		&fakeNotifier{channel: models.ChannelPush})

	if err := d.Deliver(context.Background(), "a1"); err == nil {
		t.Fatal("expected error for unconfigured channel")
	}
}

func TestBrokerPublishSubscribe(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	ch, cancel := broker.Subscribe(TopicAlerts)
	defer cancel()

	broker.Publish(TopicAlerts, "payload")
	broker.Publish(TopicRemedyUpdates, "other-topic")

	select {
	case event := <-ch:
		if event.Topic != TopicAlerts || event.Payload != "payload" {
			t.Fatalf("unexpected event: %+v", event)
		}
	default:
		t.Fatal("no event received")
	}
	select {
	case event := <-ch:
		t.Fatalf("received event from foreign topic: %+v", event)
	default:
	}
}

func TestBrokerDropsWhenSubscriberFull(t *testing.T) {
	t.Parallel()

	broker := NewBroker()
	ch, cancel := broker.Subscribe(TopicAlerts)
	defer cancel()

	// Overfill the buffer; Publish must never block.
	for i := 0; i < 40; i++ {
		broker.Publish(TopicAlerts, i)
	}
	drained := 0
	for {
		select {
		case <-ch:
			drained++
			continue
		default:
		}
		break
	}
	if drained != 16 {
		t.Fatalf("expected buffer of 16 retained events, got %d", drained)
	}
}
