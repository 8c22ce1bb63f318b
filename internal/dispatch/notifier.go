package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/recallguard/recallguard-api/internal/models"
)

// Delivery is one alert fully resolved for sending: the alert row plus
// the recall it concerns and the target it goes to. User is nil for
// channel-owned subscriptions; Subscription is nil for product matches.
type Delivery struct {
	Alert        models.Alert
	Recall       models.Recall
	User         *models.User
	Subscription *models.Subscription
	Subject      string
	Body         string
}

// Notifier sends one delivery over one channel. Implementations must be
// safe for concurrent use; retries happen above them.
type Notifier interface {
	Channel() models.Channel
	Notify(ctx context.Context, delivery Delivery) error
}

// Subject and body are rebuilt from the recall at send time so retries
// always carry current data.
func buildMessage(recall models.Recall, remedySeq int) (subject, body string) {
	product := strings.TrimSpace(recall.Product)
	if product == "" {
		product = fmt.Sprintf("%s recall %s", recall.Source, recall.ExternalID)
	}

	if remedySeq > 0 {
		subject = fmt.Sprintf("Remedy updated: %s", product)
	} else {
		subject = fmt.Sprintf("Safety recall: %s", product)
	}

	var b strings.Builder
	b.WriteString(product)
	b.WriteString("\n\n")
	if recall.Brand != "" {
		fmt.Fprintf(&b, "Brand: %s\n", recall.Brand)
	}
	if recall.Hazard != "" {
		fmt.Fprintf(&b, "Hazard: %s\n", recall.Hazard)
	}
	if recall.RecallDate != nil {
		fmt.Fprintf(&b, "Recall date: %s\n", recall.RecallDate.Format("2006-01-02"))
	}
	if remedySeq > 0 {
		if remedy := recall.LastRemedy(); remedy != nil {
			fmt.Fprintf(&b, "\nUpdated remedy:\n%s\n", remedy.Text)
		}
	}
	if recall.DetailsURL != "" {
		fmt.Fprintf(&b, "\nDetails: %s\n", recall.DetailsURL)
	}
	return subject, b.String()
}

func logNotifyError(logger zerolog.Logger, err error, channel models.Channel, alertID string) {
	if err == nil {
		return
	}
	logger.Warn().
		Err(err).
		Str("alert_id", alertID).
		Str("channel", string(channel)).
		Msg("failed to deliver alert")
}
