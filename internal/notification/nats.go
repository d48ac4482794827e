package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
)

// SubjectPrefix namespaces every published notification.
const SubjectPrefix = "topup."

// Publisher is the subset of jetstream.JetStream the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSNotifier publishes notifications to JetStream under topup.<kind>.
type NATSNotifier struct {
	js     Publisher
	logger *slog.Logger
}

// NewNATSNotifier builds a JetStream-backed notifier.
func NewNATSNotifier(js Publisher, logger *slog.Logger) *NATSNotifier {
	return &NATSNotifier{js: js, logger: logger}
}

// Send publishes message as JSON. The intent id, when present, is used as the
// message id so JetStream drops re-published duplicates.
func (n *NATSNotifier) Send(ctx context.Context, message Message) error {
	subject := SubjectPrefix + message.Kind
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}

	var opts []jetstream.PublishOpt
	if message.IntentID != "" {
		opts = append(opts, jetstream.WithMsgID(message.Kind+":"+message.IntentID))
	}
	if _, err := n.js.Publish(ctx, subject, data, opts...); err != nil {
		return fmt.Errorf("publishing notification: %w", err)
	}

	n.logger.Debug("notification published", "subject", subject, "intent_id", message.IntentID)
	return nil
}
