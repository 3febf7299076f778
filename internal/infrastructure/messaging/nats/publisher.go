// Package nats delivers owner notifications over NATS.
package nats

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"aqualist/internal/domain/notify"
	"aqualist/pkg/logger"
)

// SubjectPrefix is prepended to the notification kind to form the subject,
// e.g. "aqualist.notify.listing_approved".
const SubjectPrefix = "aqualist.notify."

var _ notify.Notifier = (*Publisher)(nil)

// Publisher publishes notification events. Best-effort: delivery failures
// are logged and swallowed.
type Publisher struct {
	conn *nats.Conn
}

// NewPublisher connects to NATS at the given URL.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn}, nil
}

// event is the wire shape of a notification.
type event struct {
	ToUserID string         `json:"toUserId"`
	Kind     string         `json:"kind"`
	Title    string         `json:"title,omitempty"`
	Body     string         `json:"body,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
	SentAt   time.Time      `json:"sentAt"`
}

// Notify publishes one notification event.
func (p *Publisher) Notify(ctx context.Context, toUserID, kind, title, body string, meta map[string]any) {
	data, err := json.Marshal(event{
		ToUserID: toUserID,
		Kind:     kind,
		Title:    title,
		Body:     body,
		Meta:     meta,
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		logger.Warn(ctx, "notification marshal failed", "kind", kind, "error", err)
		return
	}

	if err := p.conn.Publish(SubjectPrefix+kind, data); err != nil {
		logger.Warn(ctx, "notification publish failed", "kind", kind, "error", err)
	}
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
