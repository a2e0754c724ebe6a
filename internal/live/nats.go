package live

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"shorturl/internal/domain"
	"shorturl/pkg/logger"
)

const subjectPrefix = "shortlinks.clicks."

// ConnectNATS dials a NATS server with reconnects enabled
func ConnectNATS(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("shorturl"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return conn, nil
}

// NATSRelay fans click summaries out across instances. Notify publishes to
// NATS and every instance's subscription feeds its local hub.
type NATSRelay struct {
	conn   *nats.Conn
	hub    *Hub
	sub    *nats.Subscription
	logger *logger.Logger
}

// NewNATSRelay subscribes the hub to click summaries from all instances
func NewNATSRelay(conn *nats.Conn, hub *Hub, log *logger.Logger) (*NATSRelay, error) {
	r := &NATSRelay{conn: conn, hub: hub, logger: log}

	sub, err := conn.Subscribe(subjectPrefix+"*", r.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe click summaries: %w", err)
	}
	r.sub = sub
	return r, nil
}

// Notify implements Notifier
func (r *NATSRelay) Notify(_ context.Context, code string, summary *domain.ClickSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	if err := r.conn.Publish(Subject(code), payload); err != nil {
		return fmt.Errorf("publish click summary: %w", err)
	}
	return nil
}

// Close drops the subscription. The connection belongs to the caller.
func (r *NATSRelay) Close() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Unsubscribe()
}

func (r *NATSRelay) handle(msg *nats.Msg) {
	code := strings.TrimPrefix(msg.Subject, subjectPrefix)
	if code == "" || code == msg.Subject {
		r.logger.Warnw("Unexpected click summary subject", "subject", msg.Subject)
		return
	}
	r.hub.Broadcast(code, msg.Data)
}

// Subject returns the NATS subject carrying summaries for code
func Subject(code string) string {
	return subjectPrefix + code
}
