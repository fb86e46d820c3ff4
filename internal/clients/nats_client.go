package clients

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"solrelay/internal/models"
)

// NATSClient publishes TransferRecord lifecycle transitions to a
// JetStream stream, following the same connect/ensureStream scaffolding
// the wider backend stack uses for its event bus, trimmed down to the
// single publish path this relayer needs: it has no subscribers of its
// own, only a publisher.
type NATSClient struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	stream string
	logger *logrus.Logger
}

func NewNATSClient(url, streamName, subject string, logger *logrus.Logger) (*NATSClient, error) {
	conn, err := nats.Connect(url,
		nats.Name("solrelay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.WithError(err).Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("get jetstream context: %w", err)
	}

	client := &NATSClient{conn: conn, js: js, stream: streamName, logger: logger}
	if err := client.ensureStream(subject); err != nil {
		conn.Close()
		return nil, err
	}
	return client, nil
}

func (c *NATSClient) ensureStream(subject string) error {
	_, err := c.js.StreamInfo(c.stream)
	if err == nil {
		return nil
	}
	_, err = c.js.AddStream(&nats.StreamConfig{
		Name:     c.stream,
		Subjects: []string{subject},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("create jetstream stream %s: %w", c.stream, err)
	}
	return nil
}

// TransferLifecycleEvent is the payload published for every
// TransferRecord transition, mirroring the outbox_events row that
// OutboxRepository.Append inserts just before publishing.
type TransferLifecycleEvent struct {
	TransferID string                  `json:"transfer_id"`
	FromStatus models.BlockchainStatus `json:"from_status"`
	ToStatus   models.BlockchainStatus `json:"to_status"`
	Reason     string                  `json:"reason,omitempty"`
	OccurredAt time.Time               `json:"occurred_at"`
}

// PublishTransferEvent publishes a single lifecycle transition. Publish
// failures are logged and swallowed: the outbox_events row is the
// durable source of truth, NATS delivery is a best-effort notification.
func (c *NATSClient) PublishTransferEvent(subject string, event TransferLifecycleEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		c.logger.WithError(err).Error("marshal transfer lifecycle event")
		return
	}
	if _, err := c.js.Publish(subject, payload); err != nil {
		c.logger.WithError(err).WithField("transfer_id", event.TransferID).Warn("publish transfer lifecycle event")
	}
}

func (c *NATSClient) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
