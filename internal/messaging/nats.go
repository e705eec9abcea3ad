package messaging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/stan.go"
)

// Publisher - то, что нужно сервисам: отправить событие в subject
type Publisher interface {
	Publish(subject string, data any) error
}

type NATSClient struct {
	conn stan.Conn
}

type Config struct {
	URL       string
	ClusterID string
	ClientID  string
}

func (c Config) Enabled() bool {
	return c.URL != ""
}

// NewNATSClient подключается к NATS Streaming.
// С пустым URL возвращает клиент без соединения: Publish только логирует.
func NewNATSClient(cfg Config) (*NATSClient, error) {
	if !cfg.Enabled() {
		slog.Warn("NATS URL is not set, events will not be published")
		return &NATSClient{}, nil
	}

	// Generate unique client ID to avoid conflicts
	uniqueClientID := fmt.Sprintf("%s-%s", cfg.ClientID, uuid.New().String()[:8])

	conn, err := stan.Connect(cfg.ClusterID, uniqueClientID,
		stan.NatsURL(cfg.URL),
		stan.SetConnectionLostHandler(func(_ stan.Conn, reason error) {
			slog.Error("NATS streaming connection lost", "error", reason)
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS Streaming: %w", err)
	}

	slog.Info("Connected to NATS Streaming",
		"url", cfg.URL, "cluster", cfg.ClusterID, "client", uniqueClientID)

	return &NATSClient{conn: conn}, nil
}

func (nc *NATSClient) Connected() bool {
	return nc != nil && nc.conn != nil
}

func (nc *NATSClient) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if !nc.Connected() {
		slog.Debug("NATS disabled, dropping message", "subject", subject)
		return nil
	}

	if err := nc.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}

	slog.Debug("Published message", "subject", subject)
	return nil
}

// SubscribeQueue - durable queue-подписка с ручным ack
func (nc *NATSClient) SubscribeQueue(subject, queue string, handler stan.MsgHandler) (stan.Subscription, error) {
	if !nc.Connected() {
		return nil, fmt.Errorf("failed to queue subscribe to subject %s: not connected", subject)
	}
	sub, err := nc.conn.QueueSubscribe(subject, queue, handler,
		stan.DurableName(subject+"-"+queue+"-durable"),
		stan.SetManualAckMode(),
		stan.AckWait(30*time.Second),
		stan.MaxInflight(1))
	if err != nil {
		return nil, fmt.Errorf("failed to queue subscribe to subject %s: %w", subject, err)
	}

	slog.Info("Subscribed to subject", "subject", subject, "queue", queue)
	return sub, nil
}

func (nc *NATSClient) Close() error {
	if nc.Connected() {
		return nc.conn.Close()
	}
	return nil
}
