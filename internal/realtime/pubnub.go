package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"truefantix/internal/config"

	pubnub "github.com/pubnub/go/v7"
)

// Notifier доставляет сообщение в персональный канал пользователя
type Notifier interface {
	Notify(ctx context.Context, userID string, message map[string]any) error
}

func UserChannel(userID string) string {
	return fmt.Sprintf("user-%s", userID)
}

type PubNubNotifier struct {
	pn *pubnub.PubNub
}

// NewNotifier возвращает PubNub-клиент или NopNotifier, если ключи не заданы
func NewNotifier(cfg config.PubNubConfig) Notifier {
	if cfg.PublishKey == "" || cfg.SubscribeKey == "" {
		slog.Warn("PubNub keys are not set, realtime notifications disabled")
		return NopNotifier{}
	}

	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UserID))
	pnCfg.PublishKey = cfg.PublishKey
	pnCfg.SubscribeKey = cfg.SubscribeKey
	pnCfg.SecretKey = cfg.SecretKey

	return &PubNubNotifier{pn: pubnub.NewPubNub(pnCfg)}
}

func (n *PubNubNotifier) Notify(ctx context.Context, userID string, message map[string]any) error {
	_, _, err := n.pn.PublishWithContext(ctx).
		Channel(UserChannel(userID)).
		Message(message).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", UserChannel(userID), err)
	}
	return nil
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, map[string]any) error { return nil }
