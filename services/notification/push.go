package notification

import (
	"context"
	"fmt"

	"voltslot/models"

	"firebase.google.com/go/v4/messaging"
)

// PushSender is the subset of *messaging.Client used here.
type PushSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// PushNotifier sends FCM pushes to the user's registered device.
type PushNotifier struct {
	client PushSender
}

func NewPushNotifier(client PushSender) *PushNotifier {
	return &PushNotifier{client: client}
}

func (p *PushNotifier) Channel() string { return "push" }

func (p *PushNotifier) Notify(ctx context.Context, n models.Notification) error {
	if n.PushToken == "" {
		return ErrNoRecipient
	}

	msg := &messaging.Message{
		Token: n.PushToken,
		Notification: &messaging.Notification{
			Title: n.Subject,
			Body:  n.Body,
		},
		Data: n.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: "reservations",
				Sound:     "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority":  "10",
				"apns-push-type": "alert",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}

	if _, err := p.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("push: failed to send FCM message: %w", err)
	}
	return nil
}
