// Package notify fans a logical alert out to one or more delivery
// channels and reports which of them succeeded.
package notify

import (
	"context"

	"github.com/ignite/adops-console/internal/pkg/logger"
)

// Channel names used in rule definitions and delivery records.
const (
	ChannelEmail = "email"
	ChannelIM    = "im"
)

// Message is a logical notification payload.
type Message struct {
	Title string
	Body  string
}

// Destinations routes a message: email address and/or an instant
// messaging recipient id. Empty fields disable that channel.
type Destinations struct {
	Channels []string
	EmailTo  string
	IMTo     string
}

// EmailSender delivers a message by email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// IMSender delivers a plain-text instant message.
type IMSender interface {
	SendText(ctx context.Context, to, body string) (messageID string, err error)
}

// Fanout dispatches one message to multiple channels. Adapter
// failures are logged and collected; they never propagate.
type Fanout struct {
	email EmailSender
	im    IMSender
}

// NewFanout creates a fanout. Either adapter may be nil, which makes
// that channel always undeliverable.
func NewFanout(email EmailSender, im IMSender) *Fanout {
	return &Fanout{email: email, im: im}
}

// Dispatch sends msg to every requested channel and returns the names
// of channels that succeeded. Partial delivery is not an error.
func (f *Fanout) Dispatch(ctx context.Context, msg Message, dest Destinations) []string {
	delivered := make([]string, 0, len(dest.Channels))

	for _, ch := range dest.Channels {
		switch ch {
		case ChannelEmail:
			if f.email == nil || dest.EmailTo == "" {
				continue
			}
			if err := f.email.Send(ctx, dest.EmailTo, msg.Title, msg.Body); err != nil {
				logger.Warn("email delivery failed", "to", dest.EmailTo, "error", err.Error())
				continue
			}
			delivered = append(delivered, ChannelEmail)

		case ChannelIM:
			if f.im == nil || dest.IMTo == "" {
				continue
			}
			if _, err := f.im.SendText(ctx, dest.IMTo, msg.Body); err != nil {
				logger.Warn("im delivery failed", "to", dest.IMTo, "error", err.Error())
				continue
			}
			delivered = append(delivered, ChannelIM)

		default:
			logger.Warn("unknown notification channel", "channel", ch)
		}
	}
	return delivered
}
