// Package webhook receives change callbacks pushed by the ad platform,
// verifies their HMAC signature and fans critical changes into the
// notification pipeline.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ignite/adops-console/internal/notify"
	"github.com/ignite/adops-console/internal/pkg/logger"
	"github.com/ignite/adops-console/internal/settings"
)

// Envelope is the callback payload pushed by the platform.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups changes for one object.
type Entry struct {
	ID      string   `json:"id"`
	Time    int64    `json:"time"`
	Changes []Change `json:"changes"`
}

// Change is a single field transition.
type Change struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// criticalFields trigger a notification when they change.
var criticalFields = map[string]bool{
	"status":          true,
	"daily_budget":    true,
	"lifetime_budget": true,
}

// SettingsSource resolves webhook credentials at request time.
type SettingsSource interface {
	Get(key string) string
}

// Notifier delivers change notifications.
type Notifier interface {
	Dispatch(ctx context.Context, msg notify.Message, dest notify.Destinations) []string
}

// Ingestor validates and processes webhook callbacks.
type Ingestor struct {
	src    SettingsSource
	fanout Notifier
}

// NewIngestor builds the webhook ingestor.
func NewIngestor(src SettingsSource, fanout Notifier) *Ingestor {
	return &Ingestor{src: src, fanout: fanout}
}

// VerifyToken checks the subscription handshake. It returns the
// challenge to echo back, or false when the handshake is rejected.
func (i *Ingestor) VerifyToken(mode, token, challenge string) (string, bool) {
	expected := i.src.Get(settings.KeyWebhookVerifyToken)
	if mode != "subscribe" || expected == "" || token != expected {
		return "", false
	}
	return challenge, true
}

// CheckSignature validates the sha256= signature header against the
// raw body. With no signing secret configured verification is skipped
// so local development works without platform credentials.
func (i *Ingestor) CheckSignature(header string, body []byte) bool {
	secret := i.src.Get(settings.KeyMetaAppSecret)
	if secret == "" {
		logger.Warn("webhook signature check skipped, no app secret configured")
		return true
	}
	hexSig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(hexSig)), []byte(expected))
}

// Process classifies every change in the envelope and dispatches a
// notification for each critical one. It returns the number of
// changes processed.
func (i *Ingestor) Process(ctx context.Context, env *Envelope) int {
	processed := 0
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			processed++
			logger.Info("webhook change received",
				"object", objectType(entry.ID), "id", entry.ID, "field", change.Field)
			if !criticalFields[change.Field] {
				continue
			}
			i.notifyChange(ctx, entry, change)
		}
	}
	return processed
}

func (i *Ingestor) notifyChange(ctx context.Context, entry Entry, change Change) {
	dest := notify.Destinations{
		EmailTo: i.src.Get(settings.KeyAlertEmailTo),
		IMTo:    i.src.Get(settings.KeyAlertIMTo),
	}
	if dest.EmailTo != "" {
		dest.Channels = append(dest.Channels, notify.ChannelEmail)
	}
	if dest.IMTo != "" {
		dest.Channels = append(dest.Channels, notify.ChannelIM)
	}
	if len(dest.Channels) == 0 {
		logger.Warn("critical webhook change has no notification recipients",
			"id", entry.ID, "field", change.Field)
		return
	}

	value := strings.TrimSpace(string(change.Value))
	msg := notify.Message{
		Title: fmt.Sprintf("Ad platform change: %s %s", objectType(entry.ID), change.Field),
		Body: fmt.Sprintf("The %s %s changed its %s.\n\nNew value: %s\n",
			objectType(entry.ID), entry.ID, change.Field, value),
	}
	i.fanout.Dispatch(ctx, msg, dest)
}

// objectType classifies an entity by its id prefix.
func objectType(id string) string {
	switch {
	case strings.HasPrefix(id, "act_"):
		return "ad account"
	case strings.HasPrefix(id, "campaign_"):
		return "campaign"
	case strings.HasPrefix(id, "adset_"):
		return "ad set"
	case strings.HasPrefix(id, "ad_"):
		return "ad"
	default:
		return "object"
	}
}
