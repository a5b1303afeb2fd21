// Package settings manages runtime configuration persisted to a JSON
// file and merged with environment variables on read.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ignite/adops-console/internal/pkg/logger"
)

// Known setting keys. The store accepts only these keys on write so a
// typo in an API payload fails loudly instead of silently persisting.
const (
	KeyMetaAccessToken         = "META_ACCESS_TOKEN"
	KeyMetaAdAccountID         = "META_AD_ACCOUNT_ID"
	KeyMetaAdAccountIDs        = "META_AD_ACCOUNT_IDS"
	KeyMetaAdAccountNames      = "META_AD_ACCOUNT_NAMES"
	KeyMetaAppID               = "META_APP_ID"
	KeyMetaAppSecret           = "META_APP_SECRET"
	KeyAIProvider              = "AI_PROVIDER"
	KeyAIModel                 = "AI_MODEL"
	KeyAnthropicAPIKey         = "ANTHROPIC_API_KEY"
	KeySMTPHost                = "SMTP_HOST"
	KeySMTPPort                = "SMTP_PORT"
	KeySMTPUser                = "SMTP_USER"
	KeySMTPPassword            = "SMTP_PASSWORD"
	KeyWhatsAppPhoneID         = "WHATSAPP_PHONE_ID"
	KeyWhatsAppAccessToken     = "WHATSAPP_ACCESS_TOKEN"
	KeyWebhookVerifyToken      = "WHATSAPP_WEBHOOK_VERIFY_TOKEN"
	KeyAWSAccessKeyID          = "AWS_ACCESS_KEY_ID"
	KeyAWSSecretAccessKey      = "AWS_SECRET_ACCESS_KEY"
	KeyAWSRegion               = "AWS_REGION"
	KeyArchiveBucket           = "ARCHIVE_S3_BUCKET"
	KeyAlertEmailTo            = "ALERT_EMAIL_TO"
	KeyAlertIMTo               = "ALERT_IM_TO"
)

var knownKeys = []string{
	KeyMetaAccessToken,
	KeyMetaAdAccountID,
	KeyMetaAdAccountIDs,
	KeyMetaAdAccountNames,
	KeyMetaAppID,
	KeyMetaAppSecret,
	KeyAIProvider,
	KeyAIModel,
	KeyAnthropicAPIKey,
	KeySMTPHost,
	KeySMTPPort,
	KeySMTPUser,
	KeySMTPPassword,
	KeyWhatsAppPhoneID,
	KeyWhatsAppAccessToken,
	KeyWebhookVerifyToken,
	KeyAWSAccessKeyID,
	KeyAWSSecretAccessKey,
	KeyAWSRegion,
	KeyArchiveBucket,
	KeyAlertEmailTo,
	KeyAlertIMTo,
}

// sensitiveKeys are masked when served through the API.
var sensitiveKeys = map[string]bool{
	KeyMetaAccessToken:     true,
	KeyMetaAppSecret:       true,
	KeyAnthropicAPIKey:     true,
	KeySMTPPassword:        true,
	KeyWhatsAppAccessToken: true,
	KeyWebhookVerifyToken:  true,
	KeyAWSSecretAccessKey:  true,
}

// Store reads and writes settings. Effective values merge the JSON
// file with environment variables: the file wins when it has a
// non-empty value, so operators can rotate a token through the UI
// without redeploying.
type Store struct {
	path string
	mu   sync.RWMutex
}

// NewStore creates a settings store backed by the JSON file at path.
// The file does not need to exist yet.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Get returns the effective value for key: the JSON-file value when
// non-empty, otherwise the environment variable of the same name.
func (s *Store) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vals, err := s.readFile()
	if err != nil {
		logger.Warn("settings file read failed", "path", s.path, "error", err.Error())
	}
	if v := strings.TrimSpace(vals[key]); v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv(key))
}

// All returns the effective value for every known key.
func (s *Store) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vals, _ := s.readFile()
	out := make(map[string]string, len(knownKeys))
	for _, key := range knownKeys {
		v := strings.TrimSpace(vals[key])
		if v == "" {
			v = strings.TrimSpace(os.Getenv(key))
		}
		out[key] = v
	}
	return out
}

// Masked returns every known key with sensitive values replaced by a
// masked placeholder, suitable for serving through the API.
func (s *Store) Masked() map[string]string {
	out := s.All()
	for key, val := range out {
		if sensitiveKeys[key] && val != "" {
			out[key] = logger.RedactSecret(val)
		}
	}
	return out
}

// Update persists the given key/value pairs to the JSON file.
// An empty string value clears the stored key. Unknown keys are
// rejected. Writes are last-write-wins.
func (s *Store) Update(updates map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range updates {
		if !isKnownKey(key) {
			return fmt.Errorf("unknown setting key %q", key)
		}
	}

	vals, err := s.readFile()
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	for key, val := range updates {
		val = strings.TrimSpace(val)
		if val == "" {
			delete(vals, key)
		} else {
			vals[key] = val
		}
	}

	return s.writeFile(vals)
}

// IsSensitive reports whether key holds a secret that must be masked
// in API responses.
func IsSensitive(key string) bool {
	return sensitiveKeys[key]
}

// KnownKeys returns the accepted setting keys in sorted order.
func KnownKeys() []string {
	out := make([]string, len(knownKeys))
	copy(out, knownKeys)
	sort.Strings(out)
	return out
}

func isKnownKey(key string) bool {
	for _, k := range knownKeys {
		if k == key {
			return true
		}
	}
	return false
}

func (s *Store) readFile() (map[string]string, error) {
	vals := make(map[string]string)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return vals, nil
		}
		return vals, err
	}
	if len(data) == 0 {
		return vals, nil
	}
	if err := json.Unmarshal(data, &vals); err != nil {
		return map[string]string{}, err
	}
	return vals, nil
}

// writeFile persists atomically via a temp file rename so a crashed
// write never leaves a truncated settings file behind.
func (s *Store) writeFile(vals map[string]string) error {
	data, err := json.MarshalIndent(vals, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}
