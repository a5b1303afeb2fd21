package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adops-console/internal/notify"
	"github.com/ignite/adops-console/internal/settings"
)

type stubSettings map[string]string

func (s stubSettings) Get(key string) string { return s[key] }

type stubFanout struct {
	msgs  []notify.Message
	dests []notify.Destinations
}

func (s *stubFanout) Dispatch(ctx context.Context, msg notify.Message, dest notify.Destinations) []string {
	s.msgs = append(s.msgs, msg)
	s.dests = append(s.dests, dest)
	return dest.Channels
}

func newTestHandler(src stubSettings) (*Handler, *stubFanout) {
	fanout := &stubFanout{}
	return NewHandler(NewIngestor(src, fanout)), fanout
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

const sampleBody = `{"object":"ads","entry":[{"id":"campaign_1","time":0,"changes":[{"field":"status","value":{"status":"PAUSED"}}]}]}`

func TestVerifyEchoesChallenge(t *testing.T) {
	h, _ := newTestHandler(stubSettings{settings.KeyWebhookVerifyToken: "sesame"})

	req := httptest.NewRequest("GET", "/api/webhooks/meta?hub.mode=subscribe&hub.verify_token=sesame&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "12345", rec.Body.String(), "challenge echoed verbatim")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestVerifyRejectsBadToken(t *testing.T) {
	h, _ := newTestHandler(stubSettings{settings.KeyWebhookVerifyToken: "sesame"})

	req := httptest.NewRequest("GET", "/api/webhooks/meta?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)
	assert.Equal(t, 403, rec.Code)
}

func TestVerifyRejectsWhenUnconfigured(t *testing.T) {
	h, _ := newTestHandler(stubSettings{})

	req := httptest.NewRequest("GET", "/api/webhooks/meta?hub.mode=subscribe&hub.verify_token=&hub.challenge=x", nil)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)
	assert.Equal(t, 403, rec.Code, "empty configured token never verifies")
}

func TestCallbackValidSignature(t *testing.T) {
	h, fanout := newTestHandler(stubSettings{
		settings.KeyMetaAppSecret: "topsecret",
		settings.KeyAlertEmailTo:  "ops@example.com",
	})

	req := httptest.NewRequest("POST", "/api/webhooks/meta", strings.NewReader(sampleBody))
	req.Header.Set("X-Hub-Signature-256", sign("topsecret", []byte(sampleBody)))
	rec := httptest.NewRecorder()
	h.Callback(rec, req)

	require.Equal(t, 200, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, float64(1), resp["processed"])

	require.Len(t, fanout.msgs, 1)
	assert.Contains(t, fanout.msgs[0].Title, "campaign status")
	assert.Contains(t, fanout.msgs[0].Body, "campaign_1")
	assert.Equal(t, []string{"email"}, fanout.dests[0].Channels)
}

func TestCallbackTamperedBody(t *testing.T) {
	h, fanout := newTestHandler(stubSettings{settings.KeyMetaAppSecret: "topsecret"})

	tampered := strings.Replace(sampleBody, "PAUSED", "PAUSEX", 1)
	req := httptest.NewRequest("POST", "/api/webhooks/meta", strings.NewReader(tampered))
	req.Header.Set("X-Hub-Signature-256", sign("topsecret", []byte(sampleBody)))
	rec := httptest.NewRecorder()
	h.Callback(rec, req)

	assert.Equal(t, 403, rec.Code)
	assert.Empty(t, fanout.msgs, "no event emitted on signature mismatch")
}

func TestCallbackNoSecretSkipsVerification(t *testing.T) {
	h, _ := newTestHandler(stubSettings{settings.KeyAlertEmailTo: "ops@example.com"})

	req := httptest.NewRequest("POST", "/api/webhooks/meta", strings.NewReader(sampleBody))
	rec := httptest.NewRecorder()
	h.Callback(rec, req)
	assert.Equal(t, 200, rec.Code, "development mode accepts unsigned callbacks")
}

func TestCallbackNonCriticalFieldNotDispatched(t *testing.T) {
	h, fanout := newTestHandler(stubSettings{settings.KeyAlertEmailTo: "ops@example.com"})

	body := `{"object":"ads","entry":[{"id":"adset_9","time":0,"changes":[{"field":"name","value":"renamed"}]}]}`
	req := httptest.NewRequest("POST", "/api/webhooks/meta", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Callback(rec, req)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["processed"], "counted even when not critical")
	assert.Empty(t, fanout.msgs)
}

func TestCallbackNoRecipientsSkipsDispatch(t *testing.T) {
	h, fanout := newTestHandler(stubSettings{})

	req := httptest.NewRequest("POST", "/api/webhooks/meta", strings.NewReader(sampleBody))
	rec := httptest.NewRecorder()
	h.Callback(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Empty(t, fanout.msgs)
}

func TestCallbackMalformedBodyStill200(t *testing.T) {
	h, _ := newTestHandler(stubSettings{})

	req := httptest.NewRequest("POST", "/api/webhooks/meta", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.Callback(rec, req)

	require.Equal(t, 200, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(0), resp["processed"])
}

func TestConfigReportsFlags(t *testing.T) {
	h, _ := newTestHandler(stubSettings{settings.KeyMetaAppSecret: "x"})

	rec := httptest.NewRecorder()
	h.Config(rec, httptest.NewRequest("GET", "/api/webhooks/config", nil))

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["app_secret_configured"])
	assert.Equal(t, false, resp["verify_token_configured"])
}

func TestTestEndpointBypassesSignature(t *testing.T) {
	h, fanout := newTestHandler(stubSettings{settings.KeyAlertIMTo: "15551234"})

	req := httptest.NewRequest("POST", "/api/webhooks/test", strings.NewReader(sampleBody))
	rec := httptest.NewRecorder()
	h.Test(rec, req)

	assert.Equal(t, 200, rec.Code)
	require.Len(t, fanout.msgs, 1)
	assert.Equal(t, []string{"im"}, fanout.dests[0].Channels)
}

func TestObjectType(t *testing.T) {
	assert.Equal(t, "ad account", objectType("act_123"))
	assert.Equal(t, "campaign", objectType("campaign_1"))
	assert.Equal(t, "ad set", objectType("adset_2"))
	assert.Equal(t, "ad", objectType("ad_3"))
	assert.Equal(t, "object", objectType("123456"))
}
