package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adops-console/internal/settings"
)

type fakeEmail struct {
	sent []string
	err  error
}

func (f *fakeEmail) Send(ctx context.Context, to, subject, htmlBody string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

type fakeIM struct {
	sent []string
	err  error
}

func (f *fakeIM) SendText(ctx context.Context, to, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, to)
	return "wamid.test", nil
}

func TestDispatchAllChannels(t *testing.T) {
	email := &fakeEmail{}
	im := &fakeIM{}
	f := NewFanout(email, im)

	delivered := f.Dispatch(context.Background(), Message{Title: "t", Body: "b"}, Destinations{
		Channels: []string{ChannelEmail, ChannelIM},
		EmailTo:  "ops@example.com",
		IMTo:     "15551234567",
	})

	assert.Equal(t, []string{ChannelEmail, ChannelIM}, delivered)
	assert.Equal(t, []string{"ops@example.com"}, email.sent)
	assert.Equal(t, []string{"15551234567"}, im.sent)
}

func TestDispatchPartialFailure(t *testing.T) {
	email := &fakeEmail{err: errors.New("smtp down")}
	im := &fakeIM{}
	f := NewFanout(email, im)

	delivered := f.Dispatch(context.Background(), Message{Body: "b"}, Destinations{
		Channels: []string{ChannelEmail, ChannelIM},
		EmailTo:  "ops@example.com",
		IMTo:     "15551234567",
	})

	assert.Equal(t, []string{ChannelIM}, delivered)
}

func TestDispatchSkipsMissingDestinations(t *testing.T) {
	f := NewFanout(&fakeEmail{}, &fakeIM{})

	delivered := f.Dispatch(context.Background(), Message{Body: "b"}, Destinations{
		Channels: []string{ChannelEmail, ChannelIM},
	})
	assert.Empty(t, delivered)
}

func TestDispatchNilAdapters(t *testing.T) {
	f := NewFanout(nil, nil)
	delivered := f.Dispatch(context.Background(), Message{Body: "b"}, Destinations{
		Channels: []string{ChannelEmail, ChannelIM},
		EmailTo:  "ops@example.com",
		IMTo:     "1555",
	})
	assert.Empty(t, delivered)
}

func TestFormatMetricValue(t *testing.T) {
	tests := []struct {
		metric string
		value  float64
		want   string
	}{
		{"ctr", 1.2345, "%1.23"},
		{"spend", 1234.5, "1234.50"},
		{"cpc", 0.4, "0.40"},
		{"cpm", 10.05, "10.05"},
		{"roas", 1.5, "1.500"},
		{"frequency", 2.25, "2.250"},
		{"impressions", 1234567, "1,234,567"},
		{"clicks", 999, "999"},
	}
	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMetricValue(tt.metric, tt.value))
		})
	}
}

func TestBuildAlertMessage(t *testing.T) {
	msg := BuildAlertMessage("Low CTR", "Summer Sale", "ctr", "lt", 1.0, 5.0)
	assert.Contains(t, msg, "Campaign: Summer Sale")
	assert.Contains(t, msg, "Metric: CTR")
	assert.Contains(t, msg, "Value: %1.00")
	assert.Contains(t, msg, "Threshold: %5.00")
	assert.Contains(t, msg, "fell below threshold")
	assert.Contains(t, msg, "Rule: Low CTR")
}

func TestWhatsAppSendText(t *testing.T) {
	var gotAuth string
	var gotTo string
	mux := http.NewServeMux()
	mux.HandleFunc("/phone123/messages", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body struct {
			MessagingProduct string `json:"messaging_product"`
			To               string `json:"to"`
		}
		require.NoError(t, jsonDecode(r, &body))
		gotTo = body.To
		assert.Equal(t, "whatsapp", body.MessagingProduct)
		fmt.Fprint(w, `{"messages":[{"id":"wamid.abc"}]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	src := stubSettings{
		settings.KeyWhatsAppPhoneID:     "phone123",
		settings.KeyWhatsAppAccessToken: "watoken",
	}
	sender := NewWhatsAppSender(srv.URL, src, srv.Client())

	id, err := sender.SendText(context.Background(), "+1 (555) 123-4567", "hello")
	require.NoError(t, err)
	assert.Equal(t, "wamid.abc", id)
	assert.Equal(t, "Bearer watoken", gotAuth)
	assert.Equal(t, "15551234567", gotTo)
}

func TestWhatsAppFallsBackToPlatformToken(t *testing.T) {
	src := stubSettings{
		settings.KeyWhatsAppPhoneID: "phone123",
		settings.KeyMetaAccessToken: "platformtoken",
	}
	sender := NewWhatsAppSender("https://graph.example.com/v21.0", src, nil)
	assert.Equal(t, "platformtoken", sender.token())
}

func TestWhatsAppNotConfigured(t *testing.T) {
	sender := NewWhatsAppSender("https://graph.example.com/v21.0", stubSettings{}, nil)
	_, err := sender.SendText(context.Background(), "1555", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

type stubSettings map[string]string

func (s stubSettings) Get(key string) string { return s[key] }

func jsonDecode(r *http.Request, dest interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dest)
}
