package meta

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adops-console/internal/settings"
)

type stubSettings map[string]string

func (s stubSettings) Get(key string) string { return s[key] }

func configuredSettings() stubSettings {
	return stubSettings{
		settings.KeyMetaAccessToken: "EAAGrealtoken987654321",
		settings.KeyMetaAdAccountID: "act_987654",
	}
}

func newTestClient(t *testing.T, handler http.Handler, src SettingsSource) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, "v21.0", src,
		WithHTTPClient(srv.Client()),
		WithThrottle(0),
	)
	return client, srv
}

func TestIsConfiguredRejectsPlaceholders(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		account string
		want    bool
	}{
		{"real values", "EAAGrealtoken987654321", "act_987654", true},
		{"empty token", "", "act_987654", false},
		{"placeholder token", "EAAxxxxxxxxxxxxx", "act_987654", false},
		{"bare prefix token", "EAA", "act_987654", false},
		{"empty account", "EAAGrealtoken987654321", "", false},
		{"placeholder account", "EAAGrealtoken987654321", "act_123456789", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := stubSettings{
				settings.KeyMetaAccessToken: tt.token,
				settings.KeyMetaAdAccountID: tt.account,
			}
			c := NewClient("https://graph.example.com", "v21.0", src)
			assert.Equal(t, tt.want, c.IsConfigured(""))
		})
	}
}

func TestListCampaignsNotConfigured(t *testing.T) {
	c := NewClient("https://graph.example.com", "v21.0", stubSettings{})
	_, err := c.ListCampaigns(context.Background(), 30, "")
	require.Error(t, err)
	assert.True(t, IsNotConfigured(err))
}

func TestListCampaignsEnrichesInsights(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v21.0/act_987654/campaigns", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "last_30d", r.URL.Query().Get("date_preset"))
		assert.NotEmpty(t, r.URL.Query().Get("access_token"))
		fmt.Fprint(w, `{"data":[
			{"id":"c1","name":"Summer Sale","status":"ACTIVE","objective":"OUTCOME_SALES"},
			{"id":"c2","name":"Brand","status":"PAUSED","objective":"OUTCOME_AWARENESS"}
		]}`)
	})
	mux.HandleFunc("/v21.0/c1/insights", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{
			"impressions":"10000","clicks":"250","spend":"100.50","reach":"8000",
			"ctr":"2.5","cpc":"0.40","cpm":"10.05","frequency":"1.25",
			"actions":[
				{"action_type":"purchase","value":"5"},
				{"action_type":"lead","value":"3"},
				{"action_type":"link_click","value":"200"}
			],
			"action_values":[{"action_type":"purchase","value":"402.00"}]
		}]}`)
	})
	mux.HandleFunc("/v21.0/c2/insights", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	})

	c, _ := newTestClient(t, mux, configuredSettings())
	campaigns, err := c.ListCampaigns(context.Background(), 30, "")
	require.NoError(t, err)
	require.Len(t, campaigns, 2)

	first := campaigns[0]
	assert.Equal(t, "Summer Sale", first.Name)
	assert.Equal(t, int64(10000), first.Impressions)
	assert.Equal(t, int64(8), first.Conversions)
	assert.Equal(t, 402.00, first.ConversionValue)
	assert.Equal(t, 4.0, first.ROAS)

	assert.Zero(t, campaigns[1].Impressions)
	assert.Zero(t, campaigns[1].ROAS)
}

func TestGetInsightsZeroSpendZeroROAS(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v21.0/c1/insights", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{
			"impressions":"500","clicks":"10","spend":"0",
			"action_values":[{"action_type":"purchase","value":"50"}]
		}]}`)
	})
	c, _ := newTestClient(t, mux, configuredSettings())
	ins := c.GetInsights(context.Background(), "c1", 7)
	assert.Equal(t, float64(0), ins.ROAS)
	assert.Equal(t, 50.0, ins.ConversionValue)
}

func TestGetInsightsDegradesOnError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v21.0/c1/insights", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"Unsupported request","code":100}}`)
	})
	c, _ := newTestClient(t, mux, configuredSettings())
	ins := c.GetInsights(context.Background(), "c1", 7)
	assert.Equal(t, Insights{}, ins)
}

func TestRateLimitClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		limited bool
	}{
		{"code 17", http.StatusBadRequest, `{"error":{"message":"User request limit reached","code":17}}`, true},
		{"code 4", http.StatusBadRequest, `{"error":{"message":"Application request limit reached","code":4}}`, true},
		{"429", http.StatusTooManyRequests, `{"error":{"message":"slow down","code":0}}`, true},
		{"limit marker", http.StatusBadRequest, `{"error":{"message":"Ad account limit hit","code":0}}`, true},
		{"plain error", http.StatusBadRequest, `{"error":{"message":"Invalid parameter","code":100}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			mux := http.NewServeMux()
			mux.HandleFunc("/v21.0/act_987654/adsets", func(w http.ResponseWriter, r *http.Request) {
				attempts++
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			c, _ := newTestClient(t, mux, configuredSettings())
			_, err := c.ListAdSets(context.Background(), "", 30, "")
			require.Error(t, err)
			assert.Equal(t, tt.limited, IsRateLimited(err))
			assert.False(t, IsNotConfigured(err))
		})
	}
}

func TestBreakdownOmitsActionsForPlatformPosition(t *testing.T) {
	var gotFields string
	mux := http.NewServeMux()
	mux.HandleFunc("/v21.0/act_987654/insights", func(w http.ResponseWriter, r *http.Request) {
		gotFields = r.URL.Query().Get("fields")
		fmt.Fprint(w, `{"data":[{"impressions":"100","platform_position":"feed"}]}`)
	})
	c, _ := newTestClient(t, mux, configuredSettings())

	rows, err := c.ListInsightsWithBreakdown(context.Background(), "", 30, "platform_position", "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "feed", rows[0].PlatformPosition)
	assert.NotContains(t, gotFields, "actions")

	_, err = c.ListInsightsWithBreakdown(context.Background(), "", 30, "publisher_platform", "")
	require.NoError(t, err)
	assert.Contains(t, gotFields, "actions")
}

func TestUpdateAdSetBudgetRequiresValue(t *testing.T) {
	c := NewClient("https://graph.example.com", "v21.0", configuredSettings())
	err := c.UpdateAdSetBudget(context.Background(), "as1", AdSetBudgetUpdate{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily_budget or lifetime_budget")
}

func TestSetCampaignStatusValidatesStatus(t *testing.T) {
	c := NewClient("https://graph.example.com", "v21.0", configuredSettings())
	err := c.SetCampaignStatus(context.Background(), "c1", "DELETED")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid status")
}

func TestSetCampaignStatusPostsForm(t *testing.T) {
	var gotStatus, gotToken string
	mux := http.NewServeMux()
	mux.HandleFunc("/v21.0/c1", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotStatus = r.PostForm.Get("status")
		gotToken = r.PostForm.Get("access_token")
		fmt.Fprint(w, `{"success":true}`)
	})
	c, _ := newTestClient(t, mux, configuredSettings())

	require.NoError(t, c.SetCampaignStatus(context.Background(), "c1", "paused"))
	assert.Equal(t, "PAUSED", gotStatus)
	assert.NotEmpty(t, gotToken)
}

func TestUploadImageExtractsHash(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v21.0/act_987654/adimages", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"images":{"banner.png":{"hash":"abc123hash"}}}`)
	})
	c, _ := newTestClient(t, mux, configuredSettings())

	hash, err := c.UploadImage(context.Background(), "act_987654", "https://cdn.example.com/banner.png")
	require.NoError(t, err)
	assert.Equal(t, "abc123hash", hash)
}

func TestSearchLibraryNeedsOnlyToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v21.0/ads_archive", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, `["US"]`, q.Get("ad_reached_countries"))
		assert.Equal(t, "shoes", q.Get("search_terms"))
		fmt.Fprint(w, `{"data":[
			{"id":"lib1","page_id":"p1","page_name":"Shoe Co","ad_creative_bodies":["Buy now"]}
		],"paging":{"cursors":{"after":"cursor123"}}}`)
	})
	// token set, no ad account
	src := stubSettings{settings.KeyMetaAccessToken: "EAAGrealtoken987654321"}
	c, _ := newTestClient(t, mux, src)

	res, err := c.SearchLibrary(context.Background(), LibrarySearchParams{SearchTerms: "shoes"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, "Shoe Co", res.Ads[0].PageName)
	assert.Equal(t, "cursor123", res.NextCursor)
}

func TestListCampaignsThrottleHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/v21.0/act_987654/campaigns", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"id":"c1","name":"A"},{"id":"c2","name":"B"}]}`)
		// cancel before the per-campaign insight loop starts sleeping
		cancel()
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "insights") {
			fmt.Fprint(w, `{"data":[]}`)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "v21.0", configuredSettings(),
		WithHTTPClient(srv.Client()),
		WithThrottle(5*time.Second),
	)

	start := time.Now()
	_, err := c.ListCampaigns(ctx, 30, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}
