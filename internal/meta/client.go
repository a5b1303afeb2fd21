// Package meta is a typed client for the Meta Marketing API (Graph
// API). It reads credentials from the settings store on each call so
// token rotation through the UI takes effect without a restart.
package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/adops-console/internal/pkg/httpretry"
	"github.com/ignite/adops-console/internal/pkg/logger"
	"github.com/ignite/adops-console/internal/settings"
)

// SettingsSource supplies credentials at call time.
type SettingsSource interface {
	Get(key string) string
}

// Client talks to the Graph API's marketing endpoints.
type Client struct {
	baseURL      string
	version      string
	settings     SettingsSource
	httpClient   httpretry.HTTPDoer
	imageClient  httpretry.HTTPDoer
	videoClient  httpretry.HTTPDoer
	throttle     time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default request client (used in tests).
func WithHTTPClient(c httpretry.HTTPDoer) Option {
	return func(cl *Client) {
		cl.httpClient = c
		cl.imageClient = c
		cl.videoClient = c
	}
}

// WithThrottle overrides the delay between per-entity insight calls.
func WithThrottle(d time.Duration) Option {
	return func(cl *Client) { cl.throttle = d }
}

// NewClient creates a Graph API client. baseURL is the API host
// (https://graph.facebook.com) and version the path segment (v21.0).
func NewClient(baseURL, version string, src SettingsSource, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		version:  version,
		settings: src,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: 30 * time.Second,
		}, 3),
		imageClient: httpretry.NewRetryClient(&http.Client{
			Timeout: 60 * time.Second,
		}, 3),
		videoClient: httpretry.NewRetryClient(&http.Client{
			Timeout: 120 * time.Second,
		}, 3),
		throttle: 500 * time.Millisecond,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) token() string {
	return strings.TrimSpace(c.settings.Get(settings.KeyMetaAccessToken))
}

func (c *Client) defaultAccountID() string {
	return strings.TrimSpace(c.settings.Get(settings.KeyMetaAdAccountID))
}

// IsConfigured reports whether the token and account id hold real
// values rather than placeholders from a sample settings file.
func (c *Client) IsConfigured(accountID string) bool {
	token := c.token()
	account := strings.TrimSpace(accountID)
	if account == "" {
		account = c.defaultAccountID()
	}
	if token == "" || account == "" {
		return false
	}
	if strings.Contains(token, "xxxxxxxx") || token == "EAA" {
		return false
	}
	if account == "act_123456789" || strings.Contains(account, "123456789") {
		return false
	}
	return true
}

func (c *Client) resolveAccount(accountID string) (string, error) {
	if !c.IsConfigured(accountID) {
		return "", NotConfiguredError()
	}
	if strings.TrimSpace(accountID) != "" {
		return strings.TrimSpace(accountID), nil
	}
	return c.defaultAccountID(), nil
}

func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.version, strings.TrimLeft(path, "/"))
}

// graphError is the upstream error envelope.
type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// tokenOK reports whether the token alone is usable. Account-scoped
// calls additionally validate the account id via resolveAccount.
func (c *Client) tokenOK() bool {
	t := c.token()
	return t != "" && !strings.Contains(t, "xxxxxxxx") && t != "EAA"
}

func (c *Client) do(ctx context.Context, client httpretry.HTTPDoer, method, path string, params url.Values, form url.Values) ([]byte, error) {
	if !c.tokenOK() {
		return nil, NotConfiguredError()
	}

	var req *http.Request
	var err error
	if method == http.MethodPost {
		form.Set("access_token", c.token())
		req, err = http.NewRequestWithContext(ctx, method, c.endpoint(path), strings.NewReader(form.Encode()))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		if params == nil {
			params = url.Values{}
		}
		params.Set("access_token", c.token())
		req, err = http.NewRequestWithContext(ctx, method, c.endpoint(path)+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ge graphError
		_ = json.Unmarshal(body, &ge)
		msg := ge.Error.Message
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		logger.Warn("upstream API error",
			"status", resp.StatusCode, "code", ge.Error.Code, "message", msg, "path", path)
		return nil, &APIError{
			Class:      classify(resp.StatusCode, ge.Error.Code, msg),
			StatusCode: resp.StatusCode,
			Code:       ge.Error.Code,
			Message:    msg,
		}
	}

	return body, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.do(ctx, c.httpClient, http.MethodGet, path, params, nil)
}

func (c *Client) post(ctx context.Context, path string, form url.Values) ([]byte, error) {
	return c.do(ctx, c.httpClient, http.MethodPost, path, nil, form)
}

// dateRange returns the since/until window for the last N days as the
// Graph API time_range JSON value.
func dateRange(days int) string {
	end := time.Now()
	start := end.AddDate(0, 0, -days)
	b, _ := json.Marshal(map[string]string{
		"since": start.Format("2006-01-02"),
		"until": end.Format("2006-01-02"),
	})
	return string(b)
}

// rawInsight mirrors a Graph API insight row; numeric fields arrive as
// strings on the wire.
type rawInsight struct {
	Impressions string `json:"impressions"`
	Clicks      string `json:"clicks"`
	Spend       string `json:"spend"`
	Reach       string `json:"reach"`
	CTR         string `json:"ctr"`
	CPC         string `json:"cpc"`
	CPM         string `json:"cpm"`
	Frequency   string `json:"frequency"`
	DateStart   string `json:"date_start"`
	DateStop    string `json:"date_stop"`

	PublisherPlatform string `json:"publisher_platform"`
	PlatformPosition  string `json:"platform_position"`
	Age               string `json:"age"`
	Gender            string `json:"gender"`
	DevicePlatform    string `json:"device_platform"`
	Region            string `json:"region"`
	Country           string `json:"country"`

	Actions      []actionEntry `json:"actions"`
	ActionValues []actionEntry `json:"action_values"`
}

type actionEntry struct {
	ActionType string `json:"action_type"`
	Value      string `json:"value"`
}

// conversionActionTypes are the action types counted as conversions.
var conversionActionTypes = map[string]bool{
	"purchase":                      true,
	"lead":                          true,
	"complete_registration":         true,
	"onsite_conversion.post_save":   true,
	"omni_view_content":             true,
}

// toInsights converts a raw row and attaches the derived fields:
// conversions, conversion value (purchase only) and ROAS.
func (r rawInsight) toInsights() Insights {
	ins := Insights{
		Impressions: parseInt(r.Impressions),
		Clicks:      parseInt(r.Clicks),
		Spend:       parseFloat(r.Spend),
		Reach:       parseInt(r.Reach),
		CTR:         parseFloat(r.CTR),
		CPC:         parseFloat(r.CPC),
		CPM:         parseFloat(r.CPM),
		Frequency:   parseFloat(r.Frequency),
	}
	for _, a := range r.Actions {
		if conversionActionTypes[a.ActionType] {
			ins.Conversions += parseInt(a.Value)
		}
	}
	for _, av := range r.ActionValues {
		if av.ActionType == "purchase" {
			ins.ConversionValue += parseFloat(av.Value)
		}
	}
	if ins.Spend > 0 {
		ins.ROAS = round2(ins.ConversionValue / ins.Spend)
	}
	return ins
}

func parseInt(s string) int64 {
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	// values like "12.0"
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

// ListCampaigns returns the account's campaigns with insight metrics
// attached. Between per-campaign insight calls the client waits to
// stay under the platform's burst limits.
func (c *Client) ListCampaigns(ctx context.Context, days int, accountID string) ([]Campaign, error) {
	aid, err := c.resolveAccount(accountID)
	if err != nil {
		return nil, err
	}

	preset := fmt.Sprintf("last_%dd", days)
	if days > 90 {
		preset = "last_90d"
	}
	params := url.Values{}
	params.Set("fields", "id,name,status,objective,daily_budget,lifetime_budget,start_time,stop_time")
	params.Set("date_preset", preset)

	body, err := c.get(ctx, aid+"/campaigns", params)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data []Campaign `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parsing campaigns: %w", err)
	}
	if len(envelope.Data) == 0 {
		logger.Info("campaign list empty", "days", days, "account", aid)
		return []Campaign{}, nil
	}

	for i := range envelope.Data {
		if i > 0 {
			if err := c.sleep(ctx, c.throttle); err != nil {
				return nil, err
			}
		}
		envelope.Data[i].Insights = c.GetInsights(ctx, envelope.Data[i].ID, days)
	}
	return envelope.Data, nil
}

// GetInsights fetches metrics for a campaign, ad set, or ad by id.
// Failures degrade to zero metrics so one broken entity does not sink
// a whole listing.
func (c *Client) GetInsights(ctx context.Context, entityID string, days int) Insights {
	params := url.Values{}
	params.Set("fields", "impressions,clicks,spend,reach,ctr,cpc,cpm,cpp,actions,action_values,frequency")
	params.Set("time_range", dateRange(days))

	body, err := c.get(ctx, entityID+"/insights", params)
	if err != nil {
		logger.Warn("insights fetch failed", "entity_id", entityID, "error", err.Error())
		return Insights{}
	}

	var envelope struct {
		Data []rawInsight `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Data) == 0 {
		return Insights{}
	}
	return envelope.Data[0].toInsights()
}

// ListAdSets returns ad sets for a campaign, or for the whole account
// when campaignID is empty.
func (c *Client) ListAdSets(ctx context.Context, campaignID string, days int, accountID string) ([]AdSet, error) {
	aid, err := c.resolveAccount(accountID)
	if err != nil {
		return nil, err
	}
	path := aid + "/adsets"
	if campaignID != "" {
		path = campaignID + "/adsets"
	}

	params := url.Values{}
	params.Set("fields", "id,name,status,targeting,daily_budget,lifetime_budget,campaign_id")

	body, err := c.get(ctx, path, params)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Data []AdSet `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parsing adsets: %w", err)
	}
	return envelope.Data, nil
}

// ListAdSetsWithInsights returns account ad sets each enriched with
// insight metrics, throttled between calls.
func (c *Client) ListAdSetsWithInsights(ctx context.Context, days int, accountID string) ([]AdSet, error) {
	adsets, err := c.ListAdSets(ctx, "", days, accountID)
	if err != nil {
		return nil, err
	}
	for i := range adsets {
		if i > 0 {
			if err := c.sleep(ctx, c.throttle); err != nil {
				return nil, err
			}
		}
		adsets[i].Insights = c.GetInsights(ctx, adsets[i].ID, days)
	}
	return adsets, nil
}

// ListAds returns ads for a campaign (or the whole account when
// campaignID is empty), each enriched with insight metrics.
func (c *Client) ListAds(ctx context.Context, campaignID string, days int, accountID string) ([]Ad, error) {
	aid, err := c.resolveAccount(accountID)
	if err != nil {
		return nil, err
	}
	path := aid + "/ads"
	if campaignID != "" {
		path = campaignID + "/ads"
	}

	params := url.Values{}
	params.Set("fields", "id,name,status,creative,adset_id,campaign_id")

	body, err := c.get(ctx, path, params)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Data []Ad `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parsing ads: %w", err)
	}

	for i := range envelope.Data {
		if i > 0 {
			if err := c.sleep(ctx, c.throttle); err != nil {
				return nil, err
			}
		}
		envelope.Data[i].Insights = c.GetInsights(ctx, envelope.Data[i].ID, days)
	}
	return envelope.Data, nil
}

// GetDailyBreakdown returns one row per day of account performance.
func (c *Client) GetDailyBreakdown(ctx context.Context, days int, accountID string) ([]DailyRow, error) {
	aid, err := c.resolveAccount(accountID)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("fields", "impressions,clicks,spend,reach,ctr,cpc,actions")
	params.Set("time_range", dateRange(days))
	params.Set("time_increment", "1")

	body, err := c.get(ctx, aid+"/insights", params)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Data []rawInsight `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parsing daily breakdown: %w", err)
	}

	rows := make([]DailyRow, 0, len(envelope.Data))
	for _, r := range envelope.Data {
		var conversions int64
		for _, a := range r.Actions {
			if conversionActionTypes[a.ActionType] {
				conversions += parseInt(a.Value)
			}
		}
		rows = append(rows, DailyRow{
			DateStart:   r.DateStart,
			DateStop:    r.DateStop,
			Impressions: parseInt(r.Impressions),
			Clicks:      parseInt(r.Clicks),
			Spend:       parseFloat(r.Spend),
			Reach:       parseInt(r.Reach),
			CTR:         parseFloat(r.CTR),
			CPC:         parseFloat(r.CPC),
			Conversions: conversions,
		})
	}
	return rows, nil
}

// GetAccountSummary returns the account-level aggregate for a window.
func (c *Client) GetAccountSummary(ctx context.Context, days int, accountID string) (AccountSummary, error) {
	aid, err := c.resolveAccount(accountID)
	if err != nil {
		return AccountSummary{}, err
	}

	params := url.Values{}
	params.Set("fields", "impressions,clicks,spend,reach,ctr,cpc,cpm,actions,action_values")
	params.Set("time_range", dateRange(days))

	body, err := c.get(ctx, aid+"/insights", params)
	if err != nil {
		return AccountSummary{}, err
	}
	var envelope struct {
		Data []rawInsight `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return AccountSummary{}, fmt.Errorf("parsing account summary: %w", err)
	}
	if len(envelope.Data) == 0 {
		return AccountSummary{}, nil
	}
	r := envelope.Data[0]
	return AccountSummary{
		Insights:  r.toInsights(),
		DateStart: r.DateStart,
		DateStop:  r.DateStop,
	}, nil
}

// ListInsightsWithBreakdown returns account insights sliced by a
// breakdown dimension. The platform rejects action fields combined
// with the platform_position breakdown, so those are omitted there.
func (c *Client) ListInsightsWithBreakdown(ctx context.Context, accountID string, days int, breakdown, timeIncrement string) ([]BreakdownRow, error) {
	aid, err := c.resolveAccount(accountID)
	if err != nil {
		return nil, err
	}

	fields := "impressions,clicks,spend,reach,ctr,cpc,cpm,actions,action_values,frequency"
	if breakdown == "platform_position" {
		fields = "impressions,clicks,spend,reach,ctr,cpc,cpm,frequency"
	}

	params := url.Values{}
	params.Set("fields", fields)
	params.Set("time_range", dateRange(days))
	params.Set("breakdowns", breakdown)
	if timeIncrement != "" {
		params.Set("time_increment", timeIncrement)
	}

	body, err := c.get(ctx, aid+"/insights", params)
	if err != nil {
		logger.Warn("breakdown insights failed", "breakdown", breakdown, "error", err.Error())
		return []BreakdownRow{}, nil
	}
	var envelope struct {
		Data []rawInsight `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parsing breakdown insights: %w", err)
	}

	rows := make([]BreakdownRow, 0, len(envelope.Data))
	for _, r := range envelope.Data {
		ins := r.toInsights()
		rows = append(rows, BreakdownRow{
			DateStart:         r.DateStart,
			DateStop:          r.DateStop,
			PublisherPlatform: r.PublisherPlatform,
			PlatformPosition:  r.PlatformPosition,
			Age:               r.Age,
			Gender:            r.Gender,
			DevicePlatform:    r.DevicePlatform,
			Region:            r.Region,
			Country:           r.Country,
			Impressions:       ins.Impressions,
			Clicks:            ins.Clicks,
			Spend:             ins.Spend,
			Reach:             ins.Reach,
			CTR:               ins.CTR,
			CPC:               ins.CPC,
			CPM:               ins.CPM,
			Frequency:         ins.Frequency,
			Conversions:       ins.Conversions,
			ConversionValue:   ins.ConversionValue,
			ROAS:              ins.ROAS,
		})
	}
	return rows, nil
}

// ListAdAccounts returns the ad accounts visible to the token.
func (c *Client) ListAdAccounts(ctx context.Context) ([]AdAccount, error) {
	if !c.tokenOK() {
		return nil, NotConfiguredError()
	}

	params := url.Values{}
	params.Set("fields", "id,account_id,name,account_status,currency")

	body, err := c.get(ctx, "me/adaccounts", params)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Data []AdAccount `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parsing ad accounts: %w", err)
	}
	return envelope.Data, nil
}
