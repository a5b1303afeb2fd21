package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var validCampaignStatuses = map[string]bool{
	"ACTIVE":   true,
	"PAUSED":   true,
	"ARCHIVED": true,
}

// SetCampaignStatus sets a campaign to ACTIVE, PAUSED, or ARCHIVED.
func (c *Client) SetCampaignStatus(ctx context.Context, campaignID, status string) error {
	status = strings.ToUpper(status)
	if !validCampaignStatuses[status] {
		return &APIError{
			Class:   ErrClassUpstream,
			Message: fmt.Sprintf("invalid status %q: must be ACTIVE, PAUSED, or ARCHIVED", status),
		}
	}
	if _, err := c.resolveAccount(""); err != nil {
		return err
	}
	form := url.Values{}
	form.Set("status", status)
	_, err := c.post(ctx, campaignID, form)
	return err
}

// UpdateAdSetBudget updates an ad set's daily and/or lifetime budget.
// Values are in minor-currency units; at least one must be set.
func (c *Client) UpdateAdSetBudget(ctx context.Context, adsetID string, upd AdSetBudgetUpdate) error {
	if upd.DailyBudget == nil && upd.LifetimeBudget == nil {
		return &APIError{
			Class:   ErrClassUpstream,
			Message: "daily_budget or lifetime_budget required",
		}
	}
	if _, err := c.resolveAccount(""); err != nil {
		return err
	}
	form := url.Values{}
	if upd.DailyBudget != nil {
		form.Set("daily_budget", strconv.FormatInt(*upd.DailyBudget, 10))
	}
	if upd.LifetimeBudget != nil {
		form.Set("lifetime_budget", strconv.FormatInt(*upd.LifetimeBudget, 10))
	}
	_, err := c.post(ctx, adsetID, form)
	return err
}

// CreateCampaign creates a campaign and returns its id. New campaigns
// default to PAUSED so nothing spends before an operator reviews it.
func (c *Client) CreateCampaign(ctx context.Context, p CreateCampaignParams) (string, error) {
	status := strings.ToUpper(p.Status)
	if status != "ACTIVE" {
		status = "PAUSED"
	}
	objective := p.Objective
	if objective == "" {
		objective = "OUTCOME_TRAFFIC"
	}

	form := url.Values{}
	form.Set("name", p.Name)
	form.Set("objective", objective)
	form.Set("status", status)
	form.Set("special_ad_categories", "[]")
	form.Set("is_adset_budget_sharing_enabled", "0")

	body, err := c.post(ctx, p.AccountID+"/campaigns", form)
	if err != nil {
		return "", err
	}
	return idFromBody(body)
}

// CreateAdSet creates an ad set and returns its id. Budgets are in
// minor-currency units; at least one of daily or lifetime is required.
func (c *Client) CreateAdSet(ctx context.Context, p CreateAdSetParams) (string, error) {
	if p.DailyBudget == nil && p.LifetimeBudget == nil {
		return "", &APIError{
			Class:   ErrClassUpstream,
			Message: "daily_budget or lifetime_budget required",
		}
	}

	startTime := p.StartTime
	if startTime == "" {
		startTime = time.Now().Format("2006-01-02T15:04:05-0700")
	}
	endTime := p.EndTime
	if endTime == "" && p.LifetimeBudget != nil {
		endTime = time.Now().AddDate(0, 0, 30).Format("2006-01-02T15:04:05-0700")
	}
	targeting := p.Targeting
	if targeting == nil {
		targeting = map[string]interface{}{
			"geo_locations":       map[string]interface{}{"countries": []string{"US"}},
			"publisher_platforms": []string{"facebook", "instagram", "audience_network"},
		}
	}
	billingEvent := p.BillingEvent
	if billingEvent == "" {
		billingEvent = "LINK_CLICKS"
	}
	optimizationGoal := p.OptimizationGoal
	if optimizationGoal == "" {
		optimizationGoal = "LINK_CLICKS"
	}
	status := strings.ToUpper(p.Status)
	if status != "ACTIVE" {
		status = "PAUSED"
	}

	targetingJSON, err := json.Marshal(targeting)
	if err != nil {
		return "", fmt.Errorf("encoding targeting: %w", err)
	}

	form := url.Values{}
	form.Set("name", p.Name)
	form.Set("campaign_id", p.CampaignID)
	form.Set("start_time", startTime)
	if endTime != "" {
		form.Set("end_time", endTime)
	}
	form.Set("billing_event", billingEvent)
	form.Set("optimization_goal", optimizationGoal)
	form.Set("targeting", string(targetingJSON))
	form.Set("status", status)
	if p.DailyBudget != nil {
		form.Set("daily_budget", strconv.FormatInt(*p.DailyBudget, 10))
	}
	if p.LifetimeBudget != nil {
		form.Set("lifetime_budget", strconv.FormatInt(*p.LifetimeBudget, 10))
	}

	body, err := c.post(ctx, p.AccountID+"/adsets", form)
	if err != nil {
		return "", err
	}
	return idFromBody(body)
}

// UploadImage uploads an image by URL and returns the image hash used
// in creative creation.
func (c *Client) UploadImage(ctx context.Context, accountID, imageURL string) (string, error) {
	if !c.IsConfigured(accountID) {
		return "", NotConfiguredError()
	}
	form := url.Values{}
	form.Set("url", imageURL)

	body, err := c.do(ctx, c.imageClient, http.MethodPost, accountID+"/adimages", nil, form)
	if err != nil {
		return "", err
	}

	var out struct {
		Images map[string]struct {
			Hash string `json:"hash"`
		} `json:"images"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("parsing image upload response: %w", err)
	}
	for _, img := range out.Images {
		if img.Hash != "" {
			return img.Hash, nil
		}
	}
	// some responses key the map by hash value directly
	for key := range out.Images {
		return key, nil
	}
	return "", &APIError{Class: ErrClassUpstream, Message: "no image hash in upload response"}
}

// UploadVideo uploads a video by URL and returns its id.
func (c *Client) UploadVideo(ctx context.Context, accountID, videoURL, title string) (string, error) {
	if !c.IsConfigured(accountID) {
		return "", NotConfiguredError()
	}
	form := url.Values{}
	form.Set("file_url", videoURL)
	if title != "" {
		form.Set("title", title)
	}

	body, err := c.do(ctx, c.videoClient, http.MethodPost, accountID+"/advideos", nil, form)
	if err != nil {
		return "", err
	}
	id, err := idFromBody(body)
	if err != nil || id == "" {
		return "", &APIError{Class: ErrClassUpstream, Message: "no video id in upload response"}
	}
	return id, nil
}

// CreateCreative creates an ad creative from an uploaded image or
// video plus link copy, returning the creative id.
func (c *Client) CreateCreative(ctx context.Context, p CreateCreativeParams) (string, error) {
	if p.ImageHash == "" && p.VideoID == "" {
		return "", &APIError{
			Class:   ErrClassUpstream,
			Message: "image_hash or video_id required",
		}
	}

	link := p.Link
	if link == "" {
		link = "https://www.facebook.com"
	}
	headline := p.Headline
	if headline == "" {
		headline = "Ad"
	}
	cta := p.CallToAction
	if cta == "" {
		cta = "LEARN_MORE"
	}

	linkData := map[string]interface{}{
		"link":           link,
		"message":        p.Message,
		"name":           headline,
		"call_to_action": map[string]string{"type": cta},
	}
	if p.ImageHash != "" {
		linkData["image_hash"] = p.ImageHash
	}
	if p.VideoID != "" {
		linkData["video_id"] = p.VideoID
	}

	spec, err := json.Marshal(map[string]interface{}{"link_data": linkData})
	if err != nil {
		return "", fmt.Errorf("encoding creative spec: %w", err)
	}

	form := url.Values{}
	form.Set("name", p.Name)
	form.Set("object_story_spec", string(spec))

	body, err := c.post(ctx, p.AccountID+"/adcreatives", form)
	if err != nil {
		return "", err
	}
	return idFromBody(body)
}

// CreateAd creates an ad binding a creative to an ad set.
func (c *Client) CreateAd(ctx context.Context, p CreateAdParams) (string, error) {
	creative, err := json.Marshal(map[string]string{"creative_id": p.CreativeID})
	if err != nil {
		return "", fmt.Errorf("encoding creative ref: %w", err)
	}
	status := strings.ToUpper(p.Status)
	if status != "ACTIVE" {
		status = "PAUSED"
	}

	form := url.Values{}
	form.Set("adset_id", p.AdSetID)
	form.Set("creative", string(creative))
	form.Set("name", p.Name)
	form.Set("status", status)

	body, err := c.post(ctx, p.AccountID+"/ads", form)
	if err != nil {
		return "", err
	}
	return idFromBody(body)
}

func idFromBody(body []byte) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	return out.ID, nil
}
