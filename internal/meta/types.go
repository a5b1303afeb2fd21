package meta

// Campaign is a campaign row enriched with insight metrics.
type Campaign struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Status         string  `json:"status"`
	Objective      string  `json:"objective"`
	DailyBudget    string  `json:"daily_budget,omitempty"`
	LifetimeBudget string  `json:"lifetime_budget,omitempty"`
	StartTime      string  `json:"start_time,omitempty"`
	StopTime       string  `json:"stop_time,omitempty"`
	Insights
}

// AdSet is an ad set row, optionally enriched with insight metrics.
type AdSet struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Status         string `json:"status"`
	CampaignID     string `json:"campaign_id"`
	DailyBudget    string `json:"daily_budget,omitempty"`
	LifetimeBudget string `json:"lifetime_budget,omitempty"`
	Insights
}

// Ad is an individual ad row enriched with insight metrics.
type Ad struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	AdSetID    string `json:"adset_id"`
	CampaignID string `json:"campaign_id"`
	Insights
}

// Insights holds performance metrics for a campaign, ad set, or ad,
// including the derived conversion fields.
type Insights struct {
	Impressions     int64   `json:"impressions"`
	Clicks          int64   `json:"clicks"`
	Spend           float64 `json:"spend"`
	Reach           int64   `json:"reach"`
	CTR             float64 `json:"ctr"`
	CPC             float64 `json:"cpc"`
	CPM             float64 `json:"cpm"`
	Frequency       float64 `json:"frequency"`
	Conversions     int64   `json:"conversions"`
	ConversionValue float64 `json:"conversion_value"`
	ROAS            float64 `json:"roas"`
}

// DailyRow is one day of account-level performance.
type DailyRow struct {
	DateStart   string  `json:"date_start"`
	DateStop    string  `json:"date_stop"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Spend       float64 `json:"spend"`
	Reach       int64   `json:"reach"`
	CTR         float64 `json:"ctr"`
	CPC         float64 `json:"cpc"`
	Conversions int64   `json:"conversions"`
}

// BreakdownRow is one account-insights row sliced by a breakdown
// dimension (publisher_platform, age, gender, platform_position, ...).
type BreakdownRow struct {
	DateStart         string  `json:"date_start,omitempty"`
	DateStop          string  `json:"date_stop,omitempty"`
	PublisherPlatform string  `json:"publisher_platform,omitempty"`
	PlatformPosition  string  `json:"platform_position,omitempty"`
	Age               string  `json:"age,omitempty"`
	Gender            string  `json:"gender,omitempty"`
	DevicePlatform    string  `json:"device_platform,omitempty"`
	Region            string  `json:"region,omitempty"`
	Country           string  `json:"country,omitempty"`
	Impressions       int64   `json:"impressions"`
	Clicks            int64   `json:"clicks"`
	Spend             float64 `json:"spend"`
	Reach             int64   `json:"reach"`
	CTR               float64 `json:"ctr"`
	CPC               float64 `json:"cpc"`
	CPM               float64 `json:"cpm"`
	Frequency         float64 `json:"frequency"`
	Conversions       int64   `json:"conversions"`
	ConversionValue   float64 `json:"conversion_value"`
	ROAS              float64 `json:"roas"`
}

// AccountSummary is the account-level aggregate for a window.
type AccountSummary struct {
	Insights
	DateStart string `json:"date_start,omitempty"`
	DateStop  string `json:"date_stop,omitempty"`
}

// AdAccount is an ad account visible to the configured token.
type AdAccount struct {
	ID            string `json:"id"`
	AccountID     string `json:"account_id"`
	Name          string `json:"name"`
	AccountStatus int    `json:"account_status"`
	Currency      string `json:"currency"`
}

// LibraryAd is a normalized public ads-library search result.
type LibraryAd struct {
	ID                string   `json:"id"`
	PageID            string   `json:"page_id"`
	PageName          string   `json:"page_name"`
	CreativeBodies    []string `json:"creative_bodies,omitempty"`
	LinkTitles        []string `json:"link_titles,omitempty"`
	LinkCaptions      []string `json:"link_captions,omitempty"`
	LinkDescriptions  []string `json:"link_descriptions,omitempty"`
	SnapshotURL       string   `json:"snapshot_url,omitempty"`
	DeliveryStartTime string   `json:"delivery_start_time,omitempty"`
	DeliveryStopTime  string   `json:"delivery_stop_time,omitempty"`
}

// LibrarySearchResult is one page of ads-library results.
type LibrarySearchResult struct {
	Ads        []LibraryAd `json:"ads"`
	Count      int         `json:"count"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// LibrarySearchParams filters an ads-library search.
type LibrarySearchParams struct {
	SearchTerms  string
	Countries    []string
	AdType       string
	ActiveStatus string
	PageIDs      []string
	DateMin      string
	DateMax      string
	Limit        int
	After        string
}

// AdSetBudgetUpdate carries a budget write. Values are in
// minor-currency units. At least one field must be set.
type AdSetBudgetUpdate struct {
	DailyBudget    *int64
	LifetimeBudget *int64
}

// CreateCampaignParams holds the fields for campaign creation.
type CreateCampaignParams struct {
	AccountID string
	Name      string
	Objective string
	Status    string
}

// CreateAdSetParams holds the fields for ad set creation.
// Budgets are in minor-currency units.
type CreateAdSetParams struct {
	AccountID        string
	CampaignID       string
	Name             string
	DailyBudget      *int64
	LifetimeBudget   *int64
	StartTime        string
	EndTime          string
	Targeting        map[string]interface{}
	BillingEvent     string
	OptimizationGoal string
	Status           string
}

// CreateCreativeParams holds the fields for ad creative creation.
// Exactly one of ImageHash or VideoID is required.
type CreateCreativeParams struct {
	AccountID    string
	Name         string
	ImageHash    string
	VideoID      string
	Link         string
	Message      string
	Headline     string
	CallToAction string
}

// CreateAdParams holds the fields for ad creation.
type CreateAdParams struct {
	AccountID  string
	AdSetID    string
	CreativeID string
	Name       string
	Status     string
}
