// Package reports holds the report template catalog, the materializer
// that turns templates into normalized rows, and the saved-recipe
// stores.
package reports

// DataSource selects which upstream listing feeds a template.
type DataSource string

const (
	SourceCampaigns DataSource = "campaigns"
	SourceAdSets    DataSource = "adsets"
	SourceAds       DataSource = "ads"
	SourceDaily     DataSource = "daily"
	SourceBreakdown DataSource = "breakdown"
)

// Template is a named report shape: a data source, an optional
// breakdown key, and a canonical column ordering for CSV output.
type Template struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	DataSource   DataSource `json:"data_source"`
	BreakdownKey string     `json:"breakdown_key,omitempty"`
	Columns      []string   `json:"columns"`
}

// Catalog is the fixed template set. Order matters for UI display.
var Catalog = []Template{
	{
		ID:          "template_1",
		Title:       "Which campaign produces results at the lowest cost?",
		Description: "Cost per result across campaigns",
		DataSource:  SourceCampaigns,
		Columns:     []string{"Campaign Name", "Spend", "Results", "Cost Per Result", "Status"},
	},
	{
		ID:           "template_2",
		Title:        "Which platform converts better?",
		Description:  "Facebook vs Instagram vs Audience Network",
		DataSource:   SourceBreakdown,
		BreakdownKey: "publisher_platform",
		Columns:      []string{"Platform", "Results", "Spend", "CTR", "Impressions", "Clicks"},
	},
	{
		ID:           "template_3",
		Title:        "Which age group engages most with the ads?",
		Description:  "Engagement by age bracket",
		DataSource:   SourceBreakdown,
		BreakdownKey: "age",
		Columns:      []string{"Age", "Clicks", "CTR", "Cost Per Result", "Spend", "Results"},
	},
	{
		ID:           "template_4",
		Title:        "Is there a performance gap by gender?",
		Description:  "Reach and results split by gender",
		DataSource:   SourceBreakdown,
		BreakdownKey: "gender",
		Columns:      []string{"Gender", "Reach", "Results", "Spend", "Impressions", "Clicks"},
	},
	{
		ID:          "template_5",
		Title:       "Which ad creative performs best?",
		Description: "Creative-level CTR and results",
		DataSource:  SourceAds,
		Columns:     []string{"Ad Name", "CTR", "Results", "CPM", "Spend", "Impressions", "Clicks"},
	},
	{
		ID:           "template_6",
		Title:        "Which placement is most efficient?",
		Description:  "Feed, Reels, Stories and other placements",
		DataSource:   SourceBreakdown,
		BreakdownKey: "platform_position",
		Columns:      []string{"Placement", "Impressions", "Clicks", "CPC", "Cost Per Result", "Spend"},
	},
	{
		ID:           "template_7",
		Title:        "Which device converts best?",
		Description:  "Mobile vs desktop performance",
		DataSource:   SourceBreakdown,
		BreakdownKey: "device_platform",
		Columns:      []string{"Device", "Results", "Clicks", "Spend", "Impressions", "CTR"},
	},
	{
		ID:          "template_8",
		Title:       "How does performance change over time?",
		Description: "Daily trend over the window",
		DataSource:  SourceDaily,
		Columns:     []string{"Date", "Spend", "Results", "Cost Per Result", "Impressions", "Clicks", "CTR"},
	},
	{
		ID:           "template_9",
		Title:        "Which region has the highest quality audience?",
		Description:  "Regional reach and results",
		DataSource:   SourceBreakdown,
		BreakdownKey: "region",
		Columns:      []string{"Region", "Reach", "Results", "Spend", "Impressions", "Clicks", "CTR"},
	},
	{
		ID:          "template_10",
		Title:       "How efficient is the budget per ad set?",
		Description: "Ad set spend vs results",
		DataSource:  SourceAdSets,
		Columns:     []string{"Ad Set Name", "Spend", "Results", "Cost Per Result", "Delivery Status", "Campaign ID"},
	},
	{
		ID:          "template_11",
		Title:       "Quality and relevance metrics",
		Description: "CTR, CPM and ROAS per campaign",
		DataSource:  SourceCampaigns,
		Columns:     []string{"Campaign Name", "Spend", "CTR", "CPM", "ROAS", "Impressions", "Clicks", "Status"},
	},
	{
		ID:          "template_12",
		Title:       "Video performance metrics",
		Description: "Per-ad delivery for video creatives",
		DataSource:  SourceAds,
		Columns:     []string{"Ad Name", "Spend", "Impressions", "Clicks", "CTR", "CPM", "Results"},
	},
	{
		ID:          "template_13",
		Title:       "Messaging metrics",
		Description: "Campaigns optimized for conversations",
		DataSource:  SourceCampaigns,
		Columns:     []string{"Campaign Name", "Spend", "Results", "Impressions", "Clicks", "CTR"},
	},
	{
		ID:          "template_14",
		Title:       "Engagement depth metrics",
		Description: "Reach and interaction per campaign",
		DataSource:  SourceCampaigns,
		Columns:     []string{"Campaign Name", "Spend", "Impressions", "Clicks", "CTR", "Reach", "Results"},
	},
	{
		ID:          "template_15",
		Title:       "Cost efficiency metrics",
		Description: "CPM, CPC and ROAS side by side",
		DataSource:  SourceCampaigns,
		Columns:     []string{"Campaign Name", "CPM", "CPC", "Spend", "CTR", "Impressions", "Clicks", "ROAS"},
	},
}

// TemplateByID looks up a template; ok is false for unknown ids.
func TemplateByID(id string) (Template, bool) {
	for _, t := range Catalog {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

// breakdownLabels map breakdown keys to their first-column header.
var breakdownLabels = map[string]string{
	"publisher_platform": "Platform",
	"age":                "Age",
	"gender":             "Gender",
	"platform_position":  "Placement",
	"device_platform":    "Device",
	"region":             "Region",
}
