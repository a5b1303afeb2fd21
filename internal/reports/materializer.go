package reports

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/ignite/adops-console/internal/meta"
)

// Row is one normalized report row: column name to rendered cell.
type Row map[string]string

// Fetcher is the upstream read surface the materializer needs.
// *meta.Client satisfies it; tests substitute stubs.
type Fetcher interface {
	ListCampaigns(ctx context.Context, days int, accountID string) ([]meta.Campaign, error)
	ListAdSetsWithInsights(ctx context.Context, days int, accountID string) ([]meta.AdSet, error)
	ListAds(ctx context.Context, campaignID string, days int, accountID string) ([]meta.Ad, error)
	GetDailyBreakdown(ctx context.Context, days int, accountID string) ([]meta.DailyRow, error)
	ListInsightsWithBreakdown(ctx context.Context, accountID string, days int, breakdown, timeIncrement string) ([]meta.BreakdownRow, error)
}

// Materializer turns a template into normalized rows by fetching from
// the upstream and reshaping into the template's column layout.
type Materializer struct {
	fetcher Fetcher
}

// NewMaterializer creates a materializer over the given fetcher.
func NewMaterializer(f Fetcher) *Materializer {
	return &Materializer{fetcher: f}
}

// Rows fetches and reshapes data for a template. Rows carry a superset
// of the template's columns; Project trims to the canonical set.
func (m *Materializer) Rows(ctx context.Context, templateID string, days int, accountID string) ([]Row, error) {
	tpl, ok := TemplateByID(templateID)
	if !ok {
		return nil, fmt.Errorf("unknown template %q", templateID)
	}

	switch tpl.DataSource {
	case SourceCampaigns:
		campaigns, err := m.fetcher.ListCampaigns(ctx, days, accountID)
		if err != nil {
			return nil, err
		}
		rows := make([]Row, 0, len(campaigns))
		for _, c := range campaigns {
			rows = append(rows, campaignRow(c))
		}
		return rows, nil

	case SourceAdSets:
		adsets, err := m.fetcher.ListAdSetsWithInsights(ctx, days, accountID)
		if err != nil {
			return nil, err
		}
		rows := make([]Row, 0, len(adsets))
		for _, a := range adsets {
			rows = append(rows, adsetRow(a))
		}
		return rows, nil

	case SourceAds:
		ads, err := m.fetcher.ListAds(ctx, "", days, accountID)
		if err != nil {
			return nil, err
		}
		rows := make([]Row, 0, len(ads))
		for _, a := range ads {
			rows = append(rows, adRow(a))
		}
		return rows, nil

	case SourceDaily:
		daily, err := m.fetcher.GetDailyBreakdown(ctx, days, accountID)
		if err != nil {
			return nil, err
		}
		rows := make([]Row, 0, len(daily))
		for _, d := range daily {
			rows = append(rows, dailyRow(d))
		}
		return rows, nil

	case SourceBreakdown:
		data, err := m.fetcher.ListInsightsWithBreakdown(ctx, accountID, days, tpl.BreakdownKey, "")
		if err != nil {
			return nil, err
		}
		rows := make([]Row, 0, len(data))
		for _, b := range data {
			rows = append(rows, breakdownRow(b, tpl.BreakdownKey))
		}
		return rows, nil
	}

	return nil, fmt.Errorf("template %q has unknown data source %q", templateID, tpl.DataSource)
}

// Project trims rows to the given column order; missing cells become
// empty strings.
func Project(rows []Row, columns []string) []Row {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		projected := make(Row, len(columns))
		for _, col := range columns {
			projected[col] = row[col]
		}
		out = append(out, projected)
	}
	return out
}

// WriteCSV serializes rows in column order with a header, UTF-8.
func WriteCSV(w io.Writer, columns []string, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = row[col]
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func campaignRow(c meta.Campaign) Row {
	return Row{
		"Campaign Name":   c.Name,
		"Spend":           money(c.Spend),
		"Results":         count(c.Conversions),
		"Cost Per Result": costPerResult(c.Spend, c.Conversions),
		"Status":          c.Status,
		"Impressions":     count(c.Impressions),
		"Clicks":          count(c.Clicks),
		"CTR":             percent(c.CTR),
		"CPM":             money(c.CPM),
		"CPC":             money(c.CPC),
		"ROAS":            ratio(c.ROAS),
		"Reach":           count(c.Reach),
	}
}

func adsetRow(a meta.AdSet) Row {
	return Row{
		"Ad Set Name":     a.Name,
		"Spend":           money(a.Spend),
		"Results":         count(a.Conversions),
		"Cost Per Result": costPerResult(a.Spend, a.Conversions),
		"Delivery Status": a.Status,
		"Campaign ID":     a.CampaignID,
	}
}

func adRow(a meta.Ad) Row {
	return Row{
		"Ad Name":     a.Name,
		"CTR":         percent(a.CTR),
		"Results":     count(a.Conversions),
		"CPM":         money(a.CPM),
		"Spend":       money(a.Spend),
		"Impressions": count(a.Impressions),
		"Clicks":      count(a.Clicks),
	}
}

func dailyRow(d meta.DailyRow) Row {
	return Row{
		"Date":            d.DateStart,
		"Spend":           money(d.Spend),
		"Results":         count(d.Conversions),
		"Cost Per Result": costPerResult(d.Spend, d.Conversions),
		"Impressions":     count(d.Impressions),
		"Clicks":          count(d.Clicks),
		"CTR":             percent(d.CTR),
	}
}

func breakdownRow(b meta.BreakdownRow, key string) Row {
	label := breakdownLabels[key]
	if label == "" {
		label = key
	}
	row := Row{
		label:             breakdownValue(b, key),
		"Spend":           money(b.Spend),
		"Results":         count(b.Conversions),
		"Cost Per Result": costPerResult(b.Spend, b.Conversions),
		"Impressions":     count(b.Impressions),
		"Clicks":          count(b.Clicks),
		"CTR":             percent(b.CTR),
		"CPC":             money(b.CPC),
		"CPM":             money(b.CPM),
		"Reach":           count(b.Reach),
	}
	return row
}

func breakdownValue(b meta.BreakdownRow, key string) string {
	switch key {
	case "publisher_platform":
		return b.PublisherPlatform
	case "platform_position":
		return b.PlatformPosition
	case "age":
		return b.Age
	case "gender":
		return b.Gender
	case "device_platform":
		return b.DevicePlatform
	case "region":
		return b.Region
	case "country":
		return b.Country
	}
	return ""
}

func money(v float64) string {
	return strconv.FormatFloat(round2(v), 'f', 2, 64)
}

func percent(v float64) string {
	return strconv.FormatFloat(round2(v), 'f', 2, 64)
}

func ratio(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func count(v int64) string {
	return strconv.FormatInt(v, 10)
}

func costPerResult(spend float64, conversions int64) string {
	if conversions == 0 {
		return "0"
	}
	return money(spend / float64(conversions))
}

func round2(f float64) float64 {
	if f < 0 {
		return -float64(int64(-f*100+0.5)) / 100
	}
	return float64(int64(f*100+0.5)) / 100
}
