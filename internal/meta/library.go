package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// SearchLibrary queries the public ads-library archive. It needs a
// valid token but no ad account.
func (c *Client) SearchLibrary(ctx context.Context, p LibrarySearchParams) (LibrarySearchResult, error) {
	if !c.tokenOK() {
		return LibrarySearchResult{}, NotConfiguredError()
	}

	countries := p.Countries
	if len(countries) == 0 {
		countries = []string{"US"}
	}
	countriesJSON, _ := json.Marshal(countries)

	adType := p.AdType
	if adType == "" {
		adType = "ALL"
	}
	activeStatus := p.ActiveStatus
	if activeStatus == "" {
		activeStatus = "ALL"
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 25
	}
	if limit > 100 {
		limit = 100
	}

	params := url.Values{}
	params.Set("ad_reached_countries", string(countriesJSON))
	params.Set("ad_type", adType)
	params.Set("ad_active_status", activeStatus)
	params.Set("fields", strings.Join([]string{
		"id", "ad_creative_bodies", "ad_creative_link_captions",
		"ad_creative_link_titles", "ad_creative_link_descriptions",
		"page_id", "page_name", "ad_snapshot_url",
		"ad_delivery_start_time", "ad_delivery_stop_time",
	}, ","))
	params.Set("limit", strconv.Itoa(limit))

	if p.SearchTerms != "" {
		params.Set("search_terms", p.SearchTerms)
	}
	if len(p.PageIDs) > 0 {
		ids := make([]string, 0, len(p.PageIDs))
		for _, id := range p.PageIDs {
			if s := strings.TrimSpace(id); s != "" {
				ids = append(ids, s)
			}
		}
		params.Set("search_page_ids", strings.Join(ids, ","))
	}
	if p.DateMin != "" {
		params.Set("ad_delivery_date_min", p.DateMin)
	}
	if p.DateMax != "" {
		params.Set("ad_delivery_date_max", p.DateMax)
	}
	if p.After != "" {
		params.Set("after", p.After)
	}

	body, err := c.get(ctx, "ads_archive", params)
	if err != nil {
		return LibrarySearchResult{}, err
	}

	var envelope struct {
		Data []struct {
			ID                string   `json:"id"`
			PageID            string   `json:"page_id"`
			PageName          string   `json:"page_name"`
			CreativeBodies    []string `json:"ad_creative_bodies"`
			LinkTitles        []string `json:"ad_creative_link_titles"`
			LinkCaptions      []string `json:"ad_creative_link_captions"`
			LinkDescriptions  []string `json:"ad_creative_link_descriptions"`
			SnapshotURL       string   `json:"ad_snapshot_url"`
			DeliveryStartTime string   `json:"ad_delivery_start_time"`
			DeliveryStopTime  string   `json:"ad_delivery_stop_time"`
		} `json:"data"`
		Paging struct {
			Cursors struct {
				After string `json:"after"`
			} `json:"cursors"`
		} `json:"paging"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return LibrarySearchResult{}, fmt.Errorf("parsing library results: %w", err)
	}

	ads := make([]LibraryAd, 0, len(envelope.Data))
	for _, a := range envelope.Data {
		ads = append(ads, LibraryAd{
			ID:                a.ID,
			PageID:            a.PageID,
			PageName:          a.PageName,
			CreativeBodies:    a.CreativeBodies,
			LinkTitles:        a.LinkTitles,
			LinkCaptions:      a.LinkCaptions,
			LinkDescriptions:  a.LinkDescriptions,
			SnapshotURL:       a.SnapshotURL,
			DeliveryStartTime: a.DeliveryStartTime,
			DeliveryStopTime:  a.DeliveryStopTime,
		})
	}

	return LibrarySearchResult{
		Ads:        ads,
		Count:      len(ads),
		NextCursor: envelope.Paging.Cursors.After,
	}, nil
}
