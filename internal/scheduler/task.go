package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/adops-console/internal/ai"
	"github.com/ignite/adops-console/internal/jobs"
	"github.com/ignite/adops-console/internal/meta"
	"github.com/ignite/adops-console/internal/notify"
	"github.com/ignite/adops-console/internal/pkg/logger"
)

// CampaignSource fetches campaign rows with insight metrics.
type CampaignSource interface {
	ListCampaigns(ctx context.Context, days int, accountID string) ([]meta.Campaign, error)
}

// Analyzer produces a narrative analysis for a report table.
type Analyzer interface {
	Analyze(ctx context.Context, req ai.Request) (string, error)
}

// Notifier delivers a message and reports which channels succeeded.
type Notifier interface {
	Dispatch(ctx context.Context, msg notify.Message, dest notify.Destinations) []string
}

// reportSummary is the rollup stored on each execution log.
type reportSummary struct {
	CampaignCount    int     `json:"campaign_count"`
	TotalSpend       float64 `json:"total_spend"`
	TotalImpressions int64   `json:"total_impressions"`
	TotalClicks      int64   `json:"total_clicks"`
	AvgCTR           float64 `json:"avg_ctr"`
}

var reportTitles = map[string]string{
	KindDailySummary:  "Daily Summary Report",
	KindWeeklySummary: "Weekly Performance Report",
	KindCampaignList:  "Campaign List",
	KindPerformance:   "Performance Analysis",
}

const analysisPlaceholder = "Analysis could not be generated for this report."

// ReportTask runs one scheduled report delivery as a worker-pool job.
// The job's subject id is the scheduled report id.
type ReportTask struct {
	store     *Store
	campaigns CampaignSource
	analyzer  Analyzer
	fanout    Notifier
	now       func() time.Time
}

// NewReportTask wires the scheduled-report job handler.
func NewReportTask(store *Store, campaigns CampaignSource, analyzer Analyzer, fanout Notifier) *ReportTask {
	return &ReportTask{
		store:     store,
		campaigns: campaigns,
		analyzer:  analyzer,
		fanout:    fanout,
		now:       time.Now,
	}
}

// Run executes one delivery. next_run_at is advanced before any slow
// work so a long run is not enqueued a second time by the next tick.
func (t *ReportTask) Run(ctx context.Context, job jobs.Job, progress func(int)) (jobs.Result, error) {
	report, err := t.store.Get(ctx, job.SubjectID)
	if err != nil {
		return jobs.Result{}, err
	}
	if report == nil {
		return jobs.Result{}, fmt.Errorf("scheduled report %s not found", job.SubjectID)
	}
	if !report.IsActive {
		return jobs.Result{ResultText: "report is deactivated, skipped"}, nil
	}

	now := t.now()
	next, err := NextRun(report, now)
	if err != nil {
		return jobs.Result{}, err
	}
	if err := t.store.SetNextRun(ctx, report.ID, next); err != nil {
		return jobs.Result{}, err
	}
	progress(10)

	log := &ReportLog{ScheduledReportID: report.ID}
	if err := t.store.CreateLog(ctx, log); err != nil {
		return jobs.Result{}, err
	}

	camps, err := t.campaigns.ListCampaigns(ctx, report.WindowDays, report.AdAccountID)
	if err != nil {
		log.Status = "failed"
		log.ErrorMessage = err.Error()
		t.store.FinishLog(ctx, log)
		return jobs.Result{}, err
	}
	progress(40)

	summary := summarize(camps)
	summaryJSON, _ := json.Marshal(summary)

	analysis := ""
	if wantsAnalysis(report.ReportKind) && len(camps) > 0 {
		analysis, err = t.analyzer.Analyze(ctx, buildRequest(report, camps))
		if err != nil {
			logger.Warn("report analysis failed", "report_id", report.ID, "error", err.Error())
			analysis = analysisPlaceholder
		}
	}
	progress(70)

	delivered := t.fanout.Dispatch(ctx, notify.Message{
		Title: fmt.Sprintf("%s: %s", reportTitles[report.ReportKind], report.Name),
		Body:  buildBody(report, summary, analysis, camps),
	}, notify.Destinations{
		Channels: report.Channels,
		EmailTo:  report.EmailTo,
		IMTo:     report.IMTo,
	})

	log.Status = "success"
	log.SummaryData = string(summaryJSON)
	log.AnalysisText = analysis
	log.ChannelsDelivered = delivered
	if err := t.store.FinishLog(ctx, log); err != nil {
		return jobs.Result{}, err
	}
	if err := t.store.MarkRun(ctx, report.ID, now); err != nil {
		return jobs.Result{}, err
	}
	progress(100)

	return jobs.Result{ResultText: string(summaryJSON)}, nil
}

func wantsAnalysis(kind string) bool {
	return kind == KindWeeklySummary || kind == KindPerformance
}

func summarize(camps []meta.Campaign) reportSummary {
	s := reportSummary{CampaignCount: len(camps)}
	for _, c := range camps {
		s.TotalSpend += c.Spend
		s.TotalImpressions += c.Impressions
		s.TotalClicks += c.Clicks
		s.AvgCTR += c.CTR
	}
	if len(camps) > 0 {
		s.AvgCTR /= float64(len(camps))
	}
	return s
}

func buildRequest(report *ScheduledReport, camps []meta.Campaign) ai.Request {
	req := ai.Request{
		ReportName:    report.Name,
		TemplateTitle: reportTitles[report.ReportKind],
		Columns:       []string{"Campaign", "Status", "Spend", "Impressions", "Clicks", "CTR", "ROAS"},
	}
	for _, c := range camps {
		req.Rows = append(req.Rows, map[string]string{
			"Campaign":    c.Name,
			"Status":      c.Status,
			"Spend":       fmt.Sprintf("%.2f", c.Spend),
			"Impressions": fmt.Sprintf("%d", c.Impressions),
			"Clicks":      fmt.Sprintf("%d", c.Clicks),
			"CTR":         fmt.Sprintf("%.2f%%", c.CTR),
			"ROAS":        fmt.Sprintf("%.2f", c.ROAS),
		})
	}
	return req
}

func buildBody(report *ScheduledReport, s reportSummary, analysis string, camps []meta.Campaign) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (last %d days)\n\n", reportTitles[report.ReportKind], report.WindowDays)
	fmt.Fprintf(&b, "Campaigns: %d\n", s.CampaignCount)
	fmt.Fprintf(&b, "Total spend: %.2f\n", s.TotalSpend)
	fmt.Fprintf(&b, "Impressions: %d\n", s.TotalImpressions)
	fmt.Fprintf(&b, "Clicks: %d\n", s.TotalClicks)
	fmt.Fprintf(&b, "Average CTR: %.2f%%\n", s.AvgCTR)

	if report.ReportKind == KindCampaignList && len(camps) > 0 {
		b.WriteString("\nCampaigns:\n")
		for _, c := range camps {
			fmt.Fprintf(&b, "- %s (%s) spend %.2f\n", c.Name, c.Status, c.Spend)
		}
	}
	if analysis != "" {
		b.WriteString("\n")
		b.WriteString(analysis)
		b.WriteString("\n")
	}
	return b.String()
}
