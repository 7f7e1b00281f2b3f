package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fixora/auditreport/internal/domain"
	"github.com/fixora/auditreport/internal/infra/logger"
	"github.com/fixora/auditreport/internal/ports"
)

// UnavailableDescription replaces the summary of an event whose snapshots are unusable
const UnavailableDescription = "Data unavailable"

const rowTimeLayout = "15:04"

// Issue kinds reported next to a report
const (
	IssueInvalidRecord    = "invalid_record"
	IssueInvalidTimestamp = "invalid_timestamp"
	IssueMalformedEvent   = "malformed_event"
)

// ReportRequest represents the request to build a report page
type ReportRequest struct {
	Query domain.LogQuery
	// Location is the viewer's time zone; nil uses the configured default
	Location *time.Location
}

// ReportRow is one rendered event line
type ReportRow struct {
	Event          domain.ChangeEvent    `json:"event"`
	Actor          string                `json:"actor"`
	Description    string                `json:"description"`
	Classification domain.Classification `json:"classification"`
	Time           string                `json:"time"`
	Relative       string                `json:"relative"`
	Unavailable    bool                  `json:"unavailable"`
}

// ReportDay is a day bucket with its rendered rows
type ReportDay struct {
	Date   string            `json:"date"`
	Label  string            `json:"label"`
	Counts domain.KindCounts `json:"counts"`
	Rows   []ReportRow       `json:"rows"`
}

// ReportIssue is a problem found while building the report. Issues never fail the report.
type ReportIssue struct {
	Kind    string `json:"kind"`
	EventID string `json:"event_id,omitempty"`
	Message string `json:"message"`
}

// Report represents the response for one report page
type Report struct {
	Schema   domain.LogSchema  `json:"schema"`
	Page     int               `json:"page"`
	PerPage  int               `json:"per_page"`
	// Total is the backend's count of matching records across all pages
	Total    int               `json:"total"`
	Timezone string            `json:"timezone"`
	Counts   domain.KindCounts `json:"counts"`
	Days     []ReportDay       `json:"days"`
	Issues   []ReportIssue     `json:"issues"`
}

// ReportSummary represents the response for the dashboard tiles. Counts cover
// the fetched page, rejected records included under Other. MatchingTotal is the
// backend's count of matching records across all pages.
type ReportSummary struct {
	Schema        domain.LogSchema  `json:"schema"`
	MatchingTotal int               `json:"matching_total"`
	Counts        domain.KindCounts `json:"counts"`
	Issues        []ReportIssue     `json:"issues"`
}

// EventDetail represents the comparison view of one event
type EventDetail struct {
	Event          domain.ChangeEvent       `json:"event"`
	Actor          string                   `json:"actor"`
	Description    string                   `json:"description"`
	Classification domain.Classification    `json:"classification"`
	Changes        []domain.FormattedChange `json:"changes"`
}

// ReportConfig holds the report settings
type ReportConfig struct {
	DiffOptions     domain.DiffOptions
	DefaultLocation *time.Location
	// Clock is used for Today/Yesterday labels and relative times; nil means time.Now
	Clock func() time.Time
}

// ReportUseCase turns backend change logs into dashboard reports
type ReportUseCase struct {
	source     ports.EventSource
	parser     ports.EventParser
	differ     *domain.Differ
	summarizer *domain.Summarizer
	defaultLoc *time.Location
	now        func() time.Time
	logger     logger.Logger
}

// NewReportUseCase creates a new report use case
func NewReportUseCase(
	source ports.EventSource,
	parser ports.EventParser,
	config ReportConfig,
	log logger.Logger,
) *ReportUseCase {
	differ := domain.NewDiffer(config.DiffOptions)
	if config.DefaultLocation == nil {
		config.DefaultLocation = time.Local
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &ReportUseCase{
		source:     source,
		parser:     parser,
		differ:     differ,
		summarizer: domain.NewSummarizer(differ),
		defaultLoc: config.DefaultLocation,
		now:        config.Clock,
		logger:     log,
	}
}

// BuildReport fetches one page of events and renders it grouped by day
func (uc *ReportUseCase) BuildReport(ctx context.Context, req ReportRequest) (*Report, error) {
	start := time.Now()

	page, err := uc.list(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	loc := uc.location(req.Location)
	grouper := domain.NewGrouper(loc, uc.now)
	buckets, invalid := grouper.Group(page.Events)

	report := &Report{
		Schema:   page.Schema,
		Page:     page.Page,
		PerPage:  page.PerPage,
		Total:    page.Total,
		Timezone: loc.String(),
		Counts:   domain.CountPage(page),
		Days:     make([]ReportDay, 0, len(buckets)),
		Issues:   uc.rejectedIssues(ctx, page),
	}

	for _, ts := range invalid {
		uc.logger.Warn(ctx, "Event has an invalid timestamp", map[string]interface{}{
			"event_id":  ts.EventID,
			"timestamp": ts.Raw,
		})
		report.Issues = append(report.Issues, ReportIssue{
			Kind:    IssueInvalidTimestamp,
			EventID: ts.EventID,
			Message: ts.Error(),
		})
	}

	for _, bucket := range buckets {
		day := ReportDay{
			Date:   bucket.Date,
			Label:  bucket.Label,
			Counts: domain.CountByKind(bucket.Events),
			Rows:   make([]ReportRow, 0, len(bucket.Events)),
		}

		for _, event := range bucket.Events {
			row, issue, err := uc.renderRow(ctx, grouper, event)
			if err != nil {
				return nil, err
			}
			if issue != nil {
				report.Issues = append(report.Issues, *issue)
			}
			day.Rows = append(day.Rows, row)
		}

		report.Days = append(report.Days, day)
	}

	logger.LogPerformance(ctx, uc.logger, "report.build", time.Since(start), map[string]interface{}{
		"schema": page.Schema,
		"events": len(page.Events),
		"days":   len(report.Days),
		"issues": len(report.Issues),
	})

	return report, nil
}

func (uc *ReportUseCase) renderRow(ctx context.Context, grouper *domain.Grouper, event domain.ChangeEvent) (ReportRow, *ReportIssue, error) {
	row := ReportRow{
		Event:          event,
		Actor:          event.Actor(),
		Classification: domain.Classify(event.Kind),
		Time:           event.OccurredAt.In(grouper.Location()).Format(rowTimeLayout),
		Relative:       grouper.Relative(event.OccurredAt),
	}

	if !event.Kind.Known() {
		uc.logger.Warn(ctx, "Unknown event kind", map[string]interface{}{
			"event_id": event.ID,
			"kind":     string(event.Kind),
		})
	}

	description, err := uc.summarizer.Describe(event)
	if err != nil {
		var malformed *domain.MalformedEventError
		if !errors.As(err, &malformed) {
			return row, nil, fmt.Errorf("failed to describe event %s: %w", event.ID, err)
		}

		uc.logger.Warn(ctx, "Malformed event", map[string]interface{}{
			"event_id": event.ID,
			"kind":     string(event.Kind),
			"reason":   malformed.Reason,
		})
		row.Description = UnavailableDescription
		row.Unavailable = true
		return row, &ReportIssue{Kind: IssueMalformedEvent, EventID: event.ID, Message: malformed.Error()}, nil
	}

	row.Description = description
	return row, nil, nil
}

// Summary returns the kind counts of one page for the dashboard tiles
func (uc *ReportUseCase) Summary(ctx context.Context, req ReportRequest) (*ReportSummary, error) {
	page, err := uc.list(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	return &ReportSummary{
		Schema:        page.Schema,
		MatchingTotal: page.Total,
		Counts:        domain.CountPage(page),
		Issues:        uc.rejectedIssues(ctx, page),
	}, nil
}

// rejectedIssues reports the records the source could not normalize.
func (uc *ReportUseCase) rejectedIssues(ctx context.Context, page *domain.EventPage) []ReportIssue {
	issues := make([]ReportIssue, 0, len(page.Rejected))
	for _, rejected := range page.Rejected {
		uc.logger.Warn(ctx, "Rejected backend record", map[string]interface{}{
			"schema":   page.Schema,
			"index":    rejected.Index,
			"event_id": rejected.EventID,
			"field":    rejected.Field,
		})
		issues = append(issues, ReportIssue{
			Kind:    IssueInvalidRecord,
			EventID: rejected.EventID,
			Message: rejected.Error(),
		})
	}
	return issues
}

// Compare normalizes a single raw event and returns its field-level comparison
func (uc *ReportUseCase) Compare(ctx context.Context, schema string, raw []byte) (*EventDetail, error) {
	logSchema, err := domain.ParseLogSchema(schema)
	if err != nil {
		return nil, err
	}

	event, err := uc.parser.ParseRecord(logSchema, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}

	changes, err := uc.differ.Diff(event)
	if err != nil {
		uc.logger.Warn(ctx, "Cannot compare event", map[string]interface{}{
			"event_id": event.ID,
			"error":    err.Error(),
		})
		return nil, err
	}

	description, err := uc.summarizer.Describe(event)
	if err != nil {
		return nil, err
	}

	return &EventDetail{
		Event:          event,
		Actor:          event.Actor(),
		Description:    description,
		Classification: domain.Classify(event.Kind),
		Changes:        domain.FormatChanges(changes),
	}, nil
}

func (uc *ReportUseCase) list(ctx context.Context, query domain.LogQuery) (*domain.EventPage, error) {
	schema, err := domain.ParseLogSchema(string(query.Schema))
	if err != nil {
		return nil, err
	}
	query.Schema = schema
	if err := query.Validate(); err != nil {
		return nil, err
	}

	page, err := uc.source.List(ctx, query.Normalize())
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", schema, err)
	}
	return page, nil
}

func (uc *ReportUseCase) location(loc *time.Location) *time.Location {
	if loc != nil {
		return loc
	}
	return uc.defaultLoc
}
