package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/guregu/null/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fixora/auditreport/internal/adapter/backend"
	"github.com/fixora/auditreport/internal/domain"
)

// MockEventSource is a mock implementation of ports.EventSource
type MockEventSource struct {
	mock.Mock
}

func (m *MockEventSource) List(ctx context.Context, query domain.LogQuery) (*domain.EventPage, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EventPage), args.Error(1)
}

// MockEventParser is a mock implementation of ports.EventParser
type MockEventParser struct {
	mock.Mock
}

func (m *MockEventParser) ParseRecord(schema domain.LogSchema, raw []byte) (domain.ChangeEvent, error) {
	args := m.Called(schema, raw)
	return args.Get(0).(domain.ChangeEvent), args.Error(1)
}

var jakarta = time.FixedZone("WIB", 7*3600)

func values(t *testing.T, raw string) *domain.Values {
	t.Helper()
	v, err := domain.ParseValues([]byte(raw))
	require.NoError(t, err)
	return v
}

func newTestUseCase(source *MockEventSource, parser *MockEventParser, now time.Time) *ReportUseCase {
	return NewReportUseCase(source, parser, ReportConfig{
		DiffOptions:     domain.DiffOptions{IgnoredFields: []string{"updated_at"}},
		DefaultLocation: jakarta,
		Clock:           func() time.Time { return now },
	}, nil)
}

func TestReportUseCase_BuildReport(t *testing.T) {
	now := time.Date(2024, 3, 10, 18, 0, 0, 0, jakarta)
	source := new(MockEventSource)
	uc := newTestUseCase(source, new(MockEventParser), now)

	events := []domain.ChangeEvent{
		{
			ID: "3", Kind: domain.EventUpdated, TargetTable: "loans", TargetID: "7",
			ActorName:  null.StringFrom("Rina"),
			OldValues:  values(t, `{"status":"Pending","updated_at":"a"}`),
			NewValues:  values(t, `{"status":"Approved","updated_at":"b"}`),
			OccurredAt: now.Add(-3 * time.Hour),
		},
		{
			ID: "2", Kind: domain.EventUpdated, TargetTable: "loans", TargetID: "7",
			NewValues:  values(t, `{"status":"Approved"}`),
			OccurredAt: now.Add(-4 * time.Hour),
		},
		{
			ID: "1", Kind: domain.EventCreated, TargetTable: "customers", TargetID: "3",
			NewValues:  values(t, `{"name":"Budi"}`),
			OccurredAt: time.Date(2024, 3, 9, 23, 0, 0, 0, jakarta),
		},
		{ID: "0", Kind: "restored", TargetTable: "loans", RawTimestamp: "garbage"},
	}

	source.On("List", mock.Anything, domain.LogQuery{Schema: domain.SchemaModificationLog, Page: 1, PerPage: 20}).
		Return(&domain.EventPage{
			Schema:   domain.SchemaModificationLog,
			Events:   events,
			Total:    41,
			Page:     1,
			PerPage:  20,
			Rejected: []*domain.RecordError{{Index: 4, EventID: "x", Field: "action", Reason: "is required"}},
		}, nil)

	report, err := uc.BuildReport(context.Background(), ReportRequest{
		Query: domain.LogQuery{Schema: "modification-logs"},
	})

	require.NoError(t, err)
	assert.Equal(t, 41, report.Total)
	assert.Equal(t, "WIB", report.Timezone)
	// the rejected record is counted under Other
	assert.Equal(t, domain.KindCounts{Total: 5, Created: 1, Updated: 2, Other: 2}, report.Counts)

	require.Len(t, report.Days, 2)
	today := report.Days[0]
	assert.Equal(t, "2024-03-10", today.Date)
	assert.Equal(t, "Today", today.Label)
	require.Len(t, today.Rows, 2)
	assert.Equal(t, "Modified 1 fields: status", today.Rows[0].Description)
	assert.Equal(t, "Rina", today.Rows[0].Actor)
	assert.Equal(t, "15:00", today.Rows[0].Time)
	assert.Equal(t, "3 hours ago", today.Rows[0].Relative)
	assert.Equal(t, domain.ClassificationUpdated, today.Rows[0].Classification)

	assert.True(t, today.Rows[1].Unavailable)
	assert.Equal(t, UnavailableDescription, today.Rows[1].Description)

	yesterday := report.Days[1]
	assert.Equal(t, "Yesterday", yesterday.Label)
	assert.Equal(t, "Created new customers record", yesterday.Rows[0].Description)
	assert.Equal(t, domain.SystemActor, yesterday.Rows[0].Actor)

	kinds := make([]string, len(report.Issues))
	for i, issue := range report.Issues {
		kinds[i] = issue.Kind
	}
	assert.Equal(t, []string{IssueInvalidRecord, IssueInvalidTimestamp, IssueMalformedEvent}, kinds)
	assert.Equal(t, "0", report.Issues[1].EventID)
	assert.Equal(t, "2", report.Issues[2].EventID)

	source.AssertExpectations(t)
}

func TestReportUseCase_BuildReportViewerTimezone(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	source := new(MockEventSource)
	uc := newTestUseCase(source, new(MockEventParser), now)

	// 23:30 UTC on the 9th is already the 10th in Jakarta
	source.On("List", mock.Anything, mock.Anything).Return(&domain.EventPage{
		Schema: domain.SchemaAuditLog,
		Events: []domain.ChangeEvent{{
			ID: "1", Kind: domain.EventDeleted, TargetTable: "Loan", TargetID: "5",
			OldValues:  values(t, `{"a":1}`),
			OccurredAt: time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC),
		}},
	}, nil)

	utcReport, err := uc.BuildReport(context.Background(), ReportRequest{
		Query:    domain.LogQuery{Schema: domain.SchemaAuditLog},
		Location: time.UTC,
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09", utcReport.Days[0].Date)

	localReport, err := uc.BuildReport(context.Background(), ReportRequest{
		Query: domain.LogQuery{Schema: domain.SchemaAuditLog},
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10", localReport.Days[0].Date)
	assert.Equal(t, "Deleted Loan record #5", localReport.Days[0].Rows[0].Description)
}

func TestReportUseCase_BuildReportErrors(t *testing.T) {
	source := new(MockEventSource)
	uc := newTestUseCase(source, new(MockEventParser), time.Now())

	_, err := uc.BuildReport(context.Background(), ReportRequest{Query: domain.LogQuery{Schema: "users"}})
	assert.ErrorIs(t, err, domain.ErrUnknownSchema)

	upstream := &domain.UpstreamError{StatusCode: 503}
	source.On("List", mock.Anything, mock.Anything).Return(nil, upstream)

	_, err = uc.BuildReport(context.Background(), ReportRequest{Query: domain.LogQuery{Schema: domain.SchemaAuditLog}})
	var got *domain.UpstreamError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, 503, got.StatusCode)
}

func TestReportUseCase_Summary(t *testing.T) {
	source := new(MockEventSource)
	uc := newTestUseCase(source, new(MockEventParser), time.Now())

	source.On("List", mock.Anything, mock.Anything).Return(&domain.EventPage{
		Schema: domain.SchemaAuditLog,
		Total:  120,
		Events: []domain.ChangeEvent{
			{Kind: domain.EventCreated}, {Kind: domain.EventCreated}, {Kind: domain.EventDeleted}, {Kind: "login"},
		},
	}, nil)

	summary, err := uc.Summary(context.Background(), ReportRequest{Query: domain.LogQuery{Schema: domain.SchemaAuditLog}})

	require.NoError(t, err)
	assert.Equal(t, 120, summary.MatchingTotal)
	assert.Equal(t, domain.KindCounts{Total: 4, Created: 2, Deleted: 1, Other: 1}, summary.Counts)
	assert.Empty(t, summary.Issues)
}

func TestReportUseCase_InvalidQuery(t *testing.T) {
	source := new(MockEventSource)
	uc := newTestUseCase(source, new(MockEventParser), time.Now())

	_, err := uc.Summary(context.Background(), ReportRequest{
		Query: domain.LogQuery{Schema: domain.SchemaAuditLog, Month: "2024-13"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)

	_, err = uc.BuildReport(context.Background(), ReportRequest{
		Query: domain.LogQuery{Schema: domain.SchemaAuditLog, Date: "10-03-2024"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)

	source.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestReportUseCase_SummaryCountsRejectedRecords(t *testing.T) {
	body := []byte(`{"data":[
		{"id":1,"event":"created","auditable_type":"App\\Models\\Loan","auditable_id":7,"new_values":{"amount":100},"created_at":"2024-03-10 09:00:00"},
		{"id":2,"event":"","auditable_type":"App\\Models\\Loan","auditable_id":7,"created_at":"2024-03-10 09:05:00"},
		{"id":3,"auditable_type":"App\\Models\\Loan","auditable_id":7,"created_at":"2024-03-10 09:10:00"}
	],"total":3}`)
	page, err := backend.NewNormalizer(jakarta).ParsePage(domain.SchemaAuditLog, body)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	require.Len(t, page.Rejected, 2)

	source := new(MockEventSource)
	source.On("List", mock.Anything, mock.Anything).Return(page, nil)
	uc := newTestUseCase(source, new(MockEventParser), time.Date(2024, 3, 10, 18, 0, 0, 0, jakarta))

	summary, err := uc.Summary(context.Background(), ReportRequest{Query: domain.LogQuery{Schema: domain.SchemaAuditLog}})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.MatchingTotal)
	assert.Equal(t, domain.KindCounts{Total: 3, Created: 1, Other: 2}, summary.Counts)
	require.Len(t, summary.Issues, 2)
	assert.Equal(t, IssueInvalidRecord, summary.Issues[0].Kind)
	assert.Equal(t, "2", summary.Issues[0].EventID)
	assert.Equal(t, "3", summary.Issues[1].EventID)

	report, err := uc.BuildReport(context.Background(), ReportRequest{Query: domain.LogQuery{Schema: domain.SchemaAuditLog}})
	require.NoError(t, err)
	assert.Equal(t, summary.Counts, report.Counts)
	assert.Equal(t, report.Counts.Total, report.Total)
}

func TestReportUseCase_Compare(t *testing.T) {
	parser := new(MockEventParser)
	uc := newTestUseCase(new(MockEventSource), parser, time.Now())
	raw := []byte(`{"id":1}`)

	parser.On("ParseRecord", domain.SchemaAuditLog, raw).Return(domain.ChangeEvent{
		ID: "1", Kind: domain.EventUpdated, TargetTable: "Loan", TargetID: "9",
		OldValues: values(t, `{"approved":false,"meta":{"b":1,"a":2}}`),
		NewValues: values(t, `{"approved":true,"meta":{"a":2,"b":1}}`),
	}, nil)

	detail, err := uc.Compare(context.Background(), "audit-logs", raw)

	require.NoError(t, err)
	assert.Equal(t, "Modified 1 fields: approved", detail.Description)
	require.Len(t, detail.Changes, 1)
	assert.Equal(t, "approved", detail.Changes[0].Field)
	assert.Equal(t, "False", detail.Changes[0].Old.Text)
	assert.Equal(t, "True", detail.Changes[0].New.Text)
}

func TestReportUseCase_CompareErrors(t *testing.T) {
	parser := new(MockEventParser)
	uc := newTestUseCase(new(MockEventSource), parser, time.Now())

	_, err := uc.Compare(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, domain.ErrUnknownSchema)

	bad := []byte(`{}`)
	parser.On("ParseRecord", domain.SchemaModificationLog, bad).
		Return(domain.ChangeEvent{}, &domain.RecordError{Field: "id", Reason: "is required"})
	_, err = uc.Compare(context.Background(), "modification-logs", bad)
	var recErr *domain.RecordError
	assert.True(t, errors.As(err, &recErr))

	malformed := []byte(`{"id":2}`)
	parser.On("ParseRecord", domain.SchemaModificationLog, malformed).
		Return(domain.ChangeEvent{ID: "2", Kind: domain.EventUpdated, NewValues: values(t, `{"a":1}`)}, nil)
	_, err = uc.Compare(context.Background(), "modification-logs", malformed)
	var malErr *domain.MalformedEventError
	assert.True(t, errors.As(err, &malErr))
}
