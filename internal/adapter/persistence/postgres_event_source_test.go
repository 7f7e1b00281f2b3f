package persistence

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixora/auditreport/internal/adapter/backend"
	"github.com/fixora/auditreport/internal/domain"
)

var eventColumns = []string{
	"id", "user_id", "kind", "target", "target_id",
	"old_values", "new_values", "ip_address", "created_at",
	"name", "user_name", "branch",
}

func TestPostgresEventSource_ListModificationLogs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	jakarta := time.FixedZone("WIB", 7*3600)
	source := NewPostgresEventSource(db, backend.NewNormalizer(jakarta))

	mock.ExpectQuery("(?s)"+regexp.QuoteMeta("SELECT COUNT(*)")+`\s+FROM modification_logs l.*AND l\.table_name = \$1 AND CAST\(l\.record_id AS TEXT\) = \$2`).
		WithArgs("loans", "7").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	// lib/pq hands zone-less timestamp columns back in an unnamed zero-offset zone
	created := time.Date(2024, 3, 10, 9, 30, 0, 0, time.FixedZone("", 0))
	createdTZ := time.Date(2024, 3, 10, 8, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows(eventColumns).
		AddRow("11", "5", "updated", "loans", "7", `{"status":"Pending"}`, `{"status":"Approved"}`, "10.0.0.8", created, "Rina", "rina.s", "Bandung").
		AddRow("10", nil, "created", "loans", "7", nil, `{"status":"Pending"}`, nil, createdTZ, nil, nil, nil).
		AddRow("9", nil, nil, "loans", "7", nil, nil, nil, created.Add(-2*time.Hour), nil, nil, nil)

	mock.ExpectQuery(`(?s)FROM modification_logs l.*ORDER BY l\.created_at DESC, l\.id DESC\s+LIMIT \$3 OFFSET \$4`).
		WithArgs("loans", "7", 20, 20).
		WillReturnRows(rows)

	page, err := source.List(context.Background(), domain.LogQuery{
		Schema:   domain.SchemaModificationLog,
		Table:    "loans",
		RecordID: "7",
		Page:     2,
	})

	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Page)
	require.Len(t, page.Events, 2)

	first := page.Events[0]
	assert.Equal(t, "11", first.ID)
	assert.Equal(t, domain.EventUpdated, first.Kind)
	assert.Equal(t, "Rina", first.Actor())
	assert.Equal(t, "Bandung", first.ActorBranch.String)
	// wall clock read in the backend's zone
	assert.True(t, first.OccurredAt.Equal(time.Date(2024, 3, 10, 9, 30, 0, 0, jakarta)))

	second := page.Events[1]
	assert.Equal(t, domain.SystemActor, second.Actor())
	assert.Nil(t, second.OldValues)
	// timestamptz keeps its instant
	assert.True(t, second.OccurredAt.Equal(createdTZ))

	require.Len(t, page.Rejected, 1)
	assert.Equal(t, 2, page.Rejected[0].Index)
	assert.Equal(t, "action", page.Rejected[0].Field)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEventSource_AuditLogSearch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	source := NewPostgresEventSource(db, backend.NewNormalizer(time.UTC))

	mock.ExpectQuery(`(?s)SELECT COUNT\(\*\)\s+FROM audits l.*LOWER\(l\.event\) = LOWER\(\$1\) AND \(u\.name ILIKE \$2`).
		WithArgs("deleted", "%rina%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`FROM audits l`).
		WithArgs("deleted", "%rina%", 20, 0).
		WillReturnRows(sqlmock.NewRows(eventColumns))

	page, err := source.List(context.Background(), domain.LogQuery{
		Schema: domain.SchemaAuditLog,
		Action: "deleted",
		Search: "rina",
		Table:  "ignored for audit logs",
	})

	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.Empty(t, page.Events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresEventSource_UnknownSchema(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	source := NewPostgresEventSource(db, backend.NewNormalizer(time.UTC))

	_, err = source.List(context.Background(), domain.LogQuery{Schema: "users"})
	assert.ErrorIs(t, err, domain.ErrUnknownSchema)
}

func TestPostgresEventSource_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	source := NewPostgresEventSource(db, backend.NewNormalizer(time.UTC))
	mock.ExpectQuery("SELECT COUNT").WillReturnError(sqlmock.ErrCancelled)

	_, err = source.List(context.Background(), domain.LogQuery{Schema: domain.SchemaAuditLog})
	assert.Error(t, err)
}

func TestFormatCreatedAt(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"zone-less column", time.Date(2024, 3, 10, 9, 30, 0, 0, time.FixedZone("", 0)), "2024-03-10 09:30:00"},
		{"zone-less with fraction", time.Date(2024, 3, 10, 9, 30, 0, 250000000, time.FixedZone("", 0)), "2024-03-10 09:30:00.25"},
		{"timestamptz in UTC session", time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC), "2024-03-10T09:30:00Z"},
		{"timestamptz in offset session", time.Date(2024, 3, 10, 16, 30, 0, 0, time.FixedZone("WIB", 7*3600)), "2024-03-10T16:30:00+07:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatCreatedAt(tt.at))
		})
	}
}
