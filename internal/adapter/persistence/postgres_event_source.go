package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/guregu/null/v5"

	"github.com/fixora/auditreport/internal/adapter/backend"
	"github.com/fixora/auditreport/internal/domain"
	"github.com/fixora/auditreport/internal/ports"
)

// wallClockLayout renders timestamp columns without a zone, so the normalizer
// reads them in the backend's configured location.
const wallClockLayout = "2006-01-02 15:04:05.999999"

// formatCreatedAt keeps the offset of timestamptz values. lib/pq returns
// zone-less timestamp columns in an unnamed zero-offset zone; only those are
// rendered as wall clock time.
func formatCreatedAt(t time.Time) string {
	if t.Location().String() == "" {
		return t.Format(wallClockLayout)
	}
	return t.Format(time.RFC3339Nano)
}

// logTable describes where one log schema lives in the backend database
type logTable struct {
	name     string
	kind     string
	target   string
	targetID string
	// filterable by table and record
	perRecord bool
}

var logTables = map[domain.LogSchema]logTable{
	domain.SchemaAuditLog: {
		name: "audits", kind: "event", target: "auditable_type", targetID: "auditable_id",
	},
	domain.SchemaModificationLog: {
		name: "modification_logs", kind: "action", target: "table_name", targetID: "record_id", perRecord: true,
	},
}

// PostgresEventSource reads change logs straight from the backend's database.
// It is read-only.
type PostgresEventSource struct {
	db         *sql.DB
	normalizer *backend.Normalizer
}

// NewPostgresEventSource creates a new PostgreSQL event source
func NewPostgresEventSource(db *sql.DB, normalizer *backend.Normalizer) ports.EventSource {
	return &PostgresEventSource{db: db, normalizer: normalizer}
}

// List returns one page of events, newest first
func (s *PostgresEventSource) List(ctx context.Context, query domain.LogQuery) (*domain.EventPage, error) {
	table, ok := logTables[query.Schema]
	if !ok {
		return nil, domain.ErrUnknownSchema
	}
	query = query.Normalize()

	where, args := table.conditions(query)

	from := fmt.Sprintf(`
		FROM %s l
		LEFT JOIN users u ON u.id = l.user_id
		LEFT JOIN branches b ON b.id = u.branch_id
		WHERE 1=1%s`, table.name, where)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*)"+from, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", table.name, err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT CAST(l.id AS TEXT), CAST(l.user_id AS TEXT), l.%s, l.%s, CAST(l.%s AS TEXT),
			l.old_values, l.new_values, l.ip_address, l.created_at,
			u.name, u.user_name, b.name%s
		ORDER BY l.created_at DESC, l.id DESC
		LIMIT $%d OFFSET $%d`,
		table.kind, table.target, table.targetID, from, len(args)+1, len(args)+2)
	args = append(args, query.PerPage, query.Offset())

	rows, err := s.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table.name, err)
	}
	defer rows.Close()

	page := &domain.EventPage{
		Schema:  query.Schema,
		Events:  []domain.ChangeEvent{},
		Total:   total,
		Page:    query.Page,
		PerPage: query.PerPage,
	}

	index := 0
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table.name, err)
		}

		event, err := s.normalizer.Normalize(query.Schema, rec, index)
		index++
		if err != nil {
			var recErr *domain.RecordError
			if errors.As(err, &recErr) {
				page.Rejected = append(page.Rejected, recErr)
				continue
			}
			return nil, err
		}
		page.Events = append(page.Events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", table.name, err)
	}

	return page, nil
}

func (t logTable) conditions(query domain.LogQuery) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	add := func(format string, value interface{}) {
		conditions = append(conditions, fmt.Sprintf(format, argIndex))
		args = append(args, value)
		argIndex++
	}

	if query.Date != "" {
		add("DATE(l.created_at) = $%d", query.Date)
	}
	if query.Month != "" {
		add("to_char(l.created_at, 'YYYY-MM') = $%d", query.Month)
	}
	if query.Action != "" {
		add("LOWER(l."+t.kind+") = LOWER($%d)", query.Action)
	}
	if t.perRecord && query.Table != "" {
		add("l."+t.target+" = $%d", query.Table)
	}
	if t.perRecord && query.RecordID != "" {
		add("CAST(l."+t.targetID+" AS TEXT) = $%d", query.RecordID)
	}
	if query.Search != "" {
		n := argIndex
		conditions = append(conditions, fmt.Sprintf("(u.name ILIKE $%d OR u.user_name ILIKE $%d OR l.%s ILIKE $%d)", n, n, t.target, n))
		args = append(args, "%"+query.Search+"%")
		argIndex++
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " AND " + strings.Join(conditions, " AND "), args
}

func scanRecord(rows *sql.Rows) (backend.Record, error) {
	var (
		rec                     backend.Record
		id, kind, target        sql.NullString
		userID, targetID, ip    sql.NullString
		oldValues, newValues    []byte
		createdAt               sql.NullTime
		userName, login, branch sql.NullString
	)

	err := rows.Scan(
		&id, &userID, &kind, &target, &targetID,
		&oldValues, &newValues, &ip, &createdAt,
		&userName, &login, &branch,
	)
	if err != nil {
		return rec, err
	}

	rec.ID = id.String
	rec.Kind = kind.String
	rec.Table = target.String
	rec.RecordID = targetID.String
	rec.UserID = null.NewString(userID.String, userID.Valid)
	rec.UserName = null.NewString(userName.String, userName.Valid)
	rec.UserLogin = null.NewString(login.String, login.Valid)
	rec.Branch = null.NewString(branch.String, branch.Valid)
	rec.IPAddress = null.NewString(ip.String, ip.Valid)
	if createdAt.Valid {
		rec.CreatedAt = formatCreatedAt(createdAt.Time)
	}
	if len(oldValues) > 0 {
		rec.OldValues = json.RawMessage(oldValues)
	}
	if len(newValues) > 0 {
		rec.NewValues = json.RawMessage(newValues)
	}

	return rec, nil
}
