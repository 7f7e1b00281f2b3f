package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/guregu/null/v5"
	"github.com/tidwall/gjson"

	"github.com/fixora/auditreport/internal/domain"
)

// Record is a backend log row with the schema-specific names already resolved,
// before any validation.
type Record struct {
	ID        string `validate:"required"`
	Kind      string `validate:"required"`
	Table     string `validate:"required"`
	RecordID  string
	UserID    null.String
	UserName  null.String
	UserLogin null.String
	Branch    null.String
	IPAddress null.String
	CreatedAt string
	OldValues json.RawMessage
	NewValues json.RawMessage
}

// wireNames maps Record fields to the payload names each schema uses, for error messages.
var wireNames = map[domain.LogSchema]map[string]string{
	domain.SchemaAuditLog: {
		"ID": "id", "Kind": "event", "Table": "auditable_type",
	},
	domain.SchemaModificationLog: {
		"ID": "id", "Kind": "action", "Table": "table_name",
	},
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04",
}

// Normalizer maps both backend log schemas onto domain.ChangeEvent.
type Normalizer struct {
	validate *validator.Validate
	loc      *time.Location
}

// NewNormalizer creates a Normalizer. loc is the backend's zone, used for
// timestamps that carry no offset.
func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{validate: validator.New(), loc: loc}
}

// ParseAuditLog normalizes one record of GET /audit-logs.
func (n *Normalizer) ParseAuditLog(raw []byte) (domain.ChangeEvent, error) {
	return n.ParseRecord(domain.SchemaAuditLog, raw)
}

// ParseModificationLog normalizes one record of GET /modification-logs.
func (n *Normalizer) ParseModificationLog(raw []byte) (domain.ChangeEvent, error) {
	return n.ParseRecord(domain.SchemaModificationLog, raw)
}

// ParseRecord normalizes one raw record of the given schema.
func (n *Normalizer) ParseRecord(schema domain.LogSchema, raw []byte) (domain.ChangeEvent, error) {
	if !gjson.ValidBytes(raw) {
		return domain.ChangeEvent{}, &domain.RecordError{Reason: "is not valid JSON"}
	}
	res := gjson.ParseBytes(raw)
	if !res.IsObject() {
		return domain.ChangeEvent{}, &domain.RecordError{Reason: "is not a JSON object"}
	}
	return n.Normalize(schema, RecordFromJSON(schema, res), 0)
}

// ParsePage reads a list response: {"data": [...], "total": n}. A Laravel
// paginator nested under data is accepted as well. Records that fail
// normalization are collected in Rejected and do not fail the page.
func (n *Normalizer) ParsePage(schema domain.LogSchema, body []byte) (*domain.EventPage, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("backend response is not valid JSON")
	}

	res := gjson.ParseBytes(body)
	data := res.Get("data")
	if data.IsObject() && data.Get("data").IsArray() {
		res = data
		data = data.Get("data")
	}
	if !data.IsArray() {
		return nil, fmt.Errorf("backend response has no data array")
	}

	items := data.Array()
	page := &domain.EventPage{
		Schema: schema,
		Events: make([]domain.ChangeEvent, 0, len(items)),
		Total:  len(items),
	}
	if total := res.Get("total"); total.Exists() {
		page.Total = int(total.Int())
	}
	page.Page = int(res.Get("current_page").Int())
	page.PerPage = int(res.Get("per_page").Int())

	for i, item := range items {
		if !item.IsObject() {
			page.Rejected = append(page.Rejected, &domain.RecordError{Index: i, Reason: "is not a JSON object"})
			continue
		}
		event, err := n.Normalize(schema, RecordFromJSON(schema, item), i)
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

	return page, nil
}

// RecordFromJSON resolves the schema-specific names of a record. The other
// schema's names are used as a fallback, since some endpoints mix them.
func RecordFromJSON(schema domain.LogSchema, res gjson.Result) Record {
	kindKeys := []string{"event", "action"}
	tableKeys := []string{"auditable_type", "table_name"}
	idKeys := []string{"auditable_id", "record_id"}
	if schema == domain.SchemaModificationLog {
		kindKeys = []string{"action", "event"}
		tableKeys = []string{"table_name", "auditable_type"}
		idKeys = []string{"record_id", "auditable_id"}
	}

	rec := Record{
		ID:        scalar(res.Get("id")),
		Kind:      scalar(firstOf(res, kindKeys...)),
		Table:     scalar(firstOf(res, tableKeys...)),
		RecordID:  scalar(firstOf(res, idKeys...)),
		UserID:    nullable(res.Get("user_id")),
		UserName:  nullable(res.Get("user.name")),
		UserLogin: nullable(res.Get("user.user_name")),
		IPAddress: nullable(res.Get("ip_address")),
		CreatedAt: scalar(res.Get("created_at")),
		OldValues: rawOf(res.Get("old_values")),
		NewValues: rawOf(res.Get("new_values")),
	}

	if !rec.UserID.Valid {
		rec.UserID = nullable(res.Get("user.id"))
	}

	branch := res.Get("user.branch")
	if branch.IsObject() {
		branch = branch.Get("name")
	}
	rec.Branch = nullable(branch)

	return rec
}

// Normalize validates rec and builds the canonical event. index is the
// record's position in its page, reported back on failure.
func (n *Normalizer) Normalize(schema domain.LogSchema, rec Record, index int) (domain.ChangeEvent, error) {
	if err := n.validate.Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return domain.ChangeEvent{}, &domain.RecordError{
				Index:   index,
				EventID: rec.ID,
				Field:   wireName(schema, verrs[0].Field()),
				Reason:  "is required",
			}
		}
		return domain.ChangeEvent{}, fmt.Errorf("failed to validate record: %w", err)
	}

	oldValues, err := domain.ParseValues(rec.OldValues)
	if err != nil {
		return domain.ChangeEvent{}, &domain.RecordError{Index: index, EventID: rec.ID, Field: "old_values", Reason: err.Error()}
	}
	newValues, err := domain.ParseValues(rec.NewValues)
	if err != nil {
		return domain.ChangeEvent{}, &domain.RecordError{Index: index, EventID: rec.ID, Field: "new_values", Reason: err.Error()}
	}

	event := domain.ChangeEvent{
		ID:            rec.ID,
		Schema:        schema,
		ActorID:       rec.UserID,
		ActorName:     rec.UserName,
		ActorUsername: rec.UserLogin,
		ActorBranch:   rec.Branch,
		Kind:          domain.ParseEventKind(rec.Kind),
		TargetType:    rec.Table,
		TargetTable:   TableName(rec.Table),
		TargetID:      rec.RecordID,
		OldValues:     oldValues,
		NewValues:     newValues,
		RawTimestamp:  rec.CreatedAt,
		SourceIP:      rec.IPAddress,
	}

	// An unparseable timestamp does not reject the record; the grouper reports it.
	if t, err := n.ParseTimestamp(rec.CreatedAt); err == nil {
		event.OccurredAt = t
	}

	return event, nil
}

// ParseTimestamp accepts RFC 3339 and the zone-less layouts the backend emits.
func (n *Normalizer) ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, n.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// TableName turns a model class such as App\Models\LoanApplication into its
// short name. Plain table names are returned unchanged.
func TableName(auditableType string) string {
	name := strings.TrimSpace(auditableType)
	if i := strings.LastIndexAny(name, `\/`); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func wireName(schema domain.LogSchema, field string) string {
	if name, ok := wireNames[schema][field]; ok {
		return name
	}
	return strings.ToLower(field)
}

func firstOf(res gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := res.Get(k); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

func scalar(res gjson.Result) string {
	if !res.Exists() || res.Type == gjson.Null || res.IsObject() || res.IsArray() {
		return ""
	}
	return strings.TrimSpace(res.String())
}

func nullable(res gjson.Result) null.String {
	s := scalar(res)
	if s == "" {
		return null.String{}
	}
	return null.StringFrom(s)
}

func rawOf(res gjson.Result) json.RawMessage {
	if !res.Exists() {
		return nil
	}
	return json.RawMessage(res.Raw)
}
