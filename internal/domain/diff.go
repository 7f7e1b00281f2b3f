package domain

import (
	"bytes"
	"encoding/json"

	"github.com/gowebpki/jcs"
)

// FieldChange is the before/after pair of one field
type FieldChange struct {
	Field    string `json:"field"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

// DiffOptions configures a Differ
type DiffOptions struct {
	// IgnoredFields are bookkeeping fields (e.g. updated_at) that always differ
	// and never count as a business change.
	IgnoredFields []string
	// MissingEqualsNull treats a key absent from the old snapshot as equal to a null new value.
	MissingEqualsNull bool
}

// Differ computes field-level changes between two snapshots.
// It holds no mutable state and is safe for concurrent use.
type Differ struct {
	ignored           map[string]struct{}
	missingEqualsNull bool
}

// NewDiffer creates a Differ from options
func NewDiffer(opts DiffOptions) *Differ {
	ignored := make(map[string]struct{}, len(opts.IgnoredFields))
	for _, f := range opts.IgnoredFields {
		if f != "" {
			ignored[f] = struct{}{}
		}
	}
	return &Differ{ignored: ignored, missingEqualsNull: opts.MissingEqualsNull}
}

// Ignores reports whether field is excluded from every diff.
func (d *Differ) Ignores(field string) bool {
	_, ok := d.ignored[field]
	return ok
}

// Diff returns the changes recorded by e. Updated events compare both snapshots,
// created and deleted events list every field of the one snapshot they carry
// against Undefined. A snapshot missing where the kind requires one yields a
// *MalformedEventError, never an empty diff.
func (d *Differ) Diff(e ChangeEvent) ([]FieldChange, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	switch e.Kind {
	case EventCreated:
		return d.snapshot(e.NewValues, false), nil
	case EventDeleted:
		return d.snapshot(e.OldValues, true), nil
	case EventUpdated:
		return d.DiffValues(e.OldValues, e.NewValues), nil
	}

	if e.OldValues == nil || e.NewValues == nil {
		return nil, e.malformed("cannot compare snapshots of an unrecognized event kind")
	}
	return d.DiffValues(e.OldValues, e.NewValues), nil
}

// DiffValues compares every key of newValues, in arrival order, with the same key of oldValues.
func (d *Differ) DiffValues(oldValues, newValues *Values) []FieldChange {
	changes := make([]FieldChange, 0, newValues.Len())
	for _, f := range newValues.Fields() {
		if d.Ignores(f.Name) {
			continue
		}

		oldRaw, ok := oldValues.Lookup(f.Name)
		if !ok {
			if d.missingEqualsNull && isNullRaw(f.Raw) {
				continue
			}
			changes = append(changes, FieldChange{Field: f.Name, OldValue: Undefined, NewValue: decodeRaw(f.Raw)})
			continue
		}

		if sameJSON(oldRaw, f.Raw) {
			continue
		}
		changes = append(changes, FieldChange{Field: f.Name, OldValue: decodeRaw(oldRaw), NewValue: decodeRaw(f.Raw)})
	}
	return changes
}

// ChangedFields returns only the names of the fields DiffValues reports.
func (d *Differ) ChangedFields(oldValues, newValues *Values) []string {
	changes := d.DiffValues(oldValues, newValues)
	names := make([]string, len(changes))
	for i, c := range changes {
		names[i] = c.Field
	}
	return names
}

func (d *Differ) snapshot(v *Values, removed bool) []FieldChange {
	changes := make([]FieldChange, 0, v.Len())
	for _, f := range v.Fields() {
		if d.Ignores(f.Name) {
			continue
		}
		value := decodeRaw(f.Raw)
		if removed {
			changes = append(changes, FieldChange{Field: f.Name, OldValue: value, NewValue: Undefined})
		} else {
			changes = append(changes, FieldChange{Field: f.Name, OldValue: Undefined, NewValue: value})
		}
	}
	return changes
}

func sameJSON(a, b json.RawMessage) bool {
	a, b = bytes.TrimSpace(a), bytes.TrimSpace(b)
	if bytes.Equal(a, b) {
		return true
	}
	ca, errA := canonicalJSON(a)
	cb, errB := canonicalJSON(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

func isNullRaw(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// canonicalJSON returns the RFC 8785 form of a single JSON value. jcs only
// accepts objects and arrays at the top level, so the value is wrapped in an
// array and unwrapped again.
func canonicalJSON(raw []byte) ([]byte, error) {
	wrapped := make([]byte, 0, len(raw)+2)
	wrapped = append(wrapped, '[')
	wrapped = append(wrapped, raw...)
	wrapped = append(wrapped, ']')

	out, err := jcs.Transform(wrapped)
	if err != nil {
		return nil, err
	}
	return out[1 : len(out)-1], nil
}
