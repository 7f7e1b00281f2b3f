package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// DisplayValue is a formatted value ready for a comparison table.
// Token marks the literal null/undefined markers, which the dashboard renders
// differently from a string whose content happens to be "null".
type DisplayValue struct {
	Text  string `json:"text"`
	Token bool   `json:"token"`
}

// FormattedChange is a FieldChange with both sides formatted.
type FormattedChange struct {
	Field string       `json:"field"`
	Old   DisplayValue `json:"old"`
	New   DisplayValue `json:"new"`
}

// FormatValue renders a snapshot value for display.
func FormatValue(v any) DisplayValue {
	switch t := v.(type) {
	case nil:
		return DisplayValue{Text: "null", Token: true}
	case undefined:
		return DisplayValue{Text: "undefined", Token: true}
	case bool:
		if t {
			return DisplayValue{Text: "True"}
		}
		return DisplayValue{Text: "False"}
	case string:
		return DisplayValue{Text: t}
	case json.Number:
		return DisplayValue{Text: formatNumber(t)}
	case json.RawMessage:
		return FormatValue(decodeRaw(t))
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if text, err := prettyJSON(v); err == nil {
			return DisplayValue{Text: text}
		}
	}
	return DisplayValue{Text: fmt.Sprint(v)}
}

// FormatChanges formats both sides of every change, keeping order.
func FormatChanges(changes []FieldChange) []FormattedChange {
	out := make([]FormattedChange, len(changes))
	for i, c := range changes {
		out[i] = FormattedChange{
			Field: c.Field,
			Old:   FormatValue(c.OldValue),
			New:   FormatValue(c.NewValue),
		}
	}
	return out
}

// formatNumber renders a number the way it appears inside a formatted object,
// so 1.0 and 1e2 read as 1 and 100. Integer lexemes are kept as is since the
// canonical form goes through float64 and would round past 2^53.
func formatNumber(n json.Number) string {
	lexeme := n.String()
	if !strings.ContainsAny(lexeme, ".eE") {
		return lexeme
	}
	canonical, err := canonicalJSON([]byte(lexeme))
	if err != nil {
		return lexeme
	}
	return string(canonical)
}

// prettyJSON indents the canonical form of v, so object keys always come out sorted.
func prettyJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	canonical, err := canonicalJSON(raw)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, canonical, "", "  "); err != nil {
		return "", err
	}
	return buf.String(), nil
}
