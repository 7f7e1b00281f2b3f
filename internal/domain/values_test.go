package domain

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestParseValues_PreservesArrivalOrder(t *testing.T) {
	v, err := ParseValues([]byte(`{"status":"Approved","amount":100,"branch_id":3,"approved_by":null}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := []string{"status", "amount", "branch_id", "approved_by"}
	if got := v.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected keys %v, got %v", want, got)
	}
}

func TestParseValues_EmptyShapes(t *testing.T) {
	for _, input := range []string{"", "null", "  "} {
		v, err := ParseValues([]byte(input))
		if err != nil {
			t.Errorf("Unexpected error for %q: %v", input, err)
		}
		if v != nil {
			t.Errorf("Expected absent snapshot for %q, got %v", input, v.Keys())
		}
	}

	v, err := ParseValues([]byte(`[]`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if v == nil || !v.IsEmpty() {
		t.Error("Expected an empty but present snapshot for []")
	}
}

func TestParseValues_EncodedString(t *testing.T) {
	v, err := ParseValues([]byte(`"{\"name\":\"Main branch\",\"active\":true}"`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if got := v.Get("name"); got != "Main branch" {
		t.Errorf("Expected name to be decoded, got %v", got)
	}
	if got := v.Get("active"); got != true {
		t.Errorf("Expected active true, got %v", got)
	}
}

func TestParseValues_Rejects(t *testing.T) {
	for _, input := range []string{`{"a":`, `[1,2]`, `42`, `"plain text"`} {
		_, err := ParseValues([]byte(input))
		if !errors.Is(err, ErrInvalidSnapshot) {
			t.Errorf("Expected ErrInvalidSnapshot for %s, got %v", input, err)
		}
	}
}

func TestValues_DuplicateKeyKeepsFirstPosition(t *testing.T) {
	v, err := ParseValues([]byte(`{"a":1,"b":2,"a":3}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if got := v.Keys(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Expected keys [a b], got %v", got)
	}
	if got := v.Get("a"); got != json.Number("3") {
		t.Errorf("Expected last value to win, got %v", got)
	}
}

func TestValues_GetMissingIsUndefined(t *testing.T) {
	var absent *Values
	if !IsUndefined(absent.Get("anything")) {
		t.Error("Expected Undefined from a nil snapshot")
	}

	v, _ := ParseValues([]byte(`{"note":null}`))
	if got := v.Get("note"); got != nil {
		t.Errorf("Expected JSON null to decode as nil, got %v", got)
	}
	if !IsUndefined(v.Get("missing")) {
		t.Error("Expected Undefined for a missing key")
	}
}

func TestValues_MarshalJSONRoundTrip(t *testing.T) {
	input := `{"z":1,"a":{"nested":[1,2]},"m":"x"}`
	v, err := ParseValues([]byte(input))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(out) != input {
		t.Errorf("Expected %s, got %s", input, out)
	}

	var back Values
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !reflect.DeepEqual(back.Keys(), []string{"z", "a", "m"}) {
		t.Errorf("Expected order to survive, got %v", back.Keys())
	}
}
