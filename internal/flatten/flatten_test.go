package flatten

import (
	"errors"
	"reflect"
	"testing"

	"avro_etl/internal/record"
)

func TestFlatten_RateToken(t *testing.T) {
	in := []record.Record{{"decoded_rate_token": map[string]any{"a": 1, "b": 2}, "id": 7}}

	got, err := Flatten(in, "decoded_rate_token")
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	want := record.Record{"id": 7, "decoded_rate_token_a": 1, "decoded_rate_token_b": 2}
	if !reflect.DeepEqual(got[0], want) {
		t.Fatalf("got %#v; want %#v", got[0], want)
	}
	if _, ok := in[0]["decoded_rate_token"]; !ok {
		t.Fatal("input record was modified")
	}
}

func TestFlatten_EveryNestedKeyLifted(t *testing.T) {
	in := []record.Record{
		{"f": map[string]any{"x": "1", "y": nil}, "g": map[string]any{"z": 3.5}, "keep": true},
		{"f": map[string]any{}, "g": map[string]any{"z": 0.0}, "keep": false},
	}
	got, err := Flatten(in, "f", "g")
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	for i, r := range got {
		if _, ok := r["f"]; ok {
			t.Fatalf("record %d still has f", i)
		}
		if _, ok := r["g"]; ok {
			t.Fatalf("record %d still has g", i)
		}
		for k, v := range in[i]["f"].(map[string]any) {
			if gv, ok := r["f_"+k]; !ok || gv != v {
				t.Fatalf("record %d: f_%s = %#v, %v", i, k, gv, ok)
			}
		}
		if r["g_z"] != in[i]["g"].(map[string]any)["z"] {
			t.Fatalf("record %d: g_z = %#v", i, r["g_z"])
		}
		if r["keep"] != in[i]["keep"] {
			t.Fatalf("record %d: keep lost", i)
		}
	}
}

func TestFlatten_NoFieldsIsIdentity(t *testing.T) {
	once, err := Flatten([]record.Record{{"t": map[string]any{"a": 1}, "id": 1}}, "t")
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	twice, err := Flatten(once)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("second pass changed records: %#v vs %#v", once, twice)
	}
}

func TestFlatten_Errors(t *testing.T) {
	_, err := Flatten([]record.Record{{"id": 1}}, "missing_field")
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("err = %v; want ErrMissingField", err)
	}

	_, err = Flatten([]record.Record{{"t": "scalar"}}, "t")
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("err = %v; want ErrTypeMismatch", err)
	}

	_, err = Flatten([]record.Record{{"t": nil}}, "t")
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("nil err = %v; want ErrTypeMismatch", err)
	}

	// the second record fails, so nothing is returned
	out, err := Flatten([]record.Record{{"t": map[string]any{}}, {"id": 2}}, "t")
	if !errors.Is(err, ErrMissingField) || out != nil {
		t.Fatalf("out=%v err=%v; want batch abort", out, err)
	}
}

func TestFlatten_CollisionPolicies(t *testing.T) {
	// "x" + "y_z" and "x_y" + "z" both produce "x_y_z".
	clash := record.Record{
		"x":   map[string]any{"y_z": "from x"},
		"x_y": map[string]any{"z": "from x_y"},
	}

	got, err := Flattener{Policy: Overwrite}.Flatten([]record.Record{clash}, "x", "x_y")
	if err != nil {
		t.Fatalf("Overwrite: %v", err)
	}
	if got[0]["x_y_z"] != "from x_y" {
		t.Fatalf("x_y_z = %#v; want the later field to win", got[0]["x_y_z"])
	}

	_, err = Flattener{Policy: Reject}.Flatten([]record.Record{clash}, "x", "x_y")
	if !errors.Is(err, ErrKeyCollision) {
		t.Fatalf("Reject err = %v; want ErrKeyCollision", err)
	}

	shadow := record.Record{"t_a": "top", "t": map[string]any{"a": "nested"}}
	got, err = Flatten([]record.Record{shadow}, "t")
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if got[0]["t_a"] != "nested" {
		t.Fatalf("t_a = %#v; lifted keys should win", got[0]["t_a"])
	}
	_, err = Flattener{Policy: Reject}.Flatten([]record.Record{shadow}, "t")
	if !errors.Is(err, ErrKeyCollision) {
		t.Fatalf("Reject shadow err = %v", err)
	}
}

func TestFlatten_DuplicateField(t *testing.T) {
	in := record.Record{"t": map[string]any{"a": 1, "b": 2}, "id": 7}

	once, err := Flattener{Policy: Overwrite}.One(in, "t")
	if err != nil {
		t.Fatalf("One: %v", err)
	}
	twice, err := Flattener{Policy: Overwrite}.One(in, "t", "t")
	if err != nil {
		t.Fatalf("Overwrite: %v", err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("twice = %#v; want %#v", twice, once)
	}

	_, err = Flattener{Policy: Reject}.One(in, "t", "t")
	if !errors.Is(err, ErrKeyCollision) {
		t.Fatalf("Reject err = %v; want ErrKeyCollision", err)
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": Overwrite, "overwrite": Overwrite, "reject": Reject, "error": Reject} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParsePolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("namespace"); err == nil {
		t.Fatal("expected error")
	}
}
