package models

import (
	"testing"
	"time"
)

func TestMergeRecordsUnionsByID(t *testing.T) {
	merged := MergeRecords(
		[]Record{{ID: "1", Properties: map[string]any{"a": "x"}}, {ID: "2", Properties: map[string]any{"a": "z"}}},
		[]Record{{ID: "1", Properties: map[string]any{"b": "y"}}, {ID: "", Properties: map[string]any{"b": "lost"}}},
	)
	if len(merged) != 2 {
		t.Fatalf("expected 2 records, got %d", len(merged))
	}
	if merged[0].ID != "1" || merged[0].Properties["a"] != "x" || merged[0].Properties["b"] != "y" {
		t.Fatalf("expected union of fields for id 1, got %+v", merged[0])
	}
	if merged[1].ID != "2" {
		t.Fatalf("expected first-appearance order, got %s", merged[1].ID)
	}
}

func TestMergeRecordsLastWriteWins(t *testing.T) {
	merged := MergeRecords(
		[]Record{{ID: "1", Properties: map[string]any{"a": "old"}}},
		[]Record{{ID: "1", Properties: map[string]any{"a": "new"}}},
	)
	if got := merged[0].Properties["a"]; got != "new" {
		t.Fatalf("expected later chunk to win, got %v", got)
	}
}

func TestMergeRecordsDoesNotAliasInput(t *testing.T) {
	in := []Record{{ID: "1", Properties: map[string]any{"a": "x"}}}
	merged := MergeRecords(in, []Record{{ID: "1", Properties: map[string]any{"b": "y"}}})
	if _, ok := in[0].Properties["b"]; ok {
		t.Fatalf("merge must not modify input records")
	}
	if len(merged[0].Properties) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(merged[0].Properties))
	}
}

func TestValueSQLArg(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("EET", 2*3600))

	if Null().SQLArg() != nil {
		t.Fatalf("expected nil for null")
	}
	if String("a").SQLArg() != "a" {
		t.Fatalf("expected string arg")
	}
	if Number(1.5).SQLArg() != 1.5 {
		t.Fatalf("expected float arg")
	}
	if Bool(true).SQLArg() != true {
		t.Fatalf("expected bool arg")
	}
	got, ok := Timestamp(ts).SQLArg().(time.Time)
	if !ok || got.Location() != time.UTC || !got.Equal(ts) {
		t.Fatalf("expected UTC time equal to input, got %v", got)
	}
}

func TestRowGet(t *testing.T) {
	r := Row{ID: "42", Values: map[string]Value{"email": String("a@x.io")}}
	if r.Get(IDColumn) != String("42") {
		t.Fatalf("expected id value")
	}
	if r.Get("email").String() != "a@x.io" {
		t.Fatalf("expected email value")
	}
	if !r.Get("missing").IsNull() {
		t.Fatalf("expected null for missing column")
	}
	if !(Row{}).Get(IDColumn).IsNull() {
		t.Fatalf("expected null id for empty row")
	}
}

func TestParsePropertyType(t *testing.T) {
	cases := map[string]PropertyType{
		"string":          PropertyString,
		"number":          PropertyNumber,
		"datetime":        PropertyDatetime,
		"date":            PropertyDate,
		"bool":            PropertyBool,
		"booleancheckbox": PropertyBool,
		"enumeration":     PropertyOther,
		"phone_number":    PropertyOther,
	}
	for in, want := range cases {
		if got := ParsePropertyType(in); got != want {
			t.Fatalf("ParsePropertyType(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestSyncRunFinish(t *testing.T) {
	run := &SyncRun{StartedAt: time.Now().UTC().Add(-time.Second), Status: RunRunning}
	if run.Duration() != 0 {
		t.Fatalf("expected zero duration while running")
	}
	run.Finish(RunFailed, errTest("boom"))
	if run.Status != RunFailed || run.ErrorLog == nil || *run.ErrorLog != "boom" {
		t.Fatalf("unexpected finished run %+v", run)
	}
	if run.Duration() < time.Second {
		t.Fatalf("expected duration of at least 1s, got %s", run.Duration())
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
