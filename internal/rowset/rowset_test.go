package rowset

import (
	"strings"
	"testing"
)

func sampleRows() *RowSet {
	return &RowSet{
		Columns: []string{"id", "name"},
		Rows: []map[string]any{
			{"id": 1, "name": "duckdb"},
			{"id": 2, "name": "pg"},
		},
	}
}

func TestEmpty(t *testing.T) {
	rs := &RowSet{Columns: []string{"a"}}
	if !rs.Empty() {
		t.Fatal("expected Empty for zero rows")
	}
	if sampleRows().Empty() {
		t.Fatal("expected non-empty")
	}
}

func TestTable(t *testing.T) {
	got := sampleRows().Table()
	want := "id  name\n1   duckdb\n2   pg"
	if got != want {
		t.Fatalf("unexpected table:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestTableNullCell(t *testing.T) {
	rs := &RowSet{
		Columns: []string{"col"},
		Rows:    []map[string]any{{"col": nil}},
	}
	if got := rs.Table(); !strings.Contains(got, "NULL") {
		t.Fatalf("expected NULL cell, got %q", got)
	}
}

func TestJSONPreservesColumnOrder(t *testing.T) {
	rs := &RowSet{
		Columns: []string{"zeta", "alpha"},
		Rows:    []map[string]any{{"zeta": 1, "alpha": "x"}},
	}
	got, err := rs.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	// encoding/json would sort map keys; the row marshaler must not.
	want := `[{"zeta":1,"alpha":"x"}]`
	if got != want {
		t.Fatalf("unexpected JSON: %s", got)
	}
}

func TestJSONEmptyRows(t *testing.T) {
	rs := &RowSet{Columns: []string{"a"}}
	got, err := rs.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if got != "[]" {
		t.Fatalf("expected [], got %s", got)
	}
}

func TestJSONIndent(t *testing.T) {
	got, err := sampleRows().JSONIndent()
	if err != nil {
		t.Fatalf("JSONIndent: %v", err)
	}
	if !strings.Contains(got, "\n  {") {
		t.Fatalf("expected indented objects, got %s", got)
	}
	if !strings.Contains(got, `"name": "duckdb"`) {
		t.Fatalf("missing cell value: %s", got)
	}
}
