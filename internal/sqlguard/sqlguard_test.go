package sqlguard

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	list := Parse(" db1, db2.schema2 ,, DB3.Sales ")
	if len(list) != 3 {
		t.Fatalf("expected 3 entries, got %d: %v", len(list), list)
	}
	if list[0] != (Dataset{Database: "db1"}) {
		t.Errorf("entry 0: got %+v", list[0])
	}
	if list[1] != (Dataset{Database: "db2", Schema: "schema2"}) {
		t.Errorf("entry 1: got %+v", list[1])
	}
	// Entries are lowercased at parse time.
	if list[2] != (Dataset{Database: "db3", Schema: "sales"}) {
		t.Errorf("entry 2: got %+v", list[2])
	}
}

func TestParseEmpty(t *testing.T) {
	if list := Parse(""); len(list) != 0 {
		t.Fatalf("expected empty list, got %v", list)
	}
}

func TestCheckEmptyListAllowsEverything(t *testing.T) {
	var list AllowList
	if err := list.Check("SELECT * FROM anything.at.all"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestCheckDatabaseEntryAllowsAnySchema(t *testing.T) {
	list := Parse("db1")
	if err := list.Check("SELECT * FROM db1.main.orders JOIN db1.staging.items USING (id)"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestCheckSchemaEntry(t *testing.T) {
	list := Parse("db2.schema2")
	if err := list.Check("select * from db2.schema2.trials"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	err := list.Check("select * from db2.other.trials")
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if got := denied.Error(); got != "Access denied to: db2.other" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestCheckDeniedDatabase(t *testing.T) {
	list := Parse("db1")
	err := list.Check("SELECT * FROM db9.main.secrets")
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	// Unknown databases are named without a schema.
	if got := denied.Error(); got != "Access denied to: db9" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestCheckTwoPartReference(t *testing.T) {
	list := Parse("db1")
	if err := list.Check("SELECT * FROM db1.orders"); err != nil {
		t.Fatalf("whole-database grant should admit db.table refs, got %v", err)
	}

	list = Parse("db1.schema1")
	if err := list.Check("SELECT * FROM db1.orders"); err == nil {
		t.Fatal("expected denial for db1.orders under a schema-scoped grant")
	}
}

func TestCheckSystemCatalogsAlwaysPass(t *testing.T) {
	list := Parse("db1")
	if err := list.Check("SELECT * FROM information_schema.tables"); err != nil {
		t.Fatalf("information_schema should bypass the list, got %v", err)
	}
	if err := list.Check("SELECT * FROM pg_catalog.pg_tables"); err != nil {
		t.Fatalf("pg_catalog should bypass the list, got %v", err)
	}
}

func TestCheckUnqualifiedQueriesPass(t *testing.T) {
	list := Parse("db1")
	if err := list.Check("SELECT 1"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := list.Check("select count(*) from trials"); err != nil {
		t.Fatalf("expected nil for unqualified table, got %v", err)
	}
}

func TestCheckDeduplicatesDeniedRefs(t *testing.T) {
	list := Parse("db2.schema2")
	err := list.Check("select * from db9.a.t join db9.a.u join db2.bad.v join db2.bad.w")
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if got := denied.Error(); got != "Access denied to: db9, db2.bad" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestCheckReadOnlyAllowsSelect(t *testing.T) {
	if err := CheckReadOnly("SELECT * FROM trials"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := CheckReadOnly("  select id from studies  "); err != nil {
		t.Fatalf("leading whitespace and case should not matter, got %v", err)
	}
}

func TestCheckReadOnlyRejectsNonSelect(t *testing.T) {
	for _, q := range []string{
		"DROP TABLE trials",
		"insert into t values (1)",
		"UPDATE t SET x = 1",
		"DELETE FROM t",
		"CREATE TABLE t (id INT)",
		"ALTER TABLE t ADD COLUMN x INT",
		"ATTACH 'other.db'",
		"DETACH other",
	} {
		if err := CheckReadOnly(q); err == nil {
			t.Errorf("expected rejection for %q", q)
		}
	}
}

func TestCheckReadOnlyRejectsPragma(t *testing.T) {
	err := CheckReadOnly("PRAGMA table_info('users');")
	var ro *ReadOnlyError
	if !errors.As(err, &ro) {
		t.Fatalf("expected ReadOnlyError, got %v", err)
	}
	if got := ro.Error(); got != "Only SELECT statements are allowed." {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestCheckReadOnlyRejectsPiggybackedStatements(t *testing.T) {
	for _, q := range []string{
		"SELECT * FROM t; DROP TABLE t;",
		"select * from t; insert into t values (1)",
		"SELECT 1; PRAGMA database_list",
	} {
		if err := CheckReadOnly(q); err == nil {
			t.Errorf("expected rejection for %q", q)
		}
	}
}
