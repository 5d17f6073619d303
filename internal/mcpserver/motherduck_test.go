package mcpserver

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/joestump/biodata-mcp/internal/history"
	"github.com/joestump/biodata-mcp/internal/motherduck"
	"github.com/joestump/biodata-mcp/internal/rowset"
	"github.com/joestump/biodata-mcp/internal/sqlguard"
)

// --- Mock Backends ---

type mockDuck struct {
	lastQuery string
	lastArgs  []any
	calls     int

	result *rowset.RowSet
	err    error
}

func (m *mockDuck) ExecuteQuery(_ context.Context, query string, args ...any) (*rowset.RowSet, error) {
	m.calls++
	m.lastQuery = query
	m.lastArgs = args
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &rowset.RowSet{}, nil
}

// --- Helpers ---

func makeToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("result content is %T, not TextContent", result.Content[0])
	}
	return tc.Text
}

func readResourceRequest(uri string) mcp.ReadResourceRequest {
	var req mcp.ReadResourceRequest
	req.Params.URI = uri
	return req
}

func getPromptRequest(name string, args map[string]string) mcp.GetPromptRequest {
	var req mcp.GetPromptRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func textResourceContents(t *testing.T, rc mcp.ResourceContents) mcp.TextResourceContents {
	t.Helper()
	text, ok := rc.(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("resource contents is %T, not TextResourceContents", rc)
	}
	return text
}

// --- Tests ---

func TestDuckQuery_MissingSQL(t *testing.T) {
	mock := &mockDuck{}
	s := NewMotherDuck(mock, nil, nil)

	result, err := s.handleQuery(context.Background(), makeToolRequest("query", map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for missing sql argument")
	}
	if text := resultText(t, result); text != "SQL query is required" {
		t.Errorf("unexpected message: %s", text)
	}
	if mock.calls != 0 {
		t.Error("expected no query execution")
	}
}

func TestDuckQuery_RejectsNonSelect(t *testing.T) {
	mock := &mockDuck{}
	s := NewMotherDuck(mock, nil, nil)

	req := makeToolRequest("query", map[string]any{"sql": "DROP TABLE compound_pipeline.clinicaltrials.trial"})
	result, err := s.handleQuery(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for non-SELECT statement")
	}
	if text := resultText(t, result); text != "Only SELECT statements are allowed." {
		t.Errorf("unexpected message: %s", text)
	}
	if mock.calls != 0 {
		t.Error("expected statement to be rejected before execution")
	}
}

func TestDuckQuery_RejectsPiggybackedWrite(t *testing.T) {
	mock := &mockDuck{}
	s := NewMotherDuck(mock, nil, nil)

	req := makeToolRequest("query", map[string]any{"sql": "SELECT 1; DROP TABLE t"})
	result, err := s.handleQuery(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for piggybacked write")
	}
	if mock.calls != 0 {
		t.Error("expected statement to be rejected before execution")
	}
}

func TestDuckQuery_DeniedDataset(t *testing.T) {
	mock := &mockDuck{err: &sqlguard.DeniedError{Refs: []string{"db9"}}}
	s := NewMotherDuck(mock, nil, nil)

	req := makeToolRequest("query", map[string]any{"sql": "SELECT * FROM db9.s.t"})
	result, err := s.handleQuery(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for denied dataset")
	}
	if text := resultText(t, result); text != "Access denied to: db9" {
		t.Errorf("unexpected message: %s", text)
	}
}

func TestDuckQuery_ConnectionError(t *testing.T) {
	mock := &mockDuck{err: &motherduck.ConnectError{Attempts: 3, Err: errors.New("dial failed")}}
	s := NewMotherDuck(mock, nil, nil)

	req := makeToolRequest("query", map[string]any{"sql": "SELECT 1"})
	result, err := s.handleQuery(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	text := resultText(t, result)
	if !strings.HasPrefix(text, "Database connection error: ") {
		t.Errorf("expected connection error prefix, got: %s", text)
	}
	if !strings.Contains(text, "after 3 attempts") {
		t.Errorf("expected attempt count in message, got: %s", text)
	}
}

func TestDuckQuery_Timeout(t *testing.T) {
	mock := &mockDuck{err: &motherduck.TimeoutError{Limit: 30 * time.Second}}
	s := NewMotherDuck(mock, nil, nil)

	req := makeToolRequest("query", map[string]any{"sql": "SELECT * FROM big"})
	result, err := s.handleQuery(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if text := resultText(t, result); text != "Query execution error: query timed out after 30s" {
		t.Errorf("unexpected message: %s", text)
	}
}

func TestDuckQuery_RendersTable(t *testing.T) {
	mock := &mockDuck{result: &rowset.RowSet{
		Columns: []string{"id", "name"},
		Rows: []map[string]any{
			{"id": int64(1), "name": "nivolumab"},
			{"id": int64(2), "name": "pembrolizumab"},
		},
	}}
	s := NewMotherDuck(mock, nil, nil)

	req := makeToolRequest("query", map[string]any{"sql": "SELECT id, name FROM compound_pipeline.clinicaltrials.investigationalagent"})
	result, err := s.handleQuery(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got: %s", resultText(t, result))
	}

	want := "id  name\n1   nivolumab\n2   pembrolizumab"
	if text := resultText(t, result); text != want {
		t.Errorf("unexpected render:\n%s", text)
	}
}

func TestDuckQuery_NoResults(t *testing.T) {
	mock := &mockDuck{}
	s := NewMotherDuck(mock, nil, nil)

	req := makeToolRequest("query", map[string]any{"sql": "SELECT 1 WHERE false"})
	result, err := s.handleQuery(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got: %s", resultText(t, result))
	}
	if text := resultText(t, result); text != "Query returned no results" {
		t.Errorf("unexpected message: %s", text)
	}
}

func TestDuckListTables_All(t *testing.T) {
	mock := &mockDuck{result: &rowset.RowSet{
		Columns: []string{"database_name", "schema_name", "table_name", "full_name"},
		Rows: []map[string]any{
			{"full_name": "compound_pipeline.clinicaltrials.sponsor"},
			{"full_name": "compound_pipeline.clinicaltrials.trial"},
		},
	}}
	s := NewMotherDuck(mock, nil, nil)

	result, err := s.handleListTables(context.Background(), makeToolRequest("list-tables", map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got: %s", resultText(t, result))
	}

	want := "Available tables:\n- compound_pipeline.clinicaltrials.sponsor\n- compound_pipeline.clinicaltrials.trial"
	if text := resultText(t, result); text != want {
		t.Errorf("unexpected render:\n%s", text)
	}
	if len(mock.lastArgs) != 0 {
		t.Errorf("expected no query args, got %v", mock.lastArgs)
	}
	if !strings.Contains(mock.lastQuery, "information_schema.tables") {
		t.Errorf("unexpected query: %s", mock.lastQuery)
	}
}

func TestDuckListTables_DatabaseFilter(t *testing.T) {
	mock := &mockDuck{}
	s := NewMotherDuck(mock, nil, nil)

	req := makeToolRequest("list-tables", map[string]any{"database": "compound_pipeline"})
	result, err := s.handleListTables(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got: %s", resultText(t, result))
	}

	if text := resultText(t, result); text != "No tables found in database 'compound_pipeline'" {
		t.Errorf("unexpected message: %s", text)
	}
	if !strings.Contains(mock.lastQuery, "table_catalog = ?") {
		t.Errorf("expected catalog filter in query: %s", mock.lastQuery)
	}
	if len(mock.lastArgs) != 1 || mock.lastArgs[0] != "compound_pipeline" {
		t.Errorf("unexpected query args: %v", mock.lastArgs)
	}
}

func TestDuckDescribeTable_BadFormat(t *testing.T) {
	mock := &mockDuck{}
	s := NewMotherDuck(mock, nil, nil)

	req := makeToolRequest("describe-table", map[string]any{"table_name": "trial"})
	result, err := s.handleDescribeTable(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for unqualified table name")
	}
	if text := resultText(t, result); text != "Table name must be in format: database.schema.table" {
		t.Errorf("unexpected message: %s", text)
	}
	if mock.calls != 0 {
		t.Error("expected no query execution")
	}
}

func TestDuckDescribeTable_MissingArg(t *testing.T) {
	mock := &mockDuck{}
	s := NewMotherDuck(mock, nil, nil)

	result, err := s.handleDescribeTable(context.Background(), makeToolRequest("describe-table", map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for missing table_name")
	}
	if text := resultText(t, result); text != "Table name is required" {
		t.Errorf("unexpected message: %s", text)
	}
}

func TestDuckDescribeTable_RendersColumns(t *testing.T) {
	mock := &mockDuck{result: &rowset.RowSet{
		Columns: []string{"column_name", "data_type", "is_nullable", "column_default", "ordinal_position"},
		Rows: []map[string]any{
			{"column_name": "nct_id", "data_type": "VARCHAR", "is_nullable": "NO", "column_default": nil},
			{"column_name": "phase", "data_type": "VARCHAR", "is_nullable": "YES", "column_default": "'unknown'"},
		},
	}}
	s := NewMotherDuck(mock, nil, nil)

	req := makeToolRequest("describe-table", map[string]any{"table_name": "compound_pipeline.clinicaltrials.trial"})
	result, err := s.handleDescribeTable(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got: %s", resultText(t, result))
	}

	want := "Table: compound_pipeline.clinicaltrials.trial\n" +
		"Columns:\n" +
		"- nct_id (VARCHAR, NOT NULL)\n" +
		"- phase (VARCHAR, NULL, DEFAULT: 'unknown')"
	if text := resultText(t, result); text != want {
		t.Errorf("unexpected render:\n%s", text)
	}

	wantArgs := []any{"compound_pipeline", "clinicaltrials", "trial"}
	if len(mock.lastArgs) != 3 {
		t.Fatalf("expected 3 query args, got %v", mock.lastArgs)
	}
	for i, arg := range wantArgs {
		if mock.lastArgs[i] != arg {
			t.Errorf("arg %d = %v, want %v", i, mock.lastArgs[i], arg)
		}
	}
}

func TestDuckDescribeTable_NotFound(t *testing.T) {
	mock := &mockDuck{}
	s := NewMotherDuck(mock, nil, nil)

	req := makeToolRequest("describe-table", map[string]any{"table_name": "compound_pipeline.clinicaltrials.nope"})
	result, err := s.handleDescribeTable(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatal("expected plain text result for missing table, not an error")
	}
	if text := resultText(t, result); text != "No columns found for table 'compound_pipeline.clinicaltrials.nope'" {
		t.Errorf("unexpected message: %s", text)
	}
}

func TestDuckAppendInsight(t *testing.T) {
	mock := &mockDuck{}
	s := NewMotherDuck(mock, nil, nil)

	req := makeToolRequest("append-insight", map[string]any{"insight": "phase 3 starts cluster in oncology"})
	result, err := s.handleAppendInsight(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got: %s", resultText(t, result))
	}
	if text := resultText(t, result); text != "Insight recorded successfully" {
		t.Errorf("unexpected message: %s", text)
	}
	if s.memo.Len() != 1 {
		t.Errorf("expected 1 memo entry, got %d", s.memo.Len())
	}
}

func TestDuckAppendInsight_Empty(t *testing.T) {
	mock := &mockDuck{}
	s := NewMotherDuck(mock, nil, nil)

	result, err := s.handleAppendInsight(context.Background(), makeToolRequest("append-insight", map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for empty insight")
	}
	if text := resultText(t, result); text != "Insight text is required" {
		t.Errorf("unexpected message: %s", text)
	}
	if s.memo.Len() != 0 {
		t.Error("expected no memo entries")
	}
}

func TestDuckQuery_RecordsHistory(t *testing.T) {
	hist, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		hist.Close()
	})

	mock := &mockDuck{result: &rowset.RowSet{
		Columns: []string{"n"},
		Rows:    []map[string]any{{"n": int64(1)}},
	}}
	s := NewMotherDuck(mock, hist, nil)

	req := makeToolRequest("query", map[string]any{"sql": "SELECT 1 AS n"})
	if _, err := s.handleQuery(context.Background(), req); err != nil {
		t.Fatalf("handleQuery: %v", err)
	}

	entries, err := hist.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Backend != "motherduck" || e.Tool != "query" {
		t.Errorf("unexpected entry: backend=%s tool=%s", e.Backend, e.Tool)
	}
	if e.Query != "SELECT 1 AS n" {
		t.Errorf("unexpected query: %s", e.Query)
	}
	if e.RowCount != 1 {
		t.Errorf("expected row count 1, got %d", e.RowCount)
	}
	if e.Error != nil {
		t.Errorf("expected no error recorded, got %v", *e.Error)
	}
}

func TestMotherDuckMCPServer_Builds(t *testing.T) {
	s := NewMotherDuck(&mockDuck{}, nil, LoadSchema(""))
	if srv := s.MCPServer(); srv == nil {
		t.Fatal("expected assembled server")
	}
}
