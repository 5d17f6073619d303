package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joestump/biodata-mcp/internal/config"
	"github.com/joestump/biodata-mcp/internal/history"
	"github.com/joestump/biodata-mcp/internal/memo"
	"github.com/joestump/biodata-mcp/internal/rowset"
	"github.com/joestump/biodata-mcp/internal/sqlguard"
)

// duckQuerier is the slice of the connection manager the handlers need.
type duckQuerier interface {
	ExecuteQuery(ctx context.Context, query string, args ...any) (*rowset.RowSet, error)
}

// MotherDuck exposes the MotherDuck warehouse over MCP: catalog browsing,
// validated read-only queries, and an insights memo.
type MotherDuck struct {
	db      duckQuerier
	memo    *memo.Collection
	history *history.Log
	schema  []byte
}

// NewMotherDuck builds the MotherDuck tool manager. hist may be nil to
// disable query history; schema is the document served at schema://database.
func NewMotherDuck(db duckQuerier, hist *history.Log, schema []byte) *MotherDuck {
	return &MotherDuck{
		db:      db,
		memo:    memo.New(memo.DataAnalysis),
		history: hist,
		schema:  schema,
	}
}

const duckListTablesSQL = `SELECT
    table_catalog AS database_name,
    table_schema AS schema_name,
    table_name,
    concat(table_catalog, '.', table_schema, '.', table_name) AS full_name
FROM information_schema.tables
WHERE table_type = 'BASE TABLE'`

const duckDescribeTableSQL = `SELECT
    column_name,
    data_type,
    is_nullable,
    column_default,
    ordinal_position
FROM information_schema.columns
WHERE table_catalog = ? AND table_schema = ? AND table_name = ?
ORDER BY ordinal_position`

const duckPromptTools = `Database Tools:
- "query": Execute SQL queries using DuckDB syntax with fully qualified table names
- "list-tables": View available database tables
- "describe-table": Get table schema details
- "append-insight": Add findings to the analysis memo

Analysis Memos:
- memo://insights: Key findings, patterns, qualitative insights, and references`

// MCPServer assembles the MCP server with all MotherDuck tools, resources,
// and prompts registered.
func (s *MotherDuck) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer(
		"motherduck",
		config.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
	)

	srv.AddTools(
		server.ServerTool{Tool: duckListTablesTool(), Handler: s.handleListTables},
		server.ServerTool{Tool: duckDescribeTableTool(), Handler: s.handleDescribeTable},
		server.ServerTool{Tool: duckQueryTool(), Handler: s.handleQuery},
		server.ServerTool{Tool: duckAppendInsightTool(), Handler: s.handleAppendInsight},
	)

	srv.AddResource(memoResource("memo://insights", "Analysis Insights",
		"A living document of key findings, patterns, and qualitative insights from the analysis"),
		memoResourceHandler("memo://insights", s.memo))
	srv.AddResource(schemaResource(), schemaResourceHandler(s.schema))

	srv.AddPrompt(mcp.NewPrompt("data-analysis",
		mcp.WithPromptDescription("Guides a structured SQL analysis of a topic using the MotherDuck tools"),
		mcp.WithArgument("topic",
			mcp.ArgumentDescription("Subject to analyze (e.g., 'investigational agents', 'trial enrollment')"),
			mcp.RequiredArgument(),
		),
	), analysisPromptHandler("Data analysis for %s", duckPromptTools))

	return srv
}

// --- Tool Definitions ---

func duckListTablesTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"list-tables",
		"Lists all available tables in the MotherDuck database with their full names (database.schema.table). Uses DuckDB syntax. Optionally filter tables by database name.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"database": {
					"type": "string",
					"description": "Optional database name to filter tables (e.g., 'compound_pipeline')"
				}
			}
		}`),
	)
}

func duckDescribeTableTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"describe-table",
		"Get detailed information about a specific table's structure using DuckDB syntax. Shows column names, types, nullability, and default values. Provide the full table name in format: database.schema.table (e.g., 'compound_pipeline.clinicaltrials.investigationalagent')",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"table_name": {
					"type": "string",
					"description": "Full table name in DuckDB format (e.g., 'compound_pipeline.clinicaltrials.investigationalagent')"
				}
			},
			"required": ["table_name"]
		}`),
	)
}

func duckQueryTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"query",
		"Execute a SQL query using DuckDB syntax. Use fully qualified table names (database.schema.table). Example: SELECT * FROM compound_pipeline.clinicaltrials.investigationalagent LIMIT 5",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"sql": {
					"type": "string",
					"description": "SQL query in DuckDB syntax with fully qualified table names"
				}
			},
			"required": ["sql"]
		}`),
	)
}

func duckAppendInsightTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"append-insight",
		"Record an insight or observation about the data analysis. Use this to document important findings during analysis.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"insight": {
					"type": "string",
					"description": "The insight to record about the data analysis"
				}
			},
			"required": ["insight"]
		}`),
	)
}

// --- Tool Handlers ---

type duckListTablesArgs struct {
	Database string `json:"database"`
}

func (s *MotherDuck) handleListTables(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args duckListTablesArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	query := duckListTablesSQL
	var queryArgs []any
	if args.Database != "" {
		query += " AND table_catalog = ?"
		queryArgs = append(queryArgs, args.Database)
	}
	query += " ORDER BY table_catalog, table_schema, table_name"

	started := time.Now()
	rs, err := s.db.ExecuteQuery(ctx, query, queryArgs...)
	recordQuery(s.history, "motherduck", "list-tables", query, rowCount(rs), started, err)
	if err != nil {
		return queryFault(err), nil
	}

	if rs.Empty() {
		text := "No tables found"
		if args.Database != "" {
			text += fmt.Sprintf(" in database '%s'", args.Database)
		}
		return mcp.NewToolResultText(text), nil
	}

	lines := []string{"Available tables:"}
	for _, row := range rs.Rows {
		lines = append(lines, fmt.Sprintf("- %v", row["full_name"]))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

type duckDescribeTableArgs struct {
	TableName string `json:"table_name"`
}

func (s *MotherDuck) handleDescribeTable(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args duckDescribeTableArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.TableName == "" {
		return mcp.NewToolResultError("Table name is required"), nil
	}

	parts := strings.Split(args.TableName, ".")
	if len(parts) != 3 {
		return mcp.NewToolResultError("Table name must be in format: database.schema.table"), nil
	}

	started := time.Now()
	rs, err := s.db.ExecuteQuery(ctx, duckDescribeTableSQL, parts[0], parts[1], parts[2])
	recordQuery(s.history, "motherduck", "describe-table", duckDescribeTableSQL, rowCount(rs), started, err)
	if err != nil {
		return queryFault(err), nil
	}

	if rs.Empty() {
		return mcp.NewToolResultText(fmt.Sprintf("No columns found for table '%s'", args.TableName)), nil
	}

	lines := []string{fmt.Sprintf("Table: %s", args.TableName), "Columns:"}
	for _, row := range rs.Rows {
		nullability := "NOT NULL"
		if row["is_nullable"] == "YES" {
			nullability = "NULL"
		}
		line := fmt.Sprintf("- %v (%v, %s", row["column_name"], row["data_type"], nullability)
		if def, ok := row["column_default"].(string); ok && def != "" {
			line += ", DEFAULT: " + def
		}
		lines = append(lines, line+")")
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

type duckQueryArgs struct {
	SQL string `json:"sql"`
}

func (s *MotherDuck) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args duckQueryArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.SQL == "" {
		return mcp.NewToolResultError("SQL query is required"), nil
	}
	if err := sqlguard.CheckReadOnly(args.SQL); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	log.Printf("[MCP] query called (%d chars)", len(args.SQL))
	started := time.Now()
	rs, err := s.db.ExecuteQuery(ctx, args.SQL)
	recordQuery(s.history, "motherduck", "query", args.SQL, rowCount(rs), started, err)
	if err != nil {
		return queryFault(err), nil
	}

	if rs.Empty() {
		return mcp.NewToolResultText("Query returned no results"), nil
	}
	return mcp.NewToolResultText(rs.Table()), nil
}

type duckAppendInsightArgs struct {
	Insight string `json:"insight"`
}

func (s *MotherDuck) handleAppendInsight(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args duckAppendInsightArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if err := s.memo.Add(args.Insight); err != nil {
		return mcp.NewToolResultError("Insight text is required"), nil
	}
	return mcp.NewToolResultText("Insight recorded successfully"), nil
}
