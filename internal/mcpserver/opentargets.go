package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joestump/biodata-mcp/internal/config"
	"github.com/joestump/biodata-mcp/internal/history"
	"github.com/joestump/biodata-mcp/internal/memo"
	"github.com/joestump/biodata-mcp/internal/rowset"
	"github.com/joestump/biodata-mcp/internal/sqlguard"
)

// geneQuerier is the slice of the Open Targets client the handlers need.
type geneQuerier interface {
	Query(ctx context.Context, query string, params map[string]string) (*rowset.RowSet, error)
	SearchGenes(ctx context.Context, search string) ([]string, error)
}

// OpenTargets exposes the Open Targets platform dataset on BigQuery over
// MCP: dataset browsing, validated read-only queries, gene symbol search,
// and an insights memo.
type OpenTargets struct {
	db      geneQuerier
	memo    *memo.Collection
	history *history.Log
	schema  []byte
}

// NewOpenTargets builds the Open Targets tool manager. hist may be nil to
// disable query history; schema is the document served at schema://database.
func NewOpenTargets(db geneQuerier, hist *history.Log, schema []byte) *OpenTargets {
	return &OpenTargets{
		db:      db,
		memo:    memo.New(memo.GeneInsights),
		history: hist,
		schema:  schema,
	}
}

const otListTablesSQL = "SELECT table_name\n" +
	"FROM `bigquery-public-data.open_targets_platform.INFORMATION_SCHEMA.TABLES`\n" +
	"ORDER BY table_name"

const otDescribeTableSQL = "SELECT column_name, data_type, is_nullable\n" +
	"FROM `bigquery-public-data.open_targets_platform.INFORMATION_SCHEMA.COLUMNS`\n" +
	"WHERE table_name = @table_name\n" +
	"ORDER BY ordinal_position"

// MCPServer assembles the MCP server with all Open Targets tools and
// resources registered.
func (s *OpenTargets) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer(
		"opentargets",
		config.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
	)

	srv.AddTools(
		server.ServerTool{Tool: otReadQueryTool(), Handler: s.handleReadQuery},
		server.ServerTool{Tool: otListTablesTool(), Handler: s.handleListTables},
		server.ServerTool{Tool: otDescribeTableTool(), Handler: s.handleDescribeTable},
		server.ServerTool{Tool: otAppendInsightTool(), Handler: s.handleAppendInsight},
		server.ServerTool{Tool: otSearchGeneNamesTool(), Handler: s.handleSearchGeneNames},
	)

	srv.AddResource(memoResource("memo://insights", "Gene Target Insights",
		"Key findings about gene targets discovered during analysis"),
		memoResourceHandler("memo://insights", s.memo))
	srv.AddResource(schemaResource(), schemaResourceHandler(s.schema))

	return srv
}

// --- Tool Definitions ---

func otReadQueryTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"read-query",
		"Execute a SELECT query on the BigQuery Open Targets platform dataset. Use this tool to extract and analyze specific data from any table.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {
					"type": "string",
					"description": "SELECT SQL query to execute"
				}
			},
			"required": ["query"]
		}`),
	)
}

func otListTablesTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"list-tables",
		"Get an overview of all available tables in the Open Targets platform dataset. This tool helps you understand the dataset structure before starting your analysis to identify relevant data sources.",
		json.RawMessage(`{
			"type": "object",
			"properties": {}
		}`),
	)
}

func otDescribeTableTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"describe-table",
		"Examine the detailed structure of a specific table in the Open Targets platform dataset, including column names and data types. Use this before querying to ensure you target the right columns and understand the data format.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"table_name": {
					"type": "string",
					"description": "Name of the table to describe"
				}
			},
			"required": ["table_name"]
		}`),
	)
}

func otAppendInsightTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"append-insight",
		"Record key findings and insights discovered during your analysis. Use this tool whenever you uncover meaningful patterns, trends, or notable observations about the data. This helps build a comprehensive analytical narrative and ensures important discoveries are documented.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"finding": {
					"type": "string",
					"description": "Analysis finding about data patterns or trends"
				}
			},
			"required": ["finding"]
		}`),
	)
}

func otSearchGeneNamesTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"search-gene-names",
		"Search for gene names in the Open Targets BigQuery dataset based on a search query.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"search": {
					"type": "string",
					"description": "Search query for gene names"
				}
			},
			"required": ["search"]
		}`),
	)
}

// --- Tool Handlers ---

type otReadQueryArgs struct {
	Query string `json:"query"`
}

func (s *OpenTargets) handleReadQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args otReadQueryArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Query == "" {
		return mcp.NewToolResultError("Missing query argument"), nil
	}
	if err := sqlguard.CheckReadOnly(args.Query); err != nil {
		return mcp.NewToolResultError("Only SELECT queries are allowed"), nil
	}

	log.Printf("[MCP] read-query called (%d chars)", len(args.Query))
	started := time.Now()
	rs, err := s.db.Query(ctx, args.Query, nil)
	recordQuery(s.history, "opentargets", "read-query", args.Query, rowCount(rs), started, err)
	if err != nil {
		return queryFault(err), nil
	}

	if rs.Empty() {
		return mcp.NewToolResultText("No results found"), nil
	}
	text, err := rs.JSONIndent()
	if err != nil {
		return mcp.NewToolResultError("Unexpected error: " + err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *OpenTargets) handleListTables(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	started := time.Now()
	rs, err := s.db.Query(ctx, otListTablesSQL, nil)
	recordQuery(s.history, "opentargets", "list-tables", otListTablesSQL, rowCount(rs), started, err)
	if err != nil {
		return queryFault(err), nil
	}

	names := make([]string, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		names = append(names, fmt.Sprintf("%v", row["table_name"]))
	}
	data, err := json.Marshal(names)
	if err != nil {
		return mcp.NewToolResultError("Unexpected error: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

type otDescribeTableArgs struct {
	TableName string `json:"table_name"`
}

func (s *OpenTargets) handleDescribeTable(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args otDescribeTableArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.TableName == "" {
		return mcp.NewToolResultError("Missing table_name argument"), nil
	}

	started := time.Now()
	rs, err := s.db.Query(ctx, otDescribeTableSQL, map[string]string{"table_name": args.TableName})
	recordQuery(s.history, "opentargets", "describe-table", otDescribeTableSQL, rowCount(rs), started, err)
	if err != nil {
		return queryFault(err), nil
	}

	if rs.Empty() {
		return mcp.NewToolResultText(fmt.Sprintf("Table '%s' does not exist", args.TableName)), nil
	}
	text, err := rs.JSON()
	if err != nil {
		return mcp.NewToolResultError("Unexpected error: " + err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

type otAppendInsightArgs struct {
	Finding string `json:"finding"`
}

func (s *OpenTargets) handleAppendInsight(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args otAppendInsightArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if err := s.memo.Add(args.Finding); err != nil {
		return mcp.NewToolResultError("Missing finding argument"), nil
	}
	return mcp.NewToolResultText("Insight added"), nil
}

type otSearchGeneNamesArgs struct {
	Search string `json:"search"`
}

func (s *OpenTargets) handleSearchGeneNames(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args otSearchGeneNamesArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Search == "" {
		return mcp.NewToolResultError("Missing search argument"), nil
	}

	started := time.Now()
	symbols, err := s.db.SearchGenes(ctx, args.Search)
	recordQuery(s.history, "opentargets", "search-gene-names", args.Search, len(symbols), started, err)
	if err != nil {
		return queryFault(err), nil
	}

	if len(symbols) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No genes found matching '%s'", args.Search)), nil
	}
	data, err := json.Marshal(symbols)
	if err != nil {
		return mcp.NewToolResultError("Unexpected error: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
