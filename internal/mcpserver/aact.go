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

// trialQuerier is the slice of the AACT client the handlers need.
type trialQuerier interface {
	Query(ctx context.Context, query string, args ...any) (*rowset.RowSet, error)
}

// AACT exposes the AACT clinical trials registry over MCP. It keeps three
// memos: business insights, landscape findings, and quantitative metrics.
type AACT struct {
	db        trialQuerier
	insights  *memo.Collection
	landscape *memo.Collection
	metrics   *memo.Collection
	history   *history.Log
}

// NewAACT builds the AACT tool manager. hist may be nil to disable query
// history.
func NewAACT(db trialQuerier, hist *history.Log) *AACT {
	return &AACT{
		db:        db,
		insights:  memo.New(memo.TrialInsights),
		landscape: memo.New(memo.TrialLandscape),
		metrics:   memo.New(memo.TrialMetrics),
		history:   hist,
	}
}

const aactListTablesSQL = `SELECT table_name
FROM information_schema.tables
WHERE table_schema = 'ctgov'
ORDER BY table_name`

const aactDescribeTableSQL = `SELECT column_name, data_type, character_maximum_length
FROM information_schema.columns
WHERE table_schema = 'ctgov' AND table_name = $1
ORDER BY ordinal_position`

const aactPromptTools = `Database Tools:
- "read-query": Execute SELECT queries on the AACT clinical trials database
- "list-tables": View available database tables
- "describe-table": Get table schema details
- "append-insight": Add business insights to the memo
- "append-landscape": Record trial patterns and development trends
- "append-metrics": Record quantitative trial metrics

Analysis Memos:
- memo://insights: Business insights discovered during analysis
- memo://landscape: Trial patterns, sponsor activity, and development trends
- memo://metrics: Quantitative metrics about trial phases and activity`

// MCPServer assembles the MCP server with all AACT tools, resources, and
// prompts registered.
func (s *AACT) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer(
		"aact",
		config.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
	)

	srv.AddTools(
		server.ServerTool{Tool: aactReadQueryTool(), Handler: s.handleReadQuery},
		server.ServerTool{Tool: aactListTablesTool(), Handler: s.handleListTables},
		server.ServerTool{Tool: aactDescribeTableTool(), Handler: s.handleDescribeTable},
		server.ServerTool{Tool: aactAppendInsightTool(), Handler: s.handleAppendInsight},
		server.ServerTool{Tool: aactAppendLandscapeTool(), Handler: s.handleAppendLandscape},
		server.ServerTool{Tool: aactAppendMetricsTool(), Handler: s.handleAppendMetrics},
	)

	srv.AddResource(memoResource("memo://insights", "Business Insights",
		"Business insights discovered during clinical trial data analysis"),
		memoResourceHandler("memo://insights", s.insights))
	srv.AddResource(memoResource("memo://landscape", "Clinical Trial Landscape",
		"Key findings about trial patterns, sponsor activity, and development trends"),
		memoResourceHandler("memo://landscape", s.landscape))
	srv.AddResource(memoResource("memo://metrics", "Trial Metrics",
		"Quantitative metrics about trial phases, success rates, and temporal trends"),
		memoResourceHandler("memo://metrics", s.metrics))

	srv.AddPrompt(mcp.NewPrompt("indication-landscape",
		mcp.WithPromptDescription("Analyzes clinical trial patterns, development trends, and competitive dynamics within specific therapeutic areas"),
		mcp.WithArgument("topic",
			mcp.ArgumentDescription("Therapeutic area or indication to analyze (e.g., 'multiple sclerosis', 'breast cancer')"),
			mcp.RequiredArgument(),
		),
	), analysisPromptHandler("Clinical trial landscape analysis for %s", aactPromptTools))

	return srv
}

// --- Tool Definitions ---

func aactReadQueryTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"read-query",
		"Execute a SELECT query on the AACT clinical trials database",
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

func aactListTablesTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"list-tables",
		"List all tables in the AACT database",
		json.RawMessage(`{
			"type": "object",
			"properties": {}
		}`),
	)
}

func aactDescribeTableTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"describe-table",
		"Get the schema information for a specific table in AACT",
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

func aactAppendInsightTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"append-insight",
		"Add a business insight to the memo",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"insight": {
					"type": "string",
					"description": "Business insight discovered from data analysis"
				}
			},
			"required": ["insight"]
		}`),
	)
}

func aactAppendLandscapeTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"append-landscape",
		"Add findings about trial patterns and development trends",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"finding": {
					"type": "string",
					"description": "Analysis finding about trial patterns or trends"
				}
			},
			"required": ["finding"]
		}`),
	)
}

func aactAppendMetricsTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"append-metrics",
		"Add quantitative metrics about trials",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"metric": {
					"type": "string",
					"description": "Quantitative metric or statistical finding"
				}
			},
			"required": ["metric"]
		}`),
	)
}

// --- Tool Handlers ---

type aactReadQueryArgs struct {
	Query string `json:"query"`
}

func (s *AACT) handleReadQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args aactReadQueryArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Query == "" {
		return mcp.NewToolResultError("Missing query argument"), nil
	}
	if err := sqlguard.CheckReadOnly(args.Query); err != nil {
		return mcp.NewToolResultError("Only SELECT queries are allowed for read-query"), nil
	}

	log.Printf("[MCP] read-query called (%d chars)", len(args.Query))
	started := time.Now()
	rs, err := s.db.Query(ctx, args.Query)
	recordQuery(s.history, "aact", "read-query", args.Query, rowCount(rs), started, err)
	if err != nil {
		return queryFault(err), nil
	}

	if rs.Empty() {
		return mcp.NewToolResultText("No results found"), nil
	}
	text, err := rs.JSON()
	if err != nil {
		return mcp.NewToolResultError("Unexpected error: " + err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *AACT) handleListTables(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	started := time.Now()
	rs, err := s.db.Query(ctx, aactListTablesSQL)
	recordQuery(s.history, "aact", "list-tables", aactListTablesSQL, rowCount(rs), started, err)
	if err != nil {
		return queryFault(err), nil
	}

	text, err := rs.JSON()
	if err != nil {
		return mcp.NewToolResultError("Unexpected error: " + err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

type aactDescribeTableArgs struct {
	TableName string `json:"table_name"`
}

func (s *AACT) handleDescribeTable(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args aactDescribeTableArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.TableName == "" {
		return mcp.NewToolResultError("Missing table_name argument"), nil
	}

	started := time.Now()
	rs, err := s.db.Query(ctx, aactDescribeTableSQL, args.TableName)
	recordQuery(s.history, "aact", "describe-table", aactDescribeTableSQL, rowCount(rs), started, err)
	if err != nil {
		return queryFault(err), nil
	}

	if rs.Empty() {
		return mcp.NewToolResultText(fmt.Sprintf("Table '%s' does not exist in the ctgov schema", args.TableName)), nil
	}
	text, err := rs.JSON()
	if err != nil {
		return mcp.NewToolResultError("Unexpected error: " + err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

type aactAppendInsightArgs struct {
	Insight string `json:"insight"`
}

func (s *AACT) handleAppendInsight(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args aactAppendInsightArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if err := s.insights.Add(args.Insight); err != nil {
		return mcp.NewToolResultError("Missing insight argument"), nil
	}
	return mcp.NewToolResultText("Insight added to memo"), nil
}

type aactAppendLandscapeArgs struct {
	Finding string `json:"finding"`
}

func (s *AACT) handleAppendLandscape(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args aactAppendLandscapeArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if err := s.landscape.Add(args.Finding); err != nil {
		return mcp.NewToolResultError("Missing finding argument"), nil
	}
	return mcp.NewToolResultText("Landscape finding added"), nil
}

type aactAppendMetricsArgs struct {
	Metric string `json:"metric"`
}

func (s *AACT) handleAppendMetrics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args aactAppendMetricsArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if err := s.metrics.Add(args.Metric); err != nil {
		return mcp.NewToolResultError("Missing metric argument"), nil
	}
	return mcp.NewToolResultText("Metric added"), nil
}
