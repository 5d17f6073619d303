// Package mcpserver assembles the MCP server for each data backend: tool
// definitions with raw JSON schemas, handlers that validate input and
// dispatch to the backend, memo and schema resources, and the analysis
// prompts. Servers speak stdio; stdout carries the protocol, so every
// diagnostic goes to stderr.
//
// Failure policy: anything the caller can fix (missing argument, denied
// dataset, non-SELECT statement) and anything the backend reports (connection
// exhaustion, timeout, execution failure) comes back as an embedded error
// result, never as a protocol error. A failed query must not kill the
// session.
package mcpserver

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joestump/biodata-mcp/internal/history"
	"github.com/joestump/biodata-mcp/internal/memo"
	"github.com/joestump/biodata-mcp/internal/motherduck"
	"github.com/joestump/biodata-mcp/internal/rowset"
	"github.com/joestump/biodata-mcp/internal/sqlguard"
)

// Serve runs s over stdio until ctx is cancelled or stdin closes.
func Serve(ctx context.Context, s *server.MCPServer) error {
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(log.New(os.Stderr, "[mcp] ", log.LstdFlags))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// queryFault renders a backend failure using the error taxonomy the tools
// expose: validation messages pass through bare, connection failures carry
// their class prefix, and everything else (timeouts included, which keep
// their own distinct message) is an execution error.
func queryFault(err error) *mcp.CallToolResult {
	var denied *sqlguard.DeniedError
	var readOnly *sqlguard.ReadOnlyError
	var connErr *motherduck.ConnectError
	switch {
	case errors.As(err, &denied):
		return mcp.NewToolResultError(denied.Error())
	case errors.As(err, &readOnly):
		return mcp.NewToolResultError(readOnly.Error())
	case errors.As(err, &connErr):
		return mcp.NewToolResultError("Database connection error: " + connErr.Error())
	default:
		return mcp.NewToolResultError("Query execution error: " + err.Error())
	}
}

// recordQuery appends to the history log when one is configured. Recording
// failures are logged, never surfaced to the caller.
func recordQuery(h *history.Log, backend, tool, query string, rows int, started time.Time, err error) {
	if h == nil {
		return
	}
	e := &history.Entry{
		Backend:    backend,
		Tool:       tool,
		Query:      query,
		RowCount:   rows,
		DurationMs: time.Since(started).Milliseconds(),
	}
	if err != nil {
		msg := err.Error()
		e.Error = &msg
	}
	if rerr := h.Record(e); rerr != nil {
		log.Printf("[history] record: %v", rerr)
	}
}

func rowCount(rs *rowset.RowSet) int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

func memoResource(uri, name, description string) mcp.Resource {
	return mcp.NewResource(uri, name,
		mcp.WithResourceDescription(description),
		mcp.WithMIMEType("text/plain"),
	)
}

// memoResourceHandler serves the rendered memo text.
func memoResourceHandler(uri string, c *memo.Collection) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: uri, MIMEType: "text/plain", Text: c.Render()},
		}, nil
	}
}
