package mcpserver

import (
	"context"
	_ "embed"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

//go:embed resources/database_schema.json
var defaultSchemaJSON []byte

// LoadSchema returns the document served at schema://database. A configured
// override path wins over the embedded default; an unreadable override
// degrades to an empty object rather than failing startup.
func LoadSchema(path string) []byte {
	if path == "" {
		return defaultSchemaJSON
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[mcp] schema file %s unavailable, serving empty schema: %v", path, err)
		return []byte("{}")
	}
	return data
}

func schemaResource() mcp.Resource {
	return mcp.NewResource("schema://database", "Database Schema",
		mcp.WithResourceDescription("Reference schema for the tables exposed by this backend"),
		mcp.WithMIMEType("application/json"),
	)
}

func schemaResourceHandler(doc []byte) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: "schema://database", MIMEType: "application/json", Text: string(doc)},
		}, nil
	}
}
