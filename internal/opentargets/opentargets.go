// Package opentargets queries the Open Targets platform dataset hosted in
// BigQuery public data.
package opentargets

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/joestump/biodata-mcp/internal/rowset"
)

// DatasetID is the fully qualified BigQuery dataset the servers target.
const DatasetID = "bigquery-public-data.open_targets_platform"

// geneSearchSQL matches a lowercased pattern against symbol, id, name, and
// the three synonym list fields, ranked so symbol hits sort ahead of id,
// name, and synonym hits.
const geneSearchSQL = "SELECT DISTINCT\n" +
	"  approvedSymbol,\n" +
	"  CASE\n" +
	"    WHEN LOWER(approvedSymbol) LIKE @search THEN 0\n" +
	"    WHEN LOWER(id) LIKE @search THEN 1\n" +
	"    WHEN LOWER(approvedName) LIKE @search THEN 2\n" +
	"    ELSE 3\n" +
	"  END AS match_rank\n" +
	"FROM `bigquery-public-data.open_targets_platform.targets`\n" +
	"WHERE LOWER(approvedSymbol) LIKE @search\n" +
	"  OR LOWER(id) LIKE @search\n" +
	"  OR LOWER(approvedName) LIKE @search\n" +
	"  OR EXISTS(SELECT 1 FROM UNNEST(symbolSynonyms.list) syn WHERE LOWER(syn.element.label) LIKE @search)\n" +
	"  OR EXISTS(SELECT 1 FROM UNNEST(nameSynonyms.list) syn WHERE LOWER(syn.element.label) LIKE @search)\n" +
	"  OR EXISTS(SELECT 1 FROM UNNEST(obsoleteNames.list) syn WHERE LOWER(syn.element.label) LIKE @search)\n" +
	"ORDER BY match_rank, approvedSymbol\n" +
	"LIMIT 50"

// Client wraps a BigQuery client scoped to the Open Targets dataset.
type Client struct {
	bq *bigquery.Client
}

// NewClient builds the BigQuery client. With an empty projectID the project
// is detected from the credentials; with an empty credentialsFile the ambient
// application-default credentials apply.
func NewClient(ctx context.Context, projectID, credentialsFile string) (*Client, error) {
	if projectID == "" {
		projectID = bigquery.DetectProjectID
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	bq, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("BigQuery error: %w", err)
	}
	log.Printf("[opentargets] BigQuery client ready (project %s)", bq.Project())
	return &Client{bq: bq}, nil
}

// Query runs query with named parameters and materializes the rows. Column
// order follows the result schema.
func (c *Client) Query(ctx context.Context, query string, params map[string]string) (*rowset.RowSet, error) {
	q := c.bq.Query(query)
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		q.Parameters = append(q.Parameters, bigquery.QueryParameter{Name: name, Value: params[name]})
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("BigQuery error: %w", err)
	}

	rs := &rowset.RowSet{}
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("BigQuery error: %w", err)
		}
		if rs.Columns == nil {
			for _, f := range it.Schema {
				rs.Columns = append(rs.Columns, f.Name)
			}
		}
		out := make(map[string]any, len(row))
		for k, v := range row {
			out[k] = v
		}
		rs.Rows = append(rs.Rows, out)
	}
	return rs, nil
}

// SearchGenes looks up targets whose symbol, id, name, or synonyms contain
// search (case-insensitive). Results come back as ranked approved symbols,
// capped at 50.
func (c *Client) SearchGenes(ctx context.Context, search string) ([]string, error) {
	pattern := "%" + strings.ToLower(search) + "%"
	rs, err := c.Query(ctx, geneSearchSQL, map[string]string{"search": pattern})
	if err != nil {
		return nil, err
	}

	var symbols []string
	seen := make(map[string]bool)
	for _, row := range rs.Rows {
		symbol := fmt.Sprint(row["approvedSymbol"])
		if !seen[symbol] {
			seen[symbol] = true
			symbols = append(symbols, symbol)
		}
	}
	return symbols, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.bq.Close()
}
