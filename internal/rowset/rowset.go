// Package rowset materializes SQL query results into a driver-independent
// container so each frontend can render the same rows its own way.
package rowset

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// RowSet holds a query result with column order preserved.
type RowSet struct {
	Columns []string
	Rows    []map[string]any
}

// Read drains rows into a RowSet. Byte-slice cells are converted to strings
// so they render and marshal as text rather than base64.
func Read(rows *sql.Rows) (*RowSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	rs := &RowSet{Columns: cols}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := vals[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return rs, nil
}

// Empty reports whether the result has no rows.
func (r *RowSet) Empty() bool {
	return len(r.Rows) == 0
}

// Table renders an aligned plain-text table with a header row.
func (r *RowSet) Table() string {
	widths := make([]int, len(r.Columns))
	for i, col := range r.Columns {
		widths[i] = len(col)
	}
	cells := make([][]string, len(r.Rows))
	for ri, row := range r.Rows {
		line := make([]string, len(r.Columns))
		for ci, col := range r.Columns {
			line[ci] = cellText(row[col])
			if len(line[ci]) > widths[ci] {
				widths[ci] = len(line[ci])
			}
		}
		cells[ri] = line
	}

	var b strings.Builder
	writeLine := func(line []string) {
		for ci, cell := range line {
			if ci > 0 {
				b.WriteString("  ")
			}
			b.WriteString(cell)
			// Pad every column but the last so rows align.
			if pad := widths[ci] - len(cell); pad > 0 && ci < len(line)-1 {
				b.WriteString(strings.Repeat(" ", pad))
			}
		}
		b.WriteByte('\n')
	}
	writeLine(r.Columns)
	for _, line := range cells {
		writeLine(line)
	}
	return strings.TrimRight(b.String(), "\n")
}

func cellText(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}

// JSON renders the rows as a compact JSON array of objects, keyed in column
// order.
func (r *RowSet) JSON() (string, error) {
	out, err := json.Marshal(r.ordered())
	if err != nil {
		return "", fmt.Errorf("marshal rows: %w", err)
	}
	return string(out), nil
}

// JSONIndent renders the rows as a two-space indented JSON array.
func (r *RowSet) JSONIndent() (string, error) {
	out, err := json.MarshalIndent(r.ordered(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal rows: %w", err)
	}
	return string(out), nil
}

func (r *RowSet) ordered() []orderedRow {
	rows := make([]orderedRow, len(r.Rows))
	for i, row := range r.Rows {
		rows[i] = orderedRow{cols: r.Columns, row: row}
	}
	return rows
}

// orderedRow marshals a row with the RowSet's column order rather than the
// map's sorted keys.
type orderedRow struct {
	cols []string
	row  map[string]any
}

func (o orderedRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range o.cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(o.row[col])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
