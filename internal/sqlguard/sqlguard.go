// Package sqlguard screens SQL text before it reaches a backend. It provides
// a read-only statement guard and a dataset allow-list check, both built on
// lightweight pattern matching rather than a SQL parser. The checks are
// best-effort: they can over-reject text that merely contains a keyword and
// cannot see references hidden behind views or computed names.
package sqlguard

import (
	"regexp"
	"strings"
)

// tableRefPattern matches dotted references such as db.schema or
// db.schema.table anywhere in a query.
var tableRefPattern = regexp.MustCompile(`([a-zA-Z0-9_]+)\.([a-zA-Z0-9_]+)(?:\.([a-zA-Z0-9_]+))?`)

// writeKeywords reject a query outright when present anywhere in its text.
// The whole-query substring match is intentionally coarse.
var writeKeywords = []string{
	"ATTACH", "DETACH", "PRAGMA", "ALTER", "DROP", "CREATE", "INSERT", "UPDATE", "DELETE",
}

// Dataset is one allow-list entry. An empty Schema grants the whole
// database. Both parts are stored lowercased.
type Dataset struct {
	Database string
	Schema   string
}

func (d Dataset) String() string {
	if d.Schema == "" {
		return d.Database
	}
	return d.Database + "." + d.Schema
}

// AllowList restricts which datasets a query may reference. An empty list
// allows everything.
type AllowList []Dataset

// DeniedError reports references outside the allow-list.
type DeniedError struct {
	Refs []string
}

func (e *DeniedError) Error() string {
	return "Access denied to: " + strings.Join(e.Refs, ", ")
}

// ReadOnlyError reports a statement that is not a plain SELECT.
type ReadOnlyError struct{}

func (e *ReadOnlyError) Error() string {
	return "Only SELECT statements are allowed."
}

// Parse builds an AllowList from a comma-separated string of database or
// database.schema entries. Whitespace around entries is ignored and empty
// entries are dropped.
func Parse(raw string) AllowList {
	var list AllowList
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		db, schema, _ := strings.Cut(entry, ".")
		list = append(list, Dataset{Database: db, Schema: schema})
	}
	return list
}

// Check extracts every dotted reference from query and verifies each against
// the list. References into information_schema or pg_catalog always pass, as
// do queries with no dotted references at all.
func (l AllowList) Check(query string) error {
	if len(l) == 0 {
		return nil
	}
	q := strings.ToLower(query)
	if strings.Contains(q, "information_schema.") || strings.Contains(q, "pg_catalog.") {
		return nil
	}

	var denied []string
	seen := make(map[string]bool)
	for _, m := range tableRefPattern.FindAllStringSubmatch(q, -1) {
		db, schema := m[1], m[2]
		if l.authorized(db, schema) {
			continue
		}
		// Name the schema only when the database itself is known, so the
		// message points at the narrowest denied identifier.
		ref := db
		if l.knownDatabase(db) {
			ref = db + "." + schema
		}
		if !seen[ref] {
			seen[ref] = true
			denied = append(denied, ref)
		}
	}
	if len(denied) > 0 {
		return &DeniedError{Refs: denied}
	}
	return nil
}

func (l AllowList) authorized(db, schema string) bool {
	for _, d := range l {
		if d.Database != db {
			continue
		}
		if d.Schema == "" || d.Schema == schema {
			return true
		}
	}
	return false
}

func (l AllowList) knownDatabase(db string) bool {
	for _, d := range l {
		if d.Database == db {
			return true
		}
	}
	return false
}

// CheckReadOnly verifies that query is a single SELECT statement carrying
// none of the write keywords anywhere in its text.
func CheckReadOnly(query string) error {
	q := strings.ToUpper(strings.TrimSpace(query))
	if !strings.HasPrefix(q, "SELECT") {
		return &ReadOnlyError{}
	}
	for _, kw := range writeKeywords {
		if strings.Contains(q, kw) {
			return &ReadOnlyError{}
		}
	}
	return nil
}
