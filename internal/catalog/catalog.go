// Package catalog holds the fixed set of reporting queries run against the
// study schema. Queries use positional "?" placeholders; values are bound by
// the query service and never spliced into the SQL text.
package catalog

import (
	"fmt"
	"strings"
)

// Query is a SQL statement plus the literal values bound to its placeholders.
type Query struct {
	Name   string
	SQL    string
	Params []string
}

// Summary pairs a summary query with the file stem it is written to.
type Summary struct {
	File  string
	Query Query
}

// Literal renders s as a SQL string literal for use as a bound parameter.
func Literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteIdent renders name as a double-quoted SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ShowTables lists every table in the session's schema. The result has a
// single tab_name column.
func ShowTables() Query {
	return Query{Name: "show_tables", SQL: "SHOW TABLES"}
}

// SelectAll returns every row of table.
func SelectAll(table string) Query {
	return Query{
		Name: "table_" + table,
		SQL:  fmt.Sprintf("SELECT * FROM %s", QuoteIdent(table)),
	}
}
