package gateway

import "strings"

// QuoteIdent double-quotes a SQL identifier, doubling any embedded double
// quotes. Every schema/table/column name interpolated into a statement
// built by this package goes through this function — including constants
// (spec invariant I2, design note "Identifier quoting").
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteQualified quotes a schema.table pair as two separately-quoted
// identifiers joined by a dot.
func QuoteQualified(schema, table string) string {
	return QuoteIdent(schema) + "." + QuoteIdent(table)
}
