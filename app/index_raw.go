package main

import (
	"context"
	"fmt"
	"strings"
)

// IndexRawImpl implements IndexRaw for raw SQLite index B-tree access
type IndexRawImpl struct {
	dbRaw          DatabaseRaw
	name           string
	rootPage       int
	indexedColumns []string // columns that this index covers, in declared order
	tableName      string   // table this index belongs to
}

// NewIndexRaw creates a new raw index instance. The indexed column list
// and table name are lifted from the stored CREATE INDEX statement.
func NewIndexRaw(dbRaw DatabaseRaw, name string, rootPage int, schema *SchemaRecord) *IndexRawImpl {
	tableName := parseIndexTableName(schema.SQL)
	if tableName == "" {
		tableName = schema.TblName
	}
	return &IndexRawImpl{
		dbRaw:          dbRaw,
		name:           name,
		rootPage:       rootPage,
		indexedColumns: parseIndexColumns(schema.SQL),
		tableName:      tableName,
	}
}

// SearchRowids probes the index B-tree and returns the rowids of every
// entry whose key equals key.
func (ir *IndexRawImpl) SearchRowids(ctx context.Context, key string) ([]int64, error) {
	rowids, err := NewIndexBTree(ir.dbRaw, ir.rootPage).SearchEqual(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("search index %s: %w", ir.name, err)
	}
	return rowids, nil
}

// GetIndexedColumns returns the columns covered by this index
func (ir *IndexRawImpl) GetIndexedColumns() []string {
	return ir.indexedColumns
}

// GetTableName returns the name of the table this index belongs to
func (ir *IndexRawImpl) GetTableName() string {
	return ir.tableName
}

// GetRootPage returns the root page number
func (ir *IndexRawImpl) GetRootPage() int {
	return ir.rootPage
}

// GetName returns the index name
func (ir *IndexRawImpl) GetName() string {
	return ir.name
}

// parseIndexColumns extracts the indexed column names from a CREATE
// INDEX statement. The external parser folds CREATE INDEX into an ALTER
// and drops the column list, so the list is lifted from the SQL text:
// the part between the parentheses, split on commas, case preserved.
func parseIndexColumns(sql string) []string {
	start := strings.Index(sql, "(")
	end := strings.LastIndex(sql, ")")
	if start == -1 || end == -1 || start >= end {
		return []string{}
	}

	columns := strings.Split(sql[start+1:end], ",")
	for i, col := range columns {
		columns[i] = strings.Trim(strings.TrimSpace(col), `"`)
	}
	return columns
}

// parseIndexTableName extracts the table name from a CREATE INDEX
// statement: the identifier after ON, stripped of the column list.
func parseIndexTableName(sql string) string {
	upper := strings.ToUpper(sql)
	onIndex := strings.Index(upper, " ON ")
	if onIndex == -1 {
		return ""
	}

	afterOn := strings.TrimSpace(sql[onIndex+4:])
	if parenIndex := strings.Index(afterOn, "("); parenIndex != -1 {
		afterOn = afterOn[:parenIndex]
	}
	fields := strings.Fields(afterOn)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], `"`)
}
