package main

import "context"

// TableImpl implements the Table interface
type TableImpl struct {
	tableRaw TableRaw
	schema   *SchemaRecord
	columns  []Column // cached column information
	indexes  []Index  // indexes associated with this table, in schema order
}

// NewTable creates a new logical table instance
func NewTable(tableRaw TableRaw, schema *SchemaRecord) *TableImpl {
	return &TableImpl{
		tableRaw: tableRaw,
		schema:   schema,
	}
}

// GetSchema returns the column schema for the table
func (t *TableImpl) GetSchema(ctx context.Context) ([]Column, error) {
	// Return cached columns if available
	if len(t.columns) > 0 {
		return t.columns, nil
	}

	columns, err := parseTableSchema(t.schema.SQL)
	if err != nil {
		return nil, NewDatabaseError("get_table_schema", err, map[string]interface{}{
			"table_name": t.schema.Name,
			"schema_sql": t.schema.SQL,
		})
	}

	t.columns = columns
	return columns, nil
}

// GetRows returns all rows from the table in traversal order.
func (t *TableImpl) GetRows(ctx context.Context) ([]Row, error) {
	cells, err := t.tableRaw.ReadAllCells(ctx)
	if err != nil {
		return nil, NewDatabaseError("get_table_rows", err, map[string]interface{}{
			"table_name": t.schema.Name,
		})
	}

	rows := make([]Row, len(cells))
	for i := range cells {
		rows[i] = cellToRow(&cells[i])
	}
	return rows, nil
}

// GetRowByRowid returns the row with the given rowid, or nil if it does
// not exist.
func (t *TableImpl) GetRowByRowid(ctx context.Context, rowid int64) (*Row, error) {
	cell, err := t.tableRaw.ReadCellByRowid(ctx, rowid)
	if err != nil {
		return nil, NewDatabaseError("get_row_by_rowid", err, map[string]interface{}{
			"table_name": t.schema.Name,
			"rowid":      rowid,
		})
	}
	if cell == nil {
		return nil, nil
	}
	row := cellToRow(cell)
	return &row, nil
}

// Count returns the number of rows in the table from leaf cell counts,
// without decoding any record.
func (t *TableImpl) Count(ctx context.Context) (int, error) {
	count, err := t.tableRaw.CountRows(ctx)
	if err != nil {
		return 0, NewDatabaseError("count_table_rows", err, map[string]interface{}{
			"table_name": t.schema.Name,
		})
	}
	return count, nil
}

// GetName returns the table name
func (t *TableImpl) GetName() string {
	return t.schema.Name
}

// AddIndex associates an index with this table
func (t *TableImpl) AddIndex(index Index) {
	t.indexes = append(t.indexes, index)
}

// GetIndexes returns the indexes associated with this table, in schema order
func (t *TableImpl) GetIndexes(ctx context.Context) ([]Index, error) {
	return t.indexes, nil
}

// cellToRow converts a table-leaf cell to a row
func cellToRow(cell *Cell) Row {
	return Row{
		Rowid:  cell.Rowid(),
		Values: cell.Record.Values,
	}
}
