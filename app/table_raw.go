package main

import (
	"context"
	"fmt"
)

// TableRawImpl implements TableRaw for raw SQLite table B-tree access
type TableRawImpl struct {
	dbRaw    DatabaseRaw
	name     string
	rootPage int
}

// NewTableRaw creates a new raw table instance
func NewTableRaw(dbRaw DatabaseRaw, name string, rootPage int) *TableRawImpl {
	return &TableRawImpl{
		dbRaw:    dbRaw,
		name:     name,
		rootPage: rootPage,
	}
}

// ReadAllCells returns every leaf cell of the table in traversal order.
func (tr *TableRawImpl) ReadAllCells(ctx context.Context) ([]Cell, error) {
	cells, err := NewTableBTree(tr.dbRaw, tr.rootPage).FullScan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan table %s: %w", tr.name, err)
	}
	return cells, nil
}

// ReadCellByRowid returns the leaf cell holding rowid, or nil when the
// rowid is absent.
func (tr *TableRawImpl) ReadCellByRowid(ctx context.Context, rowid int64) (*Cell, error) {
	cell, err := NewTableBTree(tr.dbRaw, tr.rootPage).LookupRowid(ctx, rowid)
	if err != nil {
		return nil, fmt.Errorf("lookup rowid %d in table %s: %w", rowid, tr.name, err)
	}
	return cell, nil
}

// CountRows sums the leaf cell counts of the table's B-tree.
func (tr *TableRawImpl) CountRows(ctx context.Context) (int, error) {
	count, err := NewTableBTree(tr.dbRaw, tr.rootPage).CountRows(ctx)
	if err != nil {
		return 0, fmt.Errorf("count rows of table %s: %w", tr.name, err)
	}
	return count, nil
}

// GetRootPage returns the root page number
func (tr *TableRawImpl) GetRootPage() int {
	return tr.rootPage
}

// GetName returns the table name
func (tr *TableRawImpl) GetName() string {
	return tr.name
}
