package main

import "context"

// IndexImpl implements the Index interface
type IndexImpl struct {
	indexRaw IndexRaw
	schema   *SchemaRecord
}

// NewIndex creates a new logical index instance
func NewIndex(indexRaw IndexRaw, schema *SchemaRecord) *IndexImpl {
	return &IndexImpl{
		indexRaw: indexRaw,
		schema:   schema,
	}
}

// GetName returns the index name
func (i *IndexImpl) GetName() string {
	return i.schema.Name
}

// GetTableName returns the name of the table this index belongs to
func (i *IndexImpl) GetTableName() string {
	return i.indexRaw.GetTableName()
}

// GetColumns returns the indexed column names in declared order
func (i *IndexImpl) GetColumns() []string {
	return i.indexRaw.GetIndexedColumns()
}

// SearchByKey returns the rowids of entries whose key equals key
func (i *IndexImpl) SearchByKey(ctx context.Context, key string) ([]int64, error) {
	return i.indexRaw.SearchRowids(ctx, key)
}
