package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/xwb1989/sqlparser"
)

// DatabaseImpl implements the Database interface
type DatabaseImpl struct {
	dbRaw        DatabaseRaw
	tables       map[string]Table // cached tables
	indexes      map[string]Index // cached indexes
	schemas      []SchemaRecord   // cached schema records, in page order
	schemaLoaded bool             // flag to track if schema is loaded
}

// NewDatabase creates a new logical database instance with functional options
func NewDatabase(filePath string, options ...DatabaseOption) (*DatabaseImpl, error) {
	dbRaw, err := NewDatabaseRaw(filePath, options...)
	if err != nil {
		return nil, err
	}

	db := &DatabaseImpl{
		dbRaw:   dbRaw,
		tables:  make(map[string]Table),
		indexes: make(map[string]Index),
	}

	return db, nil
}

// LoadSchema loads and caches all schema records, tables, and indexes from the database
func (db *DatabaseImpl) LoadSchema(ctx context.Context) ([]SchemaRecord, error) {
	// Return cached schema if available
	if db.schemaLoaded {
		return db.schemas, nil
	}

	schemaCells, err := db.dbRaw.ReadSchemaTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	schemas := make([]SchemaRecord, 0, len(schemaCells))
	for i, cell := range schemaCells {
		schema, err := recordToSchema(&cell.Record)
		if err != nil {
			return nil, NewDatabaseError("load_schema", err, map[string]interface{}{
				"cell_index": i,
			})
		}
		schemas = append(schemas, *schema)
	}

	tables := make(map[string]Table)
	indexes := make(map[string]Index)

	// Single pass: create tables and indexes, and associate indexes with tables
	for i := range schemas {
		schema := &schemas[i]
		switch schema.Type {
		case "table":
			tableRaw := NewTableRaw(db.dbRaw, schema.Name, int(schema.RootPage))
			tables[schema.Name] = NewTable(tableRaw, schema)
		case "index":
			indexRaw := NewIndexRaw(db.dbRaw, schema.Name, int(schema.RootPage), schema)
			index := NewIndex(indexRaw, schema)
			indexes[schema.Name] = index
			if table, ok := tables[schema.TblName]; ok {
				table.AddIndex(index)
			}
		}
	}

	db.schemas = schemas
	db.tables = tables
	db.indexes = indexes
	db.schemaLoaded = true

	return schemas, nil
}

// SchemaElements returns every schema element in page order, unfiltered.
func (db *DatabaseImpl) SchemaElements(ctx context.Context) ([]SchemaRecord, error) {
	return db.LoadSchema(ctx)
}

// GetTable returns a table by name
func (db *DatabaseImpl) GetTable(ctx context.Context, name string) (Table, error) {
	if _, err := db.LoadSchema(ctx); err != nil {
		return nil, err
	}
	if table, exists := db.tables[name]; exists {
		return table, nil
	}
	return nil, NewDatabaseError("get_table", ErrTableNotFound, map[string]interface{}{
		"table_name": name,
	})
}

// GetIndex returns an index by name
func (db *DatabaseImpl) GetIndex(ctx context.Context, name string) (Index, error) {
	if _, err := db.LoadSchema(ctx); err != nil {
		return nil, err
	}
	if index, exists := db.indexes[name]; exists {
		return index, nil
	}
	return nil, NewDatabaseError("get_index", ErrInvalidSchema, map[string]interface{}{
		"index_name": name,
	})
}

// SchemaPageCellCount returns the number of cells on page 1.
func (db *DatabaseImpl) SchemaPageCellCount(ctx context.Context) (int, error) {
	return db.dbRaw.SchemaPageCellCount(ctx)
}

// GetPageSize returns the database page size
func (db *DatabaseImpl) GetPageSize() int {
	return db.dbRaw.GetPageSize()
}

// Close closes the database
func (db *DatabaseImpl) Close() error {
	return db.dbRaw.Close()
}

// recordToSchema lifts a page-1 record into a schema element. The record
// has five columns: type, name, tbl_name, rootpage, sql. The rootpage
// integer is accepted at any stored width.
func recordToSchema(record *Record) (*SchemaRecord, error) {
	if len(record.Values) < 5 {
		return nil, NewDatabaseError("record_to_schema", ErrInvalidSchema, map[string]interface{}{
			"column_count": len(record.Values),
		})
	}

	elementType, err := record.Values[0].Text()
	if err != nil {
		return nil, err
	}
	name, err := record.Values[1].Text()
	if err != nil {
		return nil, err
	}
	tblName, err := record.Values[2].Text()
	if err != nil {
		return nil, err
	}
	rootPage, err := record.Values[3].Int64()
	if err != nil {
		return nil, NewDatabaseError("record_to_schema", ErrInvalidSchema, map[string]interface{}{
			"reason": "rootpage is not an integer",
		})
	}
	sql := ""
	if last := record.Values[len(record.Values)-1]; !last.IsNull() {
		sql, err = last.Text()
		if err != nil {
			return nil, err
		}
	}

	return &SchemaRecord{
		Type:     elementType,
		Name:     name,
		TblName:  tblName,
		RootPage: rootPage,
		SQL:      sql,
	}, nil
}

// colKeyPrimary is sqlparser's unexported colKeyPrimary ColumnKeyOption value.
const colKeyPrimary = 1

// parseTableSchema lifts a stored CREATE TABLE statement into the
// executor-facing column list via the external SQL parser.
func parseTableSchema(schemaSQL string) ([]Column, error) {
	// Normalize SQLite syntax to MySQL syntax for sqlparser
	normalizedSQL := normalizeSQLiteToMySQL(schemaSQL)

	stmt, err := sqlparser.Parse(normalizedSQL)
	if err != nil {
		return nil, NewDatabaseError("parse_schema_sql", err, map[string]interface{}{
			"schema_sql":     schemaSQL,
			"normalized_sql": normalizedSQL,
		})
	}

	ddl, ok := stmt.(*sqlparser.DDL)
	if !ok || ddl.Action != "create" || ddl.TableSpec == nil {
		return nil, NewDatabaseError("parse_schema_sql", ErrInvalidSchema, map[string]interface{}{
			"statement_type": fmt.Sprintf("%T", stmt),
		})
	}

	// Table-level PRIMARY KEY (...) constraints land in TableSpec.Indexes.
	tableLevelPK := make(map[string]bool)
	for _, idx := range ddl.TableSpec.Indexes {
		if idx.Info != nil && idx.Info.Primary {
			for _, idxCol := range idx.Columns {
				tableLevelPK[strings.ToLower(idxCol.Column.String())] = true
			}
		}
	}

	columns := make([]Column, len(ddl.TableSpec.Columns))
	primaryKeys := 0
	for i, col := range ddl.TableSpec.Columns {
		name := col.Name.String()
		isPrimaryKey := int(col.Type.KeyOpt) == colKeyPrimary || tableLevelPK[strings.ToLower(name)]
		if isPrimaryKey {
			primaryKeys++
		}
		columns[i] = Column{
			Name:         name,
			Type:         col.Type.Type,
			Index:        i,
			IsPrimaryKey: isPrimaryKey,
		}
	}

	if primaryKeys > 1 {
		return nil, NewDatabaseError("parse_schema_sql", ErrInvalidSchema, map[string]interface{}{
			"reason":       "multiple primary keys",
			"primary_keys": primaryKeys,
		})
	}

	return columns, nil
}

// normalizeSQLiteToMySQL converts SQLite-specific syntax to MySQL syntax for sqlparser
func normalizeSQLiteToMySQL(sql string) string {
	// SQLite quotes identifiers with double quotes; the MySQL grammar
	// does not accept them for table names.
	normalized := strings.ReplaceAll(sql, `"`, "")

	// MySQL spells it "AUTO_INCREMENT PRIMARY KEY"
	normalized = strings.ReplaceAll(normalized, "primary key autoincrement", "AUTO_INCREMENT PRIMARY KEY")
	normalized = strings.ReplaceAll(normalized, "PRIMARY KEY AUTOINCREMENT", "AUTO_INCREMENT PRIMARY KEY")

	return strings.TrimSpace(normalized)
}
