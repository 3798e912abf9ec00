package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
)

// DatabaseRawImpl implements DatabaseRaw over an SQLite database file.
// The file handle is a short-lived per-command resource: it is acquired
// when the command starts and released by Close on every exit path.
type DatabaseRawImpl struct {
	file           *os.File
	header         *DatabaseHeader
	pageSize       int
	config         *DatabaseConfig
	resourceMgr    *ResourceManager
	concurrencySem chan struct{} // Semaphore for limiting concurrency
}

// NewDatabaseRaw creates a new raw database instance with functional options
func NewDatabaseRaw(filePath string, options ...DatabaseOption) (*DatabaseRawImpl, error) {
	// Apply configuration options
	config := DefaultDatabaseConfig()
	for _, opt := range options {
		opt(config)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open database file %s: %w", filePath, err)
	}

	// Create resource manager
	resourceMgr := NewResourceManager()
	resourceMgr.Add(file)

	// Create concurrency semaphore
	concurrencySem := make(chan struct{}, config.MaxConcurrency)

	db := &DatabaseRawImpl{
		file:           file,
		config:         config,
		resourceMgr:    resourceMgr,
		concurrencySem: concurrencySem,
	}

	// Parse the database header
	if err := db.parseHeader(); err != nil {
		resourceMgr.Close()
		return nil, fmt.Errorf("parse database header of %s: %w", filePath, err)
	}

	return db, nil
}

// ReadPage reads a page from the database file with context support
func (db *DatabaseRawImpl) ReadPage(ctx context.Context, pageNum int) ([]byte, error) {
	// Acquire concurrency semaphore
	select {
	case db.concurrencySem <- struct{}{}:
		defer func() { <-db.concurrencySem }()
	case <-ctx.Done():
		return nil, fmt.Errorf("read page cancelled: %w", ctx.Err())
	}

	if pageNum < 1 {
		return nil, NewDatabaseError("read_page", ErrInvalidDatabase, map[string]interface{}{
			"page_num": pageNum,
		})
	}

	// SQLite pages are 1-indexed, so page 1 is at offset 0
	offset := int64(pageNum-1) * int64(db.pageSize)

	pageData := make([]byte, db.pageSize)
	n, err := db.file.ReadAt(pageData, offset)
	if err != nil {
		return nil, fmt.Errorf("read page %d at offset %d: %w", pageNum, offset, err)
	}
	if n != db.pageSize {
		return nil, fmt.Errorf("incomplete page read: page %d, expected %d bytes, got %d",
			pageNum, db.pageSize, n)
	}

	return pageData, nil
}

// ReadSchemaTable reads the schema table (sqlite_schema/sqlite_master)
// from page 1. Cells are returned in page order.
func (db *DatabaseRawImpl) ReadSchemaTable(ctx context.Context) ([]Cell, error) {
	page, err := loadPage(ctx, db, 1)
	if err != nil {
		return nil, fmt.Errorf("read schema table page: %w", err)
	}

	if !page.Header.IsLeafTable() {
		return nil, NewDatabaseError("read_schema_table", ErrInvalidPageType, map[string]interface{}{
			"expected_type": PageTypeLeafTable,
			"actual_type":   page.Header.PageType,
		})
	}

	cells := make([]Cell, 0, page.Header.CellCount)
	for i := 0; i < int(page.Header.CellCount); i++ {
		cell, err := readCellAt(ctx, db, page, i, CellTableLeaf)
		if err != nil {
			return nil, fmt.Errorf("read schema cell %d: %w", i, err)
		}
		cells = append(cells, *cell)
	}

	return cells, nil
}

// SchemaPageCellCount returns the number of cells on page 1.
func (db *DatabaseRawImpl) SchemaPageCellCount(ctx context.Context) (int, error) {
	page, err := loadPage(ctx, db, 1)
	if err != nil {
		return 0, fmt.Errorf("read schema page header: %w", err)
	}
	return int(page.Header.CellCount), nil
}

// GetPageSize returns the database page size
func (db *DatabaseRawImpl) GetPageSize() int {
	return db.pageSize
}

// GetHeader returns the database header for inspection
func (db *DatabaseRawImpl) GetHeader() *DatabaseHeader {
	return db.header
}

// TraversalPageBudget returns the configured per-traversal page cap.
func (db *DatabaseRawImpl) TraversalPageBudget() int {
	return db.config.TraversalPageBudget
}

// Close closes the database file using resource manager
func (db *DatabaseRawImpl) Close() error {
	if db.resourceMgr != nil {
		return db.resourceMgr.Close()
	}
	return nil
}

// parseHeader parses the 100-byte database header using Go's binary package
func (db *DatabaseRawImpl) parseHeader() error {
	headerBytes := make([]byte, databaseHeaderSize)
	if _, err := db.file.ReadAt(headerBytes, 0); err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	db.header = &DatabaseHeader{}
	if err := binary.Read(bytes.NewReader(headerBytes), binary.BigEndian, db.header); err != nil {
		return fmt.Errorf("decode header: %w", err)
	}

	if !db.header.IsValidMagicNumber() {
		return NewDatabaseError("parse_header", ErrInvalidDatabase, map[string]interface{}{
			"magic": string(db.header.MagicNumber[:15]),
		})
	}

	db.pageSize = db.header.GetActualPageSize()

	// Page size must be a power of 2 between 512 and 65536
	if db.pageSize < 512 || db.pageSize > 65536 || (db.pageSize&(db.pageSize-1)) != 0 {
		return NewDatabaseError("parse_header", ErrInvalidDatabase, map[string]interface{}{
			"page_size": db.pageSize,
		})
	}

	return nil
}
