package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// Test fixtures: a minimal in-memory page store implementing DatabaseRaw
// for walker-level tests, and a builder that assembles complete SQLite
// database files byte by byte for end-to-end tests.

// memDatabaseRaw serves pre-built pages from memory.
type memDatabaseRaw struct {
	pageSize int
	pages    [][]byte // pages[0] is page 1
	budget   int
}

func (m *memDatabaseRaw) ReadPage(ctx context.Context, pageNum int) ([]byte, error) {
	if pageNum < 1 || pageNum > len(m.pages) {
		return nil, fmt.Errorf("page %d out of range (have %d pages)", pageNum, len(m.pages))
	}
	return m.pages[pageNum-1], nil
}

func (m *memDatabaseRaw) ReadSchemaTable(ctx context.Context) ([]Cell, error) {
	page, err := loadPage(ctx, m, 1)
	if err != nil {
		return nil, err
	}
	cells := make([]Cell, 0, page.Header.CellCount)
	for i := 0; i < int(page.Header.CellCount); i++ {
		cell, err := readCellAt(ctx, m, page, i, CellTableLeaf)
		if err != nil {
			return nil, err
		}
		cells = append(cells, *cell)
	}
	return cells, nil
}

func (m *memDatabaseRaw) SchemaPageCellCount(ctx context.Context) (int, error) {
	page, err := loadPage(ctx, m, 1)
	if err != nil {
		return 0, err
	}
	return int(page.Header.CellCount), nil
}

func (m *memDatabaseRaw) GetPageSize() int { return m.pageSize }

func (m *memDatabaseRaw) TraversalPageBudget() int {
	if m.budget > 0 {
		return m.budget
	}
	return 1 << 20
}

func (m *memDatabaseRaw) Close() error { return nil }

// testDB assembles a database image page by page.
type testDB struct {
	t        *testing.T
	pageSize int
	pages    [][]byte
}

func newTestDB(t *testing.T, pageSize int) *testDB {
	t.Helper()
	db := &testDB{t: t, pageSize: pageSize}
	db.addPage() // page 1 is always present
	return db
}

// addPage appends a zeroed page and returns its 1-based number.
func (db *testDB) addPage() int {
	db.pages = append(db.pages, make([]byte, db.pageSize))
	return len(db.pages)
}

// writePage fills pageNum with a B-tree page: header (at offset 100 on
// page 1), optional rightmost pointer, cell pointer array, and the cell
// contents packed against the end of the page.
func (db *testDB) writePage(pageNum int, pageType uint8, rightMost uint32, cells [][]byte) {
	db.t.Helper()
	data := db.pages[pageNum-1]

	headerOffset := 0
	if pageNum == 1 {
		headerOffset = databaseHeaderSize
	}

	data[headerOffset] = pageType
	binary.BigEndian.PutUint16(data[headerOffset+3:], uint16(len(cells)))

	headerLen := 8
	if pageType == PageTypeInteriorTable || pageType == PageTypeInteriorIndex {
		binary.BigEndian.PutUint32(data[headerOffset+8:], rightMost)
		headerLen = 12
	}

	contentEnd := db.pageSize
	pointerOffset := headerOffset + headerLen
	for i, cell := range cells {
		contentEnd -= len(cell)
		if contentEnd < pointerOffset+2*len(cells) {
			db.t.Fatalf("page %d overfull: cell %d does not fit", pageNum, i)
		}
		copy(data[contentEnd:], cell)
		binary.BigEndian.PutUint16(data[pointerOffset+2*i:], uint16(contentEnd))
	}
	binary.BigEndian.PutUint16(data[headerOffset+5:], uint16(contentEnd))
}

// writeFileHeader stamps the 100-byte file header onto page 1.
func (db *testDB) writeFileHeader() {
	data := db.pages[0]
	copy(data, "SQLite format 3\x00")
	binary.BigEndian.PutUint16(data[16:], uint16(db.pageSize))
}

// raw returns an in-memory DatabaseRaw over the assembled pages.
func (db *testDB) raw() *memDatabaseRaw {
	return &memDatabaseRaw{pageSize: db.pageSize, pages: db.pages}
}

// writeToFile writes the assembled image to a temp file and returns its path.
func (db *testDB) writeToFile() string {
	db.t.Helper()
	db.writeFileHeader()
	path := filepath.Join(db.t.TempDir(), "test.db")
	var image []byte
	for _, page := range db.pages {
		image = append(image, page...)
	}
	if err := os.WriteFile(path, image, 0o644); err != nil {
		db.t.Fatalf("write test database: %v", err)
	}
	return path
}

// Record and cell encoders. Values may be nil (NULL), int64, float64,
// string (TEXT) or []byte (BLOB).

func encodeIntSerial(v int64) (uint64, []byte) {
	switch {
	case v == 0:
		return SerialTypeZero, nil
	case v == 1:
		return SerialTypeOne, nil
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return SerialTypeInt8, []byte{byte(v)}
	case v >= math.MinInt16 && v <= math.MaxInt16:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(v))
		return SerialTypeInt16, b
	case v >= -(1<<23) && v < 1<<23:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(v))
		return SerialTypeInt24, b[1:]
	case v >= math.MinInt32 && v <= math.MaxInt32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(v))
		return SerialTypeInt32, b
	case v >= -(1<<47) && v < 1<<47:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(v))
		return SerialTypeInt48, b[2:]
	default:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(v))
		return SerialTypeInt64, b
	}
}

// encodeRecord builds a record payload: header-length varint, serial
// type varints, then the concatenated column bodies.
func encodeRecord(values ...interface{}) []byte {
	var serials []uint64
	var body []byte

	for _, value := range values {
		switch v := value.(type) {
		case nil:
			serials = append(serials, SerialTypeNull)
		case int64:
			serial, b := encodeIntSerial(v)
			serials = append(serials, serial)
			body = append(body, b...)
		case float64:
			b := make([]byte, 8)
			binary.BigEndian.PutUint64(b, math.Float64bits(v))
			serials = append(serials, SerialTypeFloat64)
			body = append(body, b...)
		case string:
			serials = append(serials, uint64(13+2*len(v)))
			body = append(body, v...)
		case []byte:
			serials = append(serials, uint64(12+2*len(v)))
			body = append(body, v...)
		default:
			panic(fmt.Sprintf("encodeRecord: unsupported value type %T", value))
		}
	}

	var serialBytes []byte
	for _, serial := range serials {
		serialBytes = appendVarint(serialBytes, serial)
	}

	// The header length varint counts itself; its own width can grow
	// the total, so settle it iteratively.
	headerLen := len(serialBytes) + 1
	for varintLen(uint64(headerLen)) != headerLen-len(serialBytes) {
		headerLen = len(serialBytes) + varintLen(uint64(headerLen))
	}

	payload := appendVarint(nil, uint64(headerLen))
	payload = append(payload, serialBytes...)
	return append(payload, body...)
}

func tableLeafCell(rowid int64, record []byte) []byte {
	cell := appendVarint(nil, uint64(len(record)))
	cell = appendVarint(cell, uint64(rowid))
	return append(cell, record...)
}

func indexLeafCell(record []byte) []byte {
	cell := appendVarint(nil, uint64(len(record)))
	return append(cell, record...)
}

func tableInteriorCell(childPage uint32, rowidKey int64) []byte {
	cell := make([]byte, 4)
	binary.BigEndian.PutUint32(cell, childPage)
	return appendVarint(cell, uint64(rowidKey))
}

func indexInteriorCell(childPage uint32, record []byte) []byte {
	cell := make([]byte, 4)
	binary.BigEndian.PutUint32(cell, childPage)
	cell = appendVarint(cell, uint64(len(record)))
	return append(cell, record...)
}

// buildSampleDB writes the reference database from the end-to-end
// scenarios: apples(id, name, color) with three rows and an index on
// color.
func buildSampleDB(t *testing.T, withIndex bool) string {
	t.Helper()
	db := newTestDB(t, 4096)
	applesPage := db.addPage()
	indexPage := db.addPage()

	schemaCells := [][]byte{
		tableLeafCell(1, encodeRecord(
			"table", "apples", "apples", int64(applesPage),
			"CREATE TABLE apples (id integer primary key, name text, color text)",
		)),
	}
	if withIndex {
		schemaCells = append(schemaCells, tableLeafCell(2, encodeRecord(
			"index", "idx_color", "apples", int64(indexPage),
			"CREATE INDEX idx_color on apples (color)",
		)))
	}
	db.writePage(1, PageTypeLeafTable, 0, schemaCells)

	// INTEGER PRIMARY KEY columns are stored as NULL; the rowid is the id.
	db.writePage(applesPage, PageTypeLeafTable, 0, [][]byte{
		tableLeafCell(1, encodeRecord(nil, "Granny Smith", "Light Green")),
		tableLeafCell(2, encodeRecord(nil, "Fuji", "Red")),
		tableLeafCell(3, encodeRecord(nil, "Honeycrisp", "Blush Red")),
	})

	db.writePage(indexPage, PageTypeLeafIndex, 0, [][]byte{
		indexLeafCell(encodeRecord("Blush Red", int64(3))),
		indexLeafCell(encodeRecord("Light Green", int64(1))),
		indexLeafCell(encodeRecord("Red", int64(2))),
	})

	return db.writeToFile()
}
