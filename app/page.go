package main

import (
	"context"
	"encoding/binary"
)

// databaseHeaderSize is the byte length of the file header on page 1.
const databaseHeaderSize = 100

// Page holds one loaded B-tree page: the parsed header, the rightmost
// child pointer for interior pages, the cell pointer array in cell
// order, and the raw page bytes. Cell offsets are always relative to
// the page start, even on page 1 where the header itself is shifted by
// the 100-byte file header.
type Page struct {
	Number       int
	Header       PageHeader
	RightMost    uint32
	CellPointers []CellPointer
	Data         []byte
}

// parsePage parses a raw page buffer. pageNum is the 1-based page
// number, used to decide whether the page header starts at offset 100.
func parsePage(data []byte, pageNum int) (*Page, error) {
	headerOffset := 0
	if pageNum == 1 {
		headerOffset = databaseHeaderSize
	}
	if len(data) < headerOffset+8 {
		return nil, NewDatabaseError("parse_page", ErrInsufficientData, map[string]interface{}{
			"page_num":  pageNum,
			"page_size": len(data),
		})
	}

	header := data[headerOffset:]
	p := &Page{
		Number: pageNum,
		Header: PageHeader{
			PageType:         header[0],
			FirstFreeblock:   binary.BigEndian.Uint16(header[1:3]),
			CellCount:        binary.BigEndian.Uint16(header[3:5]),
			CellContentStart: binary.BigEndian.Uint16(header[5:7]),
			FragmentedBytes:  header[7],
		},
		Data: data,
	}

	switch p.Header.PageType {
	case PageTypeInteriorIndex, PageTypeInteriorTable, PageTypeLeafIndex, PageTypeLeafTable:
	default:
		return nil, NewDatabaseError("parse_page", ErrInvalidPageType, map[string]interface{}{
			"page_num":  pageNum,
			"page_type": p.Header.PageType,
		})
	}

	headerLen := 8
	if p.Header.IsInterior() {
		if len(header) < 12 {
			return nil, NewDatabaseError("parse_page", ErrInsufficientData, map[string]interface{}{
				"page_num": pageNum,
			})
		}
		p.RightMost = binary.BigEndian.Uint32(header[8:12])
		headerLen = 12
	}

	// Cell pointer array follows the page header immediately.
	pointerStart := headerOffset + headerLen
	pointerEnd := pointerStart + 2*int(p.Header.CellCount)
	if pointerEnd > len(data) {
		return nil, NewDatabaseError("parse_page", ErrInvalidCellPointer, map[string]interface{}{
			"page_num":   pageNum,
			"cell_count": p.Header.CellCount,
		})
	}
	p.CellPointers = make([]CellPointer, p.Header.CellCount)
	for i := range p.CellPointers {
		offset := pointerStart + i*2
		pointer := binary.BigEndian.Uint16(data[offset : offset+2])
		if int(pointer) >= len(data) {
			return nil, NewDatabaseError("parse_page", ErrInvalidCellPointer, map[string]interface{}{
				"page_num":      pageNum,
				"pointer_index": i,
				"pointer_value": pointer,
			})
		}
		p.CellPointers[i] = CellPointer(pointer)
	}

	return p, nil
}

// loadPage reads and parses the page with the given 1-based number.
func loadPage(ctx context.Context, db DatabaseRaw, pageNum int) (*Page, error) {
	data, err := db.ReadPage(ctx, pageNum)
	if err != nil {
		return nil, err
	}
	return parsePage(data, pageNum)
}

// CellOffset returns the offset of the i-th cell relative to the page start.
func (p *Page) CellOffset(i int) int {
	return int(p.CellPointers[i].Offset())
}
