package main

import (
	"context"
	"encoding/binary"
)

// Record reader: assembles a cell's payload (following the overflow
// chain when the payload spills off its page), splits the record header
// from the body, and decodes the typed column vector.

// readCellAt decodes the cellIndex-th cell of page according to shape.
// Table-interior cells are consumed directly by the B-tree walker and
// have no record payload, so they are not a shape here.
func readCellAt(ctx context.Context, db DatabaseRaw, page *Page, cellIndex int, shape CellShape) (*Cell, error) {
	if cellIndex < 0 || cellIndex >= len(page.CellPointers) {
		return nil, NewDatabaseError("read_cell", ErrInvalidCellPointer, map[string]interface{}{
			"page_num":   page.Number,
			"cell_index": cellIndex,
		})
	}
	cellOffset := page.CellOffset(cellIndex)
	data := page.Data
	cursor := cellOffset

	start := RecordStart{Kind: RecordStartNone}

	if shape == CellIndexInterior {
		if cursor+4 > len(data) {
			return nil, NewDatabaseError("read_cell", ErrInsufficientData, map[string]interface{}{
				"page_num":    page.Number,
				"cell_offset": cellOffset,
			})
		}
		start = RecordStart{
			Kind:      RecordStartLeftChild,
			LeftChild: binary.BigEndian.Uint32(data[cursor : cursor+4]),
		}
		cursor += 4
	}

	payloadSize, n := readVarint(data, cursor)
	if n == 0 {
		return nil, NewDatabaseError("read_cell", ErrInvalidVarint, map[string]interface{}{
			"page_num":    page.Number,
			"cell_offset": cellOffset,
		})
	}
	cursor += n

	if shape == CellTableLeaf {
		rowid, m := readVarint(data, cursor)
		if m == 0 {
			return nil, NewDatabaseError("read_cell", ErrInvalidVarint, map[string]interface{}{
				"page_num":    page.Number,
				"cell_offset": cellOffset,
			})
		}
		start = RecordStart{Kind: RecordStartRowid, Rowid: int64(rowid)}
		cursor += m
	}

	payload, err := assemblePayload(ctx, db, page, cursor, payloadSize)
	if err != nil {
		return nil, err
	}

	record, err := parseRecordPayload(payload)
	if err != nil {
		return nil, NewDatabaseError("read_cell", err, map[string]interface{}{
			"page_num":    page.Number,
			"cell_offset": cellOffset,
		})
	}

	return &Cell{
		PayloadSize: payloadSize,
		Start:       start,
		Record:      *record,
	}, nil
}

// assemblePayload returns the full payload of a cell whose payload area
// begins at payloadStart. The on-page capacity runs from payloadStart to
// the end of the page; a payload larger than that spills, in which case
// the last 4 on-page bytes hold the first overflow page number and the
// remainder is collected from the overflow chain.
func assemblePayload(ctx context.Context, db DatabaseRaw, page *Page, payloadStart int, payloadSize uint64) ([]byte, error) {
	data := page.Data
	onPage := len(data) - payloadStart
	if onPage < 0 {
		return nil, NewDatabaseError("assemble_payload", ErrInsufficientData, map[string]interface{}{
			"page_num":      page.Number,
			"payload_start": payloadStart,
		})
	}

	if payloadSize <= uint64(onPage) {
		return data[payloadStart : payloadStart+int(payloadSize)], nil
	}

	local := onPage - 4
	if local < 0 {
		return nil, NewDatabaseError("assemble_payload", ErrInvalidRecord, map[string]interface{}{
			"page_num":     page.Number,
			"payload_size": payloadSize,
			"on_page":      onPage,
		})
	}

	firstOverflow := binary.BigEndian.Uint32(data[payloadStart+local:])
	payload := make([]byte, 0, payloadSize)
	payload = append(payload, data[payloadStart:payloadStart+local]...)

	rest, err := readOverflowChain(ctx, db, firstOverflow, payloadSize-uint64(local))
	if err != nil {
		return nil, err
	}
	return append(payload, rest...), nil
}

// readOverflowChain walks the singly-linked overflow chain starting at
// pageNum until remaining payload bytes have been collected. Each
// overflow page starts with a 4-byte next-page pointer (0 terminates)
// followed by payload continuation.
func readOverflowChain(ctx context.Context, db DatabaseRaw, pageNum uint32, remaining uint64) ([]byte, error) {
	payload := make([]byte, 0, remaining)
	budget := db.TraversalPageBudget()

	for remaining > 0 {
		if pageNum == 0 {
			return nil, NewDatabaseError("read_overflow", ErrInvalidRecord, map[string]interface{}{
				"remaining": remaining,
			})
		}
		if budget--; budget < 0 {
			return nil, NewDatabaseError("read_overflow", ErrInvalidDatabase, map[string]interface{}{
				"reason": "overflow chain exceeds page budget",
			})
		}

		data, err := db.ReadPage(ctx, int(pageNum))
		if err != nil {
			return nil, err
		}
		if len(data) < 4 {
			return nil, NewDatabaseError("read_overflow", ErrInsufficientData, map[string]interface{}{
				"page_num": pageNum,
			})
		}

		next := binary.BigEndian.Uint32(data[:4])
		chunk := uint64(len(data) - 4)
		if chunk > remaining {
			chunk = remaining
		}
		payload = append(payload, data[4:4+chunk]...)
		remaining -= chunk
		pageNum = next
	}

	return payload, nil
}

// parseRecordPayload splits a record payload into its serial-type header
// and typed column bodies.
func parseRecordPayload(payload []byte) (*Record, error) {
	headerSize, n := readVarint(payload, 0)
	if n == 0 {
		return nil, NewDatabaseError("parse_record", ErrInvalidVarint, nil)
	}
	if headerSize < uint64(n) || headerSize > uint64(len(payload)) {
		return nil, NewDatabaseError("parse_record", ErrInvalidRecord, map[string]interface{}{
			"header_size":  headerSize,
			"payload_size": len(payload),
		})
	}

	serialTypes, err := decodeSerialTypes(payload[n:headerSize])
	if err != nil {
		return nil, err
	}

	values := make([]Value, len(serialTypes))
	offset := int(headerSize)
	for i, serialType := range serialTypes {
		size, err := serialTypeSize(serialType)
		if err != nil {
			return nil, err
		}
		if offset+size > len(payload) {
			return nil, NewDatabaseError("parse_record", ErrInsufficientData, map[string]interface{}{
				"column":       i,
				"needed_bytes": offset + size,
				"have_bytes":   len(payload),
			})
		}
		value, err := decodeSerialValue(serialType, payload[offset:offset+size])
		if err != nil {
			return nil, err
		}
		values[i] = value
		offset += size
	}

	return &Record{
		Header: RecordHeader{
			HeaderSize:  headerSize,
			SerialTypes: serialTypes,
		},
		Values: values,
	}, nil
}
