package main

import (
	"context"
	"encoding/binary"
	"strings"
)

// B-tree walkers. Traversal is depth-first, left-to-right, and strictly
// synchronous. Every walker counts visited pages against the configured
// budget so a malformed file whose pointers form a cycle terminates with
// an error instead of recursing forever.

// btreeWalker carries the per-traversal state shared by both tree kinds.
type btreeWalker struct {
	db     DatabaseRaw
	budget int
}

func newBTreeWalker(db DatabaseRaw) *btreeWalker {
	return &btreeWalker{db: db, budget: db.TraversalPageBudget()}
}

func (w *btreeWalker) loadPage(ctx context.Context, pageNum int) (*Page, error) {
	if w.budget--; w.budget < 0 {
		return nil, NewDatabaseError("traverse_btree", ErrInvalidDatabase, map[string]interface{}{
			"reason":   "traversal exceeds page budget",
			"page_num": pageNum,
		})
	}
	return loadPage(ctx, w.db, pageNum)
}

// interiorTableCell reads the fixed prefix of a table-interior cell:
// the 4-byte left child page number and the varint rowid key.
func interiorTableCell(page *Page, cellIndex int) (childPage uint32, rowidKey int64, err error) {
	offset := page.CellOffset(cellIndex)
	data := page.Data
	if offset+4 > len(data) {
		return 0, 0, NewDatabaseError("read_interior_cell", ErrInsufficientData, map[string]interface{}{
			"page_num":    page.Number,
			"cell_offset": offset,
		})
	}
	childPage = binary.BigEndian.Uint32(data[offset : offset+4])
	key, n := readVarint(data, offset+4)
	if n == 0 {
		return 0, 0, NewDatabaseError("read_interior_cell", ErrInvalidVarint, map[string]interface{}{
			"page_num":    page.Number,
			"cell_offset": offset,
		})
	}
	return childPage, int64(key), nil
}

// TableBTree walks a table B-tree rooted at rootPage.
type TableBTree struct {
	walker   *btreeWalker
	rootPage int
}

// NewTableBTree creates a walker for the table B-tree rooted at rootPage.
func NewTableBTree(db DatabaseRaw, rootPage int) *TableBTree {
	return &TableBTree{walker: newBTreeWalker(db), rootPage: rootPage}
}

// FullScan returns every table-leaf cell reachable from the root, in
// depth-first left-to-right order. Rowid keys on interior pages are
// ignored for a full scan.
func (bt *TableBTree) FullScan(ctx context.Context) ([]Cell, error) {
	return bt.scanPage(ctx, bt.rootPage)
}

func (bt *TableBTree) scanPage(ctx context.Context, pageNum int) ([]Cell, error) {
	page, err := bt.walker.loadPage(ctx, pageNum)
	if err != nil {
		return nil, err
	}

	switch {
	case page.Header.IsLeafTable():
		cells := make([]Cell, 0, page.Header.CellCount)
		for i := 0; i < int(page.Header.CellCount); i++ {
			cell, err := readCellAt(ctx, bt.walker.db, page, i, CellTableLeaf)
			if err != nil {
				return nil, err
			}
			cells = append(cells, *cell)
		}
		return cells, nil

	case page.Header.IsInteriorTable():
		var cells []Cell
		for i := 0; i < int(page.Header.CellCount); i++ {
			childPage, _, err := interiorTableCell(page, i)
			if err != nil {
				return nil, err
			}
			childCells, err := bt.scanPage(ctx, int(childPage))
			if err != nil {
				return nil, err
			}
			cells = append(cells, childCells...)
		}
		rightCells, err := bt.scanPage(ctx, int(page.RightMost))
		if err != nil {
			return nil, err
		}
		return append(cells, rightCells...), nil

	default:
		return nil, NewDatabaseError("table_scan", ErrInvalidPageType, map[string]interface{}{
			"page_num":  pageNum,
			"page_type": page.Header.PageType,
		})
	}
}

// LookupRowid descends the tree along a single path to the leaf that
// would hold rowid, and returns the matching cell or nil if the rowid
// is absent.
func (bt *TableBTree) LookupRowid(ctx context.Context, rowid int64) (*Cell, error) {
	pageNum := bt.rootPage
	for {
		page, err := bt.walker.loadPage(ctx, pageNum)
		if err != nil {
			return nil, err
		}

		if page.Header.IsLeafTable() {
			for i := 0; i < int(page.Header.CellCount); i++ {
				cell, err := readCellAt(ctx, bt.walker.db, page, i, CellTableLeaf)
				if err != nil {
					return nil, err
				}
				if cell.Rowid() == rowid {
					return cell, nil
				}
			}
			return nil, nil
		}

		if !page.Header.IsInteriorTable() {
			return nil, NewDatabaseError("rowid_lookup", ErrInvalidPageType, map[string]interface{}{
				"page_num":  pageNum,
				"page_type": page.Header.PageType,
			})
		}

		// Descend into the first child whose separator key covers the
		// target; the rightmost pointer covers everything beyond the
		// last separator.
		next := int(page.RightMost)
		for i := 0; i < int(page.Header.CellCount); i++ {
			childPage, rowidKey, err := interiorTableCell(page, i)
			if err != nil {
				return nil, err
			}
			if rowidKey >= rowid {
				next = int(childPage)
				break
			}
		}
		pageNum = next
	}
}

// CountRows sums the cell counts of every leaf reachable from the root.
// A root that is itself a leaf answers directly from its header.
func (bt *TableBTree) CountRows(ctx context.Context) (int, error) {
	return bt.countPage(ctx, bt.rootPage)
}

func (bt *TableBTree) countPage(ctx context.Context, pageNum int) (int, error) {
	page, err := bt.walker.loadPage(ctx, pageNum)
	if err != nil {
		return 0, err
	}

	if page.Header.IsLeafTable() {
		return int(page.Header.CellCount), nil
	}
	if !page.Header.IsInteriorTable() {
		return 0, NewDatabaseError("count_rows", ErrInvalidPageType, map[string]interface{}{
			"page_num":  pageNum,
			"page_type": page.Header.PageType,
		})
	}

	total := 0
	for i := 0; i < int(page.Header.CellCount); i++ {
		childPage, _, err := interiorTableCell(page, i)
		if err != nil {
			return 0, err
		}
		n, err := bt.countPage(ctx, int(childPage))
		if err != nil {
			return 0, err
		}
		total += n
	}
	n, err := bt.countPage(ctx, int(page.RightMost))
	if err != nil {
		return 0, err
	}
	return total + n, nil
}

// IndexBTree walks an index B-tree rooted at rootPage. The query subset
// only supports TEXT keys; index entries hold the key in the payload's
// first column and the rowid in its last column.
type IndexBTree struct {
	walker   *btreeWalker
	rootPage int
}

// NewIndexBTree creates a walker for the index B-tree rooted at rootPage.
func NewIndexBTree(db DatabaseRaw, rootPage int) *IndexBTree {
	return &IndexBTree{walker: newBTreeWalker(db), rootPage: rootPage}
}

// SearchEqual returns the rowids of every index entry whose key equals
// key. Equal keys may span multiple subtrees, so an interior cell whose
// key matches is descended into and iteration continues with the next
// cell; the first strictly greater key ends the search on that page.
func (ix *IndexBTree) SearchEqual(ctx context.Context, key string) ([]int64, error) {
	return ix.searchPage(ctx, ix.rootPage, key)
}

func (ix *IndexBTree) searchPage(ctx context.Context, pageNum int, key string) ([]int64, error) {
	page, err := ix.walker.loadPage(ctx, pageNum)
	if err != nil {
		return nil, err
	}

	switch {
	case page.Header.IsLeafIndex():
		var rowids []int64
		for i := 0; i < int(page.Header.CellCount); i++ {
			cell, err := readCellAt(ctx, ix.walker.db, page, i, CellIndexLeaf)
			if err != nil {
				return nil, err
			}
			cellKey, isNull, err := indexCellKey(cell)
			if err != nil {
				return nil, err
			}
			if isNull || cellKey != key {
				continue
			}
			rowid, err := indexCellRowid(cell)
			if err != nil {
				return nil, err
			}
			rowids = append(rowids, rowid)
		}
		return rowids, nil

	case page.Header.IsInteriorIndex():
		var rowids []int64
		for i := 0; i < int(page.Header.CellCount); i++ {
			cell, err := readCellAt(ctx, ix.walker.db, page, i, CellIndexInterior)
			if err != nil {
				return nil, err
			}
			cellKey, isNull, err := indexCellKey(cell)
			if err != nil {
				return nil, err
			}
			if isNull {
				// NULL keys sort before everything; nothing equal here.
				continue
			}
			cmp := strings.Compare(cellKey, key)
			if cmp < 0 {
				continue
			}
			childRowids, err := ix.searchPage(ctx, int(cell.Start.LeftChild), key)
			if err != nil {
				return nil, err
			}
			rowids = append(rowids, childRowids...)
			// The interior cell's own entry belongs to the key space too.
			if cmp == 0 {
				rowid, err := indexCellRowid(cell)
				if err != nil {
					return nil, err
				}
				rowids = append(rowids, rowid)
				continue
			}
			// Strictly greater: no later subtree can hold the key.
			return rowids, nil
		}
		rightRowids, err := ix.searchPage(ctx, int(page.RightMost), key)
		if err != nil {
			return nil, err
		}
		return append(rowids, rightRowids...), nil

	default:
		return nil, NewDatabaseError("index_search", ErrInvalidPageType, map[string]interface{}{
			"page_num":  pageNum,
			"page_type": page.Header.PageType,
		})
	}
}

// indexCellKey extracts the key (first payload column) of an index cell.
func indexCellKey(cell *Cell) (key string, isNull bool, err error) {
	if len(cell.Record.Values) == 0 {
		return "", false, NewDatabaseError("index_cell_key", ErrInvalidRecord, nil)
	}
	value := cell.Record.Values[0]
	if value.IsNull() {
		return "", true, nil
	}
	key, err = value.Text()
	if err != nil {
		return "", false, err
	}
	return key, false, nil
}

// indexCellRowid extracts the rowid (last payload column) of an index cell.
func indexCellRowid(cell *Cell) (int64, error) {
	if len(cell.Record.Values) < 2 {
		return 0, NewDatabaseError("index_cell_rowid", ErrInvalidRecord, map[string]interface{}{
			"column_count": len(cell.Record.Values),
		})
	}
	return cell.Record.Values[len(cell.Record.Values)-1].Int64()
}
