package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// buildTableTree assembles a two-level table B-tree: two leaves under
// one interior root. Rows are (rowid, name) pairs with name "name<rowid>".
func buildTableTree(t *testing.T) (*memDatabaseRaw, int) {
	t.Helper()
	db := newTestDB(t, 512)
	leafA := db.addPage()
	leafB := db.addPage()
	root := db.addPage()

	leafCells := func(rowids ...int64) [][]byte {
		var cells [][]byte
		for _, rowid := range rowids {
			cells = append(cells, tableLeafCell(rowid, encodeRecord(fmt.Sprintf("name%d", rowid))))
		}
		return cells
	}

	db.writePage(leafA, PageTypeLeafTable, 0, leafCells(1, 2, 3))
	db.writePage(leafB, PageTypeLeafTable, 0, leafCells(4, 5, 6))
	// Interior separator key is the largest rowid of the left subtree.
	db.writePage(root, PageTypeInteriorTable, uint32(leafB), [][]byte{
		tableInteriorCell(uint32(leafA), 3),
	})

	return db.raw(), root
}

func TestTableBTreeFullScan(t *testing.T) {
	ctx := context.Background()
	raw, root := buildTableTree(t)

	cells, err := NewTableBTree(raw, root).FullScan(ctx)
	if err != nil {
		t.Fatalf("FullScan() error: %v", err)
	}

	if len(cells) != 6 {
		t.Fatalf("FullScan() returned %d cells, want 6", len(cells))
	}
	for i, cell := range cells {
		if cell.Rowid() != int64(i+1) {
			t.Errorf("cell %d rowid = %d, want %d (depth-first left-to-right order)", i, cell.Rowid(), i+1)
		}
	}

	// Traversal completeness: the scan size equals the leaf cell sum.
	count, err := NewTableBTree(raw, root).CountRows(ctx)
	if err != nil {
		t.Fatalf("CountRows() error: %v", err)
	}
	if count != len(cells) {
		t.Errorf("CountRows() = %d, want %d", count, len(cells))
	}
}

func TestTableBTreeLookupRowid(t *testing.T) {
	ctx := context.Background()
	raw, root := buildTableTree(t)
	tree := NewTableBTree(raw, root)

	// Lookup soundness: every scanned row is found again by its rowid.
	cells, err := tree.FullScan(ctx)
	if err != nil {
		t.Fatalf("FullScan() error: %v", err)
	}
	for _, want := range cells {
		got, err := NewTableBTree(raw, root).LookupRowid(ctx, want.Rowid())
		if err != nil {
			t.Fatalf("LookupRowid(%d) error: %v", want.Rowid(), err)
		}
		if got == nil {
			t.Fatalf("LookupRowid(%d) found nothing", want.Rowid())
		}
		gotName, _ := got.Record.Values[0].Text()
		wantName, _ := want.Record.Values[0].Text()
		if gotName != wantName {
			t.Errorf("LookupRowid(%d) = %q, want %q", want.Rowid(), gotName, wantName)
		}
	}

	t.Run("absent rowid", func(t *testing.T) {
		got, err := NewTableBTree(raw, root).LookupRowid(ctx, 99)
		if err != nil {
			t.Fatalf("LookupRowid(99) error: %v", err)
		}
		if got != nil {
			t.Errorf("LookupRowid(99) = %+v, want nil", got)
		}
	})

	t.Run("separator boundary", func(t *testing.T) {
		// Rowid 3 equals the interior separator key; the descent must
		// take the left child, not the rightmost pointer.
		got, err := NewTableBTree(raw, root).LookupRowid(ctx, 3)
		if err != nil {
			t.Fatalf("LookupRowid(3) error: %v", err)
		}
		if got == nil || got.Rowid() != 3 {
			t.Fatalf("LookupRowid(3) = %+v, want rowid 3", got)
		}
	})
}

func TestTableBTreeCountLeafRoot(t *testing.T) {
	// A root that is itself a leaf is counted from its header alone.
	ctx := context.Background()
	db := newTestDB(t, 512)
	leaf := db.addPage()
	db.writePage(leaf, PageTypeLeafTable, 0, [][]byte{
		tableLeafCell(1, encodeRecord("a")),
		tableLeafCell(2, encodeRecord("b")),
	})

	count, err := NewTableBTree(db.raw(), leaf).CountRows(ctx)
	if err != nil {
		t.Fatalf("CountRows() error: %v", err)
	}
	if count != 2 {
		t.Errorf("CountRows() = %d, want 2", count)
	}
}

func TestTableBTreeCycleGuard(t *testing.T) {
	// An interior page pointing back at itself must exhaust the page
	// budget instead of recursing forever.
	ctx := context.Background()
	db := newTestDB(t, 512)
	loop := db.addPage()
	db.writePage(loop, PageTypeInteriorTable, uint32(loop), [][]byte{
		tableInteriorCell(uint32(loop), 1),
	})
	raw := db.raw()
	raw.budget = 64

	if _, err := NewTableBTree(raw, loop).FullScan(ctx); !errors.Is(err, ErrInvalidDatabase) {
		t.Errorf("FullScan(cyclic tree) error = %v, want ErrInvalidDatabase", err)
	}
	if _, err := NewTableBTree(raw, loop).LookupRowid(ctx, 1); !errors.Is(err, ErrInvalidDatabase) {
		t.Errorf("LookupRowid(cyclic tree) error = %v, want ErrInvalidDatabase", err)
	}
}

// buildIndexTree assembles a two-level index B-tree whose key "mango"
// spans both interior entries and several subtrees.
func buildIndexTree(t *testing.T) (*memDatabaseRaw, int) {
	t.Helper()
	db := newTestDB(t, 512)
	leaf1 := db.addPage()
	leaf2 := db.addPage()
	leaf3 := db.addPage()
	root := db.addPage()

	db.writePage(leaf1, PageTypeLeafIndex, 0, [][]byte{
		indexLeafCell(encodeRecord("apple", int64(1))),
		indexLeafCell(encodeRecord("mango", int64(2))),
	})
	db.writePage(leaf2, PageTypeLeafIndex, 0, [][]byte{
		indexLeafCell(encodeRecord("mango", int64(4))),
		indexLeafCell(encodeRecord("mango", int64(5))),
	})
	db.writePage(leaf3, PageTypeLeafIndex, 0, [][]byte{
		indexLeafCell(encodeRecord("mango", int64(7))),
		indexLeafCell(encodeRecord("zucchini", int64(8))),
	})
	db.writePage(root, PageTypeInteriorIndex, uint32(leaf3), [][]byte{
		indexInteriorCell(uint32(leaf1), encodeRecord("mango", int64(3))),
		indexInteriorCell(uint32(leaf2), encodeRecord("mango", int64(6))),
	})

	return db.raw(), root
}

func TestIndexBTreeSearchEqual(t *testing.T) {
	ctx := context.Background()
	raw, root := buildIndexTree(t)

	tests := []struct {
		name     string
		key      string
		expected []int64
	}{
		{"equal keys span subtrees and interior entries", "mango", []int64{2, 3, 4, 5, 6, 7}},
		{"key below all separators", "apple", []int64{1}},
		{"key above all separators", "zucchini", []int64{8}},
		{"absent key", "papaya", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rowids, err := NewIndexBTree(raw, root).SearchEqual(ctx, tt.key)
			if err != nil {
				t.Fatalf("SearchEqual(%q) error: %v", tt.key, err)
			}
			if len(rowids) != len(tt.expected) {
				t.Fatalf("SearchEqual(%q) = %v, want %v", tt.key, rowids, tt.expected)
			}
			for i := range tt.expected {
				if rowids[i] != tt.expected[i] {
					t.Errorf("SearchEqual(%q) = %v, want %v", tt.key, rowids, tt.expected)
					break
				}
			}
		})
	}
}

func TestIndexScanEquivalence(t *testing.T) {
	// Index/scan equivalence over the sample database: for any color,
	// the rowids found by the index probe equal the rowids of scanned
	// rows whose color matches.
	ctx := context.Background()
	path := buildSampleDB(t, true)

	db, err := NewDatabase(path)
	if err != nil {
		t.Fatalf("NewDatabase() error: %v", err)
	}
	defer db.Close()

	table, err := db.GetTable(ctx, "apples")
	if err != nil {
		t.Fatalf("GetTable() error: %v", err)
	}
	index, err := db.GetIndex(ctx, "idx_color")
	if err != nil {
		t.Fatalf("GetIndex() error: %v", err)
	}

	rows, err := table.GetRows(ctx)
	if err != nil {
		t.Fatalf("GetRows() error: %v", err)
	}

	for _, color := range []string{"Light Green", "Red", "Blush Red", "Chartreuse"} {
		scanned := make(map[int64]bool)
		for _, row := range rows {
			if text, err := row.Values[2].Text(); err == nil && text == color {
				scanned[row.Rowid] = true
			}
		}

		probed, err := index.SearchByKey(ctx, color)
		if err != nil {
			t.Fatalf("SearchByKey(%q) error: %v", color, err)
		}
		if len(probed) != len(scanned) {
			t.Fatalf("SearchByKey(%q) = %v, scan found %v", color, probed, scanned)
		}
		for _, rowid := range probed {
			if !scanned[rowid] {
				t.Errorf("SearchByKey(%q) returned rowid %d not present in scan", color, rowid)
			}
		}
	}
}
