package main

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/xwb1989/sqlparser"
)

// QueryPlanner plans and executes the supported SELECT subset:
// projection queries over one table with equality WHERE conjunctions.
// Planning picks at most one usable index per WHERE clause
// (first-match); execution intersects the per-clause rowid sets,
// materializes the survivors, and always post-filters every clause by
// direct column equality, so correctness never depends on the index
// choice.
type QueryPlanner struct {
	db         Database
	maxWorkers int
}

// NewQueryPlanner creates a new query planner
func NewQueryPlanner(db Database) *QueryPlanner {
	return &QueryPlanner{db: db, maxWorkers: 10}
}

// WhereClause is one column-equals-literal conjunct of a WHERE clause.
type WhereClause struct {
	Column string
	Value  string
}

// QueryPlan represents an execution plan for a SELECT query
type QueryPlan struct {
	TableName   string
	Projections []string
	Star        bool
	Where       []WhereClause
}

// projection is a resolved output column: either a stored column index
// or the rowid pseudo-column.
type projection struct {
	name     string
	colIndex int
	isRowid  bool
}

// BuildPlan lifts a parsed SELECT into a query plan, rejecting
// everything outside the supported subset.
func (qp *QueryPlanner) BuildPlan(stmt *sqlparser.Select) (*QueryPlan, error) {
	plan := &QueryPlan{}

	plan.TableName = extractTableName(stmt)
	if plan.TableName == "" {
		return nil, NewDatabaseError("build_plan", ErrUnsupported, map[string]interface{}{
			"reason": "no table in SELECT",
		})
	}

	for _, expr := range stmt.SelectExprs {
		switch selectExpr := expr.(type) {
		case *sqlparser.StarExpr:
			plan.Star = true
		case *sqlparser.AliasedExpr:
			colName, ok := selectExpr.Expr.(*sqlparser.ColName)
			if !ok {
				return nil, NewDatabaseError("build_plan", ErrUnsupported, map[string]interface{}{
					"expression": sqlparser.String(selectExpr.Expr),
				})
			}
			plan.Projections = append(plan.Projections, colName.Name.String())
		default:
			return nil, NewDatabaseError("build_plan", ErrUnsupported, map[string]interface{}{
				"expression": sqlparser.String(expr),
			})
		}
	}

	if stmt.Where != nil {
		where, err := collectWhereClauses(stmt.Where.Expr)
		if err != nil {
			return nil, err
		}
		plan.Where = where
	}

	return plan, nil
}

// collectWhereClauses flattens a WHERE expression into equality
// conjuncts. Anything but AND-joined column-equals-string-literal
// comparisons is outside the subset.
func collectWhereClauses(expr sqlparser.Expr) ([]WhereClause, error) {
	switch node := expr.(type) {
	case *sqlparser.AndExpr:
		left, err := collectWhereClauses(node.Left)
		if err != nil {
			return nil, err
		}
		right, err := collectWhereClauses(node.Right)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil

	case *sqlparser.ParenExpr:
		return collectWhereClauses(node.Expr)

	case *sqlparser.ComparisonExpr:
		if node.Operator != "=" {
			return nil, NewDatabaseError("collect_where", ErrUnsupported, map[string]interface{}{
				"operator": node.Operator,
			})
		}
		colName, ok := node.Left.(*sqlparser.ColName)
		if !ok {
			return nil, NewDatabaseError("collect_where", ErrUnsupported, map[string]interface{}{
				"expression": sqlparser.String(node.Left),
			})
		}
		val, ok := node.Right.(*sqlparser.SQLVal)
		if !ok || val.Type != sqlparser.StrVal {
			return nil, NewDatabaseError("collect_where", ErrUnsupported, map[string]interface{}{
				"expression": sqlparser.String(node.Right),
			})
		}
		return []WhereClause{{Column: colName.Name.String(), Value: string(val.Val)}}, nil

	default:
		return nil, NewDatabaseError("collect_where", ErrUnsupported, map[string]interface{}{
			"expression": sqlparser.String(expr),
		})
	}
}

// ExecuteSelect runs a planned SELECT and emits each projected row as
// it is produced.
func (qp *QueryPlanner) ExecuteSelect(ctx context.Context, plan *QueryPlan, emit func(parts []string) error) error {
	table, err := qp.db.GetTable(ctx, plan.TableName)
	if err != nil {
		return err
	}
	schema, err := table.GetSchema(ctx)
	if err != nil {
		return err
	}

	projections, err := resolveProjections(plan, schema)
	if err != nil {
		return err
	}
	whereIndexes, err := resolveWhereColumns(plan.Where, schema)
	if err != nil {
		return err
	}

	rows, err := qp.materializeRows(ctx, table, plan.Where)
	if err != nil {
		return err
	}

	for i := range rows {
		row := &rows[i]
		keep, err := matchesAllClauses(row, plan.Where, whereIndexes)
		if err != nil {
			return err
		}
		if !keep {
			continue
		}
		parts, err := projectRow(row, projections)
		if err != nil {
			return err
		}
		if err := emit(parts); err != nil {
			return err
		}
	}

	return nil
}

// resolveProjections maps projection names to column indices. The
// pseudo-column "id" (case-sensitive) stands for the rowid. A star
// projection expands to every schema column in declared order.
func resolveProjections(plan *QueryPlan, schema []Column) ([]projection, error) {
	names := plan.Projections
	if plan.Star {
		names = make([]string, len(schema))
		for i, col := range schema {
			names[i] = col.Name
		}
	}

	projections := make([]projection, len(names))
	for i, name := range names {
		if name == "id" {
			projections[i] = projection{name: name, isRowid: true}
			continue
		}
		colIndex, err := findColumn(schema, name)
		if err != nil {
			return nil, NewDatabaseError("resolve_projection", err, map[string]interface{}{
				"table_name":  plan.TableName,
				"column_name": name,
			})
		}
		projections[i] = projection{name: name, colIndex: colIndex}
	}
	return projections, nil
}

// resolveWhereColumns maps each WHERE clause's column name to its index.
func resolveWhereColumns(where []WhereClause, schema []Column) (map[string]int, error) {
	indexes := make(map[string]int, len(where))
	for _, clause := range where {
		colIndex, err := findColumn(schema, clause.Column)
		if err != nil {
			return nil, NewDatabaseError("resolve_where", err, map[string]interface{}{
				"column_name": clause.Column,
			})
		}
		indexes[clause.Column] = colIndex
	}
	return indexes, nil
}

func findColumn(schema []Column, name string) (int, error) {
	for _, col := range schema {
		if strings.EqualFold(col.Name, name) {
			return col.Index, nil
		}
	}
	return 0, ErrColumnNotFound
}

// materializeRows produces the candidate row set: an index-driven
// rowid intersection when at least one WHERE clause has a usable index,
// a full table scan otherwise.
func (qp *QueryPlanner) materializeRows(ctx context.Context, table Table, where []WhereClause) ([]Row, error) {
	usable, err := qp.usableIndexes(ctx, table, where)
	if err != nil {
		return nil, err
	}

	if len(usable) == 0 {
		return table.GetRows(ctx)
	}

	// One candidate rowid set per indexed clause; the intersection is
	// seeded with the first set and narrowed by each subsequent one.
	var intersection map[int64]bool
	for i, clause := range where {
		index, ok := usable[i]
		if !ok {
			continue
		}
		rowids, err := index.SearchByKey(ctx, clause.Value)
		if err != nil {
			return nil, err
		}
		candidate := make(map[int64]bool, len(rowids))
		for _, rowid := range rowids {
			candidate[rowid] = true
		}
		if intersection == nil {
			intersection = candidate
			continue
		}
		for rowid := range intersection {
			if !candidate[rowid] {
				delete(intersection, rowid)
			}
		}
	}

	rowids := make([]int64, 0, len(intersection))
	for rowid := range intersection {
		rowids = append(rowids, rowid)
	}
	// Traversal order for the survivors is rowid order, so repeated
	// executions emit byte-identical output.
	sort.Slice(rowids, func(i, j int) bool { return rowids[i] < rowids[j] })

	return qp.fetchRowsParallel(ctx, table, rowids), nil
}

// usableIndexes picks at most one index per WHERE clause, first-match
// over the table's indexes in schema order. An index is usable for a
// clause when its leading column is the clause's column.
func (qp *QueryPlanner) usableIndexes(ctx context.Context, table Table, where []WhereClause) (map[int]Index, error) {
	indexes, err := table.GetIndexes(ctx)
	if err != nil {
		return nil, err
	}

	usable := make(map[int]Index)
	for i, clause := range where {
		for _, index := range indexes {
			columns := index.GetColumns()
			if len(columns) > 0 && strings.EqualFold(columns[0], clause.Column) {
				usable[i] = index
				break
			}
		}
	}
	return usable, nil
}

// matchesAllClauses post-filters a candidate row against every WHERE
// clause by direct column equality, paired by column name. Index
// matches are not trusted transitively. A NULL in a WHERE column fails
// the row; a non-TEXT value is outside the subset.
func matchesAllClauses(row *Row, where []WhereClause, whereIndexes map[string]int) (bool, error) {
	for _, clause := range where {
		value, err := row.Get(whereIndexes[clause.Column])
		if err != nil {
			return false, err
		}
		if value.IsNull() {
			return false, nil
		}
		text, err := value.Text()
		if err != nil {
			return false, err
		}
		if text != clause.Value {
			return false, nil
		}
	}
	return true, nil
}

// projectRow renders the projected columns of a row in query order.
// NULL columns are omitted from the joined output.
func projectRow(row *Row, projections []projection) ([]string, error) {
	parts := make([]string, 0, len(projections))
	for _, proj := range projections {
		if proj.isRowid {
			parts = append(parts, strconv.FormatInt(row.Rowid, 10))
			continue
		}
		value, err := row.Get(proj.colIndex)
		if err != nil {
			return nil, err
		}
		if value.IsNull() {
			continue
		}
		text, err := value.Text()
		if err != nil {
			return nil, err
		}
		parts = append(parts, text)
	}
	return parts, nil
}

// fetchRowsParallel fetches rows by rowid with a bounded worker pool.
// Rowids that resolve to no row are dropped; the result preserves the
// input rowid order.
func (qp *QueryPlanner) fetchRowsParallel(ctx context.Context, table Table, rowids []int64) []Row {
	if len(rowids) == 0 {
		return nil
	}

	maxWorkers := qp.maxWorkers
	if len(rowids) < maxWorkers {
		maxWorkers = len(rowids)
	}

	type workItem struct {
		rowid int64
		index int
	}

	workChan := make(chan workItem, len(rowids))
	results := make([]*Row, len(rowids))

	var wg sync.WaitGroup
	for i := 0; i < maxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range workChan {
				select {
				case <-ctx.Done():
					return
				default:
				}
				row, err := table.GetRowByRowid(ctx, work.rowid)
				if err != nil || row == nil {
					continue
				}
				results[work.index] = row
			}
		}()
	}

	for i, rowid := range rowids {
		workChan <- workItem{rowid: rowid, index: i}
	}
	close(workChan)
	wg.Wait()

	rows := make([]Row, 0, len(rowids))
	for _, row := range results {
		if row != nil {
			rows = append(rows, *row)
		}
	}
	return rows
}

// extractTableName extracts the table name from a SELECT statement
func extractTableName(stmt *sqlparser.Select) string {
	if len(stmt.From) == 0 {
		return ""
	}

	if tableExpr, ok := stmt.From[0].(*sqlparser.AliasedTableExpr); ok {
		if table, ok := tableExpr.Expr.(sqlparser.TableName); ok {
			return table.Name.String()
		}
	}
	return ""
}
