package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/xwb1989/sqlparser"
)

// SqliteEngine wires the CLI commands to the logical database layer.
type SqliteEngine struct {
	dbPath    string
	db        Database
	config    *DatabaseConfig
	formatter OutputFormatter
	out       io.Writer
}

// NewSqliteEngine creates a new engine over the database at dbPath.
func NewSqliteEngine(dbPath string, out io.Writer, options ...DatabaseOption) (*SqliteEngine, error) {
	config := DefaultDatabaseConfig()
	for _, opt := range options {
		opt(config)
	}

	db, err := NewDatabase(dbPath, options...)
	if err != nil {
		return nil, err
	}

	return &SqliteEngine{
		dbPath:    dbPath,
		db:        db,
		config:    config,
		formatter: NewConsoleFormatter(),
		out:       out,
	}, nil
}

// Close closes the engine and releases the database file
func (engine *SqliteEngine) Close() error {
	return engine.db.Close()
}

// commandContext derives the per-command timeout context.
func (engine *SqliteEngine) commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(engine.config.ReadTimeout)*time.Millisecond)
}

// ExecuteCommand dispatches one CLI command.
func (engine *SqliteEngine) ExecuteCommand(command string) error {
	switch command {
	case ".dbinfo":
		return engine.handleDBInfo()
	case ".tables":
		return engine.handleTables()
	case ".tokenize":
		return engine.handleTokenize()
	case ".parse":
		return engine.handleParse()
	default:
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(command)), "SELECT") {
			return engine.handleSQL(command)
		}
		return NewDatabaseError("execute_command", ErrUsage, map[string]interface{}{
			"command": command,
		})
	}
}

// handleDBInfo prints the page size from the file header and the cell
// count of page 1.
func (engine *SqliteEngine) handleDBInfo() error {
	ctx, cancel := engine.commandContext()
	defer cancel()

	fmt.Fprintf(engine.out, "database page size: %v\n", engine.db.GetPageSize())

	cellCount, err := engine.db.SchemaPageCellCount(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(engine.out, "number of tables: %v\n", cellCount)
	return nil
}

// handleTables prints every schema element name in page order, one per
// line, without filtering by element type.
func (engine *SqliteEngine) handleTables() error {
	ctx, cancel := engine.commandContext()
	defer cancel()

	elements, err := engine.db.SchemaElements(ctx)
	if err != nil {
		return err
	}
	for _, element := range elements {
		fmt.Fprintln(engine.out, element.Name)
	}
	return nil
}

// handleTokenize dumps the token stream of the given file's contents.
func (engine *SqliteEngine) handleTokenize() error {
	content, err := os.ReadFile(engine.dbPath)
	if err != nil {
		return fmt.Errorf("read input %s: %w", engine.dbPath, err)
	}

	tokenizer := sqlparser.NewStringTokenizer(string(content))
	for {
		typ, val := tokenizer.Scan()
		if typ == 0 {
			break
		}
		fmt.Fprintf(engine.out, "%d %s\n", typ, string(val))
	}
	return nil
}

// handleParse dumps the parsed statement of the given file's contents.
func (engine *SqliteEngine) handleParse() error {
	content, err := os.ReadFile(engine.dbPath)
	if err != nil {
		return fmt.Errorf("read input %s: %w", engine.dbPath, err)
	}

	stmt, err := sqlparser.Parse(string(content))
	if err != nil {
		return fmt.Errorf("parse input: %w", err)
	}
	fmt.Fprintln(engine.out, sqlparser.String(stmt))
	return nil
}

// handleSQL parses and runs a SELECT command.
func (engine *SqliteEngine) handleSQL(command string) error {
	stmt, err := sqlparser.Parse(command)
	if err != nil {
		return fmt.Errorf("parse SQL: %w", err)
	}

	selectStmt, ok := stmt.(*sqlparser.Select)
	if !ok {
		return NewDatabaseError("handle_sql", ErrUnsupported, map[string]interface{}{
			"statement_type": fmt.Sprintf("%T", stmt),
		})
	}

	if isCountStar(selectStmt) {
		return engine.handleCount(selectStmt)
	}
	return engine.handleSelect(selectStmt)
}

// isCountStar reports whether the statement is `SELECT COUNT(*) FROM t`.
func isCountStar(stmt *sqlparser.Select) bool {
	if len(stmt.SelectExprs) != 1 {
		return false
	}
	aliased, ok := stmt.SelectExprs[0].(*sqlparser.AliasedExpr)
	if !ok {
		return false
	}
	funcExpr, ok := aliased.Expr.(*sqlparser.FuncExpr)
	if !ok {
		return false
	}
	if !strings.EqualFold(funcExpr.Name.String(), "count") || len(funcExpr.Exprs) != 1 {
		return false
	}
	_, isStar := funcExpr.Exprs[0].(*sqlparser.StarExpr)
	return isStar
}

// handleCount bypasses the planner: the row count is the sum of leaf
// cell counts of the table's B-tree.
func (engine *SqliteEngine) handleCount(stmt *sqlparser.Select) error {
	ctx, cancel := engine.commandContext()
	defer cancel()

	tableName := extractTableName(stmt)
	if tableName == "" {
		return NewDatabaseError("handle_count", ErrUnsupported, map[string]interface{}{
			"reason": "no table in SELECT",
		})
	}

	table, err := engine.db.GetTable(ctx, tableName)
	if err != nil {
		return err
	}
	count, err := table.Count(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(engine.out, engine.formatter.FormatCount(count))
	return nil
}

// handleSelect plans and executes a projection query, printing rows as
// they are produced.
func (engine *SqliteEngine) handleSelect(stmt *sqlparser.Select) error {
	ctx, cancel := engine.commandContext()
	defer cancel()

	planner := NewQueryPlanner(engine.db)
	plan, err := planner.BuildPlan(stmt)
	if err != nil {
		return err
	}

	return planner.ExecuteSelect(ctx, plan, func(parts []string) error {
		_, err := fmt.Fprintln(engine.out, engine.formatter.FormatRow(parts))
		return err
	})
}
