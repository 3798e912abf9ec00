package main

import (
	"fmt"
	"os"
	"strings"
)

// Usage: <program> <database path> <command>
func main() {
	if err := runProgram(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runProgram dispatches one command against one database file. The file
// handle lives for the duration of the command only.
func runProgram(args []string) error {
	if len(args) < 3 {
		return ErrUsage
	}

	databaseFilePath := args[1]
	command := strings.Join(args[2:], " ")

	engine, err := NewSqliteEngine(databaseFilePath, os.Stdout)
	if err != nil {
		return err
	}
	defer engine.Close()

	return engine.ExecuteCommand(command)
}
