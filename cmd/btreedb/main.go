// Command btreedb is a minimal REPL over the engine package: it
// serializes rows through a fixed demo schema (id, username, email)
// and drives Insert/Select through a single open database file.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"btreedb/engine"
	"btreedb/row"
)

func main() {
	dbPath := flag.String("db", "btreedb.db", "path to the database file")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	schema := row.Schema{
		{Name: "id", Type: row.ColumnTypeInt},
		{Name: "username", Type: row.ColumnTypeText, MaxLength: 32},
		{Name: "email", Type: row.ColumnTypeText, MaxLength: 64},
	}
	layout, err := row.BuildLayout(schema)
	if err != nil {
		fmt.Fprintln(os.Stderr, "schema error:", err)
		os.Exit(1)
	}

	mode := engine.Open
	if _, err := os.Stat(*dbPath); os.IsNotExist(err) {
		mode = engine.Create
	}

	eng, err := engine.OpenEngine(*dbPath, mode, engine.Options{
		RowSize: layout.RowSize(),
		Logger:  log,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "open database:", err)
		os.Exit(1)
	}
	defer eng.Close()

	reader := bufio.NewReader(os.Stdin)
	for {
		printPrompt()
		input, err := readInput(reader)
		if err != nil {
			fmt.Println()
			return
		}
		if input == "" {
			continue
		}

		if input[0] == '.' {
			switch handleMetaCommand(input) {
			case MetaCommandSuccess:
				return
			case MetaCommandUnrecognizedCommand:
				fmt.Printf("Unrecognized command %q\n", input)
			}
			continue
		}

		var stmt Statement
		switch prepareStatement(input, &stmt) {
		case PrepareSyntaxError:
			fmt.Println("Syntax error. Expected: insert <id> <username> <email>")
			continue
		case PrepareUnrecognizedStatement:
			fmt.Printf("Unrecognized keyword at start of %q\n", input)
			continue
		case PrepareSuccess:
		}

		executeStatement(eng, layout, &stmt)
	}
}

func executeStatement(eng *engine.Engine, layout *row.Layout, stmt *Statement) {
	switch stmt.Type {
	case StatementInsert:
		key, err := stmt.RowToInsert.Key()
		if err != nil {
			fmt.Println("Error:", err)
			return
		}
		buf := make([]byte, layout.RowSize())
		if err := layout.Serialize(stmt.RowToInsert, buf); err != nil {
			fmt.Println("Error:", err)
			return
		}
		status, err := eng.Insert(key, buf)
		if err != nil {
			fmt.Println("Error:", err)
			return
		}
		if status == engine.DuplicateKey {
			fmt.Printf("Error: duplicate key %d\n", key)
			return
		}
		fmt.Println("Executed.")

	case StatementSelect:
		cells, err := eng.Select(0, ^uint32(0))
		if err != nil {
			fmt.Println("Error:", err)
			return
		}
		for _, c := range cells {
			r, err := layout.Deserialize(c.Value)
			if err != nil {
				fmt.Println("Error:", err)
				return
			}
			printRow(c.Key, r)
		}
		fmt.Println("Executed.")
	}
}
