package main

import "strings"

type MetaCommandResult int

const (
	MetaCommandSuccess MetaCommandResult = iota
	MetaCommandUnrecognizedCommand
)

type PrepareResult int

const (
	PrepareSuccess PrepareResult = iota
	PrepareUnrecognizedStatement
	PrepareSyntaxError
)

// handleMetaCommand checks if the input line is a "." command.
func handleMetaCommand(line string) MetaCommandResult {
	if strings.TrimSpace(line) == ".exit" {
		return MetaCommandSuccess
	}
	return MetaCommandUnrecognizedCommand
}
