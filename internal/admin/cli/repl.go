package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to. args are the
// words following the command.
type execIface interface {
	AddUser(ctx context.Context, args []string) error
	Passwd(ctx context.Context, args []string) error
	DelUser(ctx context.Context, args []string) error
	Tokens(ctx context.Context, args []string) error
	RevokeAll(ctx context.Context, args []string) error
	Purge(ctx context.Context, args []string) error
}

const helpText = "Available commands: adduser [name], passwd [name], deluser [name], tokens [name], revokeall [name], purge [days], exit"

// runREPL reads commands from reader until EOF or "exit". Handler errors
// are printed and the loop goes on. Commands that prompt read from the same
// reader, so no input is lost to buffering.
func runREPL(ctx context.Context, a execIface, reader *bufio.Reader) {
	for {
		printlnFn("authctl> ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		err = nil
		switch cmd {
		case "help":
			printlnFn(helpText)
		case "adduser":
			err = a.AddUser(ctx, args)
		case "passwd":
			err = a.Passwd(ctx, args)
		case "deluser":
			err = a.DelUser(ctx, args)
		case "tokens":
			err = a.Tokens(ctx, args)
		case "revokeall":
			err = a.RevokeAll(ctx, args)
		case "purge":
			err = a.Purge(ctx, args)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}
		if err != nil {
			printlnFn("Error:", err)
		}
	}
}
