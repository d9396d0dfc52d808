package console

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Pending(ctx context.Context) error
	Resync(ctx context.Context) error
	Drop(ctx context.Context, id string) error
	Status(ctx context.Context) error
	Token(ctx context.Context) error
}

// runREPL reads commands from scanner until EOF or "exit"/"quit".
//
//	help           show available commands
//	pending        list outbox entries, oldest first
//	resync         deliver pending entries now
//	drop <id>      remove one entry without delivering it
//	status         health of the running edge
//	token          mint an admin token
//	exit | quit    leave
//
// Command errors are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("boda> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		var err error
		switch cmd {
		case "help":
			printlnFn("Available commands: (p)ending, resync, drop <id>, status, token, exit")

		case "p", "pending":
			err = a.Pending(ctx)

		case "resync":
			err = a.Resync(ctx)

		case "drop":
			if len(parts) != 2 {
				printlnFn("Usage: drop <id>")
				continue
			}
			err = a.Drop(ctx, parts[1])

		case "status":
			err = a.Status(ctx)

		case "token":
			err = a.Token(ctx)

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
