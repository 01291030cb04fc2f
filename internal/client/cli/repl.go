package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/bizledger/internal/client/session"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Signup(ctx context.Context) error
	Login(ctx context.Context) error
	Check(ctx context.Context) error
	SubmitOrder(ctx context.Context, path string) error
	GetOrder(ctx context.Context, buyerID, orderDate string) error
	Logout(ctx context.Context) error
}

// Run starts the interactive shell on the App's input.
func (a *App) Run(ctx context.Context) error {
	printlnFn("Welcome to bizledger CLI (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.reader)
	return nil
}

// runREPL starts a simple read-eval-print loop for the bizledger CLI.
//
// Lines are read from reader, which is shared with the interactive prompts
// of the commands. The first token is the command:
//
//	Not logged in:
//	  - help                     show available commands
//	  - signup                   create an account
//	  - login                    authenticate
//	  - exit | quit              leave the program
//
//	Logged in:
//	  - check                    show who is logged in
//	  - submit <file>            submit a sales order from a JSON file
//	  - get <buyer_id> <date>    show an order
//	  - logout                   log out
//	  - exit | quit              leave the program
//
// Command errors are printed and the loop carries on. The loop exits on EOF
// or on "exit" / "quit".
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("bl %s > ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: check, submit <file>, get <buyer_id> <date>, logout, exit")
			} else {
				printlnFn("Available commands: signup, login, exit")
			}

		case "signup":
			report(a.Signup(ctx))

		case "login":
			report(a.Login(ctx))

		case "check":
			report(a.Check(ctx))

		case "submit":
			if len(args) != 1 {
				printlnFn("Usage: submit <file>")
				continue
			}
			report(a.SubmitOrder(ctx, args[0]))

		case "get":
			if len(args) != 2 {
				printlnFn("Usage: get <buyer_id> <date>")
				continue
			}
			report(a.GetOrder(ctx, args[0], args[1]))

		case "logout":
			report(a.Logout(ctx))

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}

func report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, session.ErrSessionExpired):
		printlnFn("Session expired, please login again")
	default:
		printlnFn("Error:", err)
	}
}
