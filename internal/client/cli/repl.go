package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// printlnFn and printFn are test seams for user-facing output.
var (
	printlnFn = fmt.Println
	printFn   = fmt.Print
)

// isTerminal is a test seam for term.IsTerminal.
var isTerminal = term.IsTerminal

func isInteractive() bool {
	return isTerminal(int(os.Stdin.Fd()))
}

// execIface defines the command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	List(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Cats(ctx context.Context) error
	Filter(ctx context.Context, args []string) error
	Edit(ctx context.Context, args []string) error
	New(ctx context.Context) error
	Delete(ctx context.Context, args []string) error
	Export(ctx context.Context, args []string) error
	Import(ctx context.Context, args []string) error
	Snapshot(ctx context.Context) error
	Reload(ctx context.Context) error
	Push(ctx context.Context) error
	Mode(ctx context.Context, args []string) error
	Status(ctx context.Context) error
}

const helpText = `Available commands:
  (l)ist [text]               list visible stories, optionally matching text
  show <id>                   show one story
  cats                        list categories
  filter [text|cat|years|reset] ...
                              show or change the list filter
  edit <id>                   edit a story
  new                         create a story
  delete <id>                 delete a story
  export [file]               write the overrides to a file
  import <file>               replace the overrides with a file
  snapshot                    export base and overrides, dated
  reload                      pull the remote copy and reconcile
  push                        save the overrides to the remote now
  mode [view|edit]            show or switch the mode
  status                      show sync status
  exit | quit                 leave the program`

// runREPL reads commands line by line from r and dispatches them to a. The
// prompt (with the status from statusFn) is printed only when interactive.
// Command errors are reported and the loop goes on. It returns on EOF, on
// "exit"/"quit", or when ctx is done.
func runREPL(ctx context.Context, a execIface, statusFn func() string, r *bufio.Reader, interactive bool) {
	for {
		if ctx.Err() != nil {
			return
		}
		if interactive {
			printFn(fmt.Sprintf("storyline %s> ", statusFn()))
		}
		line, err := r.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help", "?":
			printlnFn(helpText)
		case "l", "list", "ls":
			cmdErr = a.List(ctx, args)
		case "show":
			cmdErr = a.Show(ctx, args)
		case "cats":
			cmdErr = a.Cats(ctx)
		case "filter":
			cmdErr = a.Filter(ctx, args)
		case "edit":
			cmdErr = a.Edit(ctx, args)
		case "new":
			cmdErr = a.New(ctx)
		case "delete", "rm":
			cmdErr = a.Delete(ctx, args)
		case "export":
			cmdErr = a.Export(ctx, args)
		case "import":
			cmdErr = a.Import(ctx, args)
		case "snapshot":
			cmdErr = a.Snapshot(ctx)
		case "reload":
			cmdErr = a.Reload(ctx)
		case "push":
			cmdErr = a.Push(ctx)
		case "mode":
			cmdErr = a.Mode(ctx, args)
		case "status":
			cmdErr = a.Status(ctx)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}
		if cmdErr != nil {
			printlnFn("Error:", cmdErr)
		}
	}
}
