package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/config"
	"github.com/effective-security/mcpbridge/conversation"
	"github.com/effective-security/xlog"
)

var quitCommands = map[string]bool{"quit": true, "exit": true, "q": true}

// runChat connects to the server and answers queries read from in,
// until a quit command, end of input or ctx is cancelled
func runChat(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, serverPath string, verbose bool) error {
	mgr, closeStore, err := newManager(cfg, conversation.NewPrinter(out, verbose))
	if err != nil {
		return err
	}
	defer closeStore()
	defer func() {
		if err := mgr.Close(); err != nil {
			logger.KV(xlog.ERROR, "status", "close_manager", "err", err.Error())
		}
	}()

	st, err := mgr.Connect(ctx, serverPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nConnected to server with tools: %s\n", strings.Join(st.Tools, ", "))
	fmt.Fprintf(out, "Type your queries or 'quit' to exit.\n")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprintf(out, "\nQuery: ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}
		if quitCommands[strings.ToLower(line)] {
			return nil
		}

		turn, err := mgr.Query(ctx, line)
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "\nError: %s\n", err.Error())
			continue
		}
		fmt.Fprintf(out, "\n%s\n", turn.Content)
	}
}
