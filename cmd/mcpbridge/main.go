// mcpbridge connects a language model to the tools of an MCP server.
//
// Usage:
//
//	mcpbridge [-config file] [-log-level level] serve
//	mcpbridge [-config file] [-log-level level] chat <server_path>
//	mcpbridge [-config file] config
//	mcpbridge version
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/config"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "cmd")

// Version is set at build time
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	fs := flag.NewFlagSet("mcpbridge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("MCPBRIDGE_CONFIG"), "path to YAML, JSON or TOML configuration file")
	logLevel := fs.String("log-level", "", "log level: error, warning, info, debug")
	verbose := fs.Bool("verbose", false, "print tool results and token usage in chat mode")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: mcpbridge [options] <serve|chat <server_path>|config|version>\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	command := fs.Arg(0)
	if command == "version" {
		fmt.Fprintf(stdout, "mcpbridge %s\n", Version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	setupLogging(cfg.LogLevel, stderr)

	switch command {
	case "serve":
		return runServe(ctx, cfg)
	case "chat":
		if fs.NArg() < 2 {
			return errors.New("usage: mcpbridge chat <server_path>")
		}
		return runChat(ctx, cfg, stdin, stdout, fs.Arg(1), *verbose)
	case "config":
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = io.WriteString(stdout, out)
		return errors.WithStack(err)
	case "":
		fs.Usage()
		return errors.New("command is required")
	default:
		return errors.Errorf("unknown command: %s", command)
	}
}

func setupLogging(level string, out io.Writer) {
	xlog.SetFormatter(xlog.NewStringFormatter(out))
	switch level {
	case "debug":
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	case "warning":
		xlog.SetGlobalLogLevel(xlog.WARNING)
	case "error":
		xlog.SetGlobalLogLevel(xlog.ERROR)
	default:
		xlog.SetGlobalLogLevel(xlog.INFO)
	}
}
