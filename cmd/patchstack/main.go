// Package main provides the patchstack CLI: it resolves game files against a
// patch stack described by a run configuration, and inspects, validates and
// exports that stack.
//
// Usage:
//
//	patchstack <command> [flags] [args]
//
// Every command accepts the shared flags (-root, -runcfg, -log-level, ...),
// whose defaults come from PATCHSTACK_* environment variables and a .env file
// in the working directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"

	"patchstack/internal/config"
	"patchstack/internal/logging"
)

type command struct {
	usage string
	help  string
	run   func(c *cmdCtx) error
	// setup registers command-specific flags.
	setup func(c *cmdCtx)
}

var commands = map[string]command{
	"resolve":  {usage: "resolve [-o file] [-raw] <fn>", help: "print the file the game receives for <fn>", setup: setupResolve, run: runResolve},
	"json":     {usage: "json [-game] [-sort] [-o file] <fn>", help: "print the merged JSON document <fn>", setup: setupJSON, run: runJSON},
	"diff":     {usage: "diff [-game] [-context n] <fn>", help: "show what every patch contributes to the JSON document <fn>", setup: setupDiff, run: runDiff},
	"missing":  {usage: "missing", help: "list patch archives that do not exist", run: runMissing},
	"ls":       {usage: "ls [-hash] [-ignored] [-gitignore]", help: "list every file the stack provides and its owner", setup: setupLs, run: runLs},
	"deps":     {usage: "deps [-json] [-order]", help: "show the dependency graph of the stack", setup: setupDeps, run: runDeps},
	"validate": {usage: "validate [-export file.zip]", help: "check patch and repository descriptors, or an export", setup: setupValidate, run: runValidate},
	"export":   {usage: "export [-layers] [-context n] -zip out.zip", help: "write the resolved stack to a reproducible zip", setup: setupExport, run: runExport},
	"repos":    {usage: "repos", help: "list local repositories", run: runRepos},
	"discover": {usage: "discover [-local] [-write] [url]", help: "crawl repositories starting at url", setup: setupDiscover, run: runDiscover},
	"add":      {usage: "add <archive>", help: "append a patch archive to the run configuration", run: runAdd},
	"remove":   {usage: "remove <index>", help: "remove a patch from the run configuration", run: runRemove},
	"set":      {usage: "set <game|build|title> <value>", help: "set a run configuration key", run: runSet},
}

// usageError marks errors caused by invalid invocations (exit status 2).
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

func main() {
	config.LoadDotEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit status.
func run(ctx context.Context, args []string, env config.Env, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" || args[0] == "--help" {
		printUsage(stderr)
		return 2
	}
	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "ERROR: unknown command %q\n", name)
		printUsage(stderr)
		return 2
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	c := &cmdCtx{ctx: ctx, fs: fs, stdout: stdout, stderr: stderr}
	c.cfg = config.Bind(fs, env)
	if cmd.setup != nil {
		cmd.setup(c)
	}
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: patchstack %s\n\n%s\n\nFlags:\n", cmd.usage, cmd.help)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	logging.Setup(c.cfg.LogLevel, stderr)

	err := cmd.run(c)
	var ue usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ue):
		fmt.Fprintln(stderr, "ERROR:", err)
		fs.Usage()
		return 2
	default:
		fmt.Fprintln(stderr, "ERROR:", err)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: patchstack <command> [flags] [args]")
	fmt.Fprintln(w, "\nCommands:")
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "  %-9s %s\n", n, commands[n].help)
	}
	fmt.Fprintln(w, "\nRun 'patchstack <command> -h' for the flags of a command.")
}
