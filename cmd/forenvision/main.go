// forenvision is the command-line client of the Forenvision case API. Every
// invocation is one client instance sharing the configured session backend,
// so a login in one terminal is visible to the next command and to a
// running console.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/forenvision/case-console/internal/app"
	"github.com/forenvision/case-console/internal/infrastructure/ui"
	"github.com/forenvision/case-console/internal/pkg/config"
	"github.com/forenvision/case-console/pkg/logger"
)

// exitCoder lets a command pick the exit status without printing an error.
type exitCoder interface {
	ExitCode() int
}

type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit code %d", e.code) }
func (e *exitError) ExitCode() int { return e.code }

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		var coder exitCoder
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globals are the flags accepted before the command name. They override the
// environment.
type globals struct {
	apiURL      string
	backend     string
	sessionFile string
	logLevel    string
}

func run(args []string, stdout, stderr io.Writer) error {
	var g globals
	flagSet := pflag.NewFlagSet("forenvision", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&g.apiURL, "api", "", "API base URL (env API_BASE_URL)")
	flagSet.StringVar(&g.backend, "backend", "", "session backend: file, redis or memory (env SESSION_BACKEND)")
	flagSet.StringVar(&g.sessionFile, "session-file", "", "session file for the file backend (env SESSION_FILE)")
	flagSet.StringVar(&g.logLevel, "log-level", "", "trace, debug, info, warn or error (env LOG_LEVEL)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stderr, flagSet)
			return nil
		}
		return fmt.Errorf("%w\n\nRun 'forenvision --help' for usage.", err)
	}
	if help, _ := flagSet.GetBool("help"); help || flagSet.NArg() == 0 {
		printHelp(stderr, flagSet)
		return nil
	}

	name, rest := flagSet.Arg(0), flagSet.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q\n\nRun 'forenvision --help' for usage.", name)
	}

	cmdFlags := pflag.NewFlagSet("forenvision "+name, pflag.ContinueOnError)
	cmdFlags.SetOutput(io.Discard)
	if cmd.flags != nil {
		cmd.flags(cmdFlags)
	}
	if err := cmdFlags.Parse(rest); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printCommandHelp(stderr, name, cmd, cmdFlags)
			return nil
		}
		return fmt.Errorf("%w\n\nRun 'forenvision %s --help' for usage.", err, name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	g.apply(cfg)

	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Development(),
		Output: stderr,
	})

	opts := app.Options{}
	if !cmd.console {
		opts.Notifier = ui.NewTerminalNotifier(stderr)
		opts.Navigator = ui.NewTerminalNavigator(stderr)
	}
	a, err := app.New(ctx, cfg, log, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
	}()
	if err := a.Start(ctx); err != nil {
		return err
	}

	return cmd.run(ctx, &env{app: a, flags: cmdFlags, args: cmdFlags.Args(), out: stdout, errOut: stderr, log: log})
}

func (g globals) apply(cfg *config.Config) {
	if g.apiURL != "" {
		cfg.APIBaseURL = g.apiURL
	}
	if g.backend != "" {
		cfg.Session.Backend = g.backend
	}
	if g.sessionFile != "" {
		cfg.Session.File = g.sessionFile
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
}

// env is what a command runs against.
type env struct {
	app    *app.App
	flags  *pflag.FlagSet
	args   []string
	out    io.Writer
	errOut io.Writer
	log    zerolog.Logger
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `forenvision: client for the Forenvision case API.

Usage:
  forenvision [global flags] <command> [flags] [args]

Commands:
`)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-14s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(w, "\nGlobal flags:\n")
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}

func printCommandHelp(w io.Writer, name string, cmd command, flagSet *pflag.FlagSet) {
	usage := cmd.usage
	if usage == "" {
		usage = name
	}
	fmt.Fprintf(w, "%s\n\nUsage:\n  forenvision %s\n", cmd.summary, usage)
	if flagSet.HasFlags() {
		fmt.Fprintf(w, "\nFlags:\n")
		flagSet.SetOutput(w)
		flagSet.PrintDefaults()
	}
}

func splitAssignments(values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, v := range values {
		k, val, ok := strings.Cut(v, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", v)
		}
		out[k] = val
	}
	return out, nil
}
