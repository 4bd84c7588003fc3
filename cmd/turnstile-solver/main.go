// Command turnstile-solver renders a Cloudflare Turnstile widget in a browser
// and prints the completion token it produces.
//
//	turnstile-solver --url https://example.com --sitekey 0x4AAAAAAA [--headless]
//
// The serve subcommand exposes the same solve over an HTTP task API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"turnstile-solver/argparse"
	"turnstile-solver/config"
	"turnstile-solver/solver"
)

const (
	appName = "turnstile-solver"
	Version = "0.1.0"
)

var solveFlags = argparse.Schema{
	{Name: "url", Kind: argparse.String, Required: true, Placeholder: "url", Usage: "Page URL the widget is rendered for"},
	{Name: "sitekey", Kind: argparse.String, Required: true, Placeholder: "key", Usage: "Turnstile site key"},
	{Name: "action", Kind: argparse.String, Placeholder: "action", Usage: "Widget data-action"},
	{Name: "cdata", Kind: argparse.String, Placeholder: "cdata", Usage: "Widget data-cdata"},
	{Name: "headless", Kind: argparse.Bool, Usage: "Run the browser without a window"},
	{Name: "useragent", Kind: argparse.String, Placeholder: "UA", Usage: "User-Agent override"},
	{Name: "debug", Kind: argparse.Bool, Usage: "Log every polling attempt to stderr"},
	{Name: "browser_type", Kind: argparse.String, Default: string(solver.VariantChromium), Choices: solver.Variants, Usage: "Browser build to launch"},
	{Name: "help", Kind: argparse.Bool, Usage: "Show this help"},
}

// Solver is what the commands need from solver.Solver.
type Solver interface {
	Solve(ctx context.Context, req solver.Request) (solver.Result, error)
}

// app carries the seams tests replace.
type app struct {
	newSolver func(cfg config.Config) Solver
}

func defaultApp() *app {
	return &app{
		newSolver: func(cfg config.Config) Solver {
			return solver.New(&solver.PlaywrightLauncher{
				ExecutablePath: cfg.ExecutablePath,
				ActionTimeout:  cfg.ActionTimeout,
			})
		},
	}
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultApp())
	stop()
	os.Exit(code)
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, a *app) int {
	cmd := rootCmd(a)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		var reported reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// reportedError marks an error runSolve already wrote to stderr.
type reportedError struct{ err error }

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

func rootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName + " --url <url> --sitekey <key> [flags]",
		Short: "Solve a Cloudflare Turnstile widget in a real browser",
		// Solve flags go through argparse, not cobra. run prints errors
		// runSolve has not reported itself.
		DisableFlagParsing: true,
		Args:               cobra.ArbitraryArgs,
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(cmd, args, a)
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.AddCommand(serveCmd(a), installCmd(), eventsCmd(), &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})
	return cmd
}

func runSolve(cmd *cobra.Command, args []string, a *app) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	vals, err := solveFlags.Parse(args)
	if vals.Bool("help") {
		fmt.Fprint(stdout, solveFlags.Usage(appName))
		return nil
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		fmt.Fprint(stderr, solveFlags.Usage(appName))
		return reportedError{err}
	}

	req, err := requestFromFlags(vals)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return reportedError{err}
	}

	level := zerolog.WarnLevel
	if req.Debug {
		level = zerolog.DebugLevel
	}
	log := newLogger(stderr, level)

	cfg, err := config.BrowserFromEnv(config.Default())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return reportedError{err}
	}

	res, err := a.newSolver(cfg).Solve(log.WithContext(cmd.Context()), req)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return reportedError{err}
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, string(out))
	return nil
}

func requestFromFlags(vals argparse.Values) (solver.Request, error) {
	variant, err := solver.ParseVariant(vals.String("browser_type"))
	if err != nil {
		return solver.Request{}, err
	}
	return solver.Request{
		URL:       vals.String("url"),
		SiteKey:   vals.String("sitekey"),
		Action:    vals.String("action"),
		CData:     vals.String("cdata"),
		Headless:  vals.Bool("headless"),
		UserAgent: vals.String("useragent"),
		Debug:     vals.Bool("debug"),
		Browser:   variant,
	}, nil
}
