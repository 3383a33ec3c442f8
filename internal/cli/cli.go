package cli

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/raysh454/webaudit/internal/app"
)

const (
	CommandServe = "serve"
	CommandWatch = "watch"
)

var ErrUsage = errors.New("usage: webaudit <serve|watch> [flags]")

// CLIArgs are the parsed command line. Only flags given explicitly
// override the loaded configuration.
type CLIArgs struct {
	Command string

	// serve
	Addr string
	Plan string

	// watch
	Target   string
	Server   string
	Interval time.Duration
	Steps    int
	Chart    string
	MaxWait  time.Duration

	LogLevel string

	// RawArgs is the original args slice (useful for debugging/tests).
	RawArgs []string

	set map[string]bool
}

// ParseArgs parses a slice of args and returns CLIArgs. Use in tests by passing
// arbitrary slices. The function is deterministic and does not read os.Args.
func ParseArgs(args []string) (*CLIArgs, error) {
	if len(args) == 0 {
		return nil, ErrUsage
	}
	out := &CLIArgs{Command: args[0], RawArgs: args, set: make(map[string]bool)}

	fs := flag.NewFlagSet("webaudit "+out.Command, flag.ContinueOnError)
	fs.StringVar(&out.LogLevel, "log-level", "", "Minimum log level: debug|info|warn|error")

	switch out.Command {
	case CommandServe:
		fs.StringVar(&out.Addr, "addr", "", "Listen address of the results API")
		fs.StringVar(&out.Plan, "plan", "", "Check plan: functional|security|full")
	case CommandWatch:
		fs.StringVar(&out.Target, "target", "", "URL of the page to scan (required)")
		fs.StringVar(&out.Server, "server", "", "Base URL of the results API")
		fs.DurationVar(&out.Interval, "interval", 0, "Polling interval")
		fs.IntVar(&out.Steps, "steps", 0, "Number of steps that completes a scan")
		fs.StringVar(&out.Chart, "chart", "", "Path of the chart PNG")
		fs.DurationVar(&out.MaxWait, "max-wait", 0, "Give up polling after this long (0 waits forever)")
	default:
		return nil, fmt.Errorf("unknown command %q: %w", out.Command, ErrUsage)
	}

	// Ensure Parse doesn't write to stdout/stderr in tests
	fs.SetOutput(nopWriter{})

	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { out.set[f.Name] = true })

	if out.Command == CommandWatch && strings.TrimSpace(out.Target) == "" {
		return nil, fmt.Errorf("missing required -target argument")
	}
	if out.set["steps"] && out.Steps <= 0 {
		return nil, fmt.Errorf("-steps must be positive")
	}
	return out, nil
}

// Apply copies the explicitly given flags into cfg.
func (a *CLIArgs) Apply(cfg *app.Config) {
	if a.set["log-level"] {
		cfg.LogLevel = a.LogLevel
	}
	if a.set["addr"] {
		cfg.Addr = a.Addr
	}
	if a.set["plan"] {
		cfg.Plan = a.Plan
	}
	if a.set["server"] {
		cfg.Watch.ServerURL = a.Server
	}
	if a.set["interval"] {
		cfg.Watch.Interval = a.Interval
	}
	if a.set["steps"] {
		cfg.Watch.TotalSteps = a.Steps
	}
	if a.set["chart"] {
		cfg.Watch.ChartPath = a.Chart
	}
	if a.set["max-wait"] {
		cfg.Watch.MaxWait = a.MaxWait
	}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
