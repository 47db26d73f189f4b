// Command clsample runs a compute kernel over a list of integers.
//
// Usage:
//
//	clsample [flags] <int>...
//
// With no configuration file the builtin sample kernel (squares) runs on the
// cpu backend:
//
//	$ clsample 1 2 3 4
//	1 4 9 16
//
// The exit status is 0 on success, 1 for failures the caller may retry
// (no platform, device, context or queue) and 2 for the remaining failures.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/gogpu/dispatch"
	"github.com/gogpu/dispatch/compute"
	"github.com/gogpu/dispatch/kernelsrc"

	_ "github.com/gogpu/dispatch/backend/cpu"
	_ "github.com/gogpu/dispatch/backend/opencl"
	_ "github.com/gogpu/dispatch/backend/wgpu"
)

// Exit codes.
const (
	exitOK          = 0
	exitRecoverable = 1
	exitFatal       = 2
	exitUsage       = 64
)

var (
	okStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#40a060"))
	failStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#d04040"))
	dimStyle  = lipgloss.NewStyle().Faint(true)
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("clsample", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath = fs.String("config", "", "YAML configuration file")
		backend    = fs.String("backend", "", "compute backend (overrides config): "+strings.Join(compute.Backends(), ", "))
		source     = fs.String("kernel", "", "kernel source location (overrides config)")
		entry      = fs.String("entry", "", "kernel entry point (overrides config)")
		geometry   = fs.String("geometry", "", "work geometry: pad or exact (overrides config)")
		repeat     = fs.Int("repeat", 1, "run the pipeline this many times and check the outputs agree")
		verbose    = fs.Bool("v", false, "log at debug level")
	)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, failStyle.Render("config:"), err)
		return exitUsage
	}
	override(&cfg.Backend, *backend)
	override(&cfg.Kernel.Source, *source)
	override(&cfg.Kernel.EntryPoint, *entry)
	override(&cfg.Geometry, *geometry)
	if *verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, failStyle.Render("config:"), err)
		return exitUsage
	}
	if *repeat < 1 {
		fmt.Fprintln(stderr, failStyle.Render("usage:"), "-repeat must be at least 1")
		return exitUsage
	}

	input, err := dispatch.ParseInts(fs.Args())
	if err != nil {
		fmt.Fprintln(stderr, failStyle.Render("usage:"), err)
		return exitUsage
	}

	dispatch.SetLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.Level()})))

	rt, err := compute.Open(cfg.Backend)
	if err != nil {
		fmt.Fprintln(stderr, failStyle.Render("backend:"), err)
		return exitUsage
	}
	kernel, err := kernelsrc.New(cfg.Backend, cfg.Storage).Load(ctx, cfg.Kernel.Source, cfg.Kernel.EntryPoint)
	if err != nil {
		return report(stderr, err)
	}
	p, err := dispatch.New(rt, kernel, cfg.Options()...)
	if err != nil {
		return report(stderr, err)
	}

	res, err := execute(ctx, p, input, *repeat, stderr)
	if err != nil {
		return report(stderr, err)
	}

	fmt.Fprintln(stdout, formatInts(res.Output))
	fmt.Fprintln(stderr, okStyle.Render("ok"), dimStyle.Render(fmt.Sprintf(
		"%s on %s, global=%d local=%d, %v",
		kernel.EntryPoint, res.Device.Name, res.Global, res.Local, res.Elapsed)))
	return exitOK
}

func loadConfig(path string) (dispatch.Config, error) {
	if path == "" {
		cfg := dispatch.DefaultConfig()
		return cfg, cfg.ApplyEnv()
	}
	return dispatch.LoadConfig(path)
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// execute runs p repeat times. Every run must produce the same output.
func execute(ctx context.Context, p *dispatch.Pipeline, input []int32, repeat int, progress io.Writer) (*dispatch.Result, error) {
	var bar *progressbar.ProgressBar
	if repeat > 1 {
		bar = progressbar.NewOptions(repeat,
			progressbar.OptionSetDescription("runs"),
			progressbar.OptionSetWriter(progress),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("runs"),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionClearOnFinish(),
		)
	}

	var first *dispatch.Result
	for i := 0; i < repeat; i++ {
		res, err := p.Execute(ctx, input)
		if err != nil {
			return nil, err
		}
		if first == nil {
			first = res
		} else if !slices.Equal(first.Output, res.Output) {
			return nil, fmt.Errorf("run %d produced a different output than run 1", i+1)
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return first, nil
}

// report prints err and returns the exit code its kind calls for.
func report(w io.Writer, err error) int {
	if errors.Is(err, dispatch.ErrBadArgument) {
		fmt.Fprintln(w, failStyle.Render("usage:"), err)
		return exitUsage
	}
	e, ok := dispatch.AsError(err)
	if !ok {
		fmt.Fprintln(w, failStyle.Render("error:"), err)
		return exitFatal
	}
	fmt.Fprintln(w, failStyle.Render(e.Kind.String()+":"), e.Err)
	if e.BuildLog != "" {
		fmt.Fprintln(w, dimStyle.Render(e.BuildLog))
	}
	if e.Fatal() {
		return exitFatal
	}
	return exitRecoverable
}

func formatInts(v []int32) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, " ")
}
