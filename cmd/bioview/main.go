// Command-line interface to bioview.
// Assembles microscopy image files into a dataset and serves its tiles over HTTP.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/janelia-flyem/bioview/bv"
	"github.com/janelia-flyem/bioview/dataset"
	"github.com/janelia-flyem/bioview/reader"
	"github.com/janelia-flyem/bioview/server"
	flag "github.com/spf13/pflag"

	_ "github.com/janelia-flyem/bioview/reader/synth"
)

var (
	// Display usage if true.
	showHelp = flag.BoolP("help", "h", false, "Show help message")

	// Run in verbose mode if true.
	runVerbose = flag.BoolP("verbose", "v", false, "Run in verbose mode")

	// Path to the TOML configuration.
	configFile = flag.StringP("config", "c", "", "TOML configuration file")

	// Address for http communication
	httpAddress = flag.String("http", "", "Address for HTTP communication")

	swapZC   = flag.Bool("swapzc", false, "Swap the Z and channel plane order")
	fallback = flag.String("fallback", "", "Channel identity fallback: merge or per-series")
	asJSON   = flag.Bool("json", false, "Print the assembled dataset as JSON")
)

// shutdownTimeout bounds the wait for active requests on interrupt.
const shutdownTimeout = 10 * time.Second

const helpMessage = `
bioview assembles multi-resolution microscopy images into a tiled, cached dataset

Usage: bioview [options] <command>

  -c, --config   =string   TOML configuration file.
      --http     =string   Address for HTTP communication.
      --swapzc   (flag)    Swap the Z and channel plane order of all files.
      --fallback =string   Channel identity fallback: merge or per-series.
      --json     (flag)    Print the assembled dataset as JSON.
  -v, --verbose  (flag)    Run in verbose mode.
  -h, --help     (flag)    Show help message

Commands:

	about
	help
	assemble <image files...>
	serve    <image files...>
`

func main() {
	flag.Usage = func() { fmt.Print(helpMessage) }
	flag.Parse()

	if flag.NArg() >= 1 && strings.ToLower(flag.Arg(0)) == "help" {
		*showHelp = true
	}
	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}
	if err := configure(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	defer bv.Shutdown()

	// Capture ctrl+c and other interrupts.  Then cancel whatever is running.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := DoCommand(ctx, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// configure loads any configuration file and applies command-line overrides.
func configure() error {
	if *configFile != "" {
		if err := server.LoadConfig(*configFile); err != nil {
			return err
		}
	}
	logConfig := server.LogConfig()
	logConfig.SetLogger()
	if *runVerbose {
		bv.Verbose = true
		bv.SetLogMode(bv.DebugMode)
	}

	server.SetHTTPAddress(*httpAddress)
	if flag.CommandLine.Changed("swapzc") {
		server.SetSwapZC(*swapZC)
	}
	if flag.CommandLine.Changed("fallback") {
		policy, err := dataset.ParseFallbackPolicy(*fallback)
		if err != nil {
			return err
		}
		server.SetFallback(policy)
	}
	return nil
}

// DoCommand serves as a switchboard for commands.
func DoCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("Blank command!")
	}
	switch args[0] {
	case "about":
		fmt.Printf("bioview %s\n\nImage formats:\n%s", server.Version, reader.FormatsString())
		return nil
	case "assemble":
		return DoAssemble(ctx, args[1:])
	case "serve":
		return DoServe(ctx, args[1:])
	}
	return fmt.Errorf("unknown command %q; use 'bioview help'", args[0])
}

// DoAssemble assembles the files and prints the dataset.
func DoAssemble(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("assemble needs at least one image file")
	}
	seq, err := dataset.Assemble(ctx, dataset.Inputs(paths...), server.AssembleOptions())
	if err != nil {
		return err
	}
	if *asJSON {
		m, err := json.MarshalIndent(seq, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(m))
		return nil
	}
	fmt.Println(seq.Summary())
	for _, setup := range seq.Setups {
		fmt.Printf("  setup %d: %s %s %s\n", setup.ID, setup.Name, setup.Size, setup.PixelType)
	}
	for _, failure := range seq.Failures {
		fmt.Printf("  skipped %s: %s\n", failure.Path, failure.Error)
	}
	return nil
}

// DoServe assembles the files and serves the dataset until interrupted.
func DoServe(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("serve needs at least one image file")
	}
	service, err := server.Open(ctx, paths)
	if err != nil {
		return err
	}
	defer service.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- service.Serve(server.HTTPAddress())
	}()
	select {
	case <-ctx.Done():
		bv.Infof("Stop signal captured.  Shutting down...\n")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := service.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("web server shutdown: %v", err)
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
