package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/soccentric/hwverify/config"
	"github.com/soccentric/hwverify/logging"
	"github.com/soccentric/hwverify/metrics"
	"github.com/soccentric/hwverify/periph"
	"github.com/soccentric/hwverify/probe"
	"github.com/soccentric/hwverify/registry"
	"github.com/soccentric/hwverify/runner"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := newApp()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Exit-coded errors never reach here; RunContext handles them and
	// exits with the batch code.
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "hwverify"
	app.Usage = "Hardware peripheral verification harness for embedded Linux boards"
	app.Description = "hwverify probes board peripherals through sysfs and procfs, " +
		"runs short functional tests or longer monitoring windows, and reports " +
		"the results as a table or JSON."
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "emit results as JSON instead of a table",
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "write results to `FILE` instead of stdout",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "load monitor thresholds from `FILE` (YAML)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "append log lines to `FILE`",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "serve Prometheus metrics on `ADDR` (e.g. :9090)",
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:      "list",
			Usage:     "List supported peripherals and their availability",
			ArgsUsage: " ",
			Action:    listAction,
		},
		{
			Name:      "test",
			Usage:     "Run short tests for the named peripherals",
			ArgsUsage: "[peripheral...]",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "all",
					Usage: "test every registered peripheral",
				},
			},
			Action: func(ctx *cli.Context) error {
				return runAction(ctx, runner.ModeShort, 0)
			},
		},
		{
			Name:      "monitor",
			Usage:     "Run monitoring tests for the named peripherals",
			ArgsUsage: "[peripheral...]",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "all",
					Usage: "monitor every registered peripheral",
				},
				&cli.IntFlag{
					Name:  "duration",
					Value: 10,
					Usage: "length of the monitoring window in `SECONDS`",
				},
			},
			Action: func(ctx *cli.Context) error {
				duration := time.Duration(ctx.Int("duration")) * time.Second
				return runAction(ctx, runner.ModeMonitor, duration)
			},
		},
	}
	return app
}

// setup builds the shared pieces every command needs. The logger's
// console sink is disabled in JSON mode so stdout stays machine-clean
// even when --output is not set.
func setup(ctx *cli.Context) (*registry.Registry, *slog.Logger, func(), error) {
	log, closer, err := logging.New(logging.Config{
		Level:   ctx.String("log-level"),
		File:    ctx.String("log-file"),
		Console: !ctx.Bool("json"),
	})
	if err != nil {
		return nil, nil, nil, err
	}

	cfg := config.Default()
	if path := ctx.String("config"); path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			closer.Close()
			return nil, nil, nil, err
		}
		log.Debug("loaded config", "path", path)
	}

	if addr := ctx.String("metrics-addr"); addr != "" {
		metrics.Serve(log, addr)
	}

	reg := periph.DefaultRegistry(probe.System{}, cfg, log)
	return reg, log, func() { closer.Close() }, nil
}

func listAction(ctx *cli.Context) error {
	reg, _, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	out, closeOut, err := outputWriter(ctx)
	if err != nil {
		return err
	}
	defer closeOut()

	fmt.Fprintln(out, "Available Peripherals:")
	fmt.Fprintln(out, "=====================")
	for _, key := range reg.Keys() {
		t, err := reg.Create(key)
		if err != nil {
			return err
		}
		state := "Not Available"
		if t.Available() {
			state = "Available"
		}
		fmt.Fprintf(out, "%s: %s\n", key, state)
	}
	return nil
}

func runAction(ctx *cli.Context, mode runner.Mode, duration time.Duration) error {
	keys := ctx.Args().Slice()
	if !ctx.Bool("all") && len(keys) == 0 {
		return cli.Exit("specify peripheral names or --all", 1)
	}

	reg, log, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if ctx.Bool("all") {
		keys = reg.Keys()
	}

	result := runner.New(reg, log).Run(ctx.Context, keys, mode, duration)

	out, closeOut, err := outputWriter(ctx)
	if err != nil {
		return err
	}
	defer closeOut()

	if ctx.Bool("json") {
		if err := runner.WriteJSON(out, result); err != nil {
			return errors.Wrap(err, "encoding results")
		}
	} else {
		runner.WriteTable(out, result)
	}

	if code := result.ExitCode(); code != 0 {
		return cli.Exit("", code)
	}
	return nil
}

// outputWriter resolves --output. Stdout is never closed.
func outputWriter(ctx *cli.Context) (io.Writer, func(), error) {
	path := ctx.String("output")
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening output file %s", path)
	}
	return f, func() { f.Close() }, nil
}
