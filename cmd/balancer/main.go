// Command balancer is the CLI entry point: it resolves configuration,
// builds one IterationDriver per configured name service, and drives
// them to a terminal status via the MultiServiceRunner (spec §6).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"

	"github.com/NVIDIA/balancer/cmn/nlog"
	"github.com/NVIDIA/balancer/internal/adapters"
	"github.com/NVIDIA/balancer/internal/config"
	"github.com/NVIDIA/balancer/internal/policy"
	"github.com/NVIDIA/balancer/internal/runner"
	"github.com/NVIDIA/balancer/internal/status"
)

func main() {
	app := cli.NewApp()
	app.Name = "balancer"
	app.Usage = "rebalance block placement across a storage cluster"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "policy", Value: "node", Usage: "placement policy: node | pool"},
		cli.Float64Flag{Name: "threshold", Value: 10.0, Usage: "utilization threshold, percent"},
		cli.StringFlag{Name: "exclude", Usage: "comma-separated hosts to exclude"},
		cli.StringFlag{Name: "exclude-file", Usage: "file of hosts to exclude, one per line"},
		cli.StringFlag{Name: "include", Usage: "comma-separated hosts to include (mutually exclusive with -exclude)"},
		cli.StringFlag{Name: "include-file", Usage: "file of hosts to include, one per line"},
		cli.IntFlag{Name: "v", Usage: "verbosity level"},
		cli.BoolFlag{Name: "no-progress", Usage: "disable the terminal progress bar"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		if code, ok := err.(exitError); ok {
			if code.code != 0 {
				fmt.Fprintln(os.Stderr, code.msg)
			}
			os.Exit(code.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(status.IllegalArgs.ExitCode())
	}
}

// exitError carries a resolved status.Code exit value through
// cli.App.Run's single error-return path.
type exitError struct {
	code int
	msg  string
}

func (e exitError) Error() string { return e.msg }

func run(c *cli.Context) error {
	nlog.SetVerbosity(c.Int("v"))

	cfg, err := config.FromEnv()
	if err != nil {
		return exitError{status.IllegalArgs.ExitCode(), err.Error()}
	}
	if c.IsSet("policy") {
		cfg.Policy = c.String("policy")
	}
	if c.IsSet("threshold") {
		cfg.ThresholdPct = c.Float64("threshold")
	}
	cfg.Exclude, cfg.Include = resolveHostFlags(c)

	if err := cfg.Validate(); err != nil {
		return exitError{status.IllegalArgs.ExitCode(), err.Error()}
	}

	pol, ok := policy.Parse(cfg.Policy)
	if !ok {
		return exitError{status.IllegalArgs.ExitCode(), fmt.Sprintf("unsupported policy %q", cfg.Policy)}
	}
	nlog.Infof("balancer starting: policy=%s threshold=%.1f%%", pol.Name(), cfg.ThresholdPct)

	connectors, err := Connect(cfg)
	if err != nil {
		if err == adapters.ErrNotConfigured {
			return exitError{status.IllegalArgs.ExitCode(), err.Error()}
		}
		return exitError{status.IOException.ExitCode(), err.Error()}
	}
	if len(connectors) == 0 {
		return exitError{status.IllegalArgs.ExitCode(), "no name services configured"}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !c.Bool("no-progress") {
		_, stopProgress := startProgress(ctx, len(connectors))
		defer stopProgress()
	}

	start := time.Now()
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	code := runner.Run(ctx, connectors, cfg.HeartbeatInterval, rnd)
	elapsed := time.Since(start)

	fmt.Printf("Balancing took %s\n", elapsed.Round(time.Second))
	return exitError{code.ExitCode(), code.String()}
}

// resolveHostFlags folds the four host-list flags into the -exclude
// (-f <file> | host[,host]...) / -include surface named in spec §6: a
// *-file flag is equivalent to passing "@<path>" to the plain flag.
func resolveHostFlags(c *cli.Context) (exclude, include []string) {
	excludeVal := c.String("exclude")
	if f := c.String("exclude-file"); f != "" {
		excludeVal = "@" + f
	}
	includeVal := c.String("include")
	if f := c.String("include-file"); f != "" {
		includeVal = "@" + f
	}
	if excludeVal != "" {
		exclude = []string{excludeVal}
	}
	if includeVal != "" {
		include = []string{includeVal}
	}
	return exclude, include
}

func startProgress(ctx context.Context, n int) (*mpb.Progress, func()) {
	p := mpb.New(mpb.WithWidth(64))
	bar := p.AddBar(int64(n),
		mpb.PrependDecorators(decor.Name("balancing ")),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
	)
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(2 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-t.C:
				if bar.Current() < int64(n) {
					bar.Increment()
				}
			}
		}
	}()
	return p, func() { close(done) }
}
