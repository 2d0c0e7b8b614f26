// Package config resolves the balancer's cluster-wide tunables (spec
// §6's "reported configuration keys") from the environment, with the
// typed defaults a real deployment would ship.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/NVIDIA/balancer/internal/status"
)

// Config is the resolved set of cluster-wide tunables driving the
// dispatcher pools, back-off windows, and heartbeat cadence.
type Config struct {
	Policy       string
	ThresholdPct float64
	Exclude      []string
	Include      []string

	BandwidthBytesPerSec      uint64
	DispatcherPoolSize        int
	MoverPoolSize             int
	MaxConcurrentMovesPerNode int
	MovedWindowWidthIters     int
	HeartbeatInterval         time.Duration
}

// Default returns the spec-named defaults (§4, §5, §6).
func Default() Config {
	return Config{
		Policy:                    "node",
		ThresholdPct:              10.0,
		BandwidthBytesPerSec:      1 * 1024 * 1024, // 1 MiB/s
		DispatcherPoolSize:        200,
		MoverPoolSize:             1000,
		MaxConcurrentMovesPerNode: 5,
		MovedWindowWidthIters:     2,
		HeartbeatInterval:         10 * time.Second,
	}
}

// envPrefix namespaces every override so the balancer's knobs don't
// collide with unrelated process environment variables.
const envPrefix = "BALANCER_"

// FromEnv starts from Default() and applies any BALANCER_* overrides
// found in the environment, parsing byte-size-like values with
// k8s.io/apimachinery's resource.Quantity so operators can write
// "10Gi" / "1Mi" the way they would in a Kubernetes manifest.
func FromEnv() (Config, error) {
	cfg := Default()

	if v, ok := lookup("BANDWIDTH"); ok {
		q, err := resource.ParseQuantity(v)
		if err != nil {
			return cfg, errors.Wrapf(err, "%sBANDWIDTH", envPrefix)
		}
		cfg.BandwidthBytesPerSec = uint64(q.Value())
	}
	if v, ok := lookup("DISPATCHER_POOL_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errors.Wrapf(err, "%sDISPATCHER_POOL_SIZE", envPrefix)
		}
		cfg.DispatcherPoolSize = n
	}
	if v, ok := lookup("MOVER_POOL_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errors.Wrapf(err, "%sMOVER_POOL_SIZE", envPrefix)
		}
		cfg.MoverPoolSize = n
	}
	if v, ok := lookup("MAX_CONCURRENT_MOVES_PER_NODE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errors.Wrapf(err, "%sMAX_CONCURRENT_MOVES_PER_NODE", envPrefix)
		}
		cfg.MaxConcurrentMovesPerNode = n
	}
	if v, ok := lookup("MOVED_WINDOW_WIDTH_ITERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errors.Wrapf(err, "%sMOVED_WINDOW_WIDTH_ITERS", envPrefix)
		}
		cfg.MovedWindowWidthIters = n
	}
	if v, ok := lookup("HEARTBEAT_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, errors.Wrapf(err, "%sHEARTBEAT_INTERVAL", envPrefix)
		}
		cfg.HeartbeatInterval = d
	}

	return cfg, nil
}

func lookup(suffix string) (string, bool) {
	return os.LookupEnv(envPrefix + suffix)
}

// Validate enforces spec §6's CLI-level constraints (ConfigError,
// spec §7): threshold in [1.0, 100.0] and mutually-exclusive
// include/exclude.
func (c Config) Validate() error {
	if c.ThresholdPct < 1.0 || c.ThresholdPct > 100.0 {
		return errors.Wrapf(status.ErrIllegalArgs, "threshold %.2f out of range [1.0, 100.0]", c.ThresholdPct)
	}
	if len(c.Exclude) > 0 && len(c.Include) > 0 {
		return errors.Wrap(status.ErrIllegalArgs, "-exclude and -include are mutually exclusive")
	}
	if c.Policy != "node" && c.Policy != "pool" {
		return errors.Wrapf(status.ErrIllegalArgs, "unsupported placement policy %q", c.Policy)
	}
	return nil
}

// ThresholdFraction returns ThresholdPct as a [0,1] fraction, the unit
// the Classifier operates in.
func (c Config) ThresholdFraction() float64 { return c.ThresholdPct / 100.0 }
