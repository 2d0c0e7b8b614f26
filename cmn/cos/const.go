// Package cos holds small constants and helpers shared across the balancer.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import "time"

const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

// verbosity modules, passed to nlog.FastV
const (
	SmoduleBalancer = "balancer"
	SmoduleClassify = "classify"
	SmodulePair     = "pair"
	SmoduleSelect   = "select"
	SmoduleDispatch = "dispatch"
)

// Dur2S formats a duration the way operator-facing summaries do: rounded
// to the millisecond and printed by time.Duration.String (e.g. "1.5s",
// "2m3.25s", "500ms").
func Dur2S(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
