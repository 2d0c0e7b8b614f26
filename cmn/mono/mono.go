// Package mono provides a thin, swappable monotonic clock, mirroring the
// storage node's cmn/mono convention of never calling time.Now() directly
// from business logic.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import "time"

// Clock abstracts "now" so that back-off windows and iteration deadlines
// can be driven deterministically from tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Real is the default, production clock.
var Real Clock = realClock{}

// NanoTime returns the current monotonic time from the given clock,
// falling back to Real when nil.
func NanoTime(c Clock) time.Time {
	if c == nil {
		return Real.Now()
	}
	return c.Now()
}
