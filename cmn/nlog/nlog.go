// Package nlog is the balancer's leveled-logging facade, modeled on the
// fast-verbosity-gated logger used throughout the storage node codebase.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

var std = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)

// verbosity is a global knob, analogous to cmn.Rom's runtime verbosity
// config; module-specific thresholds are not modeled, only a single
// cluster-wide level, since the balancer is a single-purpose CLI tool
// rather than a long-lived node process.
var verbosity int64

func SetVerbosity(v int) { atomic.StoreInt64(&verbosity, int64(v)) }

// FastV reports whether logging at the given level (for the named
// module) is currently enabled. The module argument is accepted for
// call-site symmetry with the teacher's `cmn.Rom.FastV(level, module)`
// convention; this implementation only gates on level.
func FastV(level int, _ string) bool {
	return atomic.LoadInt64(&verbosity) >= int64(level)
}

func Infof(format string, args ...any) { std.Output(2, "I "+fmt.Sprintf(format, args...)) }
func Infoln(args ...any)               { std.Output(2, "I "+fmt.Sprintln(args...)) }
func Warningf(format string, args ...any) {
	std.Output(2, "W "+fmt.Sprintf(format, args...))
}
func Errorf(format string, args ...any) { std.Output(2, "E "+fmt.Sprintf(format, args...)) }
func Errorln(args ...any)               { std.Output(2, "E "+fmt.Sprintln(args...)) }
