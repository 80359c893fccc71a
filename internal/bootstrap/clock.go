// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package bootstrap

import "time"

// Clock provides an abstraction over time.Now for testability.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

var defaultClock Clock = systemClock{}

// SetClock replaces the global clock used by the package. Tests may set a fake clock.
func SetClock(c Clock) { defaultClock = c }

// ResetClock restores the default system clock.
func ResetClock() { defaultClock = systemClock{} }

// sleep is swapped in tests so PID polling does not stall the suite.
var sleep = time.Sleep
