// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

//go:build !windows

package registry

import "os"

func hasElevatedPrivileges() bool {
	return os.Geteuid() == 0
}
