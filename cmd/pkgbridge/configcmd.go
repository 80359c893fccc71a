// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plcforge/pkgbridge/internal/config"
	"github.com/plcforge/pkgbridge/internal/i18n"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the pkgbridge configuration file",
	}
	cmd.AddCommand(newConfigInitCmd())
	return cmd
}

// newConfigInitCmd writes the effective configuration to disk so users get
// a file with every key present instead of starting from a blank page.
func newConfigInitCmd() *cobra.Command {
	var system bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.WriteConfigFile(&cfg, system)
			if err != nil {
				return fmt.Errorf("%s", i18n.T("config_init.error_write", err))
			}
			fmt.Println(i18n.T("config_init.done", path))
			return nil
		},
	}

	cmd.Flags().BoolVar(&system, "system", false, "write the system-wide configuration instead of the per-user one")
	return cmd
}
