// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/plcforge/pkgbridge/internal/db"
	"github.com/plcforge/pkgbridge/internal/i18n"
	"github.com/plcforge/pkgbridge/internal/model"
)

func newRegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Export and import the target registry",
	}
	cmd.AddCommand(newRegistryExportCmd())
	cmd.AddCommand(newRegistryImportCmd())
	return cmd
}

// newRegistryExportCmd writes a compressed snapshot of targets and pinned
// host keys, for moving a registry between workstations.
func newRegistryExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Export targets and pinned host keys to a snapshot file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := db.ActiveStore().ExportSnapshot()
			if err != nil {
				return fmt.Errorf("%s", i18n.T("registry_export.error_snapshot", err))
			}
			if err := writeSnapshotFile(args[0], snap); err != nil {
				return err
			}
			fmt.Println(i18n.T("registry_export.done", len(snap.Remotes), len(snap.KnownHosts), args[0]))
			return nil
		},
	}
}

func newRegistryImportCmd() *cobra.Command {
	var merge bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a registry snapshot",
		Long: `Replaces the local registry with the snapshot's contents. With --merge
the snapshot is added on top instead, skipping entries that already
exist.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := readSnapshotFile(args[0])
			if err != nil {
				return err
			}
			if snap.Version != model.SnapshotVersion {
				return fmt.Errorf("%s", i18n.T("registry_import.bad_version", snap.Version, model.SnapshotVersion))
			}

			if err := db.ActiveStore().ImportSnapshot(snap, merge); err != nil {
				return fmt.Errorf("%s", i18n.T("registry_import.error_import", err))
			}
			fmt.Println(i18n.T("registry_import.done", len(snap.Remotes), len(snap.KnownHosts)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&merge, "merge", false, "add snapshot entries to the existing registry instead of replacing it")
	return cmd
}

func writeSnapshotFile(path string, snap *model.RegistrySnapshot) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return err
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readSnapshotFile(path string) (*model.RegistrySnapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%s", i18n.T("registry_import.error_read", path, err))
	}
	var snap model.RegistrySnapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%s", i18n.T("registry_import.error_parse", path, err))
	}
	return &snap, nil
}
