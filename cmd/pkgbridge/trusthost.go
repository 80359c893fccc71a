// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/plcforge/pkgbridge/internal/db"
	"github.com/plcforge/pkgbridge/internal/i18n"
	"github.com/plcforge/pkgbridge/internal/model"
	"github.com/plcforge/pkgbridge/internal/registry"
	"github.com/plcforge/pkgbridge/internal/sshkey"
	"github.com/plcforge/pkgbridge/internal/transport"
)

// newTrustHostCmd pins a host's public key ahead of the first connection,
// so the first real invocation does not stop at an interactive prompt.
func newTrustHostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trust-host <host|name>",
		Short: "Pin a host's public key before the first connection",
		Long: `Connects to a host, retrieves its public key, and asks whether to pin
it. A registered target name or a bare hostname both work.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hostname := args[0]
			port := registry.DefaultPort
			if target, err := newRegistry().Get(hostname); err == nil {
				hostname = target.Host
				port = target.Port
			}

			fmt.Println(i18n.T("trust_host.retrieving_key", hostname))
			key, err := transport.GetRemoteHostKey(cmd.Context(), model.RemoteTarget{
				Host: hostname,
				User: registry.DefaultUser,
				Port: port,
			})
			if err != nil {
				return fmt.Errorf("%s", i18n.T("trust_host.error_get_key", err))
			}

			fingerprint := ssh.FingerprintSHA256(key)
			fmt.Println()
			fmt.Println(i18n.T("trust_host.authenticity_warning_1", hostname))
			fmt.Println(i18n.T("trust_host.authenticity_warning_2", fingerprint))
			if warning := sshkey.CheckHostKeyAlgorithm(key); warning != "" {
				fmt.Printf("\n%s\n", warning)
			}

			if promptForConfirmation(i18n.T("trust_host.confirm_prompt")) != "yes" {
				fmt.Println(i18n.T("trust_host.not_trusted_abort"))
				osExit(1)
				return nil
			}

			keyStr := string(ssh.MarshalAuthorizedKey(key))
			if err := db.AddKnownHostKey(hostname, keyStr); err != nil {
				return fmt.Errorf("%s", i18n.T("trust_host.error_save_key", err))
			}
			fmt.Println(i18n.T("trust_host.added_success", hostname, strings.TrimSpace(key.Type())))
			return nil
		},
	}
}
