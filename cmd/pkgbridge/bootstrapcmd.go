// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plcforge/pkgbridge/internal/ads"
	"github.com/plcforge/pkgbridge/internal/bootstrap"
	"github.com/plcforge/pkgbridge/internal/db"
	"github.com/plcforge/pkgbridge/internal/i18n"
	"github.com/plcforge/pkgbridge/internal/logging"
	"github.com/plcforge/pkgbridge/internal/model"
	"github.com/plcforge/pkgbridge/internal/sshkey"
	"github.com/plcforge/pkgbridge/internal/transport"
)

// newBootstrapCmd sets up SSH trust on a target over ADS, for targets that
// cannot be reached over SSH yet.
func newBootstrapCmd() *cobra.Command {
	var netID string

	cmd := &cobra.Command{
		Use:   "bootstrap <name>",
		Short: "Set up SSH access on a registered target via ADS",
		Long: `Installs the local public key into the target's administrators
authorized_keys over the ADS system service, restarts the target's SSH
server, and verifies the connection. Requires a TwinCAT route to the
target (or an explicit --net-id).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := newRegistry().Get(args[0])
			if err != nil {
				return fmt.Errorf("%s", i18n.T("bootstrap.unknown_target", args[0]))
			}

			if n, err := bootstrap.CleanupExpired(db.ActiveStore()); err == nil && n > 0 {
				logging.Debugf("removed %d expired bootstrap sessions", n)
			}

			publicKey, err := sshkey.PublicKeyFor(target.KeyPath)
			if err != nil {
				return err
			}

			resolvedNetID := netID
			if resolvedNetID == "" {
				if path := ads.StaticRoutesPath(); path != "" {
					if routes, err := ads.LoadStaticRoutes(path); err == nil {
						if route, ok := ads.FindRoute(routes, target.Host); ok {
							resolvedNetID = route.NetID
							fmt.Println(i18n.T("bootstrap.route_found", route.Name, route.NetID))
						}
					}
				}
			}
			if resolvedNetID == "" {
				reader := bufio.NewReader(promptInput)
				resolvedNetID, err = promptString(reader, i18n.T("bootstrap.prompt_net_id"), "", true)
				if err != nil {
					return err
				}
			}

			flow := &bootstrap.Flow{
				Target:    *target,
				NetID:     resolvedNetID,
				PublicKey: publicKey,
				Probe: func(ctx context.Context) error {
					return transport.Probe(ctx, *target, hostKeyStore{}, confirmHostKey)
				},
				Offer: func(t model.RemoteTarget) bool {
					return promptForConfirmation(i18n.T("bootstrap.confirm_prompt", resolvedNetID)) == "y"
				},
				OpenChannel: func(ctx context.Context) (bootstrap.Channel, error) {
					return bootstrap.OpenADSChannel(ctx, target.Host, resolvedNetID)
				},
				Sessions: db.ActiveStore(),
			}

			state, err := flow.Run(cmd.Context())
			switch state {
			case bootstrap.StateSSHReachable:
				fmt.Println(i18n.T("bootstrap.already_reachable", target.String()))
			case bootstrap.StateSucceeded:
				fmt.Println(i18n.T("bootstrap.succeeded", target.String()))
			default:
				return fmt.Errorf("%s", i18n.T("bootstrap.failed", err))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&netID, "net-id", "", "target AMS net id (e.g. 192.168.1.50.1.1); static routes are consulted when empty")
	return cmd
}
