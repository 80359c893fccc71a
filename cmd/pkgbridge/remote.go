// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/plcforge/pkgbridge/internal/bootstrap"
	"github.com/plcforge/pkgbridge/internal/db"
	"github.com/plcforge/pkgbridge/internal/i18n"
	"github.com/plcforge/pkgbridge/internal/model"
	"github.com/plcforge/pkgbridge/internal/registry"
	"github.com/plcforge/pkgbridge/internal/sshkey"
	"github.com/plcforge/pkgbridge/internal/transport"
)

func newRemoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage remote targets",
	}
	cmd.AddCommand(newRemoteAddCmd())
	cmd.AddCommand(newRemoteListCmd())
	cmd.AddCommand(newRemoteRemoveCmd())
	return cmd
}

func newRemoteAddCmd() *cobra.Command {
	var (
		host           string
		user           string
		port           int
		keyPath        string
		internetAccess bool
		yes            bool
	)

	cmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Add a remote target",
		Long: `Registers a remote target. Without --yes the missing parameters are
collected interactively, the SSH connection is probed, and a trust
bootstrap over ADS is offered when the probe fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(promptInput)

			var name string
			if len(args) > 0 {
				name = args[0]
			} else {
				var err error
				name, err = promptString(reader, i18n.T("remote_add.prompt_name"), "", true)
				if err != nil {
					return err
				}
			}

			target := model.RemoteTarget{
				Name:              name,
				Host:              host,
				User:              user,
				Port:              port,
				KeyPath:           keyPath,
				HasInternetAccess: internetAccess,
			}
			if !yes {
				var err error
				target, err = collectTargetParameters(reader, target)
				if err != nil {
					return err
				}
			}

			reg := newRegistry()
			added, err := reg.Add(target)
			if err != nil {
				if errors.Is(err, db.ErrDuplicate) {
					return fmt.Errorf("%s", i18n.T("remote_add.already_exists", name))
				}
				return err
			}
			fmt.Println(i18n.T("remote_add.added", added.Name, added.String()))

			if yes {
				return nil
			}

			// Probe the new target and offer a bootstrap when it fails.
			state, err := probeAndOfferBootstrap(cmd.Context(), *added)
			if err != nil {
				fmt.Println(i18n.T("remote_add.bootstrap_failed", err))
				return nil
			}
			if state == bootstrap.StateSSHReachable || state == bootstrap.StateSucceeded {
				fmt.Println(i18n.T("remote_add.ssh_ok", added.String()))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "host address or IP (defaults to the target name)")
	cmd.Flags().StringVarP(&user, "user", "u", registry.DefaultUser, "SSH user on the target")
	cmd.Flags().IntVarP(&port, "port", "p", registry.DefaultPort, "SSH port")
	cmd.Flags().StringVarP(&keyPath, "key", "k", "", "private key file (auto-detected or generated when empty)")
	cmd.Flags().BoolVar(&internetAccess, "internet-access", false, "target downloads packages itself instead of receiving copies")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "non-interactive: take all parameters from flags")
	return cmd
}

// collectTargetParameters fills in target interactively, using provided
// values as defaults.
func collectTargetParameters(reader *bufio.Reader, target model.RemoteTarget) (model.RemoteTarget, error) {
	fmt.Println(i18n.T("remote_add.configure_header"))

	host, err := promptString(reader, i18n.T("remote_add.prompt_host"), target.Name, false)
	if err != nil {
		return target, err
	}
	target.Host = host

	user, err := promptString(reader, i18n.T("remote_add.prompt_user"), target.User, true)
	if err != nil {
		return target, err
	}
	target.User = user

	portStr, err := promptString(reader, i18n.T("remote_add.prompt_port"), strconv.Itoa(target.Port), false)
	if err != nil {
		return target, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return target, fmt.Errorf("%s", i18n.T("remote_add.invalid_port", portStr))
	}
	target.Port = port

	choice, err := promptChoice(reader, i18n.T("remote_add.internet_question"), []string{
		i18n.T("remote_add.internet_no"),
		i18n.T("remote_add.internet_yes"),
	}, 0)
	if err != nil {
		return target, err
	}
	target.HasInternetAccess = choice == 1

	if target.KeyPath == "" {
		target.KeyPath = sshkey.FindDefaultKey()
	}
	if target.KeyPath == "" {
		genChoice, err := promptChoice(reader, i18n.T("remote_add.no_key_question"), []string{
			i18n.T("remote_add.generate_key"),
			i18n.T("remote_add.custom_key_path"),
		}, 0)
		if err != nil {
			return target, err
		}
		if genChoice == 0 {
			generated, err := sshkey.Generate("pkgbridge@" + target.Name)
			if err != nil {
				return target, err
			}
			target.KeyPath = generated
			fmt.Println(i18n.T("remote_add.key_generated", generated))
		}
	}
	keyPath, err := promptString(reader, i18n.T("remote_add.prompt_key"), target.KeyPath, true)
	if err != nil {
		return target, err
	}
	target.KeyPath = keyPath

	return target, nil
}

// probeAndOfferBootstrap runs the trust flow for a freshly added target.
func probeAndOfferBootstrap(ctx context.Context, target model.RemoteTarget) (bootstrap.State, error) {
	publicKey, err := sshkey.PublicKeyFor(target.KeyPath)
	if err != nil {
		return bootstrap.StateFailed, err
	}

	fmt.Println(i18n.T("remote_add.probing", target.String()))
	flow := &bootstrap.Flow{
		Target:    target,
		PublicKey: publicKey,
		Probe: func(ctx context.Context) error {
			return transport.Probe(ctx, target, hostKeyStore{}, confirmHostKey)
		},
		Offer: func(t model.RemoteTarget) bool {
			fmt.Println(i18n.T("bootstrap.ssh_unreachable", t.String()))
			return promptForConfirmation(i18n.T("bootstrap.offer_prompt")) == "y"
		},
		OpenChannel: func(ctx context.Context) (bootstrap.Channel, error) {
			return bootstrap.OpenADSChannel(ctx, target.Host, "")
		},
		Sessions: db.ActiveStore(),
	}
	return flow.Run(ctx)
}

func newRemoteListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configured remote targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := newRegistry().List()
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				fmt.Println(i18n.T("remote_list.empty"))
				return nil
			}
			for _, t := range targets {
				access := i18n.T("remote_list.offline")
				if t.HasInternetAccess {
					access = i18n.T("remote_list.online")
				}
				fmt.Printf("%s - Host: %s, User: %s, Port: %d, %s\n", t.Name, t.Host, t.User, t.Port, access)
			}
			return nil
		},
	}
}

func newRemoteRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a remote target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := newRegistry().Remove(name); err != nil {
				if errors.Is(err, db.ErrNotFound) {
					fmt.Fprintln(os.Stderr, i18n.T("remote_remove.not_found", name))
					osExit(1)
					return nil
				}
				return err
			}
			fmt.Println(i18n.T("remote_remove.removed", name))
			return nil
		},
	}
}
