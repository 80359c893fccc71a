// Copyright (c) 2026 plcforge
// pkgbridge - remote package manager bridge for industrial controllers
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the command-line interface for pkgbridge using the Cobra
// library. The root command forwards an arbitrary tool invocation to the
// selected remote target; subcommands manage the target registry, host
// trust and SSH bootstrap.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/plcforge/pkgbridge/internal/config"
	"github.com/plcforge/pkgbridge/internal/db"
	"github.com/plcforge/pkgbridge/internal/i18n"
	"github.com/plcforge/pkgbridge/internal/logging"
	"github.com/plcforge/pkgbridge/internal/model"
	"github.com/plcforge/pkgbridge/internal/registry"
	"github.com/plcforge/pkgbridge/internal/router"
	"github.com/plcforge/pkgbridge/internal/stage"
	"github.com/plcforge/pkgbridge/internal/transport"
)

var version = "dev" // this will be set by the linker

var cfgFile string

// appConfig is the layered configuration for one invocation.
type appConfig struct {
	Database struct {
		Type string `mapstructure:"type"`
		DSN  string `mapstructure:"dsn"`
	} `mapstructure:"database"`
	Tool struct {
		Command string `mapstructure:"command"`
	} `mapstructure:"tool"`
	Language string `mapstructure:"language"`
	Remote   string `mapstructure:"remote"`
	Debug    bool   `mapstructure:"debug"`
}

var cfg appConfig

func configDefaults() map[string]any {
	return map[string]any{
		"database.type": "sqlite",
		"database.dsn":  "",
		"tool.command":  "tcpkg",
		"language":      "en",
		"remote":        "",
		"debug":         false,
	}
}

// flagBindings maps config keys to the flags whose spelling differs.
func flagBindings() map[string]string {
	return map[string]string{
		"database.type": "db-type",
		"database.dsn":  "db-dsn",
		"language":      "lang",
	}
}

// osExit is swapped in tests that check exit codes.
var osExit = os.Exit

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		osExit(router.ExitCodeFor(err))
	}
}

// newRootCmd creates and configures a new root cobra command. Tests create
// fresh instances for isolation.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pkgbridge [--remote <name>] <command> [args...]",
		Short: "Run package manager commands on remote industrial controllers",
		Long: `pkgbridge forwards package manager invocations to a remote controller
over SSH. Targets without internet access get their artifacts fetched on
this workstation and copied over before the command runs.

Anything that is not a pkgbridge subcommand is passed to the remote tool
verbatim.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadConfig[appConfig](cmd, configDefaults(), &cfgFile, flagBindings())
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			cfg = loaded
			logging.SetDebug(cfg.Debug)
			i18n.Init(cfg.Language)

			if cfg.Database.DSN == "" {
				dataDir, err := config.DataDir()
				if err != nil {
					return err
				}
				cfg.Database.DSN = filepath.Join(dataDir, "pkgbridge.db")
			}
			if err := db.InitDB(cfg.Database.Type, cfg.Database.DSN); err != nil {
				return fmt.Errorf("%s", i18n.T("config.error_init_db", err))
			}
			db.SetDebug(cfg.Debug)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			osExit(runPassThrough(cmd, args))
			return nil
		},
	}

	// Stop flag parsing at the first non-flag token so the remote tool's
	// own flags are never interpreted here.
	cmd.Flags().SetInterspersed(false)

	cmd.AddCommand(newRemoteCmd())
	cmd.AddCommand(newTrustHostCmd())
	cmd.AddCommand(newBootstrapCmd())
	cmd.AddCommand(newRegistryCmd())
	cmd.AddCommand(newConfigCmd())

	cmd.Version = version

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is the pkgbridge.yaml in the user or system config dir)")
	cmd.PersistentFlags().String("db-type", "sqlite", `database type ("sqlite", "postgres", "mysql")`)
	cmd.PersistentFlags().String("db-dsn", "", "database connection string (default is pkgbridge.db in the user config dir)")
	cmd.PersistentFlags().String("lang", "en", `message language ("en", "de")`)
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().StringP("remote", "r", "", "remote target name (overrides PKGBRIDGE_REMOTE)")

	return cmd
}

// runPassThrough ships args to the selected remote and returns the process
// exit code.
func runPassThrough(cmd *cobra.Command, args []string) int {
	flagRemote, _ := cmd.Flags().GetString("remote")
	// cfg.Remote carries the layered PKGBRIDGE_REMOTE / config file value.
	remoteName, err := router.ResolveTarget(flagRemote, cfg.Remote)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), i18n.T("router.no_remote_selected"))
		return router.ExitConfigError
	}

	if code := ensureRemoteConfigured(cmd, remoteName); code != 0 {
		return code
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &router.Router{
		Targets:     targetLookup{},
		Dial:        dialSession,
		Stager:      stage.New(cfg.Tool.Command),
		ToolCommand: cfg.Tool.Command,
		Stdin:       cmd.InOrStdin(),
		Stdout:      cmd.OutOrStdout(),
		Stderr:      cmd.ErrOrStderr(),
	}
	return r.Run(ctx, remoteName, args)
}

// ensureRemoteConfigured offers to register an unknown remote interactively
// before the invocation runs. It returns 0 when the remote exists or was
// just added, and the exit code to use otherwise.
func ensureRemoteConfigured(cmd *cobra.Command, remoteName string) int {
	_, err := db.ActiveStore().GetRemote(remoteName)
	if err == nil {
		return 0
	}
	if !errors.Is(err, db.ErrNotFound) {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return router.ExitConfigError
	}

	answer := promptForConfirmation(i18n.T("passthrough.unknown_remote_offer", remoteName))
	if answer != "y" && answer != "yes" {
		fmt.Fprintln(cmd.ErrOrStderr(), i18n.T("passthrough.not_configured", remoteName))
		return router.ExitConfigError
	}

	reader := bufio.NewReader(promptInput)
	target, err := collectTargetParameters(reader, model.RemoteTarget{
		Name: remoteName,
		User: registry.DefaultUser,
		Port: registry.DefaultPort,
	})
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return router.ExitConfigError
	}
	added, err := newRegistry().Add(target)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return router.ExitCodeFor(err)
	}
	fmt.Println(i18n.T("remote_add.added", added.Name, added.String()))
	return 0
}

// targetLookup adapts the package-level db helpers to the router's store
// interface.
type targetLookup struct{}

func (targetLookup) GetRemote(name string) (*model.RemoteTarget, error) {
	return db.GetRemote(name)
}

// hostKeyStore pins host keys in the registry database.
type hostKeyStore struct{}

func (hostKeyStore) GetKnownHostKey(hostname string) (string, error) {
	return db.GetKnownHostKey(hostname)
}

func (hostKeyStore) AddKnownHostKey(hostname, key string) error {
	return db.AddKnownHostKey(hostname, key)
}

// dialSession opens a transport session, asking the operator about unknown
// host keys.
func dialSession(ctx context.Context, target model.RemoteTarget) (router.Session, error) {
	sess, err := transport.Dial(ctx, target, hostKeyStore{}, confirmHostKey)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// confirmHostKey shows the fingerprint of an unknown host key and asks for
// explicit confirmation.
func confirmHostKey(target model.RemoteTarget, fingerprint string) bool {
	fmt.Println(i18n.T("trust_host.authenticity_warning_1", target.Host))
	fmt.Println(i18n.T("trust_host.authenticity_warning_2", fingerprint))
	return promptForConfirmation(i18n.T("trust_host.confirm_prompt")) == "yes"
}

// newRegistry returns the registry facade over the initialized store.
func newRegistry() *registry.Registry {
	return registry.New(db.ActiveStore())
}
