// Command leafprefs-host runs the preference host and inspects preference stores.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CreativeUnicorns/leafprefs"
	"github.com/CreativeUnicorns/leafprefs/config"
)

var (
	configPath string
	cfg        *config.Config
	logger     leafprefs.LevelLogger
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "leafprefs-host",
		Short: "Preference host for leaf plug-ins",
		Long: `leafprefs-host owns the preference store shared by leaf plug-ins.

It answers brokered value requests, collects leaf logs and relays store
changes to leaves. The other commands read and write the store directly.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger = leafprefs.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel())
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (.yaml, .yml or .toml)")

	rootCmd.AddCommand(
		serveCmd(),
		getCmd(),
		setCmd(),
		dumpCmd(),
		inspectCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		PrintError(err.Error())
		os.Exit(1)
	}
}
