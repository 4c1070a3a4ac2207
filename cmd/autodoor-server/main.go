package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:   "autodoor-server",
		Short: "Automatic door controller with proximity sensing, alerts and a live dashboard feed",
		Long: `autodoor-server drives a simulated automatic door: a proximity sensor opens it
when someone approaches, a timer closes it again, and every change is logged,
alerted and streamed to websocket clients.

Configuration comes from built-in defaults, an optional YAML file
(--config, AUTODOOR_CONFIG or ./autodoor.yaml) and AUTODOOR_* variables.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfgPath)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "YAML config file")

	root.AddCommand(serveCmd(&cfgPath))
	root.AddCommand(migrateCmd(&cfgPath))
	root.AddCommand(settingsCmd(&cfgPath))
	return root
}
