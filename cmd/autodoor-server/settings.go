package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/service"
	"github.com/BrandonDHaskell/autodoor/internal/autodoor/types"
)

func settingsCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect or change persisted door settings",
	}
	cmd.AddCommand(settingsListCmd(cfgPath))
	cmd.AddCommand(settingsSetCmd(cfgPath))
	return cmd
}

func settingsListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every setting; values that differ from the default are highlighted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withKernel(cmd.Context(), *cfgPath, func(ctx context.Context, k *service.Kernel) error {
				all, err := k.Settings.GetAll(ctx)
				if err != nil {
					return err
				}
				printSettings(cmd.OutOrStdout(), all)
				return nil
			})
		},
	}
}

func settingsSetCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Validate and persist a setting",
		Example: `  autodoor-server settings set detection_threshold 150
  autodoor-server settings set auto_close_timer 45`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKernel(cmd.Context(), *cfgPath, func(ctx context.Context, k *service.Kernel) error {
				s, err := k.Settings.Set(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", s.Key, color.New(color.FgGreen).Sprint(s.Value))
				return nil
			})
		},
	}
}

// withKernel opens the durable stores, builds a kernel without starting its
// loops and runs fn against it.
func withKernel(parent context.Context, cfgPath string, fn func(context.Context, *service.Kernel) error) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, logger, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	st, err := openStorage(parent, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	k, err := service.NewKernel(parent, st.stores, nil, service.KernelConfig{
		OutboxCapacity:  cfg.OutboxCapacity,
		BreakerFailures: cfg.BreakerFailures,
		PendingWrites:   st.worker.Pending,
	}, logger)
	if err != nil {
		return err
	}

	runErr := fn(parent, k)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = k.Shutdown(shutdownCtx)
	return runErr
}

func printSettings(w io.Writer, settings []types.Setting) {
	defaults := make(map[string]string)
	for _, d := range types.DefaultSettings() {
		defaults[d.Key] = d.Value
	}

	fmt.Fprintf(w, "%-24s %-8s %s\n", "KEY", "VALUE", "DESCRIPTION")
	for _, s := range settings {
		value := color.New(color.FgGreen).Sprintf("%-8s", s.Value)
		if def, ok := defaults[s.Key]; ok && def != s.Value {
			value = color.New(color.FgYellow).Sprintf("%-8s", s.Value)
		}
		fmt.Fprintf(w, "%-24s %s %s\n", s.Key, value, s.Description)
	}
}
