package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign the persisted session out",
	Long: `Revoke the persisted session with the identity provider and clear all local
state. Requires REDIS_ADDR so there is a persisted session to act on.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, log, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		a, err := newApp(ctx, cfg, log, appOptions{})
		if err != nil {
			return err
		}
		defer a.close(context.Background())

		a.start(ctx)
		if err := a.waitReady(ctx, startupProbeTimeout); err != nil {
			return err
		}

		if err := a.manager.SignOut(ctx); err != nil {
			return fmt.Errorf("failed to log out: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "signed out")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
