// Package cmd holds the memberdash command tree.
package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "memberdash",
	Short: "Member dashboard session and profile service",
	Long: `memberdash keeps one authenticated member session in sync with the identity
provider and resolves the member profile tied to it.

It runs as an HTTP service (serve) or as one-shot commands (profile, logout).
Configuration is read from the environment; see internal/pkg/config.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
