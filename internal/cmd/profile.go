package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/memberhub/memberdash/internal/core/domain"
	"github.com/memberhub/memberdash/internal/core/ports"
)

const (
	signInTimeout = 15 * time.Second
	pollInterval  = 50 * time.Millisecond
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Sign in and print the member profile",
	Long: `Sign in with email and password, resolve the member profile once and print it
as JSON. Without --email the persisted session (REDIS_ADDR) is used.

Examples:
  memberdash profile --email member@example.org --password secret
  memberdash profile`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if email != "" && password == "" {
			return fmt.Errorf("--password is required with --email")
		}

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

		if email == "" {
			if a.manager.Snapshot().State != domain.StateAuthenticated {
				return fmt.Errorf("no persisted session, use --email: %w", domain.ErrNoSession)
			}
		} else {
			since := a.manager.Snapshot().Version
			if err := a.manager.SignIn(ctx, email, password); err != nil {
				return err
			}
			if err := waitForState(ctx, a.manager, domain.StateAuthenticated, since, signInTimeout); err != nil {
				return err
			}
		}

		member, err := a.loader.Load(ctx)
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(member)
	},
}

// waitForState polls until the session settles in want. Sign-in is confirmed
// asynchronously by the auth event queue, so a signed-out state only counts as
// final once the cell has moved past version since.
func waitForState(ctx context.Context, sessions ports.SessionReader, want domain.SessionState, since uint64, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		snap := sessions.Snapshot()
		if !snap.Loading {
			if snap.State == want {
				return nil
			}
			if snap.Version > since && snap.State == domain.StateUnauthenticated && want == domain.StateAuthenticated {
				return domain.ErrNoSession
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s session: %w", want, ctx.Err())
		case <-ticker.C:
		}
	}
}

func init() {
	profileCmd.Flags().String("email", "", "member email")
	profileCmd.Flags().String("password", "", "member password")
	rootCmd.AddCommand(profileCmd)
}
