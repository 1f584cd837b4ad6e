package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/memberhub/memberdash/internal/api"
	httpserver "github.com/memberhub/memberdash/internal/infrastructure/http"
)

const startupProbeTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	Long: `Run the member dashboard HTTP service.

The service restores any persisted session, follows the identity provider's
auth events and refreshes the session before it expires.

Examples:
  AUTH_URL=https://auth.example.org memberdash serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, log, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		a, err := newApp(ctx, cfg, log, appOptions{ensureIndexes: true})
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			a.close(closeCtx)
		}()

		a.start(ctx)
		if err := a.waitReady(ctx, startupProbeTimeout); err != nil {
			log.Warn().Err(err).Msg("serving before the session check settled")
		}
		a.provider.StartAutoRefresh(ctx, cfg.Auth.AutoRefreshInterval)

		router := api.NewRouter(api.Deps{
			Sessions:     a.manager,
			Profiles:     a.loader,
			Notices:      a.board,
			HealthChecks: a.checks,
			JWTSecret:    cfg.Auth.JWTSecret,
			Log:          log,
		})
		return httpserver.NewServer(router, cfg.Port, cfg.ShutdownTimeout, log).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
