// File: cmd/serve.go
package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crust/internal/api"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the automation API over HTTP",
		Long: `Starts the HTTP server. POST /api/interact with {"command": "..."} runs one
automation and returns its step log. The server stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.SetServerAddr(addr)
			}
			ctx := cmd.Context()

			comps, err := a.initializeComponents(ctx)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := shutdownContext()
				defer cancel()
				comps.Shutdown(shutdownCtx)
			}()

			server := api.NewServer(a.cfg.Server(), comps.runner, a.logger)
			a.logger.Info("Starting crust server.", zap.String("addr", a.cfg.Server().Addr), zap.String("version", Version))
			return server.ListenAndServe(ctx)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return serveCmd
}
