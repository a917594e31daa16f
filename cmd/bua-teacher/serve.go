package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anxuanzi/bua-teacher/server"
)

func newServeCmd(a *app) *cobra.Command {
	var transport, addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the guide tools over MCP or HTTP",
		Long: `Serves get_layout, highlight_by_index, highlight_widget and
highlight_html_element to an external agent.

Transports:
  stdio            MCP over stdin and stdout (default)
  streamable-http  MCP over HTTP on --addr
  http             JSON API on --addr`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if transport == "" {
				transport = a.cfg.Server.Transport
			}
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			ctx := cmd.Context()
			t, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer t.Close()

			g, err := t.Guide()
			if err != nil {
				return err
			}
			log := a.logger.Named("server")
			log.Info("serving guide tools", zap.String("transport", transport), zap.String("addr", addr))

			if transport == "http" {
				return server.NewHTTP(g, log).ListenAndServe(ctx, addr)
			}
			return server.NewMCP(g, log).Serve(ctx, transport, addr)
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "", "stdio, streamable-http or http (default from config)")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address for HTTP transports (default from config)")
	return cmd
}
