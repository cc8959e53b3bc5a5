package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/flemzord/parserdesk/internal/mcpserver"
	"github.com/flemzord/parserdesk/pkg/app"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the parser functions over MCP on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// stdout carries the protocol; logs go to stderr.
			p := params(cmd, "gateway")
			p.LogOutput = os.Stderr

			ctx := cmd.Context()
			rt, err := app.Build(ctx, p)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.WithoutCancel(ctx)) }()
			if err := rt.Start(); err != nil {
				return err
			}

			srv := mcpserver.New(rt.Registry, version,
				mcpserver.WithLogger(rt.Logger),
				mcpserver.WithStore(rt.Store),
				mcpserver.WithSessions(rt.Sessions),
			)
			rt.Logger.Info("mcp server ready", "tools", len(srv.Tools()))
			return srv.ServeStdio(ctx, os.Stdin, os.Stdout)
		},
	}
}
