package main

import (
	"github.com/spf13/cobra"

	"github.com/flemzord/parserdesk/pkg/app"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway and background jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Serve(cmd.Context(), params(cmd))
		},
	}
}
