package main

import (
	"github.com/spf13/cobra"

	"creditscore/internal/engine"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve predictions over HTTP and gRPC",
		Long: `serve loads the promoted model and answers POST /predict/ over HTTP and
creditscore.v1.Prediction/Predict over gRPC. With --scoring it also scores
applications read from Kafka. The model is reloaded every
serve.reload_interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := engine.Bootstrap(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			return e.Run(cmd.Context())
		},
	}
}
