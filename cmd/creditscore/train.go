package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"creditscore/internal/logging"
	"creditscore/internal/pipeline"
	"creditscore/internal/state"
)

func newTrainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Run the extraction, preprocessing and training pipeline once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := pipeline.Compile(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := r.Close(); err != nil {
					logging.L().Warn("closing pipeline", "err", err)
				}
			}()

			rep, err := r.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("run %s: %w", rep.RunID, err)
			}
			out := cmd.OutOrStdout()
			if rep.Status == state.RunNoNewData {
				fmt.Fprintf(out, "run %s: no new data\n", rep.RunID)
				return nil
			}
			fmt.Fprintf(out, "run %s: %d rows through %s, f1 %.4f (best %.4f), promoted=%t\n",
				rep.RunID, rep.Rows, rep.ExtractionDate, rep.CurrentF1, rep.BestF1, rep.Promoted)
			return nil
		},
	}
}
