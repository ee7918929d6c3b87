package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"home-radio/internal/config"
	"home-radio/internal/importer"
)

func newImportCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <url>",
		Short: "Download an MP3 into the audio directory.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(flags)
			if err != nil {
				return fmt.Errorf("initialise logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			audioRoot, err := config.ResolveAudioRoot()
			if err != nil {
				return fmt.Errorf("resolve audio root: %w", err)
			}
			station, err := config.ResolveStation()
			if err != nil {
				return fmt.Errorf("resolve station: %w", err)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			res, err := importer.New(audioRoot, importer.Options{
				Timeout:  station.ImportTimeout,
				MaxBytes: station.ImportMaxBytes,
			}, logger).Import(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%d bytes)\n", res.File, res.Bytes)
			return nil
		},
	}
}
