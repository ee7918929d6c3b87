package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"home-radio/internal/config"
	"home-radio/internal/logging"
)

type globalFlags struct {
	envFile  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "home-radio",
		Short:         "A personal internet radio for a folder of MP3 files.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(flags.envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "file of KEY=VALUE settings loaded before the environment is read")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override RADIO_LOG_LEVEL (debug, info, warn, error)")

	root.AddCommand(newServeCmd(flags), newImportCmd(flags))
	return root
}

func newLogger(flags *globalFlags) (*zap.Logger, error) {
	settings := config.ResolveLogging()
	if flags.logLevel != "" {
		settings.Level = flags.logLevel
	}
	return logging.New(logging.Options{
		Level:      settings.Level,
		Format:     settings.Format,
		File:       settings.File,
		MaxSizeMB:  50,
		MaxBackups: 3,
		MaxAgeDays: 28,
	})
}
