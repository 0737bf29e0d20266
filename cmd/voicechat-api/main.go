package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/voicechat/internal/config"
	"github.com/PabloGalante/voicechat/internal/observability"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "voicechat-api",
		Short:        "Retrieval-augmented voice chat turn service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./voicechat.yaml)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		observability.Setup(observability.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format})
		return cfg, nil
	}

	root.AddCommand(newServeCmd(load), newIngestCmd(load))
	return root
}
