package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/voicechat/internal/app/ingest"
	"github.com/PabloGalante/voicechat/internal/config"
)

func newIngestCmd(load func() (*config.Config, error)) *cobra.Command {
	var chunkRunes int

	cmd := &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Embed text files into the chromem collection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Chromem.Path == "" {
				return errors.New("chromem.path must be set to persist ingested passages")
			}

			embedder, err := buildEmbedder(cfg)
			if err != nil {
				return err
			}
			store, err := openChromem(cfg)
			if err != nil {
				return err
			}

			stats, err := ingest.NewIngester(embedder, store, chunkRunes).IngestFiles(cmd.Context(), args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d passages from %d files (collection size %d)\n",
				stats.Passages, stats.Files, store.Count())
			return nil
		},
	}
	cmd.Flags().IntVar(&chunkRunes, "chunk-size", ingest.DefaultChunkRunes, "maximum characters per passage")
	return cmd
}
