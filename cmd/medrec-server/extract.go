package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medrec/medrec/internal/config"
	"github.com/medrec/medrec/internal/domain/records"
	"github.com/medrec/medrec/internal/platform/blobstore"
)

func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract structured data from one file and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			name, _ := cmd.Flags().GetString("filename")
			useAI, _ := cmd.Flags().GetBool("ai")
			verbose, _ := cmd.Flags().GetBool("verbose")
			if name == "" {
				name = filepath.Base(path)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(zerolog.WarnLevel)
			if verbose {
				logger = logger.Level(zerolog.DebugLevel)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			ctx := context.Background()
			b := &backends{repo: records.NewMemoryRepo(), blobs: blobstore.NewMemoryStore()}
			if !useAI {
				cfg.AIProjectID = ""
			} else if !cfg.AIEnabled() {
				return fmt.Errorf("--ai requires AI_PROJECT_ID")
			}
			ai, err := newAI(ctx, cfg)
			if err != nil {
				return err
			}
			if ai != nil {
				defer ai.Close()
			}
			svc := newService(cfg, b, ai, logger)

			doc, err := svc.Ingest(ctx, records.Upload{FileName: name, Data: data})
			if err != nil {
				return err
			}

			var out interface{} = doc.Result
			if verbose {
				out = doc
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().String("file", "", "Path to a PDF, image or text file")
	cmd.Flags().String("filename", "", "Filename used for imaging keyword detection (defaults to the file's base name)")
	cmd.Flags().Bool("ai", false, "Try the Vertex AI extractor first (requires AI_PROJECT_ID)")
	cmd.Flags().BoolP("verbose", "v", false, "Print the full document with lab debug counters")
	cmd.MarkFlagRequired("file")
	return cmd
}
