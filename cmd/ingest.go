package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-cli/internal/model"
	"github.com/sells-group/lead-cli/internal/source"
)

var (
	ingestFiles    []string
	ingestPlatform string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run scraped records through the qualification pipeline",
	Long:  "Fetches every configured source (or the --file inputs), then normalizes, deduplicates, filters, scores and routes each record.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		adapters, err := fileAdapters(ingestFiles, ingestPlatform)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		if len(adapters) == 0 {
			adapters = env.Adapters
		}
		if len(adapters) == 0 {
			return eris.New("ingest: no sources configured (pass --file or set sources in config)")
		}

		res, err := env.Pipeline.RunSources(ctx, adapters, cfg.Batch.MaxConcurrentSources)
		if res != nil {
			formatRunResult(os.Stdout, res)
		}
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		zap.L().Info("ingest complete",
			zap.String("run_id", res.RunID),
			zap.Int("processed", res.Total.Processed),
			zap.Int("qualified", res.Total.Qualified),
			zap.Int("discarded", res.Total.Discarded),
		)
		return nil
	},
}

// fileAdapters builds one FileAdapter per path for platform.
func fileAdapters(paths []string, platform string) ([]source.Adapter, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	p, err := model.ParsePlatform(platform)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: --platform")
	}
	adapters := make([]source.Adapter, 0, len(paths))
	for _, path := range paths {
		adapters = append(adapters, source.NewFileAdapter(path, p))
	}
	return adapters, nil
}

func init() {
	ingestCmd.Flags().StringSliceVar(&ingestFiles, "file", nil, "JSON or JSON-lines record dump (repeatable)")
	ingestCmd.Flags().StringVar(&ingestPlatform, "platform", "", "platform of the --file records (linkedin, reddit, twitter, instagram)")
	rootCmd.AddCommand(ingestCmd)
}
