package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newCrawlCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl a sitemap and write the hreflang report",
		Long: `Reads the configured sitemap (or the seed URLs), fetches every page and
writes the hreflang map to a local file or a GCS bucket. Fetch failures are
recorded in the report; the command only fails when a sink cannot be written.`,
		RunE: runCrawl,
	}

	flags := cmd.Flags()
	flags.String("sitemap", "", "sitemap or sitemap index url")
	flags.StringSlice("seed", nil, "page url to crawl in addition to the sitemap (repeatable)")
	flags.StringP("output", "o", "", "report path (file, or object name when a bucket is set)")
	flags.IntP("workers", "w", 0, "number of concurrent fetches")
	flags.String("listen", "", "serve /healthz, /metrics and /v1/batch on this address")
	flags.Bool("headless", false, "render pages with headless Chrome")
	flags.Bool("dry-run", false, "crawl and log the summary without writing the report")

	mustBind(v, "sitemap.url", flags.Lookup("sitemap"))
	mustBind(v, "crawler.seeds", flags.Lookup("seed"))
	mustBind(v, "output.path", flags.Lookup("output"))
	mustBind(v, "crawler.workers", flags.Lookup("workers"))
	mustBind(v, "metrics.listen_addr", flags.Lookup("listen"))
	mustBind(v, "headless.enabled", flags.Lookup("headless"))
	mustBind(v, "output.dry_run", flags.Lookup("dry-run"))
	return cmd
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := fromContext(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := newRunner(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize crawler: %w", err)
	}
	defer runner.Close()

	summary, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("run crawl: %w", err)
	}
	if ctx.Err() != nil {
		logger.Warn("crawl interrupted; unfinished pages are marked as failed",
			zap.Int("failed", summary.Failed))
	}
	if summary.ReportURI != "" {
		fmt.Fprintln(cmd.OutOrStdout(), summary.ReportURI)
	}
	return nil
}

// mustBind binds a flag to a viper key. Only the flag's explicit value wins
// over the config file, so unset flags keep file and env values.
func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag.Name, err))
	}
}
