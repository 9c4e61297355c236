package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/nvctranslator/nvcbot/internal/config"
	"github.com/nvctranslator/nvcbot/internal/domain"
	"github.com/nvctranslator/nvcbot/internal/processor"
	"github.com/nvctranslator/nvcbot/internal/resolver"
	"github.com/nvctranslator/nvcbot/internal/rewriter"
	"github.com/nvctranslator/nvcbot/internal/storage"
	"github.com/nvctranslator/nvcbot/internal/storage/postgres"
	"github.com/nvctranslator/nvcbot/internal/storage/sqlite"
	"github.com/nvctranslator/nvcbot/internal/twitter"
	"github.com/nvctranslator/nvcbot/pkg/client"
	"github.com/nvctranslator/nvcbot/pkg/logging"
)

var (
	historyLimit int
	remoteStatus bool
)

var rootCmd = &cobra.Command{
	Use:   "nvcbot",
	Short: "Non-violent communication reply bot",
	Long: `A bot that watches mentions of the nvctranslator account, rewrites the
post each mention replies to into non-violent communication, and posts
the rewritten text back as a reply.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the poll loop",
	Long:  `Poll for new mentions on a fixed interval until interrupted.`,
	RunE:  runLoop,
}

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run a single poll cycle",
	Long:  `Execute one fetch-resolve-dispatch-checkpoint cycle and exit.`,
	RunE:  runCycle,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the bot's pipeline status",
	Long:  `Display the current watermark and aggregate outcome counts.`,
	RunE:  runStatus,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent item outcomes",
	Long:  `Display the most recently recorded mention outcomes.`,
	RunE:  runHistory,
}

func init() {
	statusCmd.Flags().BoolVar(&remoteStatus, "remote", false, "query a running API server instead of the local database")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of outcomes to show")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "postgres":
		return postgres.NewPostgresStorage(cfg.PostgresURL)
	default:
		return sqlite.NewSQLiteStorage(cfg.SQLitePath)
	}
}

func newLogger(cfg *config.Config) logging.Logger {
	return logging.NewLogger(&logging.Config{
		Level:       logging.Level(cfg.LogLevel),
		ServiceName: "nvcbot",
		JSONFormat:  cfg.LogJSON,
	})
}

func buildProcessor(cfg *config.Config, store storage.Storage, logger logging.Logger) *processor.Processor {
	tw := twitter.NewClient(cfg.BotUserID, twitter.Credentials{
		BearerToken:       cfg.BearerToken,
		ConsumerKey:       cfg.ConsumerKey,
		ConsumerSecret:    cfg.ConsumerSecret,
		AccessToken:       cfg.AccessToken,
		AccessTokenSecret: cfg.AccessTokenSecret,
	})
	res := resolver.NewResolver(cfg.BotHandle)
	rw := rewriter.NewClient(cfg.TranslatorURL, logger)

	return processor.NewProcessor(store, tw, res, rw, tw, logger, cfg.MaxConcurrent)
}

func runLoop(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg)

	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	proc := buildProcessor(cfg, store, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("bot started",
		logging.F("handle", cfg.BotHandle),
		logging.F("interval", cfg.PollInterval.String()))

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		// Cycle errors never terminate the loop; the next tick retries.
		if _, err := proc.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				logger.Info("bot stopped")
				return nil
			}
			logger.Error("cycle failed", logging.Err(err))
		}

		select {
		case <-ctx.Done():
			logger.Info("bot stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func runCycle(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg)

	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	proc := buildProcessor(cfg, store, logger)

	report, err := proc.RunCycle(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("\nCycle %s\n", report.CycleID)
	fmt.Printf("Fetched %d mentions\n\n", report.Fetched)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Outcome", "Count"})
	for _, status := range outcomeOrder {
		if n := report.Count(status); n > 0 {
			table.Append([]string{string(status), fmt.Sprintf("%d", n)})
		}
	}
	table.Render()

	if report.Advanced {
		fmt.Printf("\nWatermark: %s -> %s\n",
			report.OldWatermark.Format(time.RFC3339), report.NewWatermark.Format(time.RFC3339))
	}
	return nil
}

var outcomeOrder = []domain.OutcomeStatus{
	domain.OutcomePublished,
	domain.OutcomeRewriteSkipped,
	domain.OutcomePublishFailed,
	domain.OutcomeNotReply,
	domain.OutcomeUnresolvable,
	domain.OutcomeSkipSelf,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var watermark string
	byStatus := make(map[string]int64)
	var total int64

	if remoteStatus {
		api := client.NewClient(cfg.APIEndpoint)
		status, err := api.GetStatus()
		if err != nil {
			return fmt.Errorf("failed to query API: %w", err)
		}
		if status.Watermark != nil {
			watermark = *status.Watermark
		}
		total = status.Stats.Total
		for k, v := range status.Stats.ByStatus {
			byStatus[k] = v
		}
	} else {
		store, err := getStorage(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer store.Close()

		ctx := context.Background()
		value, ok, err := store.GetWatermark(ctx)
		if err != nil {
			return fmt.Errorf("failed to read watermark: %w", err)
		}
		if ok {
			watermark = value.Format(time.RFC3339)
		}

		stats, err := store.GetOutcomeStats(ctx)
		if err != nil {
			return fmt.Errorf("failed to read outcome stats: %w", err)
		}
		total = stats.Total
		for k, v := range stats.ByStatus {
			byStatus[string(k)] = v
		}
	}

	if watermark == "" {
		watermark = "(not set)"
	}

	fmt.Printf("\nBot Status: %s\n\n", cfg.BotHandle)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Watermark", watermark})
	table.Append([]string{"Total Processed", fmt.Sprintf("%d", total)})
	for _, status := range outcomeOrder {
		if n := byStatus[string(status)]; n > 0 {
			table.Append([]string{string(status), fmt.Sprintf("%d", n)})
		}
	}
	table.Render()

	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	outcomes, err := store.GetOutcomes(context.Background(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read outcomes: %w", err)
	}

	fmt.Printf("\nRecent Outcomes: %s\n\n", cfg.BotHandle)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Mention", "Outcome", "Detail"})
	for _, o := range outcomes {
		table.Append([]string{
			o.CreatedAt.Format("2006-01-02 15:04:05"),
			o.MentionID,
			string(o.Status),
			o.Detail,
		})
	}
	table.Render()

	return nil
}
