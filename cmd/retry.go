package cmd

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/mazholin/jobpilot/internal/channel"
	"github.com/mazholin/jobpilot/internal/ledger"
	"github.com/mazholin/jobpilot/internal/logger"
	"github.com/mazholin/jobpilot/internal/orchestrator"
	"github.com/mazholin/jobpilot/internal/submit"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Retry previously failed applications",
	Run: func(cmd *cobra.Command, _ []string) {
		retry(cmd)
	},
}

func init() {
	rootCmd.AddCommand(retryCmd)

	retryCmd.Flags().Int("max", 5, "maximum number of failed applications to retry")
}

func retry(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	ledgerPath := defaultLedgerPath
	if config != nil && config.Ledger != nil && config.Ledger.Path != "" {
		ledgerPath = config.Ledger.Path
	}

	store, err := ledger.Open(ledgerPath)
	if err != nil {
		logger.Fatal("opening the application ledger", zap.Error(err), zap.String("path", ledgerPath))
	}
	defer store.Close()

	browserCfg := channel.BrowserConfig{Headless: true}
	if config != nil && config.Browser != nil {
		browserCfg.Headless = config.Browser.Headless
		browserCfg.Timeout = config.Browser.Timeout
	}

	_, throttleCfg := orchestrationConfigs(config)

	orch := orchestrator.New(orchestrator.Config{}, orchestrator.Deps{
		Submit:   submit.New(channel.NewBrowser(browserCfg, logger), logger),
		Ledger:   store,
		Throttle: seededThrottle(throttleCfg, store, logger),
		Logger:   logger,
	})

	maxCount, err := cmd.Flags().GetInt("max")
	if err != nil {
		logger.Fatal("reading the max flag", zap.Error(err))
	}
	if !cmd.Flags().Changed("max") && config != nil && config.Matching != nil && config.Matching.MaxRetries > 0 {
		maxCount = config.Matching.MaxRetries
	}

	outcome, err := orch.RetryFailed(ctx, maxCount)
	if err != nil {
		logger.Fatal("retrying failed applications", zap.Error(err))
	}

	logger.Info("retry finished",
		zap.Int("retried", outcome.Retried),
		zap.Int("succeeded", outcome.Succeeded),
	)
}
