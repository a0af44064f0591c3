package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mazholin/jobpilot/internal/ai"
	"github.com/mazholin/jobpilot/internal/ai/gemini"
	"github.com/mazholin/jobpilot/internal/channel"
	"github.com/mazholin/jobpilot/internal/discovery"
	"github.com/mazholin/jobpilot/internal/job"
	"github.com/mazholin/jobpilot/internal/ledger"
	"github.com/mazholin/jobpilot/internal/logger"
	"github.com/mazholin/jobpilot/internal/orchestrator"
	"github.com/mazholin/jobpilot/internal/scoring"
	"github.com/mazholin/jobpilot/internal/secrets"
	"github.com/mazholin/jobpilot/internal/server"
	"github.com/mazholin/jobpilot/internal/submit"
	"github.com/mazholin/jobpilot/internal/throttle"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptYes            = "Yes"
	PromptNo             = "No"
	PromptPostingsToFile = "Dump postings to file"

	defaultThreshold    = 0.7
	defaultDailyCeiling = 50
	defaultMinDelay     = 30 * time.Second
	defaultMaxDelay     = 2 * time.Minute
	defaultLedgerPath   = "jobpilot.db"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "Start applying?",
	Items: []string{PromptYes, PromptNo, PromptPostingsToFile},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the jobpilot orchestration loop",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("auto-aprove", "y", false, "do not ask for confirmation before starting the loop")
	runCmd.Flags().String("at", "", "schedule the run for a future instant (RFC3339)")
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
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

	logger.Info("starting the jobpilot", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if config == nil {
		logger.Fatal("config is required")
	}

	if config.Search == nil || config.Search.Keywords == "" {
		logger.Fatal("search keywords are required under search.keywords to discover postings")
	}

	if config.Profile == nil || config.Profile.Name == "" {
		logger.Fatal("candidate profile is required under the profile section")
	}

	orch, store, board := buildOrchestrator(ctx, config, logger)
	defer store.Close()

	if cmd.Flag("auto-aprove").Value.String() == "false" {
		if err := confirmStart(ctx, board, config.Search, logger); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}

	var restServer *server.Server
	if config.Server != nil && config.Server.Enabled {
		restServer = server.NewServer(config.Server.Port, orch, config.Search, logger)
		go func() {
			if err := restServer.Start(); err != nil {
				logger.Error("control api failed", zap.Error(err))
			}
		}()
		defer restServer.Stop()
	}

	scheduled := false
	if at := cmd.Flag("at").Value.String(); at != "" {
		startAt, err := time.Parse(time.RFC3339, at)
		if err != nil {
			logger.Fatal("parsing --at instant", zap.Error(err))
		}
		if err := orch.ScheduleAt(ctx, startAt, config.Search); err != nil {
			logger.Fatal("scheduling the run", zap.Error(err))
		}
		scheduled = true
	} else {
		if err := orch.Start(ctx, config.Search); err != nil {
			logger.Fatal("starting the run", zap.Error(err))
		}
	}

	awaitCompletion(ctx, orch, scheduled)

	stats, err := orch.Stats()
	if err != nil {
		logger.Warn("reading final stats", zap.Error(err))
		return
	}

	logger.Info("run finished",
		zap.Int("total_submitted", stats.TotalSubmitted),
		zap.Int("submitted_today", stats.SubmittedToday),
		zap.Float64("success_rate", stats.SuccessRate),
	)
}

// awaitCompletion blocks until the loop finishes or a shutdown signal
// arrives. For a scheduled run the loop is not active yet, so completion
// only counts after it has been observed running.
func awaitCompletion(ctx context.Context, orch *orchestrator.Orchestrator, scheduled bool) {
	started := !scheduled

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			orch.Stop()
			return
		case <-ticker.C:
			if orch.IsRunning() {
				started = true
				continue
			}
			if started {
				return
			}
		}
	}
}

// confirmStart previews the search results and asks what to do with them.
func confirmStart(ctx context.Context, board *discovery.Client, params *discovery.SearchParams, logger *zap.Logger) error {
	postings, err := board.Search(ctx, params)
	if err != nil {
		return fmt.Errorf("preview search: %w", err)
	}

	logger.Info("found postings", zap.Int("count", postings.Len()))

	for {
		_, action, err := prompt.Run()
		if err != nil {
			return err
		}

		switch action {
		case PromptYes:
			return nil
		case PromptNo:
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return errExit
		case PromptPostingsToFile:
			filename, err := postings.DumpToTmpFile()
			if err != nil {
				return fmt.Errorf("dump postings to file: %w", err)
			}
			logger.Info("dumping postings to file", zap.String("filename", filename))
		default:
			return fmt.Errorf("invalid action: %s", action)
		}
	}
}

func buildOrchestrator(ctx context.Context, config *Config, logger *zap.Logger) (*orchestrator.Orchestrator, *ledger.Store, *discovery.Client) {
	token, err := resolveToken(config)
	if err != nil {
		logger.Fatal(
			"loading job board token",
			zap.Error(err),
			zap.String("hint", "set JOBPILOT_TOKEN_FILE environment variable or the 'token-file' key in the configuration file"),
		)
	}

	board := discovery.NewClient(logger, config.BoardURL, token)
	if config.UserAgent != "" {
		board.UserAgent = config.UserAgent
	}

	ledgerPath := defaultLedgerPath
	if config.Ledger != nil && config.Ledger.Path != "" {
		ledgerPath = config.Ledger.Path
	}

	store, err := ledger.Open(ledgerPath)
	if err != nil {
		logger.Fatal("opening the application ledger", zap.Error(err), zap.String("path", ledgerPath))
	}

	profile := buildProfile(config.Profile)

	embedder, judge, letters, err := newAIProviders(ctx, config.AI, logger)
	if err != nil {
		logger.Warn("ai providers unavailable, scoring will use fallback signals", zap.Error(err))
	}

	if embedder != nil {
		embedding, err := embedder.Embed(ctx, profile.SummaryText())
		if err != nil {
			logger.Warn("embedding the profile failed, semantic signal will use its fallback", zap.Error(err))
		} else {
			profile.Embedding = embedding
		}
	}

	browserCfg := channel.BrowserConfig{Headless: true}
	if config.Browser != nil {
		browserCfg.Headless = config.Browser.Headless
		browserCfg.Timeout = config.Browser.Timeout
	}

	machine := submit.New(channel.NewBrowser(browserCfg, logger), logger)

	cfg, throttleCfg := orchestrationConfigs(config)

	return orchestrator.New(cfg, orchestrator.Deps{
		Searcher: board,
		Scorer:   scoring.NewEngine(embedder, judge, logger),
		Submit:   machine,
		Letters:  letters,
		Ledger:   store,
		Throttle: seededThrottle(throttleCfg, store, logger),
		Profile:  profile,
		Logger:   logger,
	}), store, board
}

// seededThrottle primes the daily quota from the ledger so a restart does
// not reopen quota already spent today.
func seededThrottle(cfg throttle.Config, store *ledger.Store, logger *zap.Logger) *throttle.Throttle {
	th := throttle.New(cfg)

	aggregates, err := store.Stats()
	if err != nil {
		logger.Warn("reading ledger stats, daily quota starts unseeded", zap.Error(err))
		return th
	}

	if aggregates.SubmittedToday > 0 {
		th.SeedToday(aggregates.SubmittedToday)
		logger.Info("daily quota seeded from ledger",
			zap.Int("submitted_today", aggregates.SubmittedToday),
		)
	}

	return th
}

func orchestrationConfigs(config *Config) (orchestrator.Config, throttle.Config) {
	cfg := orchestrator.Config{MatchThreshold: defaultThreshold}
	if config != nil && config.Matching != nil {
		if config.Matching.Threshold > 0 {
			cfg.MatchThreshold = config.Matching.Threshold
		}
		cfg.MaxPerCycle = config.Matching.MaxPerCycle
		cfg.GenerateCoverLetters = config.Matching.CoverLetters
		cfg.EmptyBackoff = config.Matching.EmptyBackoff
		cfg.CycleInterval = config.Matching.CycleInterval
	}

	throttleCfg := throttle.Config{
		DailyCeiling: defaultDailyCeiling,
		MinDelay:     defaultMinDelay,
		MaxDelay:     defaultMaxDelay,
	}
	if config != nil && config.Throttle != nil {
		if config.Throttle.DailyCeiling > 0 {
			throttleCfg.DailyCeiling = config.Throttle.DailyCeiling
		}
		if config.Throttle.MinDelay > 0 {
			throttleCfg.MinDelay = config.Throttle.MinDelay
		}
		if config.Throttle.MaxDelay > 0 {
			throttleCfg.MaxDelay = config.Throttle.MaxDelay
		}
	}

	return cfg, throttleCfg
}

func buildProfile(cfg *ProfileConfig) *job.Profile {
	return &job.Profile{
		Name:      cfg.Name,
		Summary:   cfg.Summary,
		Skills:    cfg.Skills,
		Positions: cfg.Positions,
		Location:  cfg.Location,
	}
}

func resolveToken(config *Config) (string, error) {
	tokenFile := strings.TrimSpace(config.TokenFile)
	if tokenFile == "" {
		tokenFile = strings.TrimSpace(viper.GetString("token-file"))
	}

	return secrets.Load(secrets.Source{
		Name: "job board token",
		File: tokenFile,
		Env:  "JOBPILOT_TOKEN",
	})
}

func newAIProviders(ctx context.Context, cfg *AIConfig, log *zap.Logger) (ai.Embedder, ai.Judge, ai.LetterWriter, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil, nil, nil
	}

	if cfg.Gemini == nil {
		return nil, nil, nil, fmt.Errorf("gemini configuration is required when ai is enabled")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.EmbedDimensions)
	if err != nil {
		return nil, nil, nil, err
	}

	aiLogger := logger.WithFields(log, logger.AIFields("gemini", generator.Model())...)

	judge := gemini.NewJudge(generator, aiLogger, cfg.Gemini.MaxLogLength)
	letters := gemini.NewLetterWriter(generator, aiLogger, cfg.Gemini.MaxLogLength)

	return generator, judge, letters, nil
}
