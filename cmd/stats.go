package cmd

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/mazholin/jobpilot/internal/ledger"
	"github.com/mazholin/jobpilot/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print application statistics from the ledger",
	Run: func(cmd *cobra.Command, _ []string) {
		stats(cmd)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().Int("history", 0, "also print the given number of recent applications")
}

func stats(cmd *cobra.Command) {
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

	aggregates, err := store.Stats()
	if err != nil {
		logger.Fatal("reading statistics", zap.Error(err))
	}

	pretty, _ := json.MarshalIndent(aggregates, "", "  ")
	fmt.Println(string(pretty))

	historyCount, err := cmd.Flags().GetInt("history")
	if err != nil {
		logger.Fatal("reading the history flag", zap.Error(err))
	}

	if historyCount > 0 {
		records, err := store.History(historyCount)
		if err != nil {
			logger.Fatal("reading history", zap.Error(err))
		}

		pretty, _ := json.MarshalIndent(records, "", "  ")
		fmt.Println(string(pretty))
	}
}
