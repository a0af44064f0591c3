package cmd

import (
	"log"
	"time"

	"github.com/mazholin/jobpilot/internal/discovery"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "jobpilot"
)

type Config struct {
	Search    *discovery.SearchParams `mapstructure:"search"`
	BoardURL  string                  `mapstructure:"board-url"`
	UserAgent string                  `mapstructure:"user-agent"`
	TokenFile string                  `mapstructure:"token-file"`
	Profile   *ProfileConfig          `mapstructure:"profile"`
	Matching  *MatchingConfig         `mapstructure:"matching"`
	Throttle  *ThrottleConfig         `mapstructure:"throttle"`
	Ledger    *LedgerConfig           `mapstructure:"ledger"`
	Browser   *BrowserConfig          `mapstructure:"browser"`
	Server    *ServerConfig           `mapstructure:"server"`
	AI        *AIConfig               `mapstructure:"ai"`
}

type ProfileConfig struct {
	Name      string   `mapstructure:"name"`
	Summary   string   `mapstructure:"summary"`
	Skills    []string `mapstructure:"skills"`
	Positions int      `mapstructure:"positions"`
	Location  string   `mapstructure:"location"`
}

type MatchingConfig struct {
	Threshold     float64       `mapstructure:"threshold"`
	MaxPerCycle   int           `mapstructure:"max-per-cycle"`
	MaxRetries    int           `mapstructure:"max-retries"`
	CoverLetters  bool          `mapstructure:"cover-letters"`
	EmptyBackoff  time.Duration `mapstructure:"empty-backoff"`
	CycleInterval time.Duration `mapstructure:"cycle-interval"`
}

type ThrottleConfig struct {
	DailyCeiling int           `mapstructure:"daily-ceiling"`
	MinDelay     time.Duration `mapstructure:"min-delay"`
	MaxDelay     time.Duration `mapstructure:"max-delay"`
}

type LedgerConfig struct {
	Path string `mapstructure:"path"`
}

type BrowserConfig struct {
	Headless bool          `mapstructure:"headless"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type AIConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Gemini  *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile      string `mapstructure:"api-key-file"`
	Model           string `mapstructure:"model"`
	EmbedDimensions int    `mapstructure:"embed-dimensions"`
	MaxLogLength    int    `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "jobpilot discovers job postings, scores them against your profile and applies to the best matches",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("token-file", "JOBPILOT_TOKEN_FILE"); err != nil {
		log.Fatalf("binding JOBPILOT_TOKEN_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is jobpilot.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Config is needed only for commands touching the board or the ledger.
	if runCmd.CalledAs() == "" && retryCmd.CalledAs() == "" && statsCmd.CalledAs() == "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
