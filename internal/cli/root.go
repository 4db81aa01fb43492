package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/claimsynth/internal/logger"
	"github.com/ppiankov/claimsynth/internal/model"
	"github.com/ppiankov/claimsynth/internal/pipeline"
)

// Version is set at build time
var Version = "v0.1.0"

var (
	cfgFile string
	verbose bool
	userID  string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "claimsynth",
	Short: "claimsynth - Claim synthesis and opportunity matching",
	Long: `claimsynth turns extracted resume and story evidence into a deduplicated
set of claims about a person, scores each claim's confidence from its evidence,
matches claims against job requirements and flags claims their evidence does
not support.

Every confidence is recomputed from the claim's complete evidence set and can
be explained factor by factor with 'claimsynth claims explain'.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command; ctx is cancelled on interrupt by the caller
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("claimsynth %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.claimsynth/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user id (default: $CLAIMSYNTH_USER)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "debug logging")
	rootCmd.PersistentFlags().BoolP("json-logs", "j", false, "JSON log format")

	// Bind flags to viper
	_ = viper.BindPFlag("log.debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("log.json", rootCmd.PersistentFlags().Lookup("json-logs"))
	_ = viper.BindEnv("user", "CLAIMSYNTH_USER")

	rootCmd.AddCommand(versionCmd)
}

// initConfig loads .env, the config file and CLAIMSYNTH_* variables
func initConfig() {
	// .env is optional
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(home + "/.claimsynth")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	if err := registerDefaults(viper.GetViper(), model.DefaultConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Error registering defaults: %v\n", err)
	}

	// CLAIMSYNTH_LLM_PROVIDER overrides llm.provider
	viper.SetEnvPrefix("CLAIMSYNTH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// registerDefaults makes every config key known to viper so that env
// overrides reach Unmarshal even when the config file omits the key
func registerDefaults(v *viper.Viper, cfg *model.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return err
	}
	setDefaults(v, "", tree)

	// Secrets are omitted from the YAML dump
	for _, key := range []string{"llm.api_key", "llm.api_key_file", "embedding.api_key", "embedding.api_key_file", "llm.base_url", "embedding.base_url"} {
		v.SetDefault(key, "")
	}
	return nil
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// loadConfig resolves the effective configuration
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// resolveUser returns the --user flag or CLAIMSYNTH_USER
func resolveUser() (string, error) {
	if u := strings.TrimSpace(userID); u != "" {
		return u, nil
	}
	if u := strings.TrimSpace(viper.GetString("user")); u != "" {
		return u, nil
	}
	return "", fmt.Errorf("no user given (use --user or CLAIMSYNTH_USER)")
}

// openPipeline builds the logger and the pipeline from the effective configuration.
// The returned cleanup closes the store and flushes the logger.
func openPipeline(ctx context.Context) (*pipeline.Pipeline, *zap.Logger, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	l, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create logger: %w", err)
	}

	p, err := pipeline.New(ctx, cfg, l)
	if err != nil {
		_ = l.Sync()
		return nil, nil, nil, err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Store: %s (%s)\n", cfg.Store.Driver, cfg.Store.DSN)
		fmt.Fprintf(os.Stderr, "Decisions: %s\n", p.DecidedBy())
		fmt.Fprintf(os.Stderr, "Embeddings: %s\n", cfg.Embedding.Provider)
	}

	cleanup := func() {
		if err := p.Close(); err != nil {
			l.Warn("Closing store failed", zap.Error(err))
		}
		_ = l.Sync()
	}
	return p, l, cleanup, nil
}
