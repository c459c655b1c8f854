// Package cmd implements the command-line interface for the visibility
// worker. It provides the root command and subcommands for running the
// job loop and inspecting engine configuration.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	enginescmd "github.com/ellipsesearch/visibility-worker/cmd/engines"
	workercmd "github.com/ellipsesearch/visibility-worker/cmd/worker"
	"github.com/ellipsesearch/visibility-worker/internal/config"
)

// Version is stamped by the build; the default marks a source build.
var Version = "2.2.0-dev"

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// Debug enables debug logging for all commands.
	Debug bool

	rootCmd = &cobra.Command{
		Use:   "visibility-worker",
		Short: "Brand-visibility RPA worker",
		Long: `Runs brand-visibility prompts against AI chat engines through an
attached browser and reports results to the analysis platform.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	// Load .env early so environment variables are available to viper.
	_ = godotenv.Load()

	_ = rootCmd.ParseFlags(os.Args[1:])

	if err := initConfig(); err != nil {
		return fmt.Errorf("initialize configuration: %w", err)
	}

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("visibility-worker version %s\n", Version)
		},
	})

	rootCmd.AddCommand(workercmd.Command(&Version))
	rootCmd.AddCommand(enginescmd.Command())
}

// initConfig layers configuration: defaults, config file, environment.
func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	config.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; env and defaults cover everything.
		fmt.Fprintf(os.Stderr, "Warning: config file not found: %v (using defaults and environment)\n", err)
	}

	if err := bindEnvVars(); err != nil {
		return err
	}

	if Debug {
		viper.Set("logger.level", "debug")
		viper.Set("logger.development", true)
	}
	return nil
}

// bindEnvVars maps the platform's established environment variable names
// onto config keys.
func bindEnvVars() error {
	bindings := map[string][]string{
		"platform.url":              {"PLATFORM_URL"},
		"platform.secret":           {"RPA_WEBHOOK_SECRET", "WEBHOOK_SECRET"},
		"scheduler.max_parallel":    {"MAX_PARALLEL_ENGINES"},
		"scheduler.poll_interval":   {"POLL_INTERVAL"},
		"pacing.min_delay":          {"MIN_DELAY"},
		"pacing.max_delay":          {"MAX_DELAY"},
		"worker.heartbeat_interval": {"HEARTBEAT_INTERVAL"},
		"worker.job_timeout":        {"JOB_TIMEOUT"},
		"browser.cdp_url":           {"CHROME_DEBUG_URL", "CDP_URL"},
		"output.path":               {"OUTPUT_PATH"},
		"logger.level":              {"LOG_LEVEL"},
		"logger.encoding":           {"LOG_FORMAT"},
	}
	for key, envs := range bindings {
		if err := viper.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}
