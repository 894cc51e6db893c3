package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/revfinder/internal/cli"
	"github.com/Veraticus/revfinder/internal/common"
	"github.com/Veraticus/revfinder/internal/config"
	"github.com/Veraticus/revfinder/internal/engine"
	"github.com/Veraticus/revfinder/internal/llm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	version = "dev"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "revfinder",
		Short: "💰 Find recoverable single-phase PIS/COFINS in NF-e items",
		Long: `revfinder audits NF-e line items for products taxed under the single-phase
(monofásico) PIS/COFINS regime and reports the credit a retailer can recover.

Each item goes through the NCM rule table, the keyword table, the learned cache
and, only when all of those are silent, an external LLM classifier whose answer is
learned for next time.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/revfinder/config.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "console", "log format (console, json)")
	root.PersistentFlags().String("db", "", "learned cache database (default: "+config.DefaultDatabasePath+")")
	root.PersistentFlags().String("rules", "", "rules and keywords YAML file (default: built-in table)")

	_ = viper.BindPFlag("logging.level", root.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", root.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("database.path", root.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("rules.path", root.PersistentFlags().Lookup("rules"))

	root.AddCommand(classifyCmd())
	root.AddCommand(resolveCmd())
	root.AddCommand(learnedCmd())
	root.AddCommand(rulesCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(versionCmd())

	return root
}

func setDefaults() {
	viper.SetDefault("recovery.rate", "9.25")
	viper.SetDefault("resolver.concurrency", engine.DefaultConfig().Concurrency)
	viper.SetDefault("resolver.external_timeout", engine.DefaultExternalTimeout)
	viper.SetDefault("llm.provider", llm.ProviderOpenAI)
	viper.SetDefault("llm.rate_limit", 60)
}

func main() {
	setDefaults()

	err := newRootCmd().ExecuteContext(context.Background())
	if err != nil {
		var userErr *common.UserError
		if errors.As(err, &userErr) && userErr.Err != nil {
			fmt.Fprintln(os.Stderr, cli.FormatError(userErr.UserMessage))
			fmt.Fprintln(os.Stderr, cli.SubtleStyle.Render("  "+userErr.Err.Error()))
		} else {
			fmt.Fprintln(os.Stderr, cli.FormatError(err.Error()))
		}
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	if cfgFile != "" {
		viper.SetConfigFile(config.ExpandPath(cfgFile))
	} else {
		if dir, err := config.ConfigDir(); err == nil {
			viper.AddConfigPath(dir)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("REVFINDER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	level, err := common.ParseLevel(viper.GetString("logging.level"))
	if err != nil {
		return err
	}
	if err := common.SetupLogger(level, viper.GetString("logging.format")); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", filepath.Base(os.Args[0]), version)
		},
	}
}
