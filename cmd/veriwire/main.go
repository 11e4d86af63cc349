package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-go-golems/veriwire/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	configFile  string
	envFile     string
	logSettings = loggingSettings{Level: "info", Format: "auto"}
)

var rootCmd = &cobra.Command{
	Use:           "veriwire",
	Short:         "veriwire verifies wire transfers over the phone",
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initLogger(logSettings); err != nil {
			return err
		}
		return loadDotEnv(envFile)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (YAML)")
	pf.StringVar(&envFile, "env-file", ".env", "environment file for secrets such as DEEPGRAM_API_KEY")
	pf.StringVar(&logSettings.Level, "log-level", logSettings.Level, "log level (trace, debug, info, warn, error)")
	pf.StringVar(&logSettings.Format, "log-format", logSettings.Format, "log format (auto, console, json)")
	pf.BoolVar(&logSettings.WithCaller, "with-caller", false, "log caller file and line")

	rootCmd.AddCommand(newServeCmd(), newSandboxCmd(), newEventsCmd(), newPhraseCmd())
}

// loadConfig reads the config file and environment, with flags bound to the
// given keys taking precedence.
func loadConfig(flags *pflag.FlagSet, bindings map[string]string) (*config.Config, error) {
	v, err := config.New(configFile)
	if err != nil {
		return nil, err
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return nil, err
		}
	}
	return config.Load(v)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
