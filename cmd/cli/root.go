// Package cli holds the notebot command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"notebot/pkg/config"
	"notebot/pkg/logging"
)

var (
	cfgFile string
	Verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "notebot",
	Short: "Chunked call recording ingestion with transcription and AI notes",
	Long: `notebot accepts call recordings uploaded in chunks, reassembles them,
transcribes them, asks a language model for the requested notes and stores
the result.

- serve starts the HTTP API
- calls inspects and exports stored call records`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(callsCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $NOTEBOT_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&Verbose, "verbose", "V", false, "verbose output")
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Development || Verbose)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
