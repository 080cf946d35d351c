package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/trainkit/trainkit/pkg/utils"
)

var (
	// Global flags
	verbose    bool
	configFile string
	logger     utils.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "trainkit",
	Short: "A concurrent neural-network training orchestration core",
	Long: `trainkit drives a pool of workers, each training its own replica of a
network, and periodically merges their parameters back into the shared
global network. It exposes an extensible hook system so callers can observe
or act on training progress at iteration, epoch, and lifecycle boundaries.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel := utils.LevelInfo
		if verbose {
			logLevel = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(logLevel, os.Stdout)
		utils.SetGlobalLogger(logger)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a config file (yaml)")

	binName := BinName()
	rootCmd.Example = `  # Run the demo training loop with 4 workers for 3 epochs
  ` + binName + ` run --workers 4 --epochs 3

  # Run with a config file
  ` + binName + ` run --config ./configs/trainkit.yaml`
}

// GetLogger returns the configured logger.
func GetLogger() utils.Logger {
	return logger
}

// BinName returns the base name of the current executable.
func BinName() string {
	return filepath.Base(os.Args[0])
}
