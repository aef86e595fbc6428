package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/copyleftdev/descent/internal/logging"
)

var (
	logLevel  string
	zapLogger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "solve",
	Short: "Run the descent optimization solvers from the command line",
	Long: `solve runs the gradient and bundle solvers against the built-in
objectives and prints the result as JSON.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger, err := logging.NewLogger(&logging.Config{
			Level:  logLevel,
			Format: "json",
			Output: "stderr",
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		zapLogger = logging.NewZapLogger(logger)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}
