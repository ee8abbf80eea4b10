package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/harrisonrobin/agmd/pkg/config"
)

var (
	logger  *zap.Logger
	cfg     *config.Config
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "agmd",
	Short: "Scheduled checklists in plain Markdown",
	Long: `agmd reads the checklist items of a Markdown tree and schedules the ones
carrying an agmd marker, such as

    - [ ] write report <agmd:2025-03-01;due=05T17>

Todos can be listed, arranged in an agenda, indexed, exported to Taskwarrior
and mirrored into a Google calendar.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}

		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger.Debug("loaded config",
			zap.String("calendar", cfg.Calendar),
			zap.String("root", cfg.Root),
			zap.String("cache", cfg.Cache))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(
		newListCmd(),
		newAgendaCmd(),
		newCheckCmd(),
		newIndexCmd(),
		newWatchCmd(),
		newExportCmd(),
		newSyncCmd(),
		newAuthCmd(),
		newConfigCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
