package main

import (
	"log/slog"
	"sync"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

// Execute runs the root command with the production wiring.
func Execute() error {
	root, cleanup := newRootCmd(wireApp)
	defer cleanup()
	return root.Execute()
}

type wireFunc func(logger *slog.Logger) (*app, error)

// loader wires the app on first use so that help and flag errors never touch
// the database or the network.
type loader func(cmd *cobra.Command) (*app, error)

func newRootCmd(wire wireFunc) (*cobra.Command, func()) {
	var (
		debug   bool
		noColor bool
		once    sync.Once
		wired   *app
		wireErr error
	)

	rootCmd := &cobra.Command{
		Use:           "geochat",
		Short:         "Ask where things are and keep the answers as chats",
		Long:          "geochat creates chats, sends questions to the spatial-metadata service, and follows chat history from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if noColor {
				color.Disable()
			}
		},
	}
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log at debug level to stderr")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	load := func(cmd *cobra.Command) (*app, error) {
		once.Do(func() {
			level := slog.LevelWarn
			if debug {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			wired, wireErr = wire(logger)
		})
		return wired, wireErr
	}

	rootCmd.AddCommand(
		newLoginCmd(load),
		newLogoutCmd(load),
		newChatCmd(load),
	)

	cleanup := func() {
		if wired == nil {
			return
		}
		if err := wired.Close(); err != nil {
			slog.Warn("Failed to close geochat resources", "error", err)
		}
	}
	return rootCmd, cleanup
}
