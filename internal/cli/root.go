// Package cli holds the cobra commands of the lullaby binary.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codewandler/lullaby-go"
	"github.com/codewandler/lullaby-go/config"
	"github.com/codewandler/lullaby-go/events"
)

type Dependencies struct {
	App    *lullaby.App
	Config *config.Config
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	var debug bool

	rootCmd := &cobra.Command{
		Use:           "lullaby",
		Short:         "Record a lullaby and play it over a background sound",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
			deps.App.OnError(func(e *events.ErrorEvent) {
				fmt.Fprintln(cmd.ErrOrStderr(), "!", e.Error())
			})
			return deps.App.Open(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			deps.App.Close(context.WithoutCancel(cmd.Context()))
		},
	}
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logs")

	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewPlayCmd(deps))
	rootCmd.AddCommand(NewSoundsCmd(deps))
	rootCmd.AddCommand(NewPreviewCmd(deps))
	rootCmd.AddCommand(NewPresetsCmd(deps))

	return rootCmd
}

// interruptible returns a context cancelled by Ctrl+C.
func interruptible(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// applyMix selects the voice and background given on the command line. Empty
// values keep what the session already has.
func applyMix(ctx context.Context, app *lullaby.App, voice, background string) error {
	if voice != "" {
		if err := app.SelectVoice(ctx, voice); err != nil {
			return err
		}
	}
	if background != "" {
		if err := app.SelectBackground(ctx, background); err != nil {
			return err
		}
	}
	return nil
}
