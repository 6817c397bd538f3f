package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/codewandler/lullaby-go"
	"github.com/codewandler/lullaby-go/events"
)

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var (
		maxDuration time.Duration
		presetName  string
		background  string
		discard     bool
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a voice track",
		Long:  "Record from the default microphone until Ctrl+C or --max is reached.\nUse --preset to save the take together with a background sound.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := deps.App
			out := cmd.OutOrStdout()

			ctx, cancel := interruptible(cmd.Context())
			defer cancel()
			if maxDuration > 0 {
				var stop context.CancelFunc
				ctx, stop = context.WithTimeout(ctx, maxDuration)
				defer stop()
			}

			app.OnEvent(func(e any) {
				if x, ok := e.(*events.RecordingStatusEvent); ok && x.IsRecording {
					fmt.Fprintf(out, "\r● %s", lullaby.FormatDuration(time.Duration(x.DurationMs)*time.Millisecond))
				}
			})

			if err := app.StartRecording(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(out, "recording, press Ctrl+C to stop")
			<-ctx.Done()

			uri, err := app.StopRecording(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out)

			if discard {
				fmt.Fprintln(out, "take discarded")
				return app.DiscardRecording(cmd.Context())
			}
			if _, err := app.KeepRecording(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(out, "saved", uri)

			if presetName == "" {
				return nil
			}
			if err := applyMix(cmd.Context(), app, "", background); err != nil {
				return err
			}
			p, err := app.SavePreset(presetName)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "preset %q saved as %s\n", p.Name, p.ID)
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxDuration, "max", 0, "stop automatically after this long")
	cmd.Flags().StringVarP(&presetName, "preset", "p", "", "save the take as a preset with this name")
	cmd.Flags().StringVarP(&background, "background", "b", "", "background sound id for the preset")
	cmd.Flags().BoolVar(&discard, "discard", false, "delete the take instead of keeping it")

	return cmd
}
