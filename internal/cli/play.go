package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/codewandler/lullaby-go"
	"github.com/codewandler/lullaby-go/events"
)

func NewPlayCmd(deps *Dependencies) *cobra.Command {
	var (
		voice      string
		background string
		presetID   string
		minutes    int
		voiceVol   float64
		bgVol      float64
	)

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play the voice over the background sound",
		Long:  "Play a preset or an ad-hoc mix until the voice ends, the sleep timer expires or Ctrl+C.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := deps.App
			out := cmd.OutOrStdout()

			if presetID != "" {
				if err := app.LoadPreset(cmd.Context(), presetID); err != nil {
					return err
				}
			}
			if err := applyMix(cmd.Context(), app, voice, background); err != nil {
				return err
			}
			if cmd.Flags().Changed("voice-volume") {
				app.SetVoiceVolume(cmd.Context(), voiceVol)
			}
			if cmd.Flags().Changed("background-volume") {
				app.SetBackgroundVolume(cmd.Context(), bgVol)
			}

			ctx, cancel := interruptible(cmd.Context())
			defer cancel()

			done := make(chan string, 1)
			finish := func(reason string) {
				select {
				case done <- reason:
				default:
				}
			}
			app.OnEvent(func(e any) {
				switch x := e.(type) {
				case *events.PlaybackStateEvent:
					if x.IsPlaying && x.VoiceDurationMs > 0 {
						fmt.Fprintf(out, "\r▶ %s / %s",
							lullaby.FormatDuration(time.Duration(x.VoicePositionMs)*time.Millisecond),
							lullaby.FormatDuration(time.Duration(x.VoiceDurationMs)*time.Millisecond))
					}
				case *events.PlaybackCompleteEvent:
					finish("finished")
				case *events.SleepTimerExpiredEvent:
					finish("sleep timer expired")
				}
			})

			if err := app.Play(cmd.Context()); err != nil {
				return err
			}
			if !app.PlaybackState().IsPlaying {
				return fmt.Errorf("nothing to play: pass --voice, --background or --preset")
			}

			if minutes > 0 {
				t, err := app.SetSleepTimer(cmd.Context(), minutes)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "sleep timer: %d min, until %s\n", t.Minutes, time.UnixMilli(t.EndEpochMs).Format(time.Kitchen))
			}

			select {
			case reason := <-done:
				fmt.Fprintln(out, "\n"+reason)
			case <-ctx.Done():
				fmt.Fprintln(out)
				return app.Stop(context.WithoutCancel(ctx))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&voice, "voice", "", "file:// uri of a recording")
	cmd.Flags().StringVarP(&background, "background", "b", "", "background sound id")
	cmd.Flags().StringVarP(&presetID, "preset", "p", "", "preset id to play")
	cmd.Flags().IntVarP(&minutes, "timer", "t", 0, "sleep timer in minutes")
	cmd.Flags().Float64Var(&voiceVol, "voice-volume", 0, "voice volume between 0 and 1")
	cmd.Flags().Float64Var(&bgVol, "background-volume", 0, "background volume between 0 and 1")

	return cmd
}
