package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func NewPresetsCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Manage saved mixes",
	}
	cmd.AddCommand(newPresetsListCmd(deps))
	cmd.AddCommand(newPresetsSaveCmd(deps))
	cmd.AddCommand(newPresetsDeleteCmd(deps))
	return cmd
}

func newPresetsListCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tBACKGROUND\tVOLUMES\tCREATED")
			for _, p := range deps.App.Presets() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%% / %.0f%%\t%s\n",
					p.ID, p.Name, p.BackgroundSoundID,
					p.VoiceVolume*100, p.BackgroundVolume*100,
					time.UnixMilli(p.CreatedAt).Format(time.DateTime))
			}
			return w.Flush()
		},
	}
}

func newPresetsSaveCmd(deps *Dependencies) *cobra.Command {
	var voice, background string
	var voiceVol, bgVol float64

	cmd := &cobra.Command{
		Use:   "save <name>",
		Short: "Save a mix as a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := deps.App
			if err := applyMix(cmd.Context(), app, voice, background); err != nil {
				return err
			}
			if cmd.Flags().Changed("voice-volume") {
				app.SetVoiceVolume(cmd.Context(), voiceVol)
			}
			if cmd.Flags().Changed("background-volume") {
				app.SetBackgroundVolume(cmd.Context(), bgVol)
			}
			p, err := app.SavePreset(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "preset %q saved as %s\n", p.Name, p.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&voice, "voice", "", "file:// uri of a recording")
	cmd.Flags().StringVarP(&background, "background", "b", "", "background sound id")
	cmd.Flags().Float64Var(&voiceVol, "voice-volume", 0, "voice volume between 0 and 1")
	cmd.Flags().Float64Var(&bgVol, "background-volume", 0, "background volume between 0 and 1")
	return cmd
}

func newPresetsDeleteCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return deps.App.DeletePreset(args[0])
		},
	}
}
