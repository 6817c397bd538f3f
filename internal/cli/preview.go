package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codewandler/lullaby-go/events"
)

func NewPreviewCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <sound-id>",
		Short: "Audition a background sound for a few seconds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := interruptible(cmd.Context())
			defer cancel()

			stopped := make(chan struct{}, 1)
			deps.App.OnEvent(func(e any) {
				if x, ok := e.(*events.PreviewEvent); ok && x.Type == events.TypePreviewStopped {
					select {
					case stopped <- struct{}{}:
					default:
					}
				}
			})

			if err := deps.App.Preview(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "previewing %s for %s\n", args[0], deps.Config.PreviewDuration())

			select {
			case <-stopped:
			case <-ctx.Done():
				deps.App.StopPreview(cmd.Context())
			}
			return nil
		},
	}
}
