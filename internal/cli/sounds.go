package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/codewandler/lullaby-go/catalog"
)

func NewSoundsCmd(deps *Dependencies) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "sounds",
		Short: "List background sounds",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sounds []catalog.Sound
			if refresh {
				sounds = deps.App.RefreshSounds(cmd.Context())
			} else {
				sounds = deps.App.Sounds(cmd.Context())
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSOURCE")
			for _, s := range sounds {
				fmt.Fprintf(w, "%s\t%s %s\t%s\n", s.ID, s.Icon, s.Name, s.Source)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "drop the cached manifest and fetch it again")
	return cmd
}
