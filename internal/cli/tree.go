package cli

import (
	"context"

	"arborescence/internal/format"
	"arborescence/internal/mutate"
	"arborescence/internal/tree"

	"github.com/spf13/cobra"
)

func newTreeCmd(app *App) *cobra.Command {
	var flat bool

	show := func(cmd *cobra.Command, args []string) error {
		return withCoordinator(cmd, app, func(ctx context.Context, c *mutate.Coordinator, _ backend) error {
			if flat {
				return writeOut(cmd, app, format.Envelope(c.Model().Nodes()))
			}
			return writeOut(cmd, app, format.Envelope(tree.BuildOutline(c.Model())))
		})
	}

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show or maintain the whole tree",
		Args:  cobra.NoArgs,
		RunE:  show,
	}
	cmd.PersistentFlags().BoolVar(&flat, "flat", false, "Print a flat, depth-first node list instead of the nested outline")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the nested Section / Title / Sub-Title outline",
		Args:  cobra.NoArgs,
		RunE:  show,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "densify",
		Short: "Renumber every sibling group to 0..n-1, closing gaps left by deletes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd, app, func(ctx context.Context, c *mutate.Coordinator, _ backend) error {
				n, err := c.Densify(ctx)
				if err != nil {
					return err
				}
				return writeOut(cmd, app, format.Envelope(map[string]any{"densified": n}))
			})
		},
	})
	return cmd
}
