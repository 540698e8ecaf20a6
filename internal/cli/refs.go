package cli

import (
	"context"

	"arborescence/internal/format"
	"arborescence/internal/model"
	"arborescence/internal/mutate"

	"github.com/spf13/cobra"
)

func newRefsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refs",
		Short: "Record which fields and documents are classified under a node",
		Long:  "A node with references cannot be deleted until they are detached.",
	}
	cmd.AddCommand(newRefsChangeCmd(app, "attach", "Attach a field or document reference to a node"))
	cmd.AddCommand(newRefsChangeCmd(app, "detach", "Detach a field or document reference from a node"))
	return cmd
}

func newRefsChangeCmd(app *App, verb, short string) *cobra.Command {
	var (
		kindStr string
		refID   string
	)
	cmd := &cobra.Command{
		Use:   verb + " <node-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd, app, func(ctx context.Context, c *mutate.Coordinator, b backend) error {
				if _, ok := c.Model().Node(args[0]); !ok {
					return errNotFound("node", args[0])
				}
				kind, err := model.ParseRefKind(kindStr)
				if err != nil {
					return err
				}
				ref := model.Ref{NodeID: args[0], Kind: kind, RefID: refID}
				if verb == "attach" {
					err = b.AttachRef(ctx, ref)
				} else {
					err = b.DetachRef(ctx, ref)
				}
				if err != nil {
					return err
				}
				return writeOut(cmd, app, format.Envelope(ref))
			})
		},
	}
	cmd.Flags().StringVar(&kindStr, "kind", "field", "field|document")
	cmd.Flags().StringVar(&refID, "ref", "", "Id of the field or document")
	_ = cmd.MarkFlagRequired("ref")
	return cmd
}
