package cli

import (
	"context"
	"fmt"
	"strings"

	"arborescence/internal/format"
	"arborescence/internal/model"
	"arborescence/internal/mutate"

	"github.com/spf13/cobra"
)

func newNodesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "Create, rename, delete and order nodes",
	}
	cmd.AddCommand(newNodesCreateCmd(app))
	cmd.AddCommand(newNodesRenameCmd(app))
	cmd.AddCommand(newNodesDeleteCmd(app))
	cmd.AddCommand(newNodesReorderCmd(app))
	cmd.AddCommand(newNodesMoveCmd(app))
	return cmd
}

// committed prints the node a mutation settled on.
func committed(cmd *cobra.Command, app *App, c *mutate.Coordinator, res mutate.Result) error {
	n, ok := c.Model().Node(res.NodeID)
	if !ok {
		return errNotFound("node", res.NodeID)
	}
	return writeOut(cmd, app, format.Envelope(n))
}

func newNodesCreateCmd(app *App) *cobra.Command {
	var (
		levelStr string
		parentID string
	)
	cmd := &cobra.Command{
		Use:   "create <label>",
		Short: "Add a node at the first free position of its group",
		Example: strings.TrimSpace(`
  arbo nodes create "Finance"
  arbo nodes create --parent sec-1a2b3c4d "Invoices"
  arbo nodes create --parent tit-5e6f7a8b --level sub-title "Overdue"
`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd, app, func(ctx context.Context, c *mutate.Coordinator, _ backend) error {
				level, err := createLevel(c, levelStr, parentID)
				if err != nil {
					return err
				}
				p, err := c.RequestCreate(parentID, level, args[0])
				res, err := commit(ctx, p, err)
				if err != nil {
					return err
				}
				return committed(cmd, app, c, res)
			})
		},
	}
	cmd.Flags().StringVar(&levelStr, "level", "", "section|title|sub-title (default: inferred from --parent)")
	cmd.Flags().StringVar(&parentID, "parent", "", "Parent node id (omit for a section)")
	return cmd
}

// createLevel infers the level from the parent unless given explicitly.
func createLevel(c *mutate.Coordinator, levelStr, parentID string) (model.Level, error) {
	if strings.TrimSpace(levelStr) != "" {
		return parseLevelFlag(levelStr)
	}
	if parentID == "" {
		return model.LevelSection, nil
	}
	p, ok := c.Model().Node(parentID)
	if !ok {
		return "", errNotFound("parent", parentID)
	}
	l, ok := p.Level.ChildLevel()
	if !ok {
		return "", fmt.Errorf("%s %s cannot have children", strings.ToLower(p.Level.Label()), p.ID)
	}
	return l, nil
}

func newNodesRenameCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <label>",
		Short: "Change a node's label",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd, app, func(ctx context.Context, c *mutate.Coordinator, _ backend) error {
				p, err := c.RequestRename(args[0], args[1])
				res, err := commit(ctx, p, err)
				if err != nil {
					return err
				}
				return committed(cmd, app, c, res)
			})
		},
	}
}

func newNodesDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a node and everything under it (refused while referenced)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd, app, func(ctx context.Context, c *mutate.Coordinator, _ backend) error {
				p, err := c.RequestDelete(args[0])
				if _, err := commit(ctx, p, err); err != nil {
					return err
				}
				return writeOut(cmd, app, format.Envelope(map[string]any{"deleted": args[0]}))
			})
		},
	}
}

func newNodesReorderCmd(app *App) *cobra.Command {
	var (
		levelStr string
		parentID string
	)
	cmd := &cobra.Command{
		Use:   "reorder <id>...",
		Short: "Set the complete order of one sibling group",
		Example: strings.TrimSpace(`
  # Sections, new order
  arbo nodes reorder sec-c sec-a sec-b

  # Titles of one section
  arbo nodes reorder --parent sec-a tit-2 tit-1
`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd, app, func(ctx context.Context, c *mutate.Coordinator, _ backend) error {
				level, err := createLevel(c, levelStr, parentID)
				if err != nil {
					return err
				}
				p, err := c.RequestReorder(parentID, level, args)
				if _, err := commit(ctx, p, err); err != nil {
					return err
				}
				return writeOut(cmd, app, format.Envelope(c.Model().Children(parentID, level)))
			})
		},
	}
	cmd.Flags().StringVar(&levelStr, "level", "", "section|title|sub-title (default: inferred from --parent)")
	cmd.Flags().StringVar(&parentID, "parent", "", "Parent of the group (omit for sections)")
	return cmd
}

func newNodesMoveCmd(app *App) *cobra.Command {
	var (
		toParent string
		index    int
	)
	cmd := &cobra.Command{
		Use:   "move <id>",
		Short: "Move a node to a position, possibly under another parent",
		Long: strings.TrimSpace(`
Move places the node at --index within the destination group (0 = first).
Sub-titles may move to any title; titles stay in their section and sections
only reorder. Without --to the node stays under its current parent.
`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCoordinator(cmd, app, func(ctx context.Context, c *mutate.Coordinator, _ backend) error {
				n, ok := c.Model().Node(args[0])
				if !ok {
					return errNotFound("node", args[0])
				}
				dest := n.Parent()
				if cmd.Flags().Changed("to") {
					dest = toParent
				}
				p, err := c.RequestMove(n.ID, dest, index)
				if _, err := commit(ctx, p, err); err != nil {
					return err
				}
				moved, _ := c.Model().Node(n.ID)
				return writeOut(cmd, app, format.Envelope(moved))
			})
		},
	}
	cmd.Flags().StringVar(&toParent, "to", "", "Destination parent id")
	cmd.Flags().IntVar(&index, "index", 0, "Destination position (0 = first)")
	return cmd
}
