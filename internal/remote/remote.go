// Package remote defines the contract between the editor core and the
// persistence service, and an HTTP client implementing it.
package remote

import (
	"context"

	"arborescence/internal/model"
)

// Remote is the minimal CRUD + reorder contract the core depends on.
type Remote interface {
	ListTree(ctx context.Context) ([]model.Node, error)
	CreateNode(ctx context.Context, req model.CreateRequest) (model.Node, error)
	RenameNode(ctx context.Context, id string, req model.RenameRequest) (model.Node, error)
	DeleteNode(ctx context.Context, id string) error
	ReorderSiblings(ctx context.Context, req model.ReorderRequest) error
}

// Mover is implemented by backends with a single combined move endpoint.
type Mover interface {
	MoveNode(ctx context.Context, req model.MoveRequest) error
}

// Classifier manages the field/document references that pin nodes.
type Classifier interface {
	AttachRef(ctx context.Context, ref model.Ref) error
	DetachRef(ctx context.Context, ref model.Ref) error
}
