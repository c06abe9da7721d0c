package app

import (
	"context"

	"github.com/Wesp1nzee/crm-deploy/internal/store"
)

// isDescendant reports whether node sits somewhere below ancestor. It walks
// parent links upward from node and stops on the root, on a folder missing
// from the tenant, or when a folder repeats.
func isDescendant(ctx context.Context, lookup store.ParentLookup, ancestorID, nodeID string) (bool, error) {
	visited := make(map[string]struct{})
	current := nodeID
	for current != "" {
		if current == ancestorID {
			return true, nil
		}
		if _, seen := visited[current]; seen {
			return false, nil
		}
		visited[current] = struct{}{}

		parent, found, err := lookup(ctx, current)
		if err != nil {
			return false, err
		}
		if !found || parent == nil {
			return false, nil
		}
		current = *parent
	}
	return false, nil
}

// checkFolderMove rejects a reparent that would make folderID its own
// ancestor. newParentID must exist in the tenant.
func checkFolderMove(folderID string, newParentID *string) func(context.Context, store.ParentLookup) error {
	return func(ctx context.Context, lookup store.ParentLookup) error {
		if newParentID == nil {
			return nil
		}
		if *newParentID == folderID {
			return badRequest("Folder cannot be its own parent")
		}
		if _, found, err := lookup(ctx, *newParentID); err != nil {
			return err
		} else if !found {
			return notFound("Parent folder not found")
		}
		cycle, err := isDescendant(ctx, lookup, folderID, *newParentID)
		if err != nil {
			return err
		}
		if cycle {
			return badRequest("Cannot move folder into its own descendant")
		}
		return nil
	}
}
