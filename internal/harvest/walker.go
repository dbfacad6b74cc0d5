package harvest

import (
	"context"
	"fmt"
	"iter"

	"statharvest/internal/components/assert"
	"statharvest/internal/components/telemetry"
)

const (
	report_walker_list  = "walker.list"
	report_walker_cycle = "walker.cycle"
	report_walker_depth = "walker.depth"
)

const DefaultMaxDepth = 8

// Walker enumerates the remote hierarchy one listing request at a time.
type Walker struct {
	client   *Client
	tel      telemetry.API
	maxDepth int
}

// NewWalker creates a walker that will not expand nodes deeper than
// maxDepth levels below the root, a maxDepth <= 0 means DefaultMaxDepth.
func NewWalker(client *Client, tel telemetry.API, maxDepth int) Walker {
	assert.NotNil(client)
	assert.NotNil(tel)
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return Walker{
		client:   client,
		tel:      telemetry.NewScopedAPI("walker", tel),
		maxDepth: maxDepth,
	}
}

// Walk lists root and yields every node below it depth-first, each node
// before its children. A node that fails to list is yielded together with
// its error and its subtree is skipped, siblings are still visited. The
// root itself is not yielded unless listing it fails.
//
// Requests are only issued while the caller keeps iterating, breaking out of
// the loop stops the traversal.
func (w Walker) Walk(ctx context.Context, root Path) iter.Seq2[CatalogNode, error] {
	return func(yield func(CatalogNode, error) bool) {
		items, ok, err := w.client.list(ctx, root)
		if err != nil {
			w.tel.ReportWarning(report_walker_list, err, root.String())
			yield(CatalogNode{Path: root}, fmt.Errorf("list %s: %w", root, err))
			return
		}
		if !ok {
			yield(CatalogNode{Path: root, Leaf: true}, nil)
			return
		}

		for _, item := range items {
			if !w.visit(ctx, w.child(root, 0, item), yield) {
				return
			}
		}
	}
}

func (w Walker) child(parent Path, parentDepth int, item listingItem) CatalogNode {
	return CatalogNode{
		ID:    item.ID,
		Text:  item.Text,
		Type:  item.Type,
		Path:  parent.Child(item.ID),
		Depth: parentDepth + 1,
	}
}

// visit returns false once the consumer has stopped iterating.
func (w Walker) visit(ctx context.Context, node CatalogNode, yield func(CatalogNode, error) bool) bool {
	if node.Type == nodeTypeTable {
		node.Leaf = true
		return yield(node, nil)
	}
	if node.Depth >= w.maxDepth {
		w.tel.ReportDebug(report_walker_depth, node.Path.String())
		return yield(node, nil)
	}
	if err := ctx.Err(); err != nil {
		yield(node, err)
		return false
	}

	items, ok, err := w.client.list(ctx, node.Path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			yield(node, ctxErr)
			return false
		}
		w.tel.ReportWarning(report_walker_list, err, node.Path.String())
		return yield(node, fmt.Errorf("list %s: %w", node.Path, err))
	}
	if !ok || len(items) == 0 {
		node.Leaf = true
		return yield(node, nil)
	}

	if !yield(node, nil) {
		return false
	}
	for _, item := range items {
		child := w.child(node.Path, node.Depth, item)
		if node.Path.Contains(item.ID) {
			w.tel.ReportWarning(report_walker_cycle, child.Path.String())
			if !yield(child, fmt.Errorf("%s: %w", child.Path, ErrCycle)) {
				return false
			}
			continue
		}
		if !w.visit(ctx, child, yield) {
			return false
		}
	}
	return true
}

// Tables collects the leaves below root, along with any listing failures.
func (w Walker) Tables(ctx context.Context, root Path) ([]CatalogNode, []error) {
	var tables []CatalogNode
	var errs []error
	for node, err := range w.Walk(ctx, root) {
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if node.Leaf {
			tables = append(tables, node)
		}
	}
	return tables, errs
}
