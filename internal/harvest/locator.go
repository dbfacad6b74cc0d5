package harvest

import (
	"context"
	"errors"
	"fmt"

	"statharvest/internal/components/assert"
	"statharvest/internal/components/telemetry"
)

const (
	report_locator_group = "locator.group"
	report_locator_found = "locator.found"
)

// Locator finds a table two levels below a hierarchy root, root -> group
// -> table, without walking the rest of the tree.
type Locator struct {
	walker Walker
	tel    telemetry.API
}

func NewLocator(client *Client, tel telemetry.API) Locator {
	assert.NotNil(tel)
	return Locator{
		walker: NewWalker(client, tel, 2),
		tel:    telemetry.NewScopedAPI("locator", tel),
	}
}

// Locate returns the full path of the first item whose id equals tableId,
// in listing order. Groups that fail to list are skipped. If nothing
// matches the returned error matches ErrNotFound and also carries the
// listing failures that were encountered.
func (l Locator) Locate(ctx context.Context, root Path, tableId string) (Path, error) {
	assert.NotEmptyStr(tableId)

	var errs []error
	for node, err := range l.walker.Walk(ctx, root) {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if node.Depth == 0 {
				return nil, err
			}
			l.tel.ReportWarning(report_locator_group, err, node.Path.String())
			errs = append(errs, err)
			continue
		}
		if node.Depth == 2 && node.ID == tableId {
			l.tel.ReportDebug(report_locator_found, node.Path.String(), node.Text)
			return node.Path, nil
		}
	}

	notFound := fmt.Errorf("%s under %s: %w", tableId, root, ErrNotFound)
	return nil, errors.Join(append([]error{notFound}, errs...)...)
}
