package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"statharvest/internal/components/assert"
	"statharvest/internal/components/chrono"
	"statharvest/internal/components/telemetry"
)

const (
	report_harvester_discover = "harvester.discover"
	report_harvester_table    = "harvester.table"
	report_harvester_shrink   = "harvester.shrink"
)

const (
	StageDiscover = "discover"
	StageMetadata = "metadata"
	StageData     = "data"
)

type HarvesterOptions struct {
	Policy Policy
	// ShrinkOnTooLarge halves the selection cap after a 413 and resubmits,
	// until the cap reaches 1.
	ShrinkOnTooLarge bool
	// TableDelay is the pause between two tables.
	TableDelay time.Duration
	MaxDepth   int
}

// Plan names what a run should harvest.
type Plan struct {
	Root  Path
	Group string
	// GroupPath skips locating Group when set.
	GroupPath Path
	// Tables are ids below the group, when empty every leaf below the group
	// is harvested.
	Tables []string
}

type Run struct {
	Group     string
	GroupPath Path
	StartedAt time.Time
	Results   []TableResult
	Failures  []TableFailure
}

// Harvester drives locate -> metadata -> query -> data for every table of
// a plan. Tables are processed one after another.
type Harvester struct {
	client  *Client
	locator Locator
	walker  Walker
	tel     telemetry.API
	time    chrono.API
	opts    HarvesterOptions
}

func NewHarvester(client *Client, tel telemetry.API, clock chrono.API, opts HarvesterOptions) Harvester {
	assert.NotNil(client)
	assert.NotNil(tel)
	assert.NotNil(clock)
	assert.NonNegative("table delay", opts.TableDelay)

	return Harvester{
		client:  client,
		locator: NewLocator(client, tel),
		walker:  NewWalker(client, tel, opts.MaxDepth),
		tel:     telemetry.NewScopedAPI("harvester", tel),
		time:    clock,
		opts:    opts,
	}
}

type target struct {
	id   string
	path Path
}

// Run harvests the plan. A table that fails is recorded in Run.Failures and
// the run moves on, only a group that cannot be resolved or a cancelled
// context stop it early.
func (h Harvester) Run(ctx context.Context, plan Plan) (Run, error) {
	run := Run{
		Group:     plan.Group,
		GroupPath: plan.GroupPath,
		StartedAt: h.time.Now(),
	}

	if len(run.GroupPath) == 0 {
		if plan.Group == "" {
			return run, fmt.Errorf("neither a group nor a group path was specified")
		}
		groupPath, err := h.locator.Locate(ctx, plan.Root, plan.Group)
		if err != nil {
			return run, fmt.Errorf("locate group %s: %w", plan.Group, err)
		}
		run.GroupPath = groupPath
	}
	if run.Group == "" {
		run.Group = run.GroupPath[len(run.GroupPath)-1]
	}

	var targets []target
	if len(plan.Tables) > 0 {
		for _, id := range plan.Tables {
			targets = append(targets, target{id: id, path: run.GroupPath.Child(id)})
		}
	} else {
		var failures []TableFailure
		targets, failures = h.discover(ctx, run.GroupPath)
		run.Failures = append(run.Failures, failures...)
		if err := ctx.Err(); err != nil {
			return run, err
		}
	}

	for i, t := range targets {
		if i > 0 && h.opts.TableDelay > 0 {
			err := h.time.Sleep(ctx, h.opts.TableDelay)
			if err != nil {
				return run, err
			}
		}

		result, stage, err := h.harvestTable(ctx, t.path)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return run, ctxErr
			}
			h.tel.ReportWarning(report_harvester_table, err, t.path.String(), stage)
			run.Failures = append(run.Failures, TableFailure{
				TableID: t.id,
				Path:    t.path,
				Stage:   stage,
				Err:     err,
			})
			continue
		}
		run.Results = append(run.Results, result)
	}

	return run, nil
}

func (h Harvester) discover(ctx context.Context, groupPath Path) ([]target, []TableFailure) {
	var targets []target
	var failures []TableFailure
	for node, err := range h.walker.Walk(ctx, groupPath) {
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			h.tel.ReportWarning(report_harvester_discover, err, node.Path.String())
			failures = append(failures, TableFailure{
				TableID: node.ID,
				Path:    node.Path,
				Stage:   StageDiscover,
				Err:     err,
			})
			continue
		}
		if !node.Leaf {
			continue
		}
		id := node.ID
		if id == "" && len(node.Path) > 0 {
			id = node.Path[len(node.Path)-1]
		}
		targets = append(targets, target{id: id, path: node.Path})
	}
	return targets, failures
}

func (h Harvester) harvestTable(ctx context.Context, path Path) (TableResult, string, error) {
	meta, err := h.client.FetchMetadata(ctx, path)
	if err != nil {
		return TableResult{}, StageMetadata, err
	}

	policy := h.opts.Policy
	retries := 0
	for {
		query := BuildQuery(meta, policy)
		result, err := h.client.FetchData(ctx, path, query)
		retries += result.Retries
		if err == nil {
			result.Metadata = meta
			result.Retries = retries
			return result, "", nil
		}
		if !h.opts.ShrinkOnTooLarge || !errors.Is(err, ErrPayloadTooLarge) {
			return TableResult{}, StageData, err
		}

		current := policy.Cap
		if current <= 0 {
			current = largestCappable(meta, policy)
		}
		if current <= 1 {
			return TableResult{}, StageData, err
		}
		policy.Cap = current / 2
		h.tel.ReportWarning(report_harvester_shrink, path.String(), policy.Cap)
	}
}

// largestCappable is the highest value count among variables a cap applies to.
func largestCappable(meta TableMetadata, policy Policy) int {
	largest := 0
	for _, variable := range meta.Variables {
		if isAlwaysFull(policy, variable.Code) {
			continue
		}
		largest = max(largest, len(variable.Values))
	}
	return largest
}
