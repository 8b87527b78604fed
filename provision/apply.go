package provision

import (
	"context"

	"github.com/warehouselabs/replica-gateway/datasetcfg"
	"github.com/warehouselabs/replica-gateway/replication"
	"github.com/warehouselabs/replica-gateway/warehouse"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultApplyConcurrency = 4

type ApplyOptions struct {
	// Concurrency caps how many datasets are processed at once.
	Concurrency int

	// DryRun computes what would change without executing any statements.
	DryRun bool
}

// DryRunReport describes the changes EnsureDataset would make.
type DryRunReport struct {
	Identity      replication.DatasetID
	WouldCreate   bool
	UpdateOptions []string
	Plan          replication.Plan
}

// DatasetOutcome is the per-dataset result of an ApplyAll pass. Exactly one
// of Result, DryRun, or Err is set.
type DatasetOutcome struct {
	Name     string
	Identity replication.DatasetID
	Result   *EnsureResult
	DryRun   *DryRunReport
	Err      error
}

// ApplyAll ensures every dataset in the configuration, a bounded number at a
// time. A dataset that fails is recorded in its outcome and does not stop the
// others; the returned error is only non-nil when the context is cancelled.
func (p *Provisioner) ApplyAll(ctx context.Context, cfg *datasetcfg.Config, opts ApplyOptions) ([]DatasetOutcome, error) {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultApplyConcurrency
	}

	names := cfg.DatasetNames()
	outcomes := make([]DatasetOutcome, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, name := range names {
		g.Go(func() error {
			outcomes[i] = p.applyOne(gctx, cfg, name, opts.DryRun)
			return gctx.Err()
		})
	}

	err := g.Wait()
	return outcomes, err
}

func (p *Provisioner) applyOne(ctx context.Context, cfg *datasetcfg.Config, name string, dryRun bool) DatasetOutcome {
	outcome := DatasetOutcome{Name: name}

	resolved, err := cfg.Resolve(name)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Identity = cfg.Identity(name, resolved)

	if dryRun {
		outcome.DryRun, outcome.Err = p.PlanDataset(ctx, outcome.Identity, resolved)
	} else {
		outcome.Result, outcome.Err = p.EnsureDataset(ctx, outcome.Identity, resolved)
	}

	if outcome.Err != nil {
		p.logger.Error("failed to ensure dataset",
			zap.String("name", name),
			zap.Stringer("dataset", outcome.Identity),
			zap.Error(outcome.Err))
	}
	return outcome
}

// PlanDataset computes what EnsureDataset would change, issuing only reads.
// The replication plan is computed directly from the observed topology and
// bypasses the coordinator, so it never claims a session slot.
func (p *Provisioner) PlanDataset(ctx context.Context, id replication.DatasetID, cfg datasetcfg.DatasetConfig) (*DryRunReport, error) {
	report := &DryRunReport{Identity: id}

	exists, err := p.datasetExists(ctx, id)
	if err != nil {
		return nil, err
	}

	if !exists {
		report.WouldCreate = true
	} else {
		rows, err := p.client.Query(ctx, warehouse.DatasetOptionsQuery(id.Project, id.Dataset))
		if err != nil {
			return nil, err
		}
		current, err := warehouse.ParseDatasetOptionRows(rows)
		if err != nil {
			return nil, err
		}
		report.UpdateOptions, _ = optionsDrift(current, optionsFromConfig(cfg))
	}

	desired, requested, err := cfg.ReplicationDescriptor()
	if err != nil {
		return nil, err
	}
	if requested {
		current, err := p.reader.ReadTopology(ctx, id)
		if err != nil && !errors.Is(err, replication.ErrCatalogUnavailable) {
			return nil, err
		}
		report.Plan = replication.CalcPlan(desired, current)
	}

	return report, nil
}
