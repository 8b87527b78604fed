// Package provision converges whole datasets onto their configuration:
// creating them when missing, updating drifted options, and handing the
// replication topology to the reconciliation coordinator.
package provision

import (
	"context"

	"github.com/warehouselabs/replica-gateway/datasetcfg"
	"github.com/warehouselabs/replica-gateway/pkg/metrics"
	"github.com/warehouselabs/replica-gateway/replication"
	"github.com/warehouselabs/replica-gateway/warehouse"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
)

type ProvisionerOptions struct {
	Logger      *zap.Logger
	Client      warehouse.Client
	Reader      replication.TopologyReader
	Coordinator *replication.Coordinator
	Metrics     *metrics.RgMetrics
}

type Provisioner struct {
	logger      *zap.Logger
	client      warehouse.Client
	reader      replication.TopologyReader
	coordinator *replication.Coordinator
	metrics     *metrics.RgMetrics
}

func NewProvisioner(opts *ProvisionerOptions) *Provisioner {
	rgMetrics := opts.Metrics
	if rgMetrics == nil {
		rgMetrics = metrics.GetRgMetrics()
	}

	return &Provisioner{
		logger:      opts.Logger,
		client:      opts.Client,
		reader:      opts.Reader,
		coordinator: opts.Coordinator,
		metrics:     rgMetrics,
	}
}

// EnsureResult describes what EnsureDataset changed.
type EnsureResult struct {
	Identity       replication.DatasetID
	CreatedDataset bool
	UpdatedOptions []string
	Replication    *replication.ReconcileResult
}

// EnsureDataset brings one dataset in line with its resolved configuration:
// the dataset itself first, then its options, then its replication topology.
func (p *Provisioner) EnsureDataset(ctx context.Context, id replication.DatasetID, cfg datasetcfg.DatasetConfig) (*EnsureResult, error) {
	result := &EnsureResult{Identity: id}

	// resolve the desired topology first so a bad replication block fails
	// before we touch the warehouse
	desired, requested, err := cfg.ReplicationDescriptor()
	if err != nil {
		return nil, err
	}

	exists, err := p.datasetExists(ctx, id)
	if err != nil {
		return nil, err
	}

	if !exists {
		created, err := p.createDataset(ctx, id, cfg)
		if err != nil {
			return nil, err
		}
		result.CreatedDataset = created
	} else {
		updated, err := p.updateDriftedOptions(ctx, id, cfg)
		if err != nil {
			return nil, err
		}
		result.UpdatedOptions = updated
	}

	if requested {
		reconcileResult, err := p.coordinator.EnsureReplication(ctx, id, desired)
		p.recordReconcile(ctx, reconcileResult, err)
		if err != nil {
			return nil, err
		}
		result.Replication = reconcileResult
	}

	return result, nil
}

func (p *Provisioner) datasetExists(ctx context.Context, id replication.DatasetID) (bool, error) {
	rows, err := p.client.Query(ctx, warehouse.DatasetExistsQuery(id.Project, id.Dataset))
	if err != nil {
		if warehouse.CodeOf(err) == warehouse.CodeNotFound {
			return false, nil
		}
		return false, err
	}
	return len(rows) > 0, nil
}

func (p *Provisioner) createDataset(ctx context.Context, id replication.DatasetID, cfg datasetcfg.DatasetConfig) (bool, error) {
	p.logger.Info("creating dataset",
		zap.Stringer("dataset", id),
		zap.String("location", cfg.Location))

	stmt := warehouse.CreateDatasetStmt(id.Project, id.Dataset, optionsFromConfig(cfg))
	err := p.client.Exec(ctx, stmt)
	if err != nil {
		// Another actor created it between our existence check and now.
		if warehouse.CodeOf(err) == warehouse.CodeAlreadyExists {
			return false, nil
		}
		return false, err
	}

	p.metrics.DatasetsCreated.Add(ctx, 1)
	return true, nil
}

func (p *Provisioner) updateDriftedOptions(ctx context.Context, id replication.DatasetID, cfg datasetcfg.DatasetConfig) ([]string, error) {
	rows, err := p.client.Query(ctx, warehouse.DatasetOptionsQuery(id.Project, id.Dataset))
	if err != nil {
		return nil, err
	}
	current, err := warehouse.ParseDatasetOptionRows(rows)
	if err != nil {
		return nil, err
	}

	desired := optionsFromConfig(cfg)
	drifted, locationDrift := optionsDrift(current, desired)
	if locationDrift {
		p.logger.Warn("dataset location differs from configuration and cannot be changed in place",
			zap.Stringer("dataset", id),
			zap.String("current", current.Location),
			zap.String("configured", desired.Location))
	}
	if len(drifted) == 0 {
		return nil, nil
	}

	p.logger.Info("updating dataset options",
		zap.Stringer("dataset", id),
		zap.Strings("options", drifted))

	err = p.client.Exec(ctx, warehouse.AlterDatasetOptionsStmt(id.Project, id.Dataset, desired, drifted))
	if err != nil {
		return nil, err
	}

	p.metrics.OptionUpdates.Add(ctx, int64(len(drifted)))
	return drifted, nil
}

func (p *Provisioner) recordReconcile(ctx context.Context, result *replication.ReconcileResult, err error) {
	outcome := "failed"
	if err == nil {
		outcome = string(result.Outcome)
	}
	p.metrics.DatasetReconciles.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))

	if err == nil {
		for _, op := range result.Applied {
			p.metrics.ReplicaOperations.Add(ctx, 1,
				metric.WithAttributes(attribute.String("kind", string(op.Kind))))
		}
	}
}

func optionsFromConfig(cfg datasetcfg.DatasetConfig) warehouse.DatasetOptions {
	return warehouse.DatasetOptions{
		Location:                     cfg.Location,
		Description:                  cfg.Description,
		Labels:                       cfg.Labels,
		DefaultTableExpirationMS:     cfg.DefaultTableExpirationMS,
		DefaultPartitionExpirationMS: cfg.DefaultPartitionExpirationMS,
	}
}

// optionsDrift reports which configured options differ from the live ones.
// Unconfigured options never count as drift, and a location mismatch is
// reported separately because location cannot be altered in place.
func optionsDrift(current, desired warehouse.DatasetOptions) ([]string, bool) {
	var drifted []string

	if desired.Description != "" && current.Description != desired.Description {
		drifted = append(drifted, warehouse.OptionDescription)
	}
	if desired.Labels != nil && !maps.Equal(current.Labels, desired.Labels) {
		drifted = append(drifted, warehouse.OptionLabels)
	}
	if desired.DefaultTableExpirationMS > 0 &&
		current.DefaultTableExpirationMS != desired.DefaultTableExpirationMS {
		drifted = append(drifted, warehouse.OptionDefaultTableExpiration)
	}
	if desired.DefaultPartitionExpirationMS > 0 &&
		current.DefaultPartitionExpirationMS != desired.DefaultPartitionExpirationMS {
		drifted = append(drifted, warehouse.OptionPartitionExpiration)
	}

	locationDrift := desired.Location != "" && current.Location != desired.Location
	return drifted, locationDrift
}
