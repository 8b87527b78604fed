package replication

import (
	"context"

	"github.com/warehouselabs/replica-gateway/warehouse"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

// TopologyReader discovers the current replication topology of a dataset.
type TopologyReader interface {
	ReadTopology(ctx context.Context, id DatasetID) (ObservedTopology, error)
}

type CatalogReaderOptions struct {
	Logger *zap.Logger
	Client warehouse.Client
}

// CatalogReader reads observed topologies from the warehouse's replication
// catalog with a single query per dataset.
type CatalogReader struct {
	logger *zap.Logger
	client warehouse.Client
}

var _ TopologyReader = (*CatalogReader)(nil)

func NewCatalogReader(opts *CatalogReaderOptions) *CatalogReader {
	return &CatalogReader{
		logger: opts.Logger,
		client: opts.Client,
	}
}

// ReadTopology fetches the dataset's replica rows. A missing catalog
// (the dataset does not exist yet) surfaces as ErrCatalogUnavailable; any
// other failure is wrapped in a CatalogQueryError.
func (r *CatalogReader) ReadTopology(ctx context.Context, id DatasetID) (ObservedTopology, error) {
	rows, err := r.client.Query(ctx, warehouse.ReplicaCatalogQuery(id.Project, id.Dataset))
	if err != nil {
		if warehouse.CodeOf(err) == warehouse.CodeNotFound {
			r.logger.Debug("replication catalog not available",
				zap.Stringer("dataset", id),
				zap.Error(err))
			return ObservedTopology{}, ErrCatalogUnavailable
		}
		return ObservedTopology{}, &CatalogQueryError{Identity: id, Cause: err}
	}

	var topology ObservedTopology
	for _, row := range rows {
		loc := NormalizeLocation(row.StringField("replica_location"))
		if loc == "" {
			continue
		}
		topology.Replicas = append(topology.Replicas, loc)
		if row.BoolField("is_primary_replica") {
			topology.Primary = loc
		}
	}
	slices.Sort(topology.Replicas)

	r.logger.Debug("read replication topology",
		zap.Stringer("dataset", id),
		zap.Any("replicas", topology.Replicas),
		zap.String("primary", string(topology.Primary)))

	return topology, nil
}
