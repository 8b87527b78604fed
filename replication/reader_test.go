package replication

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warehouselabs/replica-gateway/warehouse"
	"go.uber.org/zap"
)

func TestCatalogReaderParsesRows(t *testing.T) {
	var gotStmt string
	client := &fakeClient{
		queryFn: func(ctx context.Context, stmt string) ([]warehouse.Row, error) {
			gotStmt = stmt
			return []warehouse.Row{
				{"replica_location": "US-WEST1", "is_primary_replica": false},
				{"replica_location": "us-east1", "is_primary_replica": true},
			}, nil
		},
	}
	reader := NewCatalogReader(&CatalogReaderOptions{
		Logger: zap.NewNop(),
		Client: client,
	})

	topology, err := reader.ReadTopology(context.Background(),
		DatasetID{Project: "proj", Dataset: "sales"})
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT replica_location, is_primary_replica FROM `proj.sales`.INFORMATION_SCHEMA.SCHEMATA_REPLICAS WHERE schema_name = 'sales'",
		gotStmt)
	assert.Equal(t, []ReplicaLocation{"us-east1", "us-west1"}, topology.Replicas)
	assert.Equal(t, ReplicaLocation("us-east1"), topology.Primary)
}

func TestCatalogReaderNoPrimaryReported(t *testing.T) {
	client := &fakeClient{
		queryFn: func(ctx context.Context, stmt string) ([]warehouse.Row, error) {
			return []warehouse.Row{
				{"replica_location": "us-east1", "is_primary_replica": false},
			}, nil
		},
	}
	reader := NewCatalogReader(&CatalogReaderOptions{Logger: zap.NewNop(), Client: client})

	topology, err := reader.ReadTopology(context.Background(),
		DatasetID{Project: "proj", Dataset: "sales"})
	require.NoError(t, err)
	assert.Equal(t, ReplicaLocation(""), topology.Primary)
}

func TestCatalogReaderMissingCatalog(t *testing.T) {
	client := &fakeClient{
		queryFn: func(ctx context.Context, stmt string) ([]warehouse.Row, error) {
			return nil, warehouse.NewStatementError(warehouse.CodeNotFound,
				"dataset proj:sales was not found", nil)
		},
	}
	reader := NewCatalogReader(&CatalogReaderOptions{Logger: zap.NewNop(), Client: client})

	_, err := reader.ReadTopology(context.Background(),
		DatasetID{Project: "proj", Dataset: "sales"})
	require.ErrorIs(t, err, ErrCatalogUnavailable)
}

func TestCatalogReaderQueryFailure(t *testing.T) {
	client := &fakeClient{
		queryFn: func(ctx context.Context, stmt string) ([]warehouse.Row, error) {
			return nil, warehouse.NewStatementError(warehouse.CodeAccessDenied,
				"permission denied on table", nil)
		},
	}
	reader := NewCatalogReader(&CatalogReaderOptions{Logger: zap.NewNop(), Client: client})

	_, err := reader.ReadTopology(context.Background(),
		DatasetID{Project: "proj", Dataset: "sales"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrCatalogUnavailable)

	var queryErr *CatalogQueryError
	require.ErrorAs(t, err, &queryErr)
	assert.Equal(t, "proj.sales", queryErr.Identity.String())
}

func TestCatalogReaderEmptyResult(t *testing.T) {
	client := &fakeClient{
		queryFn: func(ctx context.Context, stmt string) ([]warehouse.Row, error) {
			return nil, nil
		},
	}
	reader := NewCatalogReader(&CatalogReaderOptions{Logger: zap.NewNop(), Client: client})

	topology, err := reader.ReadTopology(context.Background(),
		DatasetID{Project: "proj", Dataset: "sales"})
	require.NoError(t, err)
	assert.Empty(t, topology.Replicas)
	assert.Equal(t, ReplicaLocation(""), topology.Primary)
}
