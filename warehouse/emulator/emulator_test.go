package emulator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warehouselabs/replica-gateway/replication"
	"github.com/warehouselabs/replica-gateway/warehouse"
	"go.uber.org/zap"
)

func newTestEmulator(t *testing.T) *Emulator {
	emu, err := New(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { emu.Close() })
	return emu
}

func TestCreateDatasetWithOptions(t *testing.T) {
	emu := newTestEmulator(t)
	ctx := context.Background()

	stmt := warehouse.CreateDatasetStmt("proj", "sales", warehouse.DatasetOptions{
		Location:                 "us-east1",
		Description:              "sales data",
		Labels:                   map[string]string{"env": "prod", "team": "data"},
		DefaultTableExpirationMS: 86400000,
	})
	require.NoError(t, emu.Exec(ctx, stmt))

	// Creating again is absorbed by IF NOT EXISTS.
	require.NoError(t, emu.Exec(ctx, stmt))

	rows, err := emu.Query(ctx, warehouse.DatasetExistsQuery("proj", "sales"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "sales", rows[0].StringField("schema_name"))

	optRows, err := emu.Query(ctx, warehouse.DatasetOptionsQuery("proj", "sales"))
	require.NoError(t, err)
	opts, err := warehouse.ParseDatasetOptionRows(optRows)
	require.NoError(t, err)
	assert.Equal(t, "us-east1", opts.Location)
	assert.Equal(t, "sales data", opts.Description)
	assert.Equal(t, map[string]string{"env": "prod", "team": "data"}, opts.Labels)
	assert.Equal(t, int64(86400000), opts.DefaultTableExpirationMS)
}

func TestAlterDatasetOptions(t *testing.T) {
	emu := newTestEmulator(t)
	ctx := context.Background()

	require.NoError(t, emu.Exec(ctx,
		warehouse.CreateDatasetStmt("proj", "sales", warehouse.DatasetOptions{
			Description: "old",
		})))

	newOpts := warehouse.DatasetOptions{
		Description: "new",
		Labels:      map[string]string{"env": "prod"},
	}
	require.NoError(t, emu.Exec(ctx,
		warehouse.AlterDatasetOptionsStmt("proj", "sales", newOpts,
			[]string{warehouse.OptionDescription, warehouse.OptionLabels})))

	optRows, err := emu.Query(ctx, warehouse.DatasetOptionsQuery("proj", "sales"))
	require.NoError(t, err)
	opts, err := warehouse.ParseDatasetOptionRows(optRows)
	require.NoError(t, err)
	assert.Equal(t, "new", opts.Description)
	assert.Equal(t, map[string]string{"env": "prod"}, opts.Labels)
}

func TestReplicaLifecycle(t *testing.T) {
	emu := newTestEmulator(t)
	ctx := context.Background()

	require.NoError(t, emu.Exec(ctx,
		warehouse.CreateDatasetStmt("proj", "sales", warehouse.DatasetOptions{})))

	require.NoError(t, emu.Exec(ctx, warehouse.AddReplicaStmt("proj", "sales", "us-east1")))
	require.NoError(t, emu.Exec(ctx, warehouse.AddReplicaStmt("proj", "sales", "us-west1")))
	require.NoError(t, emu.Exec(ctx, warehouse.SetPrimaryStmt("proj", "sales", "us-east1")))

	rows, err := emu.Query(ctx, warehouse.ReplicaCatalogQuery("proj", "sales"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "us-east1", rows[0].StringField("replica_location"))
	assert.True(t, rows[0].BoolField("is_primary_replica"))
	assert.Equal(t, "us-west1", rows[1].StringField("replica_location"))
	assert.False(t, rows[1].BoolField("is_primary_replica"))

	// Moving the primary demotes the old one.
	require.NoError(t, emu.Exec(ctx, warehouse.SetPrimaryStmt("proj", "sales", "us-west1")))
	rows, err = emu.Query(ctx, warehouse.ReplicaCatalogQuery("proj", "sales"))
	require.NoError(t, err)
	assert.False(t, rows[0].BoolField("is_primary_replica"))
	assert.True(t, rows[1].BoolField("is_primary_replica"))

	require.NoError(t, emu.Exec(ctx, warehouse.DropReplicaStmt("proj", "sales", "us-east1")))
	rows, err = emu.Query(ctx, warehouse.ReplicaCatalogQuery("proj", "sales"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestReplicaErrorCodes(t *testing.T) {
	emu := newTestEmulator(t)
	ctx := context.Background()

	t.Run("AddToMissingDataset", func(t *testing.T) {
		err := emu.Exec(ctx, warehouse.AddReplicaStmt("proj", "nope", "us-east1"))
		assert.Equal(t, warehouse.CodeNotFound, warehouse.CodeOf(err))
	})

	require.NoError(t, emu.Exec(ctx,
		warehouse.CreateDatasetStmt("proj", "sales", warehouse.DatasetOptions{})))
	require.NoError(t, emu.Exec(ctx, warehouse.AddReplicaStmt("proj", "sales", "us-east1")))

	t.Run("DuplicateAdd", func(t *testing.T) {
		err := emu.Exec(ctx, warehouse.AddReplicaStmt("proj", "sales", "us-east1"))
		assert.Equal(t, warehouse.CodeAlreadyExists, warehouse.CodeOf(err))
	})

	t.Run("DropUnknownReplica", func(t *testing.T) {
		err := emu.Exec(ctx, warehouse.DropReplicaStmt("proj", "sales", "eu-west1"))
		assert.Equal(t, warehouse.CodeNotFound, warehouse.CodeOf(err))
	})

	t.Run("PromoteUnknownReplica", func(t *testing.T) {
		err := emu.Exec(ctx, warehouse.SetPrimaryStmt("proj", "sales", "eu-west1"))
		assert.Equal(t, warehouse.CodeInvalidArgument, warehouse.CodeOf(err))
	})

	t.Run("DropPrimaryReplica", func(t *testing.T) {
		require.NoError(t, emu.Exec(ctx, warehouse.SetPrimaryStmt("proj", "sales", "us-east1")))
		err := emu.Exec(ctx, warehouse.DropReplicaStmt("proj", "sales", "us-east1"))
		assert.Equal(t, warehouse.CodeInvalidArgument, warehouse.CodeOf(err))
	})

	t.Run("CatalogOfMissingDataset", func(t *testing.T) {
		_, err := emu.Query(ctx, warehouse.ReplicaCatalogQuery("proj", "nope"))
		assert.Equal(t, warehouse.CodeNotFound, warehouse.CodeOf(err))
	})

	t.Run("UnrecognizedStatement", func(t *testing.T) {
		err := emu.Exec(ctx, "DROP TABLE users")
		assert.Equal(t, warehouse.CodeInvalidArgument, warehouse.CodeOf(err))
	})
}

// TestEngineConvergesAgainstEmulator drives the full reconciliation engine
// against the emulator: fresh dataset, convergence, steady state, topology
// change, and de-replication.
func TestEngineConvergesAgainstEmulator(t *testing.T) {
	emu := newTestEmulator(t)
	ctx := context.Background()
	logger := zap.NewNop()

	reader := replication.NewCatalogReader(&replication.CatalogReaderOptions{
		Logger: logger,
		Client: emu,
	})
	executor := replication.NewExecutor(&replication.ExecutorOptions{
		Logger: logger,
		Client: emu,
	})

	id := replication.DatasetID{Project: "proj", Dataset: "sales"}
	require.NoError(t, emu.Exec(ctx,
		warehouse.CreateDatasetStmt("proj", "sales", warehouse.DatasetOptions{})))

	newCoordinator := func() *replication.Coordinator {
		return replication.NewCoordinator(&replication.CoordinatorOptions{
			Logger:   logger,
			Reader:   reader,
			Executor: executor,
			Store:    replication.NewSessionStore(),
		})
	}

	desired, err := replication.NewTopologyDescriptor(
		[]string{"us-east1", "us-west1"}, "us-east1")
	require.NoError(t, err)

	result, err := newCoordinator().EnsureReplication(ctx, id, desired)
	require.NoError(t, err)
	assert.Equal(t, replication.OutcomeConverged, result.Outcome)

	observed, err := reader.ReadTopology(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []replication.ReplicaLocation{"us-east1", "us-west1"}, observed.Replicas)
	assert.Equal(t, replication.ReplicaLocation("us-east1"), observed.Primary)

	// A new session over the same warehouse state is a no-op.
	result, err = newCoordinator().EnsureReplication(ctx, id, desired)
	require.NoError(t, err)
	assert.Equal(t, replication.OutcomeNoop, result.Outcome)

	// Move the primary and shrink the replica set.
	desired, err = replication.NewTopologyDescriptor([]string{"us-west1"}, "us-west1")
	require.NoError(t, err)

	result, err = newCoordinator().EnsureReplication(ctx, id, desired)
	require.NoError(t, err)
	assert.Equal(t, replication.OutcomeConverged, result.Outcome)

	observed, err = reader.ReadTopology(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []replication.ReplicaLocation{"us-west1"}, observed.Replicas)
	assert.Equal(t, replication.ReplicaLocation("us-west1"), observed.Primary)
}

func TestSplitAssignments(t *testing.T) {
	parts := splitAssignments(
		`location = "us-east1", labels = [STRUCT("a", "b"), STRUCT("c", "d")], description = "x, y"`)
	require.Equal(t, []string{
		`location = "us-east1"`,
		`labels = [STRUCT("a", "b"), STRUCT("c", "d")]`,
		`description = "x, y"`,
	}, parts)
}
