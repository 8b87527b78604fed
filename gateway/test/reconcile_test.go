package test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/warehouselabs/replica-gateway/client"
)

func (s *GatewayApiTestSuite) TestReconcileLifecycle() {
	datasetName := s.randomDatasetName()

	first, err := s.gatewayClient.Reconcile(context.Background(), testProject, datasetName,
		&client.ReconcileOptions{
			Replicas:      TEST_REPLICAS,
			Primary:       TEST_PRIMARY,
			CreateDataset: true,
		})
	s.Require().NoError(err)
	s.Assert().Equal("converged", first.Outcome)
	s.Assert().True(first.CreatedDataset)
	s.Assert().Equal(TEST_REPLICAS, first.Topology.Replicas)
	s.Assert().Equal(TEST_PRIMARY, first.Topology.Primary)
	s.Assert().Equal([]client.Operation{
		{Kind: "add", Location: "us-east1"},
		{Kind: "add", Location: "us-west1"},
		{Kind: "set_primary", Location: "us-east1"},
	}, first.AppliedOperations)

	// the session already resolved this dataset, so a second reconcile
	// answers from the session without touching the warehouse
	second, err := s.gatewayClient.Reconcile(context.Background(), testProject, datasetName,
		&client.ReconcileOptions{
			Replicas:      TEST_REPLICAS,
			Primary:       TEST_PRIMARY,
			CreateDataset: true,
		})
	s.Require().NoError(err)
	s.Assert().Equal("cached", second.Outcome)
	s.Assert().False(second.CreatedDataset)
	s.Assert().Empty(second.AppliedOperations)
	s.Assert().Equal(first.Topology, second.Topology)
}

func (s *GatewayApiTestSuite) TestReconcileExistingDataset() {
	// seeded_scratch was created by the startup convergence pass without any
	// replication, so it exists in the warehouse but not in the session
	result, err := s.gatewayClient.Reconcile(context.Background(), testProject, "seeded_scratch",
		&client.ReconcileOptions{
			Replicas: []string{"eu-west1"},
			Primary:  "eu-west1",
		})
	s.Require().NoError(err)
	s.Assert().Equal("converged", result.Outcome)
	s.Assert().False(result.CreatedDataset)
	s.Assert().Equal([]client.Operation{
		{Kind: "add", Location: "eu-west1"},
		{Kind: "set_primary", Location: "eu-west1"},
	}, result.AppliedOperations)

	topo, err := s.gatewayClient.GetTopology(context.Background(), testProject, "seeded_scratch")
	s.Require().NoError(err)
	s.Assert().Equal([]string{"eu-west1"}, topo.Replicas)
	s.Assert().Equal("eu-west1", topo.Primary)
}

func (s *GatewayApiTestSuite) TestReconcileSessionPinsTopology() {
	datasetName := s.testDatasetName()

	// asking for a different topology within the same session does not
	// replan, it answers with the topology the session already resolved
	result, err := s.gatewayClient.Reconcile(context.Background(), testProject, datasetName,
		&client.ReconcileOptions{
			Replicas: []string{"asia-northeast1"},
			Primary:  "asia-northeast1",
		})
	s.Require().NoError(err)
	s.Assert().Equal("cached", result.Outcome)
	s.Assert().Equal(TEST_REPLICAS, result.Topology.Replicas)
	s.Assert().Equal(TEST_PRIMARY, result.Topology.Primary)

	topo, err := s.gatewayClient.GetTopology(context.Background(), testProject, datasetName)
	s.Require().NoError(err)
	s.Assert().Equal(TEST_REPLICAS, topo.Replicas)
}

func (s *GatewayApiTestSuite) TestReconcileMissingDataset() {
	_, err := s.gatewayClient.Reconcile(context.Background(), testProject, s.missingDatasetName(),
		&client.ReconcileOptions{
			Replicas: TEST_REPLICAS,
			Primary:  TEST_PRIMARY,
		})
	s.Require().Error(err)

	var serverErr *client.ServerError
	s.Require().ErrorAs(err, &serverErr)
	s.Assert().Equal(http.StatusNotFound, serverErr.StatusCode)
	s.Assert().Equal("NotFound", serverErr.Code)
}

func (s *GatewayApiTestSuite) TestReconcileInvalidTopology() {
	_, err := s.gatewayClient.Reconcile(context.Background(), testProject, s.randomDatasetName(),
		&client.ReconcileOptions{
			Replicas:      []string{"us-east1"},
			Primary:       "us-west1",
			CreateDataset: true,
		})
	s.Require().Error(err)

	var serverErr *client.ServerError
	s.Require().ErrorAs(err, &serverErr)
	s.Assert().Equal(http.StatusBadRequest, serverErr.StatusCode)
	s.Assert().Equal("InvalidArgument", serverErr.Code)
}

func (s *GatewayApiTestSuite) TestGetTopologyMissingDataset() {
	_, err := s.gatewayClient.GetTopology(context.Background(), testProject, s.missingDatasetName())
	s.Require().Error(err)

	var serverErr *client.ServerError
	s.Require().ErrorAs(err, &serverErr)
	s.Assert().Equal(http.StatusNotFound, serverErr.StatusCode)
	s.Assert().Equal("CatalogUnavailable", serverErr.Code)
}

func TestGatewayApi(t *testing.T) {
	suite.Run(t, new(GatewayApiTestSuite))
}
