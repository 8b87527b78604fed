package test

import (
	"context"

	"github.com/warehouselabs/replica-gateway/client"
)

func (s *GatewayApiTestSuite) TestPlanIsReadOnly() {
	datasetName := s.testDatasetName()

	ops, err := s.gatewayClient.Plan(context.Background(), testProject, datasetName,
		[]string{"us-east1"}, "us-east1")
	s.Require().NoError(err)
	s.Assert().Equal([]client.Operation{
		{Kind: "remove", Location: "us-west1"},
	}, ops)

	// planning must not have touched the warehouse
	topo, err := s.gatewayClient.GetTopology(context.Background(), testProject, datasetName)
	s.Require().NoError(err)
	s.Assert().Equal(TEST_REPLICAS, topo.Replicas)
	s.Assert().Equal(TEST_PRIMARY, topo.Primary)
}

func (s *GatewayApiTestSuite) TestPlanConverged() {
	datasetName := s.testDatasetName()

	ops, err := s.gatewayClient.Plan(context.Background(), testProject, datasetName,
		TEST_REPLICAS, TEST_PRIMARY)
	s.Require().NoError(err)
	s.Assert().Empty(ops)
}

func (s *GatewayApiTestSuite) TestPlanMissingDataset() {
	// a dataset with no catalog plans from an empty base rather than failing
	ops, err := s.gatewayClient.Plan(context.Background(), testProject, s.missingDatasetName(),
		TEST_REPLICAS, TEST_PRIMARY)
	s.Require().NoError(err)
	s.Assert().Equal([]client.Operation{
		{Kind: "add", Location: "us-east1"},
		{Kind: "add", Location: "us-west1"},
		{Kind: "set_primary", Location: "us-east1"},
	}, ops)
}
