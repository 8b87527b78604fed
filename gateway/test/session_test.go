package test

import (
	"context"

	"github.com/warehouselabs/replica-gateway/client"
)

func (s *GatewayApiTestSuite) TestSession() {
	datasetName := s.testDatasetName()

	session, err := s.gatewayClient.GetSession(context.Background())
	s.Require().NoError(err)

	s.Assert().Equal(s.startInfo.SessionID, session.SessionId)
	s.Assert().False(session.StartedAt.IsZero())

	byDataset := make(map[string]client.SessionDataset, len(session.Datasets))
	for _, entry := range session.Datasets {
		s.Assert().Equal(testProject, entry.Project)
		s.Assert().False(entry.ResolvedAt.IsZero())
		byDataset[entry.Dataset] = entry
	}

	seeded, ok := byDataset["seeded_orders"]
	s.Require().True(ok, "session does not contain the seeded dataset")
	s.Assert().Equal(TEST_REPLICAS, seeded.Topology.Replicas)
	s.Assert().Equal(TEST_PRIMARY, seeded.Topology.Primary)

	created, ok := byDataset[datasetName]
	s.Require().True(ok, "session does not contain the api-created dataset")
	s.Assert().Equal(TEST_REPLICAS, created.Topology.Replicas)
}
