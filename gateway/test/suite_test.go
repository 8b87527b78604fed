package test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/warehouselabs/replica-gateway/client"
	"github.com/warehouselabs/replica-gateway/gateway"
	"go.uber.org/zap"
)

const (
	testProject  = "testproj"
	testUsername = "testuser"
	testPassword = "testpass"
)

var TEST_REPLICAS = []string{"us-east1", "us-west1"}

const TEST_PRIMARY = "us-east1"

// seededDatasetsConfig is written to disk before the gateway starts, so the
// initial convergence pass has something to chew on.
const seededDatasetsConfig = `
project: testproj
defaults:
  location: us
  labels:
    managed-by: replica-gateway
groups:
  marts:
    replication:
      replicas: [us-east1, us-west1]
      primary_location: us-east1
datasets:
  seeded_orders:
    group: marts
  seeded_scratch:
    description: unreplicated scratch space
`

type GatewayApiTestSuite struct {
	suite.Suite

	gatewayCloseFunc func()
	gatewayClosedCh  chan struct{}
	startInfo        *gateway.StartupInfo

	apiAddress    string
	gatewayClient *client.Client
}

func (s *GatewayApiTestSuite) randomDatasetName() string {
	return "test_ds_" + strings.ReplaceAll(uuid.NewString(), "-", "_")
}

// testDatasetName creates a converged dataset and returns its name, for tests
// that need an existing dataset to work against.
func (s *GatewayApiTestSuite) testDatasetName() string {
	datasetName := s.randomDatasetName()

	result, err := s.gatewayClient.Reconcile(context.Background(), testProject, datasetName,
		&client.ReconcileOptions{
			Replicas:      TEST_REPLICAS,
			Primary:       TEST_PRIMARY,
			CreateDataset: true,
		})
	s.Require().NoError(err)
	s.Require().True(result.CreatedDataset)

	return datasetName
}

func (s *GatewayApiTestSuite) missingDatasetName() string {
	return s.randomDatasetName()
}

func (s *GatewayApiTestSuite) SetupSuite() {
	s.T().Logf("setting up gateway api suite")

	datasetsPath := filepath.Join(s.T().TempDir(), "datasets.yaml")
	err := os.WriteFile(datasetsPath, []byte(seededDatasetsConfig), 0600)
	if err != nil {
		s.T().Fatalf("failed to write datasets configuration: %s", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		s.T().Fatalf("failed to initialize test logging: %s", err)
	}

	s.T().Logf("launching test gateway...")

	gwStartInfoCh := make(chan *gateway.StartupInfo, 1)

	gwCtx, gwCtxCancel := context.WithCancel(context.Background())
	gwClosedCh := make(chan struct{})
	go func() {
		err := gateway.Run(gwCtx, &gateway.Config{
			Logger:              logger.Named("gateway"),
			Backend:             gateway.BackendEmulator,
			DatasetsConfigPath:  datasetsPath,
			WatchDatasetsConfig: true,
			BindAddress:         "127.0.0.1",
			BindApiPort:         0,
			Username:            testUsername,
			Password:            testPassword,
			Debug:               true,

			StartupCallback: func(m *gateway.StartupInfo) {
				gwStartInfoCh <- m
			},
		})
		if err != nil {
			s.T().Logf("test gateway exited with error: %s", err)
		}

		s.T().Logf("test gateway has shut down")
		close(gwClosedCh)
	}()

	startInfo := <-gwStartInfoCh

	s.startInfo = startInfo
	s.apiAddress = fmt.Sprintf("%s:%d", "127.0.0.1", startInfo.AdvertisePorts.API)

	gatewayClient, err := client.New(s.apiAddress, &client.Options{
		Username: testUsername,
		Password: testPassword,
	})
	if err != nil {
		s.T().Fatalf("failed to create test gateway client: %s", err)
	}
	s.gatewayClient = gatewayClient

	s.gatewayCloseFunc = gwCtxCancel
	s.gatewayClosedCh = gwClosedCh

	// the seeded datasets converge in the background, wait for them so the
	// tests below see a settled session. seeded_scratch never enters the
	// session (it has no replication), so we probe its catalog directly.
	s.Require().Eventually(func() bool {
		session, err := s.gatewayClient.GetSession(context.Background())
		if err != nil || len(session.Datasets) < 1 {
			return false
		}
		_, err = s.gatewayClient.GetTopology(context.Background(), testProject, "seeded_scratch")
		return err == nil
	}, 30*time.Second, 100*time.Millisecond, "seeded datasets never converged")
}

func (s *GatewayApiTestSuite) TearDownSuite() {
	s.T().Logf("tearing down gateway api suite")

	s.gatewayCloseFunc()
	<-s.gatewayClosedCh
	s.gatewayClient = nil
}

func (s *GatewayApiTestSuite) TestHelpers() {
	// we do a quick test of the basic create-and-observe functionality first
	// because most of the tests below require that this is working as
	// expected...
	datasetName := s.testDatasetName()

	topo, err := s.gatewayClient.GetTopology(context.Background(), testProject, datasetName)
	s.Require().NoError(err)
	s.Assert().Equal(TEST_REPLICAS, topo.Replicas)
	s.Assert().Equal(TEST_PRIMARY, topo.Primary)
}
